package message

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// field is a single decoded tag-value pair.
type field struct {
	num   protowire.Number
	typ   protowire.Type
	value []byte
	num64 uint64
}

func (f field) varint() (uint64, error) {
	if f.typ != protowire.VarintType {
		return 0, fmt.Errorf("%w: field %d: expected varint, got wire type %d", ErrDecode, f.num, f.typ)
	}

	return f.num64, nil
}

func (f field) bytes() ([]byte, error) {
	if f.typ != protowire.BytesType {
		return nil, fmt.Errorf("%w: field %d: expected bytes, got wire type %d", ErrDecode, f.num, f.typ)
	}

	return f.value, nil
}

func (f field) string() (string, error) {
	b, err := f.bytes()
	return string(b), err
}

// walk calls visit for every top-level field of a protobuf-encoded buffer.
func walk(data []byte, visit func(f field) error) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrDecode, protowire.ParseError(n))
		}

		data = data[n:]
		f := field{num: num, typ: typ}

		switch typ {
		case protowire.VarintType:
			f.num64, n = protowire.ConsumeVarint(data)
		case protowire.BytesType:
			f.value, n = protowire.ConsumeBytes(data)
		default:
			n = protowire.ConsumeFieldValue(num, typ, data)
		}

		if n < 0 {
			return fmt.Errorf("%w: field %d: %v", ErrDecode, num, protowire.ParseError(n))
		}

		data = data[n:]

		if err := visit(f); err != nil {
			return err
		}
	}

	return nil
}

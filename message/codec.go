package message

import (
	"errors"
	"fmt"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
	"google.golang.org/protobuf/encoding/protowire"
)

var ErrDecode = errors.New("malformed message")

const (
	fieldSeqNumber protowire.Number = 1
	fieldPing      protowire.Number = 2
	fieldAck       protowire.Number = 3
	fieldJoin      protowire.Number = 4
	fieldUpdates   protowire.Number = 5
)

const (
	fieldPingOrigin protowire.Number = 1

	fieldAckResponder   protowire.Number = 1
	fieldAckIncarnation protowire.Number = 2

	fieldJoinMember protowire.Number = 1

	fieldMemberAddr        protowire.Number = 1
	fieldMemberStatus      protowire.Number = 2
	fieldMemberIncarnation protowire.Number = 3
	fieldMemberLabels      protowire.Number = 4

	fieldLabelKey   protowire.Number = 1
	fieldLabelValue protowire.Number = 2
)

// Encode serializes the message using the protobuf wire format. The output is
// deterministic: fields are written in tag order and labels are sorted by key.
// Panics if the message has no payload.
func Encode(msg *Message) []byte {
	b := make([]byte, 0, 64)

	b = protowire.AppendTag(b, fieldSeqNumber, protowire.VarintType)
	b = protowire.AppendVarint(b, msg.SeqNumber)

	switch p := msg.Payload.(type) {
	case *Ping:
		b = appendEmbedded(b, fieldPing, appendPing(nil, p))
	case *Ack:
		b = appendEmbedded(b, fieldAck, appendAck(nil, p))
	case *Join:
		b = appendEmbedded(b, fieldJoin, appendJoin(nil, p))
	default:
		panic(fmt.Sprintf("unknown payload type: %T", msg.Payload))
	}

	for i := range msg.Updates {
		b = appendEmbedded(b, fieldUpdates, appendMember(nil, &msg.Updates[i]))
	}

	return b
}

func appendEmbedded(b []byte, num protowire.Number, inner []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, inner)
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendPing(b []byte, p *Ping) []byte {
	return appendString(b, fieldPingOrigin, p.Origin)
}

func appendAck(b []byte, a *Ack) []byte {
	b = appendString(b, fieldAckResponder, a.Responder)
	return appendVarint(b, fieldAckIncarnation, a.Incarnation)
}

func appendJoin(b []byte, j *Join) []byte {
	return appendEmbedded(b, fieldJoinMember, appendMember(nil, &j.Member))
}

// appendMember writes nothing for labels when the map is empty, so nil and
// empty label sets are indistinguishable on the wire and both decode as nil.
func appendMember(b []byte, m *Member) []byte {
	b = appendString(b, fieldMemberAddr, m.Addr)
	b = appendVarint(b, fieldMemberStatus, uint64(m.Status))
	b = appendVarint(b, fieldMemberIncarnation, m.Incarnation)

	keys := maps.Keys(m.Labels)
	slices.Sort(keys)

	for _, key := range keys {
		label := appendString(nil, fieldLabelKey, key)
		label = appendString(label, fieldLabelValue, m.Labels[key])
		b = appendEmbedded(b, fieldMemberLabels, label)
	}

	return b
}

// Decode parses a datagram produced by Encode. Any malformed input results in
// an error wrapping ErrDecode. Unknown fields are skipped.
func Decode(data []byte) (*Message, error) {
	msg := &Message{}
	payloads := 0

	err := walk(data, func(f field) error {
		var err error

		switch f.num {
		case fieldSeqNumber:
			msg.SeqNumber, err = f.varint()
		case fieldPing:
			var raw []byte
			if raw, err = f.bytes(); err == nil {
				msg.Payload, err = decodePing(raw)
				payloads++
			}
		case fieldAck:
			var raw []byte
			if raw, err = f.bytes(); err == nil {
				msg.Payload, err = decodeAck(raw)
				payloads++
			}
		case fieldJoin:
			var raw []byte
			if raw, err = f.bytes(); err == nil {
				msg.Payload, err = decodeJoin(raw)
				payloads++
			}
		case fieldUpdates:
			var raw []byte
			if raw, err = f.bytes(); err == nil {
				var m Member
				if m, err = decodeMember(raw); err == nil {
					msg.Updates = append(msg.Updates, m)
				}
			}
		}

		return err
	})

	if err != nil {
		return nil, err
	}

	switch {
	case payloads == 0:
		return nil, fmt.Errorf("%w: missing payload", ErrDecode)
	case payloads > 1:
		return nil, fmt.Errorf("%w: multiple payloads", ErrDecode)
	}

	return msg, nil
}

func decodePing(data []byte) (*Ping, error) {
	p := &Ping{}

	err := walk(data, func(f field) (err error) {
		if f.num == fieldPingOrigin {
			p.Origin, err = f.string()
		}
		return err
	})

	if err != nil {
		return nil, err
	}

	return p, nil
}

func decodeAck(data []byte) (*Ack, error) {
	a := &Ack{}

	err := walk(data, func(f field) (err error) {
		switch f.num {
		case fieldAckResponder:
			a.Responder, err = f.string()
		case fieldAckIncarnation:
			a.Incarnation, err = f.varint()
		}
		return err
	})

	if err != nil {
		return nil, err
	}

	return a, nil
}

func decodeJoin(data []byte) (*Join, error) {
	j := &Join{}
	found := false

	err := walk(data, func(f field) error {
		if f.num != fieldJoinMember {
			return nil
		}

		raw, err := f.bytes()
		if err != nil {
			return err
		}

		j.Member, err = decodeMember(raw)
		found = true

		return err
	})

	if err != nil {
		return nil, err
	}

	if !found {
		return nil, fmt.Errorf("%w: join without member", ErrDecode)
	}

	return j, nil
}

func decodeMember(data []byte) (Member, error) {
	var m Member

	err := walk(data, func(f field) error {
		switch f.num {
		case fieldMemberAddr:
			addr, err := f.string()
			m.Addr = addr
			return err
		case fieldMemberStatus:
			status, err := f.varint()
			if err != nil {
				return err
			}
			if status > uint64(StatusDead) || !Status(status).valid() {
				return fmt.Errorf("%w: unknown status %d", ErrDecode, status)
			}
			m.Status = Status(status)
		case fieldMemberIncarnation:
			inc, err := f.varint()
			m.Incarnation = inc
			return err
		case fieldMemberLabels:
			raw, err := f.bytes()
			if err != nil {
				return err
			}
			key, value, err := decodeLabel(raw)
			if err != nil {
				return err
			}
			if m.Labels == nil {
				m.Labels = make(map[string]string)
			}
			m.Labels[key] = value
		}

		return nil
	})

	if err != nil {
		return Member{}, err
	}

	if !m.Status.valid() {
		return Member{}, fmt.Errorf("%w: member %q has no status", ErrDecode, m.Addr)
	}

	return m, nil
}

func decodeLabel(data []byte) (key, value string, err error) {
	err = walk(data, func(f field) (err error) {
		switch f.num {
		case fieldLabelKey:
			key, err = f.string()
		case fieldLabelValue:
			value, err = f.string()
		}
		return err
	})

	return key, value, err
}

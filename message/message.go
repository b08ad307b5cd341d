package message

// Status is the wire representation of a member status.
type Status uint8

const (
	StatusAlive Status = iota + 1
	StatusSuspect
	StatusDead
)

func (s Status) valid() bool {
	return s >= StatusAlive && s <= StatusDead
}

// Member is a membership record as it travels between agents.
type Member struct {
	Addr        string
	Status      Status
	Incarnation uint64
	Labels      map[string]string // empty label sets decode as nil
}

// Payload is one of *Ping, *Ack or *Join.
type Payload interface {
	isPayload()
	Kind() string
}

// Ping asks the receiver to prove it is alive.
type Ping struct {
	Origin string
}

// Ack answers a Ping. Responder is the advertised address of the sender.
type Ack struct {
	Responder   string
	Incarnation uint64
}

// Join announces the sender to the receiver. The same payload is used for
// the reply, which also carries a snapshot of the responder's table.
type Join struct {
	Member Member
}

func (*Ping) isPayload() {}
func (*Ack) isPayload()  {}
func (*Join) isPayload() {}

func (*Ping) Kind() string { return "ping" }
func (*Ack) Kind() string  { return "ack" }
func (*Join) Kind() string { return "join" }

var (
	_ Payload = &Ping{}
	_ Payload = &Ack{}
	_ Payload = &Join{}
)

// Message is the envelope of every datagram exchanged between agents.
type Message struct {
	SeqNumber uint64
	Payload   Payload
	Updates   []Member
}

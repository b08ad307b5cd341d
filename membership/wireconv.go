package membership

import (
	"golang.org/x/exp/maps"

	"github.com/maxpoletaev/krake/message"
)

// ToWireStatus converts a Status to a message.Status.
func ToWireStatus(s Status) message.Status {
	switch s {
	case StatusAlive:
		return message.StatusAlive
	case StatusSuspect:
		return message.StatusSuspect
	case StatusDead:
		return message.StatusDead
	default:
		panic("ToWireStatus: unknown member status")
	}
}

// FromWireStatus converts a message.Status to a Status.
func FromWireStatus(s message.Status) Status {
	switch s {
	case message.StatusAlive:
		return StatusAlive
	case message.StatusSuspect:
		return StatusSuspect
	case message.StatusDead:
		return StatusDead
	default:
		panic("FromWireStatus: unknown member status")
	}
}

// ToWireMember converts a Member to a message.Member. The local Since
// timestamp is not transferred.
func ToWireMember(m *Member) message.Member {
	return message.Member{
		Addr:        m.Addr,
		Status:      ToWireStatus(m.Status),
		Incarnation: m.Incarnation,
		Labels:      maps.Clone(m.Labels),
	}
}

// ToWireMembers converts a list of Member to a list of message.Member.
func ToWireMembers(members []Member) []message.Member {
	if len(members) == 0 {
		return nil
	}

	result := make([]message.Member, len(members))
	for i := range members {
		result[i] = ToWireMember(&members[i])
	}

	return result
}

// FromWireMember converts a message.Member to a Member.
func FromWireMember(m *message.Member) Member {
	return Member{
		Addr:        m.Addr,
		Status:      FromWireStatus(m.Status),
		Incarnation: m.Incarnation,
		Labels:      maps.Clone(m.Labels),
	}
}

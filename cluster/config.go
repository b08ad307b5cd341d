package cluster

import (
	"time"

	"github.com/go-kit/log"

	"github.com/maxpoletaev/krake/faildetector"
	"github.com/maxpoletaev/krake/gossip"
	"github.com/maxpoletaev/krake/internal/telemetry"
	"github.com/maxpoletaev/krake/membership"
)

type Config struct {
	// BindAddr is the host:port the UDP listener is bound to. Port 0 picks an
	// ephemeral port.
	BindAddr string

	// AdvertiseAddr is the address other members use to reach this agent. It
	// identifies the agent in the cluster. Defaults to the bound address. If
	// the port is 0, the bound port is used.
	AdvertiseAddr string

	// StartJoin is the list of seed addresses to join on start. Joins are
	// retried until one of the seeds answers.
	StartJoin []string

	// Labels is opaque metadata announced with the local member.
	Labels map[string]string

	// ProbeInterval is how often a random member is probed.
	ProbeInterval time.Duration

	// ProbeTimeout is how long to wait for an ack before the probed member
	// becomes suspect. Should be shorter than ProbeInterval.
	ProbeTimeout time.Duration

	// SuspicionTimeout is how long a suspect member has to refute the
	// suspicion before it is declared dead.
	SuspicionTimeout time.Duration

	// DeadRetention is how long dead members are kept before eviction.
	DeadRetention time.Duration

	// MaxPiggyback is the max number of updates attached to a single message.
	MaxPiggyback int

	// RetransmitLimit is how many times each update is sent before it is
	// dropped from the dissemination queue.
	RetransmitLimit int

	// MaxJoinSnapshot is the max number of members sent in a join reply.
	MaxJoinSnapshot int

	// InboundQueueSize is the capacity of the channel between the listener
	// and the event loop.
	InboundQueueSize int

	// JoinRetryInterval and JoinRetryMax control the exponential backoff
	// between join attempts.
	JoinRetryInterval time.Duration
	JoinRetryMax      time.Duration

	// Logger is go-kit logger used to record membership changes and
	// non-critical errors. If not provided, it will be totally silent.
	Logger log.Logger

	// Transport is used to exchange datagrams with other members. If not
	// defined, a UDP transport bound to BindAddr is created.
	Transport Transport

	// Rand is the source of randomness for probe target selection. If not
	// defined, a time-seeded one is used.
	Rand membership.Rand

	// Metrics receives protocol counters. If not defined, metrics are
	// collected but not registered anywhere.
	Metrics *telemetry.Metrics
}

// DefaultConfig creates a Config with reasonable default values
// that will not crash the program straight away.
func DefaultConfig() *Config {
	return &Config{
		BindAddr:          "127.0.0.1:9120",
		ProbeInterval:     faildetector.DefaultProbeInterval,
		ProbeTimeout:      faildetector.DefaultProbeTimeout,
		SuspicionTimeout:  faildetector.DefaultSuspicionTimeout,
		DeadRetention:     faildetector.DefaultDeadRetention,
		MaxPiggyback:      gossip.DefaultMaxPiggyback,
		RetransmitLimit:   gossip.DefaultRetransmitLimit,
		MaxJoinSnapshot:   32,
		InboundQueueSize:  64,
		JoinRetryInterval: 1 * time.Second,
		JoinRetryMax:      30 * time.Second,
		Logger:            log.NewNopLogger(),
	}
}

// withDefaults returns a copy of the config where zero values are replaced
// with the defaults.
func (c *Config) withDefaults() *Config {
	conf := *c
	def := DefaultConfig()

	if conf.ProbeInterval <= 0 {
		conf.ProbeInterval = def.ProbeInterval
	}

	if conf.ProbeTimeout <= 0 {
		conf.ProbeTimeout = conf.ProbeInterval / 2
	}

	if conf.SuspicionTimeout <= 0 {
		conf.SuspicionTimeout = 4 * conf.ProbeInterval
	}

	if conf.DeadRetention <= 0 {
		conf.DeadRetention = def.DeadRetention
	}

	if conf.MaxPiggyback <= 0 {
		conf.MaxPiggyback = def.MaxPiggyback
	}

	if conf.RetransmitLimit <= 0 {
		conf.RetransmitLimit = def.RetransmitLimit
	}

	if conf.MaxJoinSnapshot <= 0 {
		conf.MaxJoinSnapshot = def.MaxJoinSnapshot
	}

	if conf.InboundQueueSize <= 0 {
		conf.InboundQueueSize = def.InboundQueueSize
	}

	if conf.JoinRetryInterval <= 0 {
		conf.JoinRetryInterval = def.JoinRetryInterval
	}

	if conf.JoinRetryMax < conf.JoinRetryInterval {
		conf.JoinRetryMax = conf.JoinRetryInterval
	}

	if conf.Logger == nil {
		conf.Logger = def.Logger
	}

	return &conf
}

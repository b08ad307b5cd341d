package cluster

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"golang.org/x/sync/errgroup"

	"github.com/maxpoletaev/krake/faildetector"
	"github.com/maxpoletaev/krake/gossip"
	"github.com/maxpoletaev/krake/internal/generic"
	"github.com/maxpoletaev/krake/internal/telemetry"
	"github.com/maxpoletaev/krake/membership"
	"github.com/maxpoletaev/krake/message"
	"github.com/maxpoletaev/krake/transport"
)

var (
	ErrBind            = errors.New("failed to bind transport")
	ErrListenerStopped = errors.New("listener stopped unexpectedly")
)

// Number of own join requests remembered to recognize replies to them.
const maxTrackedJoins = 64

type inbound struct {
	msg  *message.Message
	from string
}

// Agent is a single member of the cluster. All membership state is owned by
// the event loop goroutine started by Run. Members, Addr and Checksum are
// safe to call from any goroutine.
type Agent struct {
	conf      *Config
	logger    log.Logger
	transport Transport
	metrics   *telemetry.Metrics
	rnd       membership.Rand
	clock     func() time.Time

	addr     string
	table    *membership.Table
	detector *faildetector.Detector
	queue    *gossip.Queue

	lastSeqNum uint64

	seeds       []string
	joins       map[uint64]string
	joinOrder   []uint64
	joined      bool
	joinBackoff time.Duration
	nextJoin    time.Time

	members  generic.Atomic[[]membership.Member]
	checksum generic.Atomic[uint64]
}

// Start creates an agent and runs it until the context is cancelled.
func Start(ctx context.Context, conf *Config) error {
	agent, err := New(conf)
	if err != nil {
		return err
	}

	return agent.Run(ctx)
}

// New binds the transport (unless one is provided in the config) and creates an
// agent whose table contains only the local member.
func New(conf *Config) (*Agent, error) {
	conf = conf.withDefaults()

	tr := conf.Transport
	if tr == nil {
		udp, err := transport.Create(conf.BindAddr)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrBind, err)
		}

		tr = udp
	}

	addr, err := advertiseAddr(conf.AdvertiseAddr, tr)
	if err != nil {
		tr.Close()
		return nil, err
	}

	rnd := conf.Rand
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano())) // nolint:gosec
	}

	metrics := conf.Metrics
	if metrics == nil {
		metrics = telemetry.NewMetrics(nil)
	}

	logger := log.With(conf.Logger, "self", addr)
	table := membership.NewTable(membership.Member{Addr: addr, Labels: conf.Labels}, rnd)

	detector := faildetector.New(table,
		faildetector.WithProbeTimeout(conf.ProbeTimeout),
		faildetector.WithSuspicionTimeout(conf.SuspicionTimeout),
		faildetector.WithDeadRetention(conf.DeadRetention),
		faildetector.WithLogger(logger),
	)

	a := &Agent{
		conf:      conf,
		logger:    logger,
		transport: tr,
		metrics:   metrics,
		rnd:       rnd,
		clock:     time.Now,
		addr:      addr,
		table:     table,
		detector:  detector,
		queue:     gossip.NewQueue(conf.RetransmitLimit),
		joins:     make(map[uint64]string),
	}

	for _, seed := range conf.StartJoin {
		resolved, err := net.ResolveUDPAddr("udp", seed)
		if err != nil {
			level.Warn(logger).Log("msg", "skipping invalid seed address", "seed", seed, "err", err)
			continue
		}

		if resolved.String() != addr {
			a.seeds = append(a.seeds, resolved.String())
		}
	}

	// The local member announces itself through gossip, not only in joins.
	a.queue.Enqueue(table.Self())
	a.publish()

	return a, nil
}

func advertiseAddr(advertise string, tr Transport) (string, error) {
	if advertise == "" {
		return tr.LocalAddr(), nil
	}

	host, port, err := net.SplitHostPort(advertise)
	if err != nil {
		return "", fmt.Errorf("invalid advertise address %q: %w", advertise, err)
	}

	if port == "0" {
		if _, port, err = net.SplitHostPort(tr.LocalAddr()); err != nil {
			return "", fmt.Errorf("invalid local address: %w", err)
		}
	}

	return net.JoinHostPort(host, port), nil
}

// Addr returns the advertised address of the local member.
func (a *Agent) Addr() string {
	return a.addr
}

// Members returns the most recent snapshot of the membership table sorted by
// address, including the local member and tombstones.
func (a *Agent) Members() []membership.Member {
	published := a.members.Load()
	members := make([]membership.Member, len(published))

	for i := range published {
		members[i] = published[i].Clone()
	}

	return members
}

// Checksum returns the digest of the most recent membership snapshot. Agents
// that agree on the membership have equal checksums.
func (a *Agent) Checksum() uint64 {
	return a.checksum.Load()
}

// Run starts the listener and the event loop, and blocks until the context is
// cancelled or the listener fails. The transport is closed on return. Run
// must not be called more than once.
func (a *Agent) Run(ctx context.Context) error {
	inbox := make(chan inbound, a.conf.InboundQueueSize)
	errg, ctx := errgroup.WithContext(ctx)

	errg.Go(func() error {
		return a.listen(ctx, inbox)
	})

	errg.Go(func() error {
		defer a.transport.Close()
		return a.loop(ctx, inbox)
	})

	return errg.Wait()
}

// listen reads datagrams, decodes them and passes them to the event loop.
// Malformed datagrams are dropped.
func (a *Agent) listen(ctx context.Context, inbox chan<- inbound) error {
	const (
		initialDelay = 30 * time.Millisecond
		maxDelay     = 10 * time.Second
	)

	defer close(inbox)

	buf := make([]byte, transport.MaxPacketSize)
	delay := initialDelay

	for {
		n, from, err := a.transport.ReadFrom(buf)
		if err != nil {
			if errors.Is(err, transport.ErrClosed) {
				if ctx.Err() != nil {
					return nil
				}

				return ErrListenerStopped
			}

			level.Error(a.logger).Log("msg", "failed to read from transport", "err", err)

			select {
			case <-ctx.Done():
				return nil
			case <-time.After(delay):
			}

			delay *= 2
			if delay > maxDelay {
				delay = maxDelay
			}

			continue
		}

		delay = initialDelay

		msg, err := message.Decode(buf[:n])
		if err != nil {
			a.metrics.DecodeErrors.Inc()
			level.Warn(a.logger).Log("msg", "dropping malformed datagram", "from", from, "size", n, "err", err)

			continue
		}

		select {
		case inbox <- inbound{msg: msg, from: from}:
		case <-ctx.Done():
			return nil
		}
	}
}

func (a *Agent) loop(ctx context.Context, inbox <-chan inbound) error {
	ticker := time.NewTicker(a.conf.ProbeInterval)
	defer ticker.Stop()

	var (
		probeTimer *time.Timer
		timeout    <-chan time.Time
	)

	defer func() {
		if probeTimer != nil {
			probeTimer.Stop()
		}
	}()

	level.Info(a.logger).Log("msg", "agent started", "seeds", len(a.seeds))

	a.retryJoin(a.clock())

	for {
		select {
		case <-ctx.Done():
			level.Info(a.logger).Log("msg", "agent stopped")
			return nil

		case in, ok := <-inbox:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}

				return ErrListenerStopped
			}

			a.handleMessage(in.msg, in.from, a.clock())

		// Ticks may be delivered late, the tick timestamp is not used as
		// the base for the probe deadline.
		case <-ticker.C:
			a.tick(a.clock())

		case <-timeout:
			timeout = nil
			a.expire(a.clock())
			a.publish()
		}

		if timeout == nil {
			if deadline, ok := a.detector.NextDeadline(); ok {
				probeTimer = time.NewTimer(deadline.Sub(a.clock()))
				timeout = probeTimer.C
			}
		}
	}
}

func (a *Agent) nextSeqNum() uint64 {
	a.lastSeqNum++
	return a.lastSeqNum
}

// publish makes the current state of the table visible to other goroutines.
func (a *Agent) publish() {
	snapshot := a.table.Snapshot()
	counts := make(map[membership.Status]int, 3)

	for i := range snapshot {
		counts[snapshot[i].Status]++
	}

	for _, status := range []membership.Status{membership.StatusAlive, membership.StatusSuspect, membership.StatusDead} {
		a.metrics.Members.WithLabelValues(status.String()).Set(float64(counts[status]))
	}

	a.members.Store(snapshot)
	a.checksum.Store(a.table.Checksum())
}

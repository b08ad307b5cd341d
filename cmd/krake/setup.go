package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"

	kitlog "github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/maxpoletaev/krake/cluster"
	"github.com/maxpoletaev/krake/internal/telemetry"
)

type shutdownFunc func(ctx context.Context) error

var noopShutdown = func(ctx context.Context) error { return nil }

func setupLogger() kitlog.Logger {
	logger := kitlog.NewLogfmtLogger(kitlog.NewSyncWriter(os.Stderr))
	logger = kitlog.With(logger, "ts", kitlog.DefaultTimestampUTC)

	if !opts.Verbose {
		logger = level.NewFilter(logger, level.AllowInfo())
	}

	return logger
}

func setupMetrics(logger kitlog.Logger) (*telemetry.Metrics, shutdownFunc) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	metrics := telemetry.NewMetrics(reg)

	if opts.MetricsAddr == "" {
		return metrics, noopShutdown
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", telemetry.Handler(reg))

	server := &http.Server{
		Addr:    opts.MetricsAddr,
		Handler: mux,
	}

	go func() {
		level.Info(logger).Log("msg", "serving metrics", "addr", opts.MetricsAddr)

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			level.Error(logger).Log("msg", "metrics server failed", "err", err)
		}
	}()

	shutdown := func(ctx context.Context) error {
		if err := server.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shutdown metrics server: %w", err)
		}

		return nil
	}

	return metrics, shutdown
}

func setupConfig(logger kitlog.Logger) (*cluster.Config, error) {
	labels, err := parseLabels(opts.Labels)
	if err != nil {
		return nil, err
	}

	host := opts.ClientAddr
	if host == "" {
		host = localIP()
	}

	conf := cluster.DefaultConfig()
	conf.BindAddr = net.JoinHostPort(host, strconv.Itoa(int(opts.GossipPort)))
	conf.StartJoin = parseAddrs(opts.Members)
	conf.Labels = labels
	conf.ProbeInterval = opts.ProbeInterval
	conf.ProbeTimeout = opts.ProbeInterval / 2
	conf.SuspicionTimeout = 4 * opts.ProbeInterval
	conf.Logger = logger

	return conf, nil
}

// localIP returns the address of the interface used for outbound traffic.
// Dialing UDP only selects a route, nothing is sent.
func localIP() string {
	conn, err := net.Dial("udp", "192.0.2.1:9")
	if err != nil {
		return "127.0.0.1"
	}

	defer conn.Close()

	if addr, ok := conn.LocalAddr().(*net.UDPAddr); ok {
		return addr.IP.String()
	}

	return "127.0.0.1"
}

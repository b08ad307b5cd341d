package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-kit/log/level"
	"github.com/jessevdk/go-flags"

	"github.com/maxpoletaev/krake/cluster"
)

func main() {
	p := flags.NewParser(&opts, flags.Default)

	if _, err := p.Parse(); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}

		fmt.Println("cli error:", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := setupLogger()
	conf, err := setupConfig(logger)
	if err != nil {
		fmt.Println("cli error:", err)
		os.Exit(2) // nolint:gocritic
	}

	metrics, closeMetrics := setupMetrics(logger)
	conf.Metrics = metrics

	level.Info(logger).Log(
		"msg", "starting agent",
		"bind_addr", conf.BindAddr,
		"members", strings.Join(conf.StartJoin, ","),
	)

	err = cluster.Start(ctx, conf)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := closeMetrics(shutdownCtx); err != nil {
		level.Error(logger).Log("msg", "failed to shutdown component", "err", err)
	}

	if err != nil {
		level.Error(logger).Log("msg", "agent failed", "err", err)
		os.Exit(1) // nolint:gocritic
	}

	level.Info(logger).Log("msg", "received interrupt signal, shut down")
}

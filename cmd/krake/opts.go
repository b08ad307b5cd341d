package main

import (
	"fmt"
	"strings"
	"time"
)

var opts struct {
	GossipPort    uint16        `long:"gossip-port" description:"udp port for gossip, 0 picks a free one" env:"KRAKE_GOSSIP_PORT" default:"9120"`
	ClientAddr    string        `long:"client-addr" description:"address to bind and advertise (defaults to the local ip)" env:"KRAKE_CLIENT_ADDR"`
	Members       []string      `short:"m" long:"members" description:"address of a member to join, may be repeated or comma-separated" env:"KRAKE_MEMBERS" env-delim:","`
	Labels        []string      `short:"l" long:"label" description:"label attached to this member as key=value, may be repeated"`
	ProbeInterval time.Duration `long:"probe-interval" description:"failure detection interval" env:"KRAKE_PROBE_INTERVAL" default:"500ms"`
	MetricsAddr   string        `long:"metrics-addr" description:"address to serve prometheus metrics on, disabled if empty" env:"KRAKE_METRICS_ADDR"`
	Verbose       bool          `short:"v" long:"verbose" description:"verbose mode" env:"KRAKE_VERBOSE"`
}

func parseAddrs(values []string) []string {
	res := make([]string, 0, len(values))

	for _, value := range values {
		for _, addr := range strings.Split(value, ",") {
			trimmed := strings.TrimSpace(addr)
			if trimmed != "" {
				res = append(res, trimmed)
			}
		}
	}

	return res
}

func parseLabels(values []string) (map[string]string, error) {
	labels := make(map[string]string, len(values))

	for _, value := range values {
		key, val, ok := strings.Cut(value, "=")

		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid label %q, expected key=value", value)
		}

		labels[key] = val
	}

	return labels, nil
}

package core

import (
	"fmt"
	"regexp"
	"strings"
)

// RoutingKey is a three-segment "application.worker.state" key (spec §4.1,
// §6). The application segment identifies the originating API instance, the
// worker segment names the stage, and the state segment names the stage's
// point in its own lifecycle (init/start/complete/failed/...).
type RoutingKey struct {
	Application string
	Worker      string
	State       string
}

var routingSegmentPattern = regexp.MustCompile(`^[A-Za-z0-9-]+$`)

// ParseRoutingKey splits a wire-format routing key into its three segments,
// validating the grammar from spec §6.
func ParseRoutingKey(key string) (RoutingKey, error) {
	parts := strings.Split(key, ".")
	if len(parts) != 3 {
		return RoutingKey{}, fmt.Errorf("routing key %q does not have exactly 3 segments", key)
	}
	for _, p := range parts {
		if !routingSegmentPattern.MatchString(p) {
			return RoutingKey{}, fmt.Errorf("routing key %q has an invalid segment %q", key, p)
		}
	}
	return RoutingKey{Application: parts[0], Worker: parts[1], State: parts[2]}, nil
}

// String renders the routing key back to wire format.
func (k RoutingKey) String() string {
	return k.Application + "." + k.Worker + "." + k.State
}

// WithState returns a copy of k with a new state segment, preserving the
// application segment verbatim as required by spec §4.1's echo rule.
func (k RoutingKey) WithState(worker, state string) RoutingKey {
	return RoutingKey{Application: k.Application, Worker: worker, State: state}
}

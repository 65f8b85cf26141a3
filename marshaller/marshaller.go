// Package marshaller implements the stateless routing worker described in
// spec §4.2: given an inbound envelope, decide the single next envelope to
// publish by inspecting the routing key's worker/state segments. It is
// grounded on the teacher's stateless-stage pattern in transfers/stages.go,
// where each stage is a pure function from an input to zero-or-one outputs
// with no retained state between calls.
package marshaller

import (
	"strings"

	"github.com/nlds-storage/nlds/core"
)

// transitionKey identifies an inbound (worker, state) pair.
type transitionKey struct {
	worker, state string
}

// transitionFunc computes the outbound envelope for a matched inbound
// envelope. It returns ok=false when the trigger produces no publication
// (e.g. an empty filelist reaching a terminal state, spec §8's boundary
// behaviour "no downstream messages").
type transitionFunc func(core.Envelope) (core.Envelope, bool)

// Next implements the transition table of spec §4.2. It is the one pure
// function the whole marshaller reduces to, making it unit-testable without
// a broker.
//
// A stage worker only ever publishes a `*.failed` envelope for entries it
// has permanently given up on (Fail() called, FailReason set); a merely
// retryable entry is republished by the stage itself back to its own
// worker/state after a back-off delay and never reaches the marshaller as
// a failure (spec §5, §7, §8 invariant 4). So every `*.failed` entry Next()
// sees here is unrecoverable, and the table lookup always wins: a worker
// with a specific compensating transition (transfer-put.failed,
// archive-put.failed, archive-get.failed) gets it; anything else falls
// through to a default monitor-put/monitor-get.failed recording, matching
// spec §4.2's last row.
func Next(env core.Envelope) (core.Envelope, bool) {
	key := transitionKey{worker: env.RoutingKey.Worker, state: env.RoutingKey.State}

	if fn, found := transitions[key]; found {
		return fn(env)
	}

	if env.RoutingKey.State == "failed" {
		return env.WithKey(defaultFailureMonitor(env.RoutingKey.Worker), "failed"), len(env.Data.Filelist) > 0
	}

	return core.Envelope{}, false
}

// defaultFailureMonitor picks the monitor worker an unrecoverable failure
// with no specific compensating transition ratchets into: get-side workers
// (catalog-get, transfer-get, archive-get) have no separate sub-transaction
// to report through, so they ratchet monitor-get; everything else (index,
// catalog-put, and any other put-side worker) ratchets monitor-put.
func defaultFailureMonitor(worker string) string {
	if strings.HasSuffix(worker, "-get") {
		return "monitor-get"
	}
	return "monitor-put"
}

var transitions = map[transitionKey]transitionFunc{
	{worker: "route", state: "put"}: func(e core.Envelope) (core.Envelope, bool) {
		return e.WithKey("index", "init"), true
	},
	{worker: "index", state: "complete"}: func(e core.Envelope) (core.Envelope, bool) {
		return e.WithKey("catalog-put", "start"), true
	},
	{worker: "catalog-put", state: "complete"}: func(e core.Envelope) (core.Envelope, bool) {
		return e.WithKey("transfer-put", "init"), true
	},
	{worker: "transfer-put", state: "complete"}: func(e core.Envelope) (core.Envelope, bool) {
		return e.WithKey("catalog-update", "start"), true
	},
	{worker: "transfer-put", state: "failed"}: func(e core.Envelope) (core.Envelope, bool) {
		return e.WithKey("catalog-del", "start"), true
	},
	// A permanently-failed transfer-get has no catalog row to clean up: the
	// OBJECT_STORE Location it read from already existed before the attempt
	// and is untouched by a failed restore to the user's target, unlike
	// archive-get's failure (below), which must strip the empty Location it
	// itself provisioned. So a failed get just ratchets monitor-get directly
	// rather than falling through to defaultFailureMonitor.
	{worker: "transfer-get", state: "failed"}: func(e core.Envelope) (core.Envelope, bool) {
		return e.WithKey("monitor-get", "failed"), len(e.Data.Filelist) > 0
	},
	{worker: "route", state: "get"}: func(e core.Envelope) (core.Envelope, bool) {
		return e.WithKey("catalog-get", "start"), true
	},
	// route.del has no entry in spec.md's own transition table (§4.2 lists
	// only put and get), but the dellist HTTP endpoint (§6) needs somewhere
	// to land; a delete needs no indexing or transfer, so it goes straight
	// to the same catalog-del.start a failed transfer-put's cleanup uses.
	{worker: "route", state: "del"}: func(e core.Envelope) (core.Envelope, bool) {
		return e.WithKey("catalog-del", "start"), true
	},
	{worker: "catalog-get", state: "archive-restore"}: func(e core.Envelope) (core.Envelope, bool) {
		return e.WithKey("archive-get", "prepare"), true
	},
	{worker: "archive-get", state: "failed"}: func(e core.Envelope) (core.Envelope, bool) {
		return e.WithKey("catalog-remove", "start"), true
	},
	{worker: "catalog-archive-next", state: "complete"}: func(e core.Envelope) (core.Envelope, bool) {
		return e.WithKey("archive-put", "init"), true
	},
	{worker: "archive-put", state: "complete"}: func(e core.Envelope) (core.Envelope, bool) {
		return e.WithKey("catalog-archive-update", "start"), true
	},
	{worker: "archive-put", state: "failed"}: func(e core.Envelope) (core.Envelope, bool) {
		return e.WithKey("catalog-archive-del", "start"), true
	},
	// catalog-get.complete and archive-get.complete both feeding into
	// transfer-get.init is the one two-input join in the table (spec
	// §4.2); a stateless marshaller can't wait for a second message, so
	// each of the two completions independently routes to transfer-get for
	// the subset of the filelist it carries — transfer-get is itself
	// idempotent per object_name (spec §5), so two arrivals for the same
	// aggregate's members are harmless.
	{worker: "catalog-get", state: "complete"}: func(e core.Envelope) (core.Envelope, bool) {
		return e.WithKey("transfer-get", "init"), true
	},
	{worker: "archive-get", state: "complete"}: func(e core.Envelope) (core.Envelope, bool) {
		return e.WithKey("transfer-get", "init"), true
	},
}

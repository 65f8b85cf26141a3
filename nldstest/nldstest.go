// Package nldstest contains small testing utilities shared across package
// test suites, generalised from the teacher's dtstest package (which
// enabled debug logging and registered endpoint/database fixtures) to
// NLDS's domain: debug logging plus sample PathDetails/Envelope builders
// that every stage's tests would otherwise hand-roll independently.
package nldstest

import (
	"log/slog"
	"os"

	"github.com/google/uuid"

	"github.com/nlds-storage/nlds/core"
)

// EnableDebugLogging installs a DEBUG-level JSON slog handler as the
// package-level default, matching the teacher's dtstest.EnableDebugLogging.
func EnableDebugLogging() {
	level := new(slog.LevelVar)
	level.Set(slog.LevelDebug)
	h := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(h))
}

// SamplePathDetails returns n regular-file PathDetails entries with
// distinct original paths and a fixed size, useful wherever a test needs a
// plausible-looking filelist without caring about its contents.
func SamplePathDetails(n int, sizeBytes int64) []core.PathDetails {
	out := make([]core.PathDetails, n)
	for i := range out {
		out[i] = core.PathDetails{
			OriginalPath: "/data/sample-" + uuid.NewString() + ".dat",
			Size:         sizeBytes,
			PathType:     core.PathTypeFile,
			Permissions:  0644,
		}
	}
	return out
}

// SampleEnvelope returns a minimal, valid Envelope addressed to
// application/worker/state, carrying filelist, for tests exercising
// fabric/marshaller routing without constructing every Envelope field by
// hand.
func SampleEnvelope(application, worker, state string, filelist []core.PathDetails) core.Envelope {
	key := core.RoutingKey{Application: application, Worker: worker, State: state}
	details := core.Details{TransactionID: uuid.NewString(), User: "testuser", Group: "testgroup"}
	meta := core.Meta{CorrelationID: uuid.NewString()}
	return core.NewEnvelope(key, details, meta, filelist)
}

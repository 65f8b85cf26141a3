package monitor

// State is a sub-transaction's position in the workflow, ratcheted forward
// as stages complete (spec §3, §4.9).
type State int

// Rank values are taken verbatim from the original JASMIN NLDS source's
// nlds/rabbit/state.py State enum (see _examples/original_source), so the
// ratchet's partial order matches the system this specification describes
// exactly rather than inventing a fresh numbering.
const (
	StateRouting State = 0
	StateSplitting State = 1
	StateIndexing  State = 2
	StateCatalogPutting  State = 3
	StateTransferPutting State = 4

	StateCatalogGetting  State = 10
	StateArchiveGetting  State = 11
	StateTransferGetting State = 12
	StateTransferInit    State = 13

	StateArchiveInit      State = 20
	StateArchivePutting   State = 21
	StateArchivePreparing State = 22

	StateCatalogDeleting       State = 30
	StateCatalogUpdating       State = 31
	StateCatalogArchiveUpdating State = 32
	StateCatalogRemoving       State = 33

	StateComplete             State = 100
	StateFailed               State = 101
	StateCompleteWithErrors   State = 102
	StateCompleteWithWarnings State = 103
)

var stateNames = map[State]string{
	StateRouting:                "ROUTING",
	StateSplitting:               "SPLITTING",
	StateIndexing:                "INDEXING",
	StateCatalogPutting:          "CATALOG_PUTTING",
	StateTransferPutting:         "TRANSFER_PUTTING",
	StateCatalogGetting:          "CATALOG_GETTING",
	StateArchiveGetting:          "ARCHIVE_GETTING",
	StateTransferGetting:         "TRANSFER_GETTING",
	StateTransferInit:            "TRANSFER_INIT",
	StateArchiveInit:             "ARCHIVE_INIT",
	StateArchivePutting:          "ARCHIVE_PUTTING",
	StateArchivePreparing:        "ARCHIVE_PREPARING",
	StateCatalogDeleting:         "CATALOG_DELETING",
	StateCatalogUpdating:         "CATALOG_UPDATING",
	StateCatalogArchiveUpdating:  "CATALOG_ARCHIVE_UPDATING",
	StateCatalogRemoving:         "CATALOG_REMOVING",
	StateComplete:                "COMPLETE",
	StateFailed:                  "FAILED",
	StateCompleteWithErrors:      "COMPLETE_WITH_ERRORS",
	StateCompleteWithWarnings:    "COMPLETE_WITH_WARNINGS",
}

func (s State) String() string {
	if name, found := stateNames[s]; found {
		return name
	}
	return "UNKNOWN"
}

// Terminal reports whether s is one a SubRecord never leaves.
func (s State) Terminal() bool {
	return s == StateComplete || s == StateFailed ||
		s == StateCompleteWithErrors || s == StateCompleteWithWarnings
}

// Ratchet applies the monitor's update rule (spec §4.9, §8 invariant 3):
// next only takes effect if it has strictly greater rank than current, with
// one exception — a transition to StateFailed always takes effect, since a
// failure must never be masked by a stale higher-ranked update arriving
// late out of order.
//
// It returns the resulting state and whether an update actually occurred.
func Ratchet(current, next State) (State, bool) {
	if next == StateFailed && current != StateFailed {
		return StateFailed, true
	}
	if next > current {
		return next, true
	}
	return current, false
}

// Rollup computes a TransactionRecord's displayed overall state from its
// SubRecords' states (spec §4.9): the minimum (least advanced) state among
// non-terminal subs, or - once every sub is terminal - StateFailed if any
// sub failed, else StateComplete.
func Rollup(subStates []State) State {
	if len(subStates) == 0 {
		return StateComplete
	}
	allTerminal := true
	anyFailed := false
	min := subStates[0]
	for _, s := range subStates {
		if !s.Terminal() {
			allTerminal = false
		}
		if s == StateFailed {
			anyFailed = true
		}
		if !allTerminal && s < min {
			min = s
		}
	}
	if !allTerminal {
		// recompute min over non-terminal states only, since a terminal sub
		// shouldn't hold back the rollup while others are still in flight
		min = subStates[0]
		first := true
		for _, s := range subStates {
			if s.Terminal() {
				continue
			}
			if first || s < min {
				min = s
				first = false
			}
		}
		return min
	}
	if anyFailed {
		return StateFailed
	}
	return StateComplete
}

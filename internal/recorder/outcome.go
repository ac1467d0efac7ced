package recorder

// Outcome classifies what one controller operation did.
type Outcome int

const (
	// OutcomeOK means the helper accepted the request and state advanced.
	OutcomeOK Outcome = iota
	// OutcomeIgnored means the request did not apply (no session, unloaded).
	OutcomeIgnored
	// OutcomeCanceled means the user dismissed the helper's mark editor.
	OutcomeCanceled
	// OutcomeSpawnFailure means the helper could not be run at all.
	OutcomeSpawnFailure
	// OutcomeProtocolFailure means the helper ran and exited non-zero.
	OutcomeProtocolFailure
	// OutcomeOutOfBand means the helper reported the session already ended.
	OutcomeOutOfBand
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeIgnored:
		return "ignored"
	case OutcomeCanceled:
		return "canceled"
	case OutcomeSpawnFailure:
		return "spawn_failure"
	case OutcomeProtocolFailure:
		return "protocol_failure"
	case OutcomeOutOfBand:
		return "out_of_band"
	default:
		return "unknown"
	}
}

// EndReason records why a session left the active state.
type EndReason string

const (
	ReasonStop            EndReason = "stop"
	ReasonHelperStopped   EndReason = "stopped_by_helper"
	ReasonNoSession       EndReason = "no_active_session"
	ReasonArtifactDeleted EndReason = "artifact_deleted"
	ReasonArtifactRenamed EndReason = "artifact_renamed"
	ReasonArtifactMissing EndReason = "artifact_missing"
	ReasonUnload          EndReason = "unload"
)

package recorder

import "strings"

// Sub-commands understood by the record helper.
const (
	SubStart = "start"
	SubMark  = "mark"
	SubStop  = "stop"
)

// Literals the record helper prints to signal out-of-band events.
const (
	// StoppedSentinel appears in mark stdout when the user chose Stop or
	// Save & Stop in the helper's mark editor. Matched case-sensitively.
	StoppedSentinel = "__STOPPED__"

	// CanceledSentinel appears in mark stdout when the mark editor was
	// dismissed. Matched case-insensitively.
	CanceledSentinel = "Canceled"

	// NoSessionSentinel appears in stderr when the helper has no open session.
	NoSessionSentinel = "No active session"
)

// markVerdict classifies a successful mark invocation's stdout.
type markVerdict int

const (
	markRecorded markVerdict = iota
	markStopped
	markCanceled
)

func classifyMarkOutput(stdout string) markVerdict {
	if strings.Contains(stdout, StoppedSentinel) {
		return markStopped
	}
	if strings.Contains(strings.ToLower(stdout), strings.ToLower(CanceledSentinel)) {
		return markCanceled
	}
	return markRecorded
}

func reportsNoSession(stderr string) bool {
	return strings.Contains(stderr, NoSessionSentinel)
}

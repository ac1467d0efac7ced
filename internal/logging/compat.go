package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
)

// BridgeWriter wraps slog as an io.Writer so that plain-text output from
// helper processes flows through the structured logging system. Every line
// becomes one record. A leading "[TAG] " is parsed: level tags (ERROR, WARN,
// INFO, DEBUG) set the record level, any other tag becomes the "component".
type BridgeWriter struct {
	logger    *slog.Logger
	component string
	level     slog.Level
	attrs     []any
}

// NewBridgeWriter creates a writer that forwards writes to slog.
// defaultComponent is used when no [TAG] prefix names one, and level is the
// record level used when no level tag is present.
func NewBridgeWriter(defaultComponent string, level slog.Level, attrs ...slog.Attr) *BridgeWriter {
	args := make([]any, 0, len(attrs))
	for _, a := range attrs {
		args = append(args, a)
	}
	return &BridgeWriter{
		logger:    Logger(),
		component: defaultComponent,
		level:     level,
		attrs:     args,
	}
}

// Write implements io.Writer.
func (bw *BridgeWriter) Write(p []byte) (int, error) {
	n := len(p)
	for _, line := range bytes.Split(p, []byte{'\n'}) {
		bw.writeLine(string(bytes.TrimSpace(line)))
	}
	return n, nil
}

func (bw *BridgeWriter) writeLine(msg string) {
	if msg == "" {
		return
	}

	msg = stripLogTimestamp(msg)

	component := bw.component
	level := bw.level
	if strings.HasPrefix(msg, "[") {
		if idx := strings.Index(msg, "] "); idx > 0 {
			tag := strings.ToLower(msg[1:idx])
			if lvl, ok := levelTag(tag); ok {
				level = lvl
			} else {
				component = canonicalComponent(tag)
			}
			msg = msg[idx+2:]
		}
	}

	args := append([]any{slog.String("component", component)}, bw.attrs...)
	bw.logger.Log(context.Background(), level, msg, args...)
}

func levelTag(tag string) (slog.Level, bool) {
	switch tag {
	case "error", "err", "fatal":
		return slog.LevelError, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "info":
		return slog.LevelInfo, true
	case "debug":
		return slog.LevelDebug, true
	}
	return 0, false
}

// stripLogTimestamp removes the time prefix Python's logging and Go's log
// package put in front of each line.
func stripLogTimestamp(s string) string {
	// "15:04:05.000000 "
	if len(s) > 16 && s[2] == ':' && s[5] == ':' && s[8] == '.' && s[15] == ' ' {
		return s[16:]
	}
	// "15:04:05 "
	if len(s) > 9 && s[2] == ':' && s[5] == ':' && s[8] == ' ' {
		return s[9:]
	}
	// "2006-01-02 15:04:05,000 " (Python logging default)
	if len(s) > 24 && s[4] == '-' && s[7] == '-' && s[13] == ':' && s[19] == ',' && s[23] == ' ' {
		return s[24:]
	}
	return s
}

// canonicalComponent maps known helper tags to canonical component names.
func canonicalComponent(tag string) string {
	switch tag {
	case "rec", "record", "recorder", "mark":
		return CompRecorder
	case "state", "watch":
		return CompReconcile
	case "brightness", "touchpad", "vtp", "gesture", "boxing", "paste", "clipboard", "meeting":
		return CompToggle
	default:
		return tag
	}
}

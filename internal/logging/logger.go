// Package logging is the deck's structured logger: JSON lines into a
// rotated file, a line ring kept in memory for the "logs" command, and
// periodic summaries of noisy events.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Components tag every record with the subsystem that wrote it.
const (
	CompRecorder  = "recorder"
	CompReconcile = "reconcile"
	CompHelper    = "helper"
	CompToggle    = "toggle"
	CompPlugin    = "plugin"
	CompIPC       = "ipc"
	CompWeb       = "web"
	CompStorage   = "storage"
	CompCLI       = "cli"
	CompUI        = "ui"
)

// LogFileName is the rotated log file written inside Config.LogDir.
const LogFileName = "deck.log"

const (
	defaultMaxSizeMB   = 10
	defaultMaxBackups  = 5
	defaultMaxAgeDays  = 10
	defaultRingLines   = 2000
	defaultSummaryTick = 30 * time.Second
)

// Config describes where records go. Zero values get defaults.
type Config struct {
	// LogDir holds deck.log and its rotations. Empty disables the file.
	LogDir string
	Level  string // debug, info, warn or error
	Format string // json or text

	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool

	// RingLines is how many recent lines RecentLines can return.
	RingLines int
	// SummaryInterval is how often Aggregate counters are logged.
	SummaryInterval time.Duration

	// Console, when set, receives a text copy of every record.
	Console io.Writer

	// Debug keeps records flowing to the ring even with no file or console.
	Debug bool
}

func (c *Config) withDefaults() {
	if c.MaxSizeMB <= 0 {
		c.MaxSizeMB = defaultMaxSizeMB
	}
	if c.MaxBackups <= 0 {
		c.MaxBackups = defaultMaxBackups
	}
	if c.MaxAgeDays <= 0 {
		c.MaxAgeDays = defaultMaxAgeDays
	}
	if c.RingLines <= 0 {
		c.RingLines = defaultRingLines
	}
	if c.SummaryInterval <= 0 {
		c.SummaryInterval = defaultSummaryTick
	}
}

// sink is everything one Init call builds. It is swapped as a unit.
type sink struct {
	logger *slog.Logger
	ring   *LineRing
	sum    *Summarizer
	file   *lumberjack.Logger
	stop   context.CancelFunc
	done   chan struct{}
}

var (
	current atomic.Pointer[sink]
	initMu  sync.Mutex
	discard = slog.New(slog.NewJSONHandler(io.Discard, nil))
)

// ParseLevel maps a config string to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("invalid log level %q (must be debug, info, warn or error)", s)
}

// Init replaces the active sink. With no file, no console and Debug off,
// records are dropped.
func Init(cfg Config) {
	initMu.Lock()
	defer initMu.Unlock()

	cfg.withDefaults()
	next := build(cfg)
	if prev := current.Swap(next); prev != nil {
		prev.close()
	}
}

func build(cfg Config) *sink {
	// Unknown levels fall back to info; the CLI validates first.
	level, _ := ParseLevel(cfg.Level)
	s := &sink{ring: NewLineRing(cfg.RingLines), done: make(chan struct{})}

	if !cfg.Debug && cfg.LogDir == "" && cfg.Console == nil {
		s.logger = discard
		s.sum = NewSummarizer(nil)
		close(s.done)
		return s
	}

	var out io.Writer = s.ring
	if cfg.LogDir != "" {
		s.file = &lumberjack.Logger{
			Filename:   filepath.Join(cfg.LogDir, LogFileName),
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
		out = io.MultiWriter(s.ring, s.file)
	}

	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler = slog.NewJSONHandler(out, opts)
	if cfg.Format == "text" {
		h = slog.NewTextHandler(out, opts)
	}
	if cfg.Console != nil {
		h = fanoutHandler{h, slog.NewTextHandler(cfg.Console, opts)}
	}
	s.logger = slog.New(h)
	s.sum = NewSummarizer(s.logger)

	ctx, cancel := context.WithCancel(context.Background())
	s.stop = cancel
	go func() {
		defer close(s.done)
		s.sum.Run(ctx, cfg.SummaryInterval)
	}()
	return s
}

func (s *sink) close() {
	if s.stop != nil {
		s.stop()
	}
	<-s.done
	s.sum.Flush()
	if s.file != nil {
		_ = s.file.Close()
	}
}

// Logger returns the active logger, or a discarding one before Init.
func Logger() *slog.Logger {
	if s := current.Load(); s != nil {
		return s.logger
	}
	return discard
}

// ForComponent returns a logger tagged with component. It follows later
// Init calls, so package-level loggers can be created before Init.
func ForComponent(name string) *slog.Logger {
	return slog.New(&componentHandler{component: name})
}

// componentHandler resolves the active handler on every record.
type componentHandler struct {
	component string
	attrs     []slog.Attr
	groups    []string
}

func (h *componentHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return Logger().Handler().Enabled(ctx, level)
}

func (h *componentHandler) Handle(ctx context.Context, r slog.Record) error {
	target := Logger().Handler().WithAttrs([]slog.Attr{slog.String("component", h.component)})
	if len(h.attrs) > 0 {
		target = target.WithAttrs(h.attrs)
	}
	for _, g := range h.groups {
		target = target.WithGroup(g)
	}
	return target.Handle(ctx, r)
}

func (h *componentHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := *h
	c.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &c
}

func (h *componentHandler) WithGroup(name string) slog.Handler {
	c := *h
	c.groups = append(append([]string(nil), h.groups...), name)
	return &c
}

// fanoutHandler writes each record to both handlers.
type fanoutHandler [2]slog.Handler

func (f fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return f[0].Enabled(ctx, level) || f[1].Enabled(ctx, level)
}

func (f fanoutHandler) Handle(ctx context.Context, r slog.Record) error {
	err := f[0].Handle(ctx, r.Clone())
	if err2 := f[1].Handle(ctx, r); err == nil {
		err = err2
	}
	return err
}

func (f fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return fanoutHandler{f[0].WithAttrs(attrs), f[1].WithAttrs(attrs)}
}

func (f fanoutHandler) WithGroup(name string) slog.Handler {
	return fanoutHandler{f[0].WithGroup(name), f[1].WithGroup(name)}
}

// Aggregate counts a high-frequency event. The count is logged once per
// summary interval instead of one record per occurrence.
func Aggregate(component, event string, fields ...slog.Attr) {
	if s := current.Load(); s != nil {
		s.sum.Record(component, event, fields...)
	}
}

// RecentLines returns up to n of the most recent log lines, oldest first.
func RecentLines(n int) []string {
	if s := current.Load(); s != nil {
		return s.ring.Lines(n)
	}
	return nil
}

// DumpRingBuffer writes the in-memory lines to path.
func DumpRingBuffer(path string) error {
	if s := current.Load(); s != nil {
		return s.ring.DumpToFile(path)
	}
	return nil
}

// Shutdown flushes pending summaries and closes the log file.
func Shutdown() {
	initMu.Lock()
	defer initMu.Unlock()
	if prev := current.Swap(nil); prev != nil {
		prev.close()
	}
}

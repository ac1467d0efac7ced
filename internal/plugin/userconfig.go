package plugin

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/flowork/flowork-deck/internal/platform"
)

// UserConfigFileName is the TOML file inside the data dir.
const UserConfigFileName = "config.toml"

// Default values applied by the Get*Settings accessors.
const (
	DefaultStateFile      = "session_state.json"
	DefaultTapWindowMs    = 600
	DefaultPollIntervalMs = 800
	DefaultStartGraceMs   = 5000
	DefaultWebListen      = "127.0.0.1:8420"
	DefaultSocketName     = "deck.sock"
	DefaultHistoryDBName  = "state.db"
)

// EnvWebToken overrides [web] token so it can stay out of the file.
const EnvWebToken = "FLOWORK_DECK_WEB_TOKEN"

// UserConfig is the whole of config.toml.
type UserConfig struct {
	Recorder RecorderSettings `toml:"recorder"`
	Toggles  []ToggleSettings `toml:"toggle"`
	Logs     LogSettings      `toml:"logs"`
	IPC      IPCSettings      `toml:"ipc"`
	Web      WebSettings      `toml:"web"`
	History  HistorySettings  `toml:"history"`
}

// RecorderSettings configures the record button and its helper.
type RecorderSettings struct {
	// Interpreter runs the helper, e.g. "pythonw". Default: platform python
	Interpreter string `toml:"interpreter"`

	// Script is the helper script path. Empty means Interpreter is the helper
	Script string `toml:"script"`

	WorkDir string `toml:"work_dir"`

	// StateDir holds the helper's session state file.
	// FLOWORK_LOG_DIR overrides it. Default: ~/Documents/FloWork/ScreenRecordMarks
	StateDir string `toml:"state_dir"`

	// StateFile is the artifact name. Default: session_state.json
	StateFile string `toml:"state_file"`

	TapWindowMs    int `toml:"tap_window_ms"`
	PollIntervalMs int `toml:"poll_interval_ms"`

	// StartGraceMs tolerates a state file that appears shortly after start.
	StartGraceMs int `toml:"start_grace_ms"`

	// InvokeTimeoutS bounds one helper call. 0 means no limit
	InvokeTimeoutS int `toml:"invoke_timeout_s"`

	ShowElapsed bool `toml:"show_elapsed"`
	LabelWidth  int  `toml:"label_width"`
}

// ArtifactPath resolves the state file location.
func (r RecorderSettings) ArtifactPath() string {
	return filepath.Join(platform.ArtifactDir(r.StateDir), r.StateFile)
}

// ToggleSettings describes one [[toggle]] entry.
type ToggleSettings struct {
	Name               string   `toml:"name"`
	DisplayName        string   `toml:"display_name"`
	Group              string   `toml:"group"`
	Command            string   `toml:"command"`
	Args               []string `toml:"args"`
	WorkDir            string   `toml:"work_dir"`
	RunningLabel       string   `toml:"running_label"`
	IdleLabel          string   `toml:"idle_label"`
	MinPressIntervalMs int      `toml:"min_press_interval_ms"`
}

// LogSettings mirrors logging.Config.
type LogSettings struct {
	// Level is "debug", "info", "warn" or "error". Default: "info"
	Level string `toml:"level"`

	// Format is "json" (default) or "text"
	Format string `toml:"format"`

	MaxSizeMB     int `toml:"max_size_mb"`
	MaxBackups    int `toml:"max_backups"`
	RetentionDays int `toml:"retention_days"`

	// Compress gzips rotated files. Default: true
	Compress *bool `toml:"compress"`

	// RingLines is how many recent lines "flowork-deck logs" can show.
	RingLines        int `toml:"ring_lines"`
	SummaryIntervalS int `toml:"summary_interval_s"`
}

// GetCompress returns whether rotated logs are compressed, defaulting to true
func (l *LogSettings) GetCompress() bool {
	if l.Compress == nil {
		return true
	}
	return *l.Compress
}

// IPCSettings configures the control socket.
type IPCSettings struct {
	SocketPath string `toml:"socket_path"`
}

// WebSettings configures the display feed.
type WebSettings struct {
	Enabled  bool   `toml:"enabled"`
	Listen   string `toml:"listen"`
	Token    string `toml:"token"`
	ReadOnly bool   `toml:"read_only"`
}

// HistorySettings configures the session history database.
type HistorySettings struct {
	Enabled *bool  `toml:"enabled"`
	DBPath  string `toml:"db_path"`
}

// GetEnabled returns whether history is recorded, defaulting to true
func (h *HistorySettings) GetEnabled() bool {
	if h.Enabled == nil {
		return true
	}
	return *h.Enabled
}

var defaultUserConfig = UserConfig{}

// Cache for user config (loaded once per process)
var (
	userConfigCache   *UserConfig
	userConfigCacheMu sync.RWMutex
)

// GetUserConfigPath returns the path to config.toml.
func GetUserConfigPath() (string, error) {
	dir, err := platform.DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, UserConfigFileName), nil
}

// LoadUserConfig loads config.toml, returning the cached copy after the
// first call. A missing file yields defaults. A parse error is returned
// alongside the defaults, which are cached to avoid re-parsing.
func LoadUserConfig() (*UserConfig, error) {
	userConfigCacheMu.RLock()
	if userConfigCache != nil {
		defer userConfigCacheMu.RUnlock()
		return userConfigCache, nil
	}
	userConfigCacheMu.RUnlock()

	userConfigCacheMu.Lock()
	defer userConfigCacheMu.Unlock()

	if userConfigCache != nil {
		return userConfigCache, nil
	}

	configPath, err := GetUserConfigPath()
	if err != nil {
		userConfigCache = &defaultUserConfig
		return userConfigCache, nil
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		userConfigCache = &defaultUserConfig
		return userConfigCache, nil
	}

	var config UserConfig
	if _, err := toml.DecodeFile(configPath, &config); err != nil {
		userConfigCache = &defaultUserConfig
		return userConfigCache, fmt.Errorf("config.toml parse error: %w", err)
	}

	userConfigCache = &config
	return userConfigCache, nil
}

// ReloadUserConfig drops the cache and loads again.
func ReloadUserConfig() (*UserConfig, error) {
	ClearUserConfigCache()
	return LoadUserConfig()
}

// ClearUserConfigCache resets the cache; the next load reads from disk.
func ClearUserConfigCache() {
	userConfigCacheMu.Lock()
	userConfigCache = nil
	userConfigCacheMu.Unlock()
}

// SaveUserConfig writes config.toml atomically and clears the cache.
func SaveUserConfig(config *UserConfig) error {
	configPath, err := GetUserConfigPath()
	if err != nil {
		return fmt.Errorf("failed to get config path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(configPath), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString("# FloWork Deck configuration\n\n")
	if err := toml.NewEncoder(&buf).Encode(config); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := writeFileAtomic(configPath, buf.Bytes()); err != nil {
		return err
	}
	ClearUserConfigCache()
	return nil
}

// writeFileAtomic writes to a temp file, fsyncs it, then renames over path.
func writeFileAtomic(path string, data []byte) error {
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	// A failed fsync still leaves the rename atomic.
	_ = syncConfigFile(tmpPath)
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to finalize config save: %w", err)
	}
	return nil
}

func syncConfigFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}

func loadOrDefault() *UserConfig {
	config, err := LoadUserConfig()
	if err != nil || config == nil {
		return &defaultUserConfig
	}
	return config
}

// GetRecorderSettings returns recorder settings with defaults applied.
func GetRecorderSettings() RecorderSettings {
	s := loadOrDefault().Recorder
	if s.Interpreter == "" {
		s.Interpreter = platform.DefaultInterpreter()
	}
	if s.StateFile == "" {
		s.StateFile = DefaultStateFile
	}
	if s.TapWindowMs <= 0 {
		s.TapWindowMs = DefaultTapWindowMs
	}
	if s.PollIntervalMs <= 0 {
		s.PollIntervalMs = DefaultPollIntervalMs
	}
	if s.StartGraceMs <= 0 {
		s.StartGraceMs = DefaultStartGraceMs
	}
	if s.InvokeTimeoutS < 0 {
		s.InvokeTimeoutS = 0
	}
	if s.LabelWidth < 0 {
		s.LabelWidth = 0
	}
	s.Script = platform.ExpandHome(s.Script)
	s.WorkDir = platform.ExpandHome(s.WorkDir)
	return s
}

// GetToggleSettings returns the configured toggles; entries without a name
// or command are skipped.
func GetToggleSettings() []ToggleSettings {
	var out []ToggleSettings
	for _, t := range loadOrDefault().Toggles {
		if t.Name == "" || t.Command == "" {
			continue
		}
		t.Command = platform.ExpandHome(t.Command)
		t.WorkDir = platform.ExpandHome(t.WorkDir)
		args := make([]string, len(t.Args))
		for i, a := range t.Args {
			args[i] = platform.ExpandHome(a)
		}
		t.Args = args
		out = append(out, t)
	}
	return out
}

// GetLogSettings returns log settings with defaults applied.
func GetLogSettings() LogSettings {
	s := loadOrDefault().Logs
	if s.Level == "" {
		s.Level = "info"
	}
	if s.Format == "" {
		s.Format = "json"
	}
	if s.MaxSizeMB <= 0 {
		s.MaxSizeMB = 10
	}
	if s.MaxBackups <= 0 {
		s.MaxBackups = 5
	}
	if s.RetentionDays <= 0 {
		s.RetentionDays = 10
	}
	if s.RingLines <= 0 {
		s.RingLines = 2000
	}
	if s.SummaryIntervalS <= 0 {
		s.SummaryIntervalS = 30
	}
	return s
}

// GetIPCSettings returns IPC settings with the socket path resolved.
func GetIPCSettings() IPCSettings {
	s := loadOrDefault().IPC
	if s.SocketPath == "" {
		if dir, err := platform.DataDir(); err == nil {
			s.SocketPath = filepath.Join(dir, DefaultSocketName)
		}
	}
	s.SocketPath = platform.ExpandHome(s.SocketPath)
	return s
}

// GetWebSettings returns display feed settings.
func GetWebSettings() WebSettings {
	s := loadOrDefault().Web
	if s.Listen == "" {
		s.Listen = DefaultWebListen
	}
	if env := os.Getenv(EnvWebToken); env != "" {
		s.Token = env
	}
	return s
}

// GetHistorySettings returns history settings with the DB path resolved.
func GetHistorySettings() HistorySettings {
	s := loadOrDefault().History
	if s.DBPath == "" {
		if dir, err := platform.DataDir(); err == nil {
			s.DBPath = filepath.Join(dir, DefaultHistoryDBName)
		}
	}
	s.DBPath = platform.ExpandHome(s.DBPath)
	return s
}

// Durations in the units the controllers take.
func (r RecorderSettings) TapWindow() time.Duration {
	return time.Duration(r.TapWindowMs) * time.Millisecond
}

func (r RecorderSettings) PollInterval() time.Duration {
	return time.Duration(r.PollIntervalMs) * time.Millisecond
}

func (r RecorderSettings) StartGrace() time.Duration {
	return time.Duration(r.StartGraceMs) * time.Millisecond
}

func (r RecorderSettings) InvokeTimeout() time.Duration {
	return time.Duration(r.InvokeTimeoutS) * time.Second
}

// CreateExampleConfig writes a commented config.toml unless one exists.
// It reports whether a file was written.
func CreateExampleConfig() (bool, error) {
	configPath, err := GetUserConfigPath()
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(configPath); err == nil {
		return false, nil
	}
	if err := os.MkdirAll(filepath.Dir(configPath), 0o700); err != nil {
		return false, err
	}
	if err := writeFileAtomic(configPath, []byte(exampleConfig)); err != nil {
		return false, err
	}
	ClearUserConfigCache()
	return true, nil
}

const exampleConfig = `# FloWork Deck configuration
# Loaded once at startup by "flowork-deck serve".

[recorder]
# Helper executable and script. The script receives one word: start, mark or stop.
# interpreter = "pythonw"
# script = "~/FloWork/ScreenRecordMarks/rec.py"
# work_dir = "~/FloWork/ScreenRecordMarks"

# Where the helper keeps session_state.json. FLOWORK_LOG_DIR overrides this.
# state_dir = "~/Documents/FloWork/ScreenRecordMarks"
# state_file = "session_state.json"

# A second press within this window stops; otherwise the press is a mark.
# tap_window_ms = 600
# poll_interval_ms = 800
# start_grace_ms = 5000
# invoke_timeout_s = 0

# show_elapsed = false
# label_width = 0

# One block per on/off button.
# [[toggle]]
# name = "touchpad"
# display_name = "Virtual Touchpad"
# command = "pythonw"
# args = ["~/FloWork/VirtualTouchpad/vtp.py"]
# min_press_interval_ms = 300

[logs]
# level = "info"
# format = "json"
# max_size_mb = 10
# max_backups = 5
# retention_days = 10

[ipc]
# socket_path = "~/.flowork-deck/deck.sock"

[web]
# enabled = false
# listen = "127.0.0.1:8420"
# token = ""          # required as ?token= or Bearer when set
# read_only = false   # mirror labels only, reject presses

[history]
# enabled = true
# db_path = "~/.flowork-deck/state.db"
`

package platform

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
)

// Platform names the OS flavour the host runs on.
type Platform string

const (
	PlatformMacOS   Platform = "macos"
	PlatformLinux   Platform = "linux"
	PlatformWSL1    Platform = "wsl1"
	PlatformWSL2    Platform = "wsl2"
	PlatformWindows Platform = "windows"
	PlatformUnknown Platform = "unknown"
)

var (
	detectOnce sync.Once
	detected   Platform
)

// Detect returns the current platform. The first result is cached.
func Detect() Platform {
	detectOnce.Do(func() { detected = classify(runtime.GOOS, readProcVersion()) })
	return detected
}

func readProcVersion() string {
	b, err := os.ReadFile("/proc/version")
	if err != nil {
		return ""
	}
	return string(b)
}

// classify maps GOOS plus the kernel banner to a Platform. WSL2 kernels
// carry "microsoft-standard"; WSL1 reports a capitalised "Microsoft".
func classify(goos, procVersion string) Platform {
	switch goos {
	case "darwin":
		return PlatformMacOS
	case "windows":
		return PlatformWindows
	case "linux":
	default:
		return PlatformUnknown
	}

	lower := strings.ToLower(procVersion)
	wsl := os.Getenv("WSL_DISTRO_NAME") != "" || strings.Contains(lower, "microsoft")
	switch {
	case !wsl:
		return PlatformLinux
	case strings.Contains(lower, "microsoft-standard"):
		return PlatformWSL2
	case strings.Contains(procVersion, "Microsoft"):
		return PlatformWSL1
	}
	if _, err := os.Stat("/run/WSL"); err == nil {
		return PlatformWSL2
	}
	return PlatformWSL1
}

// SupportsUnixSockets reports whether the control socket can be served here.
func SupportsUnixSockets() bool {
	return Detect().unixSockets()
}

func (p Platform) unixSockets() bool {
	switch p {
	case PlatformMacOS, PlatformLinux, PlatformWSL2:
		return true
	}
	return false
}

func (p Platform) String() string {
	switch p {
	case PlatformMacOS:
		return "macOS"
	case PlatformLinux:
		return "Linux"
	case PlatformWSL1:
		return "WSL1"
	case PlatformWSL2:
		return "WSL2"
	case PlatformWindows:
		return "Windows"
	}
	return "Unknown"
}

// slowWatchFS lists filesystems where fsnotify events are unreliable.
var slowWatchFS = map[string]string{
	"9p":    "9p mount (WSL2 Windows drive)",
	"nfs":   "NFS mount",
	"nfs4":  "NFS mount",
	"cifs":  "SMB mount",
	"smbfs": "SMB mount",
}

// CheckFsnotifySupport returns a warning when path lives on a filesystem
// that does not deliver change events, or "" otherwise. Artifact
// watching still works there through the periodic stat.
func CheckFsnotifySupport(path string) string {
	if runtime.GOOS != "linux" {
		return ""
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return ""
	}
	mounts, err := os.ReadFile("/proc/mounts")
	if err != nil {
		return ""
	}
	return watchWarning(fsTypeOf(abs, string(mounts)))
}

// fsTypeOf picks the filesystem type of the longest mount point that
// contains path. mounts is in /proc/mounts format.
func fsTypeOf(path, mounts string) string {
	var best, fsType string
	for _, line := range strings.Split(mounts, "\n") {
		f := strings.Fields(line)
		if len(f) < 3 || !strings.HasPrefix(path, f[1]) || len(f[1]) <= len(best) {
			continue
		}
		best, fsType = f[1], f[2]
	}
	return fsType
}

func watchWarning(fsType string) string {
	desc, ok := slowWatchFS[fsType]
	if !ok && strings.HasPrefix(fsType, "fuse.sshfs") {
		desc, ok = "SSHFS mount", true
	}
	if !ok {
		return ""
	}
	return "artifact dir on " + desc + ": change notifications unavailable, relying on polling"
}

// Environment overrides for directory resolution.
const (
	EnvDataDir = "FLOWORK_DECK_DIR"
	EnvLogDir  = "FLOWORK_LOG_DIR"
)

// DataDir returns the deck's own data directory (config, socket, history).
// $FLOWORK_DECK_DIR wins; otherwise ~/.flowork-deck.
func DataDir() (string, error) {
	if dir := strings.TrimSpace(os.Getenv(EnvDataDir)); dir != "" {
		return ExpandHome(dir), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".flowork-deck"), nil
}

// ArtifactDir returns the directory the record helper keeps its session
// state in. configured is the [recorder] state_dir value; $FLOWORK_LOG_DIR
// overrides it, and the fallback is ~/Documents/FloWork/ScreenRecordMarks.
func ArtifactDir(configured string) string {
	if dir := strings.TrimSpace(os.Getenv(EnvLogDir)); dir != "" {
		return ExpandHome(dir)
	}
	if configured = strings.TrimSpace(configured); configured != "" {
		return ExpandHome(configured)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "FloWork", "ScreenRecordMarks")
	}
	return filepath.Join(home, "Documents", "FloWork", "ScreenRecordMarks")
}

// DefaultInterpreter returns the interpreter used to run Python helpers when
// the config does not name one. pythonw avoids a console window on Windows.
func DefaultInterpreter() string {
	return Detect().interpreter()
}

func (p Platform) interpreter() string {
	if p == PlatformWindows {
		return "pythonw"
	}
	return "python3"
}

// ExpandHome replaces a leading "~" with the user's home directory.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

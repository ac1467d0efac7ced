package platform

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestDetectIsCached(t *testing.T) {
	p := Detect()
	if p == "" {
		t.Fatal("Detect() returned empty platform")
	}
	if runtime.GOOS == "darwin" && p != PlatformMacOS {
		t.Errorf("Detect() on darwin = %s", p)
	}
	if p2 := Detect(); p2 != p {
		t.Errorf("Detect() changed: %s then %s", p, p2)
	}
}

func TestClassify(t *testing.T) {
	t.Setenv("WSL_DISTRO_NAME", "")
	tests := []struct {
		goos, banner string
		want         Platform
	}{
		{"darwin", "", PlatformMacOS},
		{"windows", "", PlatformWindows},
		{"freebsd", "", PlatformUnknown},
		{"linux", "Linux version 6.8.0-45-generic (buildd@lcy02)", PlatformLinux},
		{"linux", "Linux version 5.15.153.1-microsoft-standard-WSL2", PlatformWSL2},
		{"linux", "Linux version 4.4.0-19041-Microsoft (Microsoft@Microsoft.com)", PlatformWSL1},
	}
	for _, tt := range tests {
		if got := classify(tt.goos, tt.banner); got != tt.want {
			t.Errorf("classify(%q, %q) = %s, want %s", tt.goos, tt.banner, got, tt.want)
		}
	}
}

func TestUnixSocketSupport(t *testing.T) {
	tests := map[Platform]bool{
		PlatformMacOS:   true,
		PlatformLinux:   true,
		PlatformWSL2:    true,
		PlatformWSL1:    false,
		PlatformWindows: false,
		PlatformUnknown: false,
	}
	for p, want := range tests {
		if got := p.unixSockets(); got != want {
			t.Errorf("%s.unixSockets() = %v, want %v", p, got, want)
		}
	}
	if runtime.GOOS == "linux" || runtime.GOOS == "darwin" {
		if !SupportsUnixSockets() && Detect() != PlatformWSL1 {
			t.Errorf("SupportsUnixSockets() = false on %s", Detect())
		}
	}
}

func TestPlatformString(t *testing.T) {
	if PlatformWSL2.String() != "WSL2" || Platform("bogus").String() != "Unknown" {
		t.Errorf("unexpected names: %s %s", PlatformWSL2, Platform("bogus"))
	}
}

func TestDataDirEnvOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(EnvDataDir, dir)

	got, err := DataDir()
	if err != nil {
		t.Fatalf("DataDir: %v", err)
	}
	if got != dir {
		t.Errorf("DataDir() = %q, want %q", got, dir)
	}
}

func TestArtifactDirPrecedence(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}

	t.Setenv(EnvLogDir, "")
	if got := ArtifactDir(""); got != filepath.Join(home, "Documents", "FloWork", "ScreenRecordMarks") {
		t.Errorf("default ArtifactDir = %q", got)
	}
	if got := ArtifactDir("~/marks"); got != filepath.Join(home, "marks") {
		t.Errorf("configured ArtifactDir = %q", got)
	}

	t.Setenv(EnvLogDir, "/srv/marks")
	if got := ArtifactDir("~/marks"); got != "/srv/marks" {
		t.Errorf("env ArtifactDir = %q, want /srv/marks", got)
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	tests := map[string]string{
		"~":          home,
		"~/a/b":      filepath.Join(home, "a", "b"),
		"/abs/path":  "/abs/path",
		"~other/dir": "~other/dir",
	}
	for in, want := range tests {
		if got := ExpandHome(in); got != want {
			t.Errorf("ExpandHome(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDefaultInterpreter(t *testing.T) {
	if got := PlatformWindows.interpreter(); got != "pythonw" {
		t.Errorf("windows interpreter = %q, want pythonw", got)
	}
	if got := PlatformLinux.interpreter(); got != "python3" {
		t.Errorf("linux interpreter = %q, want python3", got)
	}
	if DefaultInterpreter() == "" {
		t.Error("DefaultInterpreter() is empty")
	}
}

func TestFsTypeOfLongestMount(t *testing.T) {
	mounts := "/dev/sda1 / ext4 rw 0 0\n" +
		"C:\\134 /mnt/c 9p rw 0 0\n" +
		"server:/export /mnt/c/share nfs4 rw 0 0\n"
	tests := map[string]string{
		"/home/me/marks":     "ext4",
		"/mnt/c/Users/me":    "9p",
		"/mnt/c/share/marks": "nfs4",
	}
	for path, want := range tests {
		if got := fsTypeOf(path, mounts); got != want {
			t.Errorf("fsTypeOf(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestWatchWarning(t *testing.T) {
	for _, fs := range []string{"9p", "nfs", "cifs", "fuse.sshfs"} {
		if watchWarning(fs) == "" {
			t.Errorf("expected a warning for %s", fs)
		}
	}
	for _, fs := range []string{"ext4", "tmpfs", "apfs", ""} {
		if got := watchWarning(fs); got != "" {
			t.Errorf("watchWarning(%q) = %q, want empty", fs, got)
		}
	}
}

func TestCheckFsnotifySupportOffLinux(t *testing.T) {
	if runtime.GOOS == "linux" {
		t.Skip("linux reads /proc/mounts")
	}
	if got := CheckFsnotifySupport(t.TempDir()); got != "" {
		t.Errorf("expected no warning off linux, got %q", got)
	}
}

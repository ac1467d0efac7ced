package plugin

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowork/flowork-deck/internal/platform"
)

// useDataDir points the config at a fresh temp dir for one test.
func useDataDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv(platform.EnvDataDir, dir)
	t.Setenv(platform.EnvLogDir, "")
	t.Setenv(EnvWebToken, "")
	ClearUserConfigCache()
	t.Cleanup(ClearUserConfigCache)
	return dir
}

func writeConfig(t *testing.T, dir, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, UserConfigFileName), []byte(body), 0o600))
	ClearUserConfigCache()
}

func TestDefaultsWithoutConfigFile(t *testing.T) {
	dir := useDataDir(t)

	rec := GetRecorderSettings()
	assert.Equal(t, platform.DefaultInterpreter(), rec.Interpreter)
	assert.Equal(t, 600*time.Millisecond, rec.TapWindow())
	assert.Equal(t, 800*time.Millisecond, rec.PollInterval())
	assert.Equal(t, 5*time.Second, rec.StartGrace())
	assert.Zero(t, rec.InvokeTimeout())
	assert.Equal(t, DefaultStateFile, filepath.Base(rec.ArtifactPath()))

	assert.Equal(t, filepath.Join(dir, DefaultSocketName), GetIPCSettings().SocketPath)
	assert.Equal(t, DefaultWebListen, GetWebSettings().Listen)
	assert.False(t, GetWebSettings().Enabled)

	hist := GetHistorySettings()
	assert.True(t, hist.GetEnabled())
	assert.Equal(t, filepath.Join(dir, DefaultHistoryDBName), hist.DBPath)

	logs := GetLogSettings()
	assert.Equal(t, "info", logs.Level)
	assert.True(t, logs.GetCompress())
	assert.Empty(t, GetToggleSettings())
}

func TestLoadConfigFile(t *testing.T) {
	dir := useDataDir(t)
	writeConfig(t, dir, `
[recorder]
interpreter = "python3"
script = "/opt/flowork/rec.py"
state_dir = "/tmp/flowork-state"
tap_window_ms = 450
invoke_timeout_s = 20
show_elapsed = true

[[toggle]]
name = "touchpad"
display_name = "Virtual Touchpad"
command = "python3"
args = ["vtp.py", "--overlay"]

[[toggle]]
name = "broken"

[history]
enabled = false

[logs]
level = "debug"
compress = false
`)

	rec := GetRecorderSettings()
	assert.Equal(t, "python3", rec.Interpreter)
	assert.Equal(t, "/opt/flowork/rec.py", rec.Script)
	assert.Equal(t, 450*time.Millisecond, rec.TapWindow())
	assert.Equal(t, 20*time.Second, rec.InvokeTimeout())
	assert.True(t, rec.ShowElapsed)
	assert.Equal(t, "/tmp/flowork-state/session_state.json", rec.ArtifactPath())

	toggles := GetToggleSettings()
	require.Len(t, toggles, 1, "entries without a command are skipped")
	assert.Equal(t, "touchpad", toggles[0].Name)
	assert.Equal(t, []string{"vtp.py", "--overlay"}, toggles[0].Args)

	hist := GetHistorySettings()
	assert.False(t, hist.GetEnabled())

	logs := GetLogSettings()
	assert.Equal(t, "debug", logs.Level)
	assert.False(t, logs.GetCompress())
}

func TestArtifactPathHonoursEnvOverride(t *testing.T) {
	dir := useDataDir(t)
	writeConfig(t, dir, "[recorder]\nstate_dir = \"/tmp/ignored\"\n")
	t.Setenv(platform.EnvLogDir, "/tmp/override")

	assert.Equal(t, "/tmp/override/session_state.json", GetRecorderSettings().ArtifactPath())
}

func TestWebTokenFromEnv(t *testing.T) {
	dir := useDataDir(t)
	writeConfig(t, dir, "[web]\nenabled = true\ntoken = \"from-file\"\nread_only = true\n")

	web := GetWebSettings()
	assert.True(t, web.Enabled)
	assert.True(t, web.ReadOnly)
	assert.Equal(t, "from-file", web.Token)

	t.Setenv(EnvWebToken, "from-env")
	assert.Equal(t, "from-env", GetWebSettings().Token)
}

func TestParseErrorFallsBackToDefaults(t *testing.T) {
	dir := useDataDir(t)
	writeConfig(t, dir, "[recorder\ninterpreter = ")

	cfg, err := LoadUserConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config.toml parse error")
	require.NotNil(t, cfg)
	assert.Equal(t, DefaultTapWindowMs, GetRecorderSettings().TapWindowMs)
}

func TestSaveAndReload(t *testing.T) {
	useDataDir(t)

	enabled := false
	cfg := &UserConfig{
		Recorder: RecorderSettings{Interpreter: "pythonw", TapWindowMs: 700},
		Web:      WebSettings{Enabled: true, Listen: "127.0.0.1:9999"},
		History:  HistorySettings{Enabled: &enabled},
	}
	require.NoError(t, SaveUserConfig(cfg))

	path, err := GetUserConfigPath()
	require.NoError(t, err)
	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file must be renamed away")

	loaded, err := ReloadUserConfig()
	require.NoError(t, err)
	assert.Equal(t, 700, loaded.Recorder.TapWindowMs)
	assert.True(t, loaded.Web.Enabled)
	assert.Equal(t, "127.0.0.1:9999", GetWebSettings().Listen)
	hist := GetHistorySettings()
	assert.False(t, hist.GetEnabled())
}

func TestCreateExampleConfig(t *testing.T) {
	useDataDir(t)

	written, err := CreateExampleConfig()
	require.NoError(t, err)
	assert.True(t, written)

	cfg, err := LoadUserConfig()
	require.NoError(t, err, "the example config must parse")
	assert.Empty(t, cfg.Toggles)

	written, err = CreateExampleConfig()
	require.NoError(t, err)
	assert.False(t, written, "an existing config is never overwritten")
}

func TestRegisterConfigured(t *testing.T) {
	dir := useDataDir(t)
	writeConfig(t, dir, `
[recorder]
state_dir = "`+filepath.ToSlash(filepath.Join(dir, "state"))+`"

[[toggle]]
name = "touchpad"
command = "true"

[[toggle]]
name = "touchpad"
command = "false"
`)

	r := NewRegistry()
	err := RegisterConfigured(r, nil)
	assert.ErrorIs(t, err, ErrDuplicateCommand)
	assert.Equal(t, []string{"record", "touchpad"}, r.Names())

	label, err := r.Label("record", "")
	require.NoError(t, err)
	assert.Equal(t, "Start Recording", label)
	require.NoError(t, r.UnloadAll())
}

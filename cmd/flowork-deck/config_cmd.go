package main

import (
	"fmt"
	"io"

	"github.com/BurntSushi/toml"

	"github.com/flowork/flowork-deck/internal/plugin"
)

func handleConfig(args []string, stdout, stderr io.Writer) int {
	if len(args) != 1 {
		fmt.Fprintln(stderr, "Usage: flowork-deck config init|path|show")
		return 2
	}

	switch args[0] {
	case "path":
		path, err := plugin.GetUserConfigPath()
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		fmt.Fprintln(stdout, path)
		return 0

	case "init":
		path, err := plugin.GetUserConfigPath()
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		created, err := plugin.CreateExampleConfig()
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		if created {
			fmt.Fprintf(stdout, "%s Wrote %s\n", successSymbol, path)
		} else {
			fmt.Fprintf(stdout, "%s already exists\n", path)
		}
		return 0

	case "show":
		if _, err := plugin.LoadUserConfig(); err != nil {
			fmt.Fprintf(stderr, "Warning: %v (showing defaults)\n", err)
		}
		if err := toml.NewEncoder(stdout).Encode(effectiveConfig()); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		return 0
	}

	fmt.Fprintf(stderr, "Error: unknown config action %q\n", args[0])
	return 2
}

// effectiveConfig is the loaded config with every default filled in.
func effectiveConfig() plugin.UserConfig {
	web := plugin.GetWebSettings()
	if web.Token != "" {
		web.Token = "********"
	}
	return plugin.UserConfig{
		Recorder: plugin.GetRecorderSettings(),
		Toggles:  plugin.GetToggleSettings(),
		Logs:     plugin.GetLogSettings(),
		IPC:      plugin.GetIPCSettings(),
		Web:      web,
		History:  plugin.GetHistorySettings(),
	}
}

const successSymbol = "✓"

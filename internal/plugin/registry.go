package plugin

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/sahilm/fuzzy"

	"github.com/flowork/flowork-deck/internal/logging"
)

var pluginLog = logging.ForComponent(logging.CompPlugin)

// Registry holds the loaded commands in registration order and fans display
// notifications out to every subscriber.
type Registry struct {
	mu       sync.RWMutex
	commands []Command
	byName   map[string]Command

	obsMu     sync.RWMutex
	observers map[int]DisplayObserver
	nextObs   int
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byName:    make(map[string]Command),
		observers: make(map[int]DisplayObserver),
	}
}

// Register adds cmd. Names must be unique.
func (r *Registry) Register(cmd Command) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := cmd.Name()
	if _, ok := r.byName[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateCommand, name)
	}
	r.byName[name] = cmd
	r.commands = append(r.commands, cmd)
	return nil
}

// Lookup finds a command by exact name.
func (r *Registry) Lookup(name string) (Command, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cmd, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, name)
	}
	return cmd, nil
}

// Commands returns the commands in registration order.
func (r *Registry) Commands() []Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Command(nil), r.commands...)
}

// Names returns command names in registration order.
func (r *Registry) Names() []string {
	cmds := r.Commands()
	names := make([]string, len(cmds))
	for i, c := range cmds {
		names[i] = c.Name()
	}
	return names
}

// Press runs the named command.
func (r *Registry) Press(name, param string) error {
	cmd, err := r.Lookup(name)
	if err != nil {
		return err
	}
	pluginLog.Debug("command_pressed", slog.String("command", name), slog.String("param", param))
	cmd.RunCommand(param)
	return nil
}

// Label renders the named command's label.
func (r *Registry) Label(name, param string) (string, error) {
	cmd, err := r.Lookup(name)
	if err != nil {
		return "", err
	}
	return cmd.GetDisplayLabel(param), nil
}

// Labels returns every command's label keyed by name.
func (r *Registry) Labels() map[string]string {
	out := make(map[string]string)
	for _, c := range r.Commands() {
		out[c.Name()] = c.GetDisplayLabel("")
	}
	return out
}

// LoadAll calls OnLoad on every command and joins the errors.
func (r *Registry) LoadAll() error {
	var errs []error
	for _, c := range r.Commands() {
		if err := c.OnLoad(); err != nil {
			pluginLog.Error("command_load_failed", slog.String("command", c.Name()), slog.String("error", err.Error()))
			errs = append(errs, fmt.Errorf("%s: %w", c.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// UnloadAll calls OnUnload on every command, in reverse registration order,
// even when some fail.
func (r *Registry) UnloadAll() error {
	cmds := r.Commands()
	var errs []error
	for i := len(cmds) - 1; i >= 0; i-- {
		c := cmds[i]
		if err := c.OnUnload(); err != nil {
			pluginLog.Error("command_unload_failed", slog.String("command", c.Name()), slog.String("error", err.Error()))
			errs = append(errs, fmt.Errorf("%s: %w", c.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Subscribe registers fn for display notifications. The returned func
// removes it.
func (r *Registry) Subscribe(fn DisplayObserver) func() {
	r.obsMu.Lock()
	id := r.nextObs
	r.nextObs++
	r.observers[id] = fn
	r.obsMu.Unlock()

	return func() {
		r.obsMu.Lock()
		delete(r.observers, id)
		r.obsMu.Unlock()
	}
}

// NotifyDisplayChanged implements DisplayNotifier.
func (r *Registry) NotifyDisplayChanged(command string) {
	r.obsMu.RLock()
	obs := make([]DisplayObserver, 0, len(r.observers))
	for _, fn := range r.observers {
		obs = append(obs, fn)
	}
	r.obsMu.RUnlock()

	pluginLog.Debug("display_changed", slog.String("command", command), slog.Int("observers", len(obs)))
	for _, fn := range obs {
		fn(command)
	}
}

// commandSource implements fuzzy.Source over command names.
type commandSource []string

func (s commandSource) String(i int) string { return s[i] }
func (s commandSource) Len() int            { return len(s) }

// Suggest returns up to three registered names resembling query.
func Suggest(names []string, query string) []string {
	if query == "" {
		return nil
	}
	matches := fuzzy.FindFrom(query, commandSource(names))
	out := make([]string, 0, 3)
	for _, m := range matches {
		if len(out) == 3 {
			break
		}
		out = append(out, names[m.Index])
	}
	return out
}

package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/grovetools/storymap/pkg/paths"
	"github.com/mitchellh/mapstructure"
)

// Missing-node policies accepted by graph.missing_node_policy.
const (
	MissingNodeSkip = "skip"
	MissingNodeFail = "fail"
)

// Config is the storymap configuration, loaded from storymap.yml.
type Config struct {
	Version string       `yaml:"version,omitempty" toml:"version,omitempty"`
	Worker  WorkerConfig `yaml:"worker,omitempty" toml:"worker,omitempty"`
	Queue   QueueConfig  `yaml:"queue,omitempty" toml:"queue,omitempty"`
	Graph   GraphConfig  `yaml:"graph,omitempty" toml:"graph,omitempty"`
	Daemon  DaemonConfig `yaml:"daemon,omitempty" toml:"daemon,omitempty"`

	// Extensions holds top-level sections this package does not know
	// about, such as "logging". Decode them with UnmarshalExtension.
	Extensions map[string]interface{} `yaml:",inline" toml:"-"`
}

// WorkerConfig describes the backend process the command channel drives.
type WorkerConfig struct {
	// Command is the worker executable. Args are passed verbatim.
	Command string   `yaml:"command,omitempty" toml:"command,omitempty" jsonschema:"description=Worker executable"`
	Args    []string `yaml:"args,omitempty" toml:"args,omitempty" jsonschema:"description=Arguments passed to the worker"`
	// Wrapper runs the worker under another program, e.g. [nice, -n, "10"].
	Wrapper []string `yaml:"wrapper,omitempty" toml:"wrapper,omitempty" jsonschema:"description=Command prefix the worker runs under"`

	// WorkingDir is resolved relative to the config file that set it.
	WorkingDir string   `yaml:"working_dir,omitempty" toml:"working_dir,omitempty" jsonschema:"description=Working directory of the worker process"`
	Env        []string `yaml:"env,omitempty" toml:"env,omitempty" jsonschema:"description=Extra KEY=VALUE environment entries"`

	OutputFlag string `yaml:"output_flag,omitempty" toml:"output_flag,omitempty" jsonschema:"description=Flag appended to every command to request JSON output"`
	OutputEnv  string `yaml:"output_env,omitempty" toml:"output_env,omitempty" jsonschema:"description=KEY=VALUE entry selecting machine-readable output"`
	Sentinel   string `yaml:"sentinel,omitempty" toml:"sentinel,omitempty" jsonschema:"description=Marker the worker prints after each response"`

	Timeout      Duration `yaml:"timeout,omitempty" toml:"timeout,omitempty"`
	ReadTimeout  Duration `yaml:"read_timeout,omitempty" toml:"read_timeout,omitempty"`
	ReadCommands []string `yaml:"read_commands,omitempty" toml:"read_commands,omitempty" jsonschema:"description=Command verbs that use read_timeout"`
}

// QueueConfig tunes the save queue.
type QueueConfig struct {
	Debounce Duration `yaml:"debounce,omitempty" toml:"debounce,omitempty"`
	AutoHide Duration `yaml:"auto_hide,omitempty" toml:"auto_hide,omitempty"`
}

// GraphConfig controls how the story graph is materialized.
type GraphConfig struct {
	MissingNodePolicy string `yaml:"missing_node_policy,omitempty" toml:"missing_node_policy,omitempty" jsonschema:"enum=skip,enum=fail,description=What replay does when a command names a node that is not in the graph"`
	// Snapshot is the JSON file holding the flat parent map.
	Snapshot string `yaml:"snapshot,omitempty" toml:"snapshot,omitempty" jsonschema:"description=Path of the graph snapshot file"`
}

// DaemonConfig locates the daemon's socket and pid file.
type DaemonConfig struct {
	Socket  string `yaml:"socket,omitempty" toml:"socket,omitempty" jsonschema:"description=Unix socket the daemon listens on"`
	PidFile string `yaml:"pid_file,omitempty" toml:"pid_file,omitempty" jsonschema:"description=PID file guarding the single daemon instance"`
}

// Default returns a configuration with every default applied and no
// worker command.
func Default() *Config {
	cfg := &Config{}
	cfg.SetDefaults()
	return cfg
}

// SetDefaults fills in unset values.
func (c *Config) SetDefaults() {
	if c.Version == "" {
		c.Version = "1.0"
	}

	w := &c.Worker
	if w.OutputFlag == "" {
		w.OutputFlag = "--json"
	}
	if w.OutputEnv == "" {
		w.OutputEnv = "STORYMAP_OUTPUT=json"
	}
	if w.Sentinel == "" {
		w.Sentinel = "<<<END_OF_RESPONSE>>>"
	}
	if w.Timeout == 0 {
		w.Timeout = Duration(30 * time.Second)
	}
	if w.ReadTimeout == 0 {
		w.ReadTimeout = Duration(2 * time.Minute)
	}
	if w.ReadCommands == nil {
		w.ReadCommands = []string{"status", "show", "list", "get", "export"}
	}

	if c.Queue.Debounce == 0 {
		c.Queue.Debounce = Duration(500 * time.Millisecond)
	}
	if c.Queue.AutoHide == 0 {
		c.Queue.AutoHide = Duration(2 * time.Second)
	}

	if c.Graph.MissingNodePolicy == "" {
		c.Graph.MissingNodePolicy = MissingNodeSkip
	}
	if c.Graph.Snapshot == "" {
		c.Graph.Snapshot = filepath.Join(paths.StateDir(), "graph.snapshot")
	}

	if c.Daemon.Socket == "" {
		c.Daemon.Socket = paths.SocketPath()
	}
	if c.Daemon.PidFile == "" {
		c.Daemon.PidFile = paths.PidFilePath()
	}
}

// UnmarshalExtension decodes the top-level section key into target, which
// must be a pointer. A missing section leaves target untouched.
//
// Example:
//
//	var logCfg logging.Config
//	err := cfg.UnmarshalExtension("logging", &logCfg)
func (c *Config) UnmarshalExtension(key string, target interface{}) error {
	section, ok := c.Extensions[key]
	if !ok {
		return nil
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		TagName:          "yaml",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return fmt.Errorf("failed to create mapstructure decoder: %w", err)
	}

	if err := decoder.Decode(section); err != nil {
		return fmt.Errorf("failed to decode extension config for '%s': %w", key, err)
	}
	return nil
}

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/grovetools/storymap/errors"
	"github.com/grovetools/storymap/pkg/paths"
	"github.com/pelletier/go-toml/v2"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Format is the syntax of a configuration document.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// configNames are searched in order in every directory.
var configNames = []string{
	"storymap.yml",
	"storymap.yaml",
	".storymap.yml",
	".storymap.yaml",
	"storymap.toml",
}

var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

// knownSections are the top-level keys decoded into Config fields.
var knownSections = map[string]bool{
	"version": true,
	"worker":  true,
	"queue":   true,
	"graph":   true,
	"daemon":  true,
}

// FormatFor picks the document format from a file name.
func FormatFor(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return FormatTOML
	}
	return FormatYAML
}

// Load reads, defaults and validates a single configuration file.
func Load(path string) (*Config, error) {
	cfg, err := readFile(path)
	if err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromBytes parses, defaults and validates a configuration document.
func LoadFromBytes(data []byte, format Format) (*Config, error) {
	cfg, err := parse(data, format)
	if err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDefault loads configuration starting from the current directory.
func LoadDefault() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to get current directory")
	}
	return LoadFrom(cwd)
}

// LoadFrom loads configuration with hierarchical merging starting from startDir.
func LoadFrom(startDir string) (*Config, error) {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(logrus.WarnLevel)
	return LoadFromWithLogger(startDir, logger)
}

// LoadFromWithLogger merges the global config (base layer) with the nearest
// project config found walking up from startDir. Either may be missing, but
// not both.
func LoadFromWithLogger(startDir string, logger *logrus.Logger) (*Config, error) {
	var merged *Config

	globalPath := paths.GlobalConfigPath()
	if info, err := os.Stat(globalPath); err == nil && !info.IsDir() {
		logger.WithField("path", globalPath).Debug("Loading global configuration")
		global, err := readFile(globalPath)
		if err != nil {
			logger.WithError(err).Warn("Failed to load global configuration, continuing without it")
		} else {
			merged = global
		}
	}

	projectPath, findErr := FindConfigFile(startDir)
	if findErr == nil {
		logger.WithField("path", projectPath).Debug("Loading project configuration")
		project, err := readFile(projectPath)
		if err != nil {
			return nil, err
		}
		if merged == nil {
			merged = project
		} else {
			logger.Debug("Merging project configuration over global configuration")
			merged = mergeConfigs(merged, project)
		}
	}

	if merged == nil {
		return nil, findErr
	}

	merged.SetDefaults()
	if err := merged.Validate(); err != nil {
		return nil, err
	}

	if logger.IsLevelEnabled(logrus.DebugLevel) {
		if data, err := yaml.Marshal(merged); err == nil {
			logger.Debugf("Merged configuration:\n%s", string(data))
		}
	}
	return merged, nil
}

// FindConfigFile searches startDir and its parents for a storymap config file.
func FindConfigFile(startDir string) (string, error) {
	dir := startDir
	for {
		for _, name := range configNames {
			path := filepath.Join(dir, name)
			if info, err := os.Stat(path); err == nil && !info.IsDir() {
				return path, nil
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", errors.ConfigNotFound(startDir).WithDetail("searchPath", startDir)
}

// readFile parses path without defaults or validation and resolves its
// relative paths against the file's directory.
func readFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.ConfigNotFound(path)
		}
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to read config file").
			WithDetail("path", path)
	}

	cfg, err := parse(data, FormatFor(path))
	if err != nil {
		if e, ok := err.(*errors.Error); ok {
			return nil, e.WithDetail("path", path)
		}
		return nil, err
	}

	base := filepath.Dir(path)
	cfg.Worker.WorkingDir = resolvePath(base, cfg.Worker.WorkingDir)
	cfg.Graph.Snapshot = resolvePath(base, cfg.Graph.Snapshot)
	return cfg, nil
}

func parse(data []byte, format Format) (*Config, error) {
	expanded := []byte(expandEnvVars(string(data)))

	var cfg Config
	switch format {
	case FormatTOML:
		if err := toml.Unmarshal(expanded, &cfg); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to parse TOML configuration")
		}
		var raw map[string]interface{}
		if err := toml.Unmarshal(expanded, &raw); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to parse TOML configuration")
		}
		for key, value := range raw {
			if knownSections[key] {
				continue
			}
			if cfg.Extensions == nil {
				cfg.Extensions = make(map[string]interface{})
			}
			cfg.Extensions[key] = value
		}
	case FormatYAML, "":
		if err := yaml.Unmarshal(expanded, &cfg); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to parse YAML configuration")
		}
	default:
		return nil, errors.ConfigInvalid(fmt.Sprintf("unsupported format %q", format))
	}
	return &cfg, nil
}

func resolvePath(base, p string) string {
	if p == "" {
		return ""
	}
	p = expandHome(p)
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, p[1:])
		}
	}
	return p
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment values.
func expandEnvVars(content string) string {
	return envVarRegex.ReplaceAllStringFunc(content, func(match string) string {
		varName := envVarRegex.FindStringSubmatch(match)[1]

		parts := strings.SplitN(varName, ":-", 2)
		varName = parts[0]
		defaultValue := ""
		if len(parts) > 1 {
			defaultValue = parts[1]
		}

		if value := os.Getenv(varName); value != "" {
			return value
		}
		return defaultValue
	})
}

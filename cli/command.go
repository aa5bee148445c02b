package cli

import (
	"os"

	"github.com/grovetools/storymap/config"
	"github.com/grovetools/storymap/errors"
	"github.com/grovetools/storymap/logging"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// CommandOptions holds common options for storymap commands
type CommandOptions struct {
	ConfigFile string
	Socket     string
	Verbose    bool
	JSONOutput bool
}

// NewStandardCommand creates a new command with standard storymap flags
func NewStandardCommand(use, short string) *cobra.Command {
	cmd := &cobra.Command{
		Use:           use,
		Short:         short,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().Bool("json", false, "Output in JSON format")
	cmd.PersistentFlags().StringP("config", "c", "", "Path to storymap.yml config file")
	cmd.PersistentFlags().String("socket", "", "Daemon socket (default: from config)")

	SetStyledHelp(cmd)

	return cmd
}

// GetLogger returns the CLI's logger, switched to debug by --verbose.
func GetLogger(cmd *cobra.Command) *logrus.Entry {
	entry := logging.NewLogger("storymap")

	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		entry.Logger.SetLevel(logrus.DebugLevel)
	}
	return entry
}

// GetOptions extracts common options from a command
func GetOptions(cmd *cobra.Command) CommandOptions {
	configFile, _ := cmd.Flags().GetString("config")
	socket, _ := cmd.Flags().GetString("socket")
	verbose, _ := cmd.Flags().GetBool("verbose")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	return CommandOptions{
		ConfigFile: configFile,
		Socket:     socket,
		Verbose:    verbose,
		JSONOutput: jsonOutput,
	}
}

// LoadConfig loads --config when given, otherwise the merged global and
// project configuration. With neither file present it returns the
// defaults so commands that only talk to a daemon still work.
func LoadConfig(cmd *cobra.Command) (*config.Config, error) {
	opts := GetOptions(cmd)
	if opts.ConfigFile != "" {
		return config.Load(opts.ConfigFile)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to get current directory")
	}
	cfg, err := config.LoadFrom(cwd)
	if errors.GetCode(err) == errors.ErrCodeConfigNotFound {
		return config.Default(), nil
	}
	return cfg, err
}

// SocketPath resolves the daemon socket: --socket, then daemon.socket from cfg.
func SocketPath(cmd *cobra.Command, cfg *config.Config) string {
	if socket := GetOptions(cmd).Socket; socket != "" {
		return socket
	}
	return cfg.Daemon.Socket
}

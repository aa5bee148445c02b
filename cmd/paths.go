package cmd

import (
	"time"

	"github.com/grovetools/storymap/cli"
	"github.com/grovetools/storymap/logging"
	"github.com/grovetools/storymap/pkg/paths"
	"github.com/spf13/cobra"
)

// PathsOutput lists the files and directories storymap uses.
type PathsOutput struct {
	ConfigDir    string `json:"config_dir"`
	GlobalConfig string `json:"global_config"`
	StateDir     string `json:"state_dir"`
	LogFile      string `json:"log_file"`
	Snapshot     string `json:"snapshot"`
	Socket       string `json:"socket"`
	PidFile      string `json:"pid_file"`
}

// NewPathsCmd returns the paths command.
func NewPathsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "paths",
		Short: "Print the paths storymap uses as JSON",
		Long: `Print the paths storymap uses as JSON. STORYMAP_HOME moves all of them
under one directory; otherwise the XDG base directories apply.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cli.LoadConfig(cmd)
			if err != nil {
				return err
			}
			return printJSON(cmd, PathsOutput{
				ConfigDir:    paths.ConfigDir(),
				GlobalConfig: paths.GlobalConfigPath(),
				StateDir:     paths.StateDir(),
				LogFile:      logging.LogFilePath("storymapd", time.Now()),
				Snapshot:     cfg.Graph.Snapshot,
				Socket:       cli.SocketPath(cmd, cfg),
				PidFile:      cfg.Daemon.PidFile,
			})
		},
	}
}

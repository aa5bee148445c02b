package main

import (
	"os"

	"github.com/grovetools/storymap/cli"
	"github.com/grovetools/storymap/cmd"
	"github.com/grovetools/storymap/tui"
)

func main() {
	tui.InitializeTUI()

	rootCmd := cmd.NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		verbose, _ := rootCmd.PersistentFlags().GetBool("verbose")
		_ = cli.NewErrorHandler(os.Stderr, verbose).Handle(err)
		os.Exit(1)
	}
}

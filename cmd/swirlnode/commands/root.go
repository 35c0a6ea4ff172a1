package commands

import (
	"github.com/spf13/cobra"
)

var cliConfig = NewDefaultCLIConfig()

// RootCmd is the root command for swirlnode.
var RootCmd = &cobra.Command{
	Use:              "swirlnode",
	Short:            "swirlnode consensus platform",
	TraverseChildren: true,
}

func init() {
	RootCmd.AddCommand(NewRunCmd())
	RootCmd.AddCommand(NewKeygenCmd())
}

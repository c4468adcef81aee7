package cli

import (
	"github.com/spf13/cobra"

	"github.com/Archercober/Heat-Stroke-Prediction/internal/app"
)

var runInteractive bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Collect readings and assess risk until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Run(cmd.Context(), app.RunOptions{
			Interactive: runInteractive,
			Input:       cmd.InOrStdin(),
		})
	},
}

func init() {
	runCmd.Flags().BoolVarP(&runInteractive, "interactive", "i", false, "Stop when q is entered on stdin")
}

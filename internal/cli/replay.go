package cli

import (
	"github.com/spf13/cobra"

	"github.com/Archercober/Heat-Stroke-Prediction/internal/app"
)

var replayOutput string

var replayCmd = &cobra.Command{
	Use:   "replay <recording.csv>",
	Short: "Assess a recorded session offline and write the merged table",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Replay(cmd.Context(), app.ReplayOptions{
			Path:   args[0],
			Output: replayOutput,
		})
	},
}

func init() {
	replayCmd.Flags().StringVarP(&replayOutput, "output", "o", "", "Merged CSV path (defaults to persistence.data_file)")
}

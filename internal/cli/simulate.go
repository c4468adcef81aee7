package cli

import (
	"errors"

	"github.com/spf13/cobra"
)

var simulateRisk float64

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "模拟一次高风险评估并触发告警",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateRisk < 0 || simulateRisk > 1 {
			return errors.New("--risk 必须在 0 到 1 之间")
		}
		return getApp().SimulateAlert(cmd.Context(), simulateRisk)
	},
}

func init() {
	simulateCmd.Flags().Float64Var(&simulateRisk, "risk", 0.95, "模拟的综合风险值 (0-1)")
}

package service

import (
	"fmt"
	"math"
	"strings"

	"github.com/Archercober/Heat-Stroke-Prediction/internal/predictor"
)

// progressBar renders p in [0,1] as a ten-step bar, e.g. "[=====      ]".
func progressBar(p float64) string {
	p = math.Max(0, math.Min(1, p))
	filled := int(0.5 + p/0.1)
	empty := 1 + int(0.5+(1-p)/0.1)
	return "[" + strings.Repeat("=", filled) + strings.Repeat(" ", empty) + "]"
}

func summaryLine(label string, p float64) string {
	return fmt.Sprintf("%-9s %s %5.1f%%", label, progressBar(p), p*100)
}

// summarize formats a breakdown as one line per component.
func summarize(b predictor.Breakdown) []string {
	return []string{
		summaryLine("Risk", b.Risk),
		summaryLine("CT Risk", b.CoreTemp),
		summaryLine("HI Risk", b.HeatIndex),
		summaryLine("LR Risk", b.LogReg),
	}
}

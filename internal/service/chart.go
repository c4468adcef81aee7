package service

import (
	"fmt"
	"os"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"github.com/Archercober/Heat-Stroke-Prediction/internal/series"
	"github.com/Archercober/Heat-Stroke-Prediction/internal/table"
)

// ChartLine is one plotted series.
type ChartLine struct {
	Name   string
	Points []series.Point
}

// WriteChart renders the lines as a PNG time chart with a 0-1 risk axis.
// Lines with fewer than two points are skipped.
func WriteChart(path string, lines ...ChartLine) error {
	plotted := make([]chart.Series, 0, len(lines))
	for _, line := range lines {
		if len(line.Points) < 2 {
			continue
		}
		x := make([]time.Time, len(line.Points))
		y := make([]float64, len(line.Points))
		for i, p := range line.Points {
			x[i] = p.Time
			y[i] = p.Value
		}
		plotted = append(plotted, chart.TimeSeries{
			Name:    line.Name,
			XValues: x,
			YValues: y,
		})
	}
	if len(plotted) == 0 {
		return fmt.Errorf("nothing to plot")
	}

	if err := table.EnsureDir(path); err != nil {
		return err
	}

	riskFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.2f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Risk",
			ValueFormatter: riskFormatter,
			Range:          &chart.ContinuousRange{Min: 0, Max: 1},
		},
		Series: plotted,
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

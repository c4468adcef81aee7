package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
)

// Show prints recent assessments, or recent alerts when opts.Alerts is set.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show history")
	}
	defer store.Close()

	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	defer writer.Flush()

	if opts.Alerts {
		alerts, err := store.ListRecentAlerts(ctx, opts.Limit)
		if err != nil {
			return err
		}
		if len(alerts) == 0 {
			fmt.Fprintln(a.Out, "no alerts found")
			return nil
		}
		fmt.Fprintln(writer, "Time (UTC)\tUser\tRisk\tThreshold\tChannels")
		for _, alert := range alerts {
			fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\n",
				alert.TakenAt.UTC().Format(time.RFC3339),
				sanitizeInline(alert.User),
				formatDecimal(alert.Risk, 3),
				formatDecimal(alert.Threshold, 3),
				strings.Join(alert.Channels, ","),
			)
		}
		return nil
	}

	assessments, err := store.ListRecentAssessments(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if len(assessments) == 0 {
		fmt.Fprintln(a.Out, "no assessments found")
		return nil
	}

	fmt.Fprintln(writer, "Time (UTC)\tUser\tRisk\tCT\tHI\tLR\tHR\tSkin\tAmbient\tHumidity")
	for _, as := range assessments {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			as.TakenAt.UTC().Format(time.RFC3339),
			sanitizeInline(as.User),
			formatDecimal(as.Risk, 3),
			formatDecimal(as.CoreTempRisk, 3),
			formatDecimal(as.HeatIndexRisk, 3),
			formatDecimal(as.LogRegRisk, 3),
			formatDecimal(as.HeartRate, 0),
			formatDecimal(as.SkinTemp, 1),
			formatDecimal(as.AmbientTemp, 1),
			formatDecimal(as.Humidity, 0),
		)
	}
	return nil
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	cleaned = strings.ReplaceAll(cleaned, "\t", " ")
	return cleaned
}

func formatDecimal(d decimal.Decimal, places int32) string {
	return d.StringFixed(places)
}

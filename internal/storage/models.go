package storage

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Assessment is one persisted prediction cycle.
type Assessment struct {
	TakenAt       time.Time
	User          string
	Risk          decimal.Decimal
	CoreTempRisk  decimal.Decimal
	HeatIndexRisk decimal.Decimal
	LogRegRisk    decimal.Decimal
	HeartRate     decimal.Decimal
	SkinTemp      decimal.Decimal
	AmbientTemp   decimal.Decimal
	Humidity      decimal.Decimal
	CreatedAt     time.Time
}

// AlertRecord captures an emitted alert for auditing.
type AlertRecord struct {
	ID        int64
	TakenAt   time.Time
	User      string
	Risk      decimal.Decimal
	Threshold decimal.Decimal
	Channels  []string
	CreatedAt time.Time
}

// numericColumns is the number of decimal columns of an assessment row.
const numericColumns = 8

func numericDest(values *[numericColumns]string) []any {
	dest := make([]any, numericColumns)
	for i := range values {
		dest[i] = &values[i]
	}
	return dest
}

// setNumerics parses decimal columns in table order: risk, ct, hi, lr,
// heart rate, skin temp, ambient temp, humidity.
func (a *Assessment) setNumerics(values [numericColumns]string) error {
	targets := [numericColumns]*decimal.Decimal{
		&a.Risk, &a.CoreTempRisk, &a.HeatIndexRisk, &a.LogRegRisk,
		&a.HeartRate, &a.SkinTemp, &a.AmbientTemp, &a.Humidity,
	}
	for i, v := range values {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return fmt.Errorf("parse numeric column %d: %w", i, err)
		}
		*targets[i] = d
	}
	return nil
}

func (r *AlertRecord) setNumerics(risk, threshold string) error {
	var err error
	if r.Risk, err = decimal.NewFromString(risk); err != nil {
		return fmt.Errorf("parse risk: %w", err)
	}
	if r.Threshold, err = decimal.NewFromString(threshold); err != nil {
		return fmt.Errorf("parse threshold: %w", err)
	}
	return nil
}

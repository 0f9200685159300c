package telemetry

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"
	"time"
)

// History returns up to limit samples, oldest first.
func (f *Feed) History(ctx context.Context, limit int) ([]Sample, error) {
	return f.latest(ctx, limit)
}

var csvHeader = []string{"timestamp", "soil_moisture", "temperature", "humidity", "light_intensity", "water_level", "watering_events"}

// WriteCSV writes samples with a header row.
func WriteCSV(w io.Writer, samples []Sample) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(csvHeader); err != nil {
		return err
	}
	for _, s := range samples {
		row := []string{
			s.Timestamp.UTC().Format(time.RFC3339),
			formatFloat(s.SoilMoisture),
			formatFloat(s.Temperature),
			formatFloat(s.Humidity),
			formatFloat(s.LightIntensity),
			formatFloat(s.WaterLevel),
			formatFloat(s.WateringEvents),
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

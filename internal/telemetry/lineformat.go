package telemetry

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseSerialLine reads the line the plant sensor board prints over serial:
//
//	Humidity: 45.00%, Temp: 24.00°C / 75.20°F, Heat index: 25.00°C / 77.00°F, Light: 345, Soil Moisture: 689
func ParseSerialLine(line string) (map[string]interface{}, error) {
	line = strings.TrimSpace(line)

	humidity, err := floatBetween(line, "Humidity: ", "%")
	if err != nil {
		return nil, err
	}
	tempC, err := floatBetween(line, "Temp: ", "°C")
	if err != nil {
		return nil, err
	}
	tempF, err := floatBetween(line, "/ ", "°F")
	if err != nil {
		return nil, err
	}
	light, err := floatBetween(line, "Light: ", ",")
	if err != nil {
		return nil, err
	}
	soil, err := floatBetween(line, "Soil Moisture: ", "")
	if err != nil {
		return nil, err
	}

	fields := map[string]interface{}{
		"humidity":        humidity,
		"temperature":     tempC,
		"temperature_f":   tempF,
		"light_intensity": light,
		"soil_moisture":   soil,
	}
	if heat, err := floatBetween(line, "Heat index: ", "°C"); err == nil {
		fields["heat_index"] = heat
	}
	return fields, nil
}

// floatBetween parses the number after start and before the next end.
// An empty end reads to the end of the line.
func floatBetween(s, start, end string) (float64, error) {
	i := strings.Index(s, start)
	if i < 0 {
		return 0, fmt.Errorf("serial line has no %q", strings.TrimSpace(start))
	}
	rest := s[i+len(start):]
	if end != "" {
		j := strings.Index(rest, end)
		if j < 0 {
			return 0, fmt.Errorf("serial line has no %q after %q", end, strings.TrimSpace(start))
		}
		rest = rest[:j]
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(rest), 64)
	if err != nil {
		return 0, fmt.Errorf("bad value for %q: %w", strings.TrimSpace(start), err)
	}
	return v, nil
}

package weather

import (
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/alecsharpie/ey-frog-challenge/internal/utils"
)

type WeatherMetrics struct {
	AvgTemperature     float64 `csv:"avg_temperature"`
	TempStdDev         float64 `csv:"temp_std_dev"`
	AvgHumidity        float64 `csv:"avg_humidity"`
	HumidityStdDev     float64 `csv:"humidity_std_dev"`
	TotalPrecipitation float64 `csv:"total_precipitation"`
	DryDaysConsecutive int     `csv:"dry_days_consecutive"`
}

// MetricNames is the column order used when metrics become features.
var MetricNames = []string{
	"avg_temperature",
	"temp_std_dev",
	"avg_humidity",
	"humidity_std_dev",
	"total_precipitation",
	"dry_days_consecutive",
}

func (m WeatherMetrics) Values() []float64 {
	return []float64{
		m.AvgTemperature,
		m.TempStdDev,
		m.AvgHumidity,
		m.HumidityStdDev,
		m.TotalPrecipitation,
		float64(m.DryDaysConsecutive),
	}
}

// Summarize computes metrics over the days in [start, end). Standard
// deviations are population deviations.
func Summarize(historicalData HistoricalWeather, start, end time.Time) WeatherMetrics {
	var temperatures, humidities, precipitations []float64
	for _, date := range utils.SortedKeys(historicalData, false) {
		if date.Before(start) || !date.Before(end) {
			continue
		}
		record := historicalData[date]
		temperatures = append(temperatures, record.Temperature)
		humidities = append(humidities, record.Humidity)
		precipitations = append(precipitations, record.Precipitation)
	}

	var metrics WeatherMetrics
	if len(temperatures) == 0 {
		return metrics
	}
	metrics.AvgTemperature, metrics.TempStdDev = stat.PopMeanStdDev(temperatures, nil)
	metrics.AvgHumidity, metrics.HumidityStdDev = stat.PopMeanStdDev(humidities, nil)
	metrics.TotalPrecipitation = floats.Sum(precipitations)
	metrics.DryDaysConsecutive = calculateDryDays(precipitations)
	return metrics
}

// SummarizeBefore summarizes the periodDays days preceding targetDate.
func SummarizeBefore(historicalData HistoricalWeather, targetDate time.Time, periodDays int) WeatherMetrics {
	return Summarize(historicalData, targetDate.AddDate(0, 0, -periodDays), targetDate)
}

// calculateDryDays expects precipitation in date order.
func calculateDryDays(precipitations []float64) int {
	maxDryDays := 0
	currentDryDays := 0

	for _, precip := range precipitations {
		if precip == 0 {
			currentDryDays++
			if currentDryDays > maxDryDays {
				maxDryDays = currentDryDays
			}
		} else {
			currentDryDays = 0
		}
	}
	return maxDryDays
}

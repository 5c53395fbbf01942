// Package report derives level distributions, filtered history and exports from stored analyses.
package report

import (
	"math"

	"github.com/hyperjump/taxonomia/internal/models"
)

// Aggregate counts items per level. It returns nil for no items, otherwise one point
// per level in taxonomy order with percentages rounded to one decimal.
func Aggregate(items []models.AnalysisItem) []models.ChartDataPoint {
	if len(items) == 0 {
		return nil
	}
	counts := make(map[models.BloomLevel]int, 6)
	for _, it := range items {
		counts[it.BloomLevel]++
	}

	total := float64(len(items))
	levels := models.BloomLevels()
	points := make([]models.ChartDataPoint, 0, len(levels))
	for _, level := range levels {
		n := counts[level]
		points = append(points, models.ChartDataPoint{
			Name:       level,
			Value:      n,
			Percentage: round1(float64(n) / total * 100),
		})
	}
	return points
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

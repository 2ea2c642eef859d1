// Package viewmodel derives the values presentation code renders.
package viewmodel

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"tokenclaim/internal/model"
)

var hundred = decimal.NewFromInt(100)

// ProgressPercent is round(100*(total-remaining)/total) clamped to [0, 100].
// A non-positive total yields 0.
func ProgressPercent(total, remaining decimal.Decimal) int {
	if !total.IsPositive() {
		return 0
	}
	pct := total.Sub(remaining).Mul(hundred).Div(total).Round(0).IntPart()
	switch {
	case pct < 0:
		return 0
	case pct > 100:
		return 100
	default:
		return int(pct)
	}
}

// EligibleAmount is min(claimAmount, remaining), never negative.
func EligibleAmount(claimAmount, remaining decimal.Decimal) decimal.Decimal {
	eligible := decimal.Min(claimAmount, remaining)
	if eligible.IsNegative() {
		return decimal.Zero
	}
	return eligible
}

// Series returns the cumulative claimed amount after each event, in event order.
// The last point equals total-remaining; earlier points walk back by event amounts.
func Series(total, remaining decimal.Decimal, events []model.ClaimEvent) []decimal.Decimal {
	if len(events) == 0 {
		return []decimal.Decimal{}
	}
	sum := decimal.Zero
	for _, ev := range events {
		sum = sum.Add(ev.Amount)
	}
	running := total.Sub(remaining).Sub(sum)
	out := make([]decimal.Decimal, 0, len(events))
	for _, ev := range events {
		running = running.Add(ev.Amount)
		out = append(out, running)
	}
	return out
}

// Point is a sparkline vertex in view box coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// SparklinePoints maps series values into a width x height box with a vertical margin.
// The vertical scale is the larger of maxValue and the series maximum.
func SparklinePoints(data []float64, maxValue, width, height, margin float64) []Point {
	if len(data) == 0 {
		data = []float64{0}
	}
	scale := maxValue
	for _, v := range data {
		if v > scale {
			scale = v
		}
	}
	steps := float64(len(data) - 1)
	if steps < 1 {
		steps = 1
	}

	points := make([]Point, 0, len(data))
	for i, v := range data {
		x := float64(i)/steps*(width-2) + 1
		y := height - margin
		if scale > 0 {
			y -= v / scale * (height - margin*2)
		}
		points = append(points, Point{X: x, Y: y})
	}
	return points
}

// SparklinePath renders points as an SVG path.
func SparklinePath(points []Point) string {
	parts := make([]string, 0, len(points))
	for _, p := range points {
		parts = append(parts, fmt.Sprintf("%g,%g", p.X, p.Y))
	}
	return "M" + strings.Join(parts, " L ")
}

func toFloats(values []decimal.Decimal) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		out = append(out, v.InexactFloat64())
	}
	return out
}

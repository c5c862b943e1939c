package main

import (
	"fmt"
	"math"
	"strings"
)

const (
	sparklineWidth   = 300
	sparklineHeight  = 60
	sparklinePadding = 0.1 // share of the value range added above and below
	forecastWindow   = 7   // known points used by the regression
	forecastDecay    = 0.25
)

// zoneColors maps goal zones to gradient stop colors.
var zoneColors = map[string]string{
	"deficit":   "#3b82f6",
	"on_target": "#22c55e",
	"excess":    "#ef4444",
	"unknown":   "#9ca3af",
}

// chartPoint is a point in SVG coordinates (y grows downwards).
type chartPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// gradientStop colors the line at a horizontal offset in [0, 1].
type gradientStop struct {
	Offset float64 `json:"offset"`
	Color  string  `json:"color"`
}

// sparkline is the SVG description of a series.
type sparkline struct {
	Width        float64        `json:"width"`
	Height       float64        `json:"height"`
	Path         string         `json:"path"`
	ForecastPath string         `json:"forecast_path"`
	TargetPath   string         `json:"target_path"`
	Points       []chartPoint   `json:"points"`
	Stops        []gradientStop `json:"stops"`
	MinValue     float64        `json:"min_value"`
	MaxValue     float64        `json:"max_value"`
}

// linearRegression fits y = slope*x + intercept over x = 0..len(ys)-1.
func linearRegression(ys []float64) (slope, intercept float64) {
	n := float64(len(ys))
	if n == 0 {
		return 0, 0
	}
	if n == 1 {
		return 0, ys[0]
	}
	var sx, sy, sxy, sxx float64
	for i, y := range ys {
		x := float64(i)
		sx += x
		sy += y
		sxy += x * y
		sxx += x * x
	}
	den := n*sxx - sx*sx
	if den == 0 {
		return 0, sy / n
	}
	slope = (n*sxy - sx*sy) / den
	intercept = (sy - slope*sx) / n
	return slope, intercept
}

// forecastValues extrapolates n days past the known series. Near days follow
// the regression over the last forecastWindow points; further days revert
// towards targetMean.
func forecastValues(known []float64, targetMean float64, n int) []float64 {
	if n <= 0 {
		return nil
	}
	recent := known
	if len(recent) > forecastWindow {
		recent = recent[len(recent)-forecastWindow:]
	}
	out := make([]float64, n)
	if len(recent) == 0 {
		for i := range out {
			out[i] = targetMean
		}
		return out
	}
	slope, intercept := linearRegression(recent)
	last := float64(len(recent) - 1)
	for i := 1; i <= n; i++ {
		reg := intercept + slope*(last+float64(i))
		w := math.Max(0, 1-forecastDecay*float64(i-1))
		out[i-1] = math.Max(0, w*reg+(1-w)*targetMean)
	}
	return out
}

// smoothPath converts points to a cubic Bezier path via Catmull-Rom with
// tension 1/6. Control point Y is clamped between the segment's endpoints so
// the curve never overshoots adjacent values.
func smoothPath(pts []chartPoint) string {
	if len(pts) == 0 {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "M %.1f,%.1f", pts[0].X, pts[0].Y)
	for i := 0; i < len(pts)-1; i++ {
		p0 := pts[max(i-1, 0)]
		p1 := pts[i]
		p2 := pts[i+1]
		p3 := pts[min(i+2, len(pts)-1)]

		lo, hi := math.Min(p1.Y, p2.Y), math.Max(p1.Y, p2.Y)
		c1 := chartPoint{X: p1.X + (p2.X-p0.X)/6, Y: clamp(p1.Y+(p2.Y-p0.Y)/6, lo, hi)}
		c2 := chartPoint{X: p2.X - (p3.X-p1.X)/6, Y: clamp(p2.Y-(p3.Y-p1.Y)/6, lo, hi)}
		fmt.Fprintf(&b, " C %.1f,%.1f %.1f,%.1f %.1f,%.1f", c1.X, c1.Y, c2.X, c2.Y, p2.X, p2.Y)
	}
	return b.String()
}

// buildSparkline lays points out on a width x height canvas. Forecast points
// go into a separate path that starts at the last actual point.
func buildSparkline(points []seriesPoint, width, height float64) sparkline {
	sl := sparkline{Width: width, Height: height, Points: []chartPoint{}, Stops: []gradientStop{}}
	if len(points) == 0 {
		return sl
	}

	lo, hi := math.Inf(1), math.Inf(-1)
	for _, p := range points {
		lo = math.Min(lo, math.Min(p.Kcal, p.Target))
		hi = math.Max(hi, math.Max(p.Kcal, p.Target))
	}
	span := hi - lo
	if span <= 0 {
		span = math.Max(1, math.Abs(hi))
	}
	lo -= span * sparklinePadding
	hi += span * sparklinePadding
	sl.MinValue, sl.MaxValue = lo, hi

	step := width
	if len(points) > 1 {
		step = width / float64(len(points)-1)
	}
	project := func(i int, v float64) chartPoint {
		x := step * float64(i)
		if len(points) == 1 {
			x = width / 2
		}
		return chartPoint{X: x, Y: height - (v-lo)/(hi-lo)*height}
	}

	var actual, forecast []chartPoint
	var targetSum float64
	var targetN int
	for i, p := range points {
		cp := project(i, p.Kcal)
		sl.Points = append(sl.Points, cp)
		if p.Kind == "forecast" {
			forecast = append(forecast, cp)
			continue
		}
		actual = append(actual, cp)
		if p.Target > 0 {
			targetSum += p.Target
			targetN++
		}
		offset := 0.0
		if width > 0 {
			offset = cp.X / width
		}
		sl.Stops = append(sl.Stops, gradientStop{Offset: offset, Color: zoneColors[p.Zone]})
	}

	sl.Path = smoothPath(actual)
	if len(forecast) > 0 && len(actual) > 0 {
		sl.ForecastPath = smoothPath(append([]chartPoint{actual[len(actual)-1]}, forecast...))
	}
	if targetN > 0 {
		y := project(0, targetSum/float64(targetN)).Y
		sl.TargetPath = fmt.Sprintf("M 0.0,%.1f L %.1f,%.1f", y, width, y)
	}
	return sl
}

// Package stats summarises score timelines and compares season figures across players.
package stats

import (
	"math"
	"sort"

	"github.com/cac-scouting/scout-engine/pkg/models"
)

// Direction of a score trend.
const (
	TrendUp     = "up"
	TrendDown   = "down"
	TrendStable = "stable"
)

// stableBand is the largest mean difference still reported as stable.
const stableBand = 0.05

// Summary describes the distribution of overall scores.
type Summary struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	StdDev float64 `json:"std_dev"`
}

// Trend compares the start and the end of a timeline.
type Trend struct {
	Direction string  `json:"direction"`
	Delta     float64 `json:"delta"`
	Window    int     `json:"window"` // points averaged at each end
}

// Summarize computes the distribution of series scores. An empty series yields
// a zero Summary.
func Summarize(series []models.ScorePoint) Summary {
	n := len(series)
	if n == 0 {
		return Summary{}
	}

	scores := make([]float64, n)
	sum := 0.0
	for i, p := range series {
		scores[i] = p.Score
		sum += p.Score
	}
	sort.Float64s(scores)

	s := Summary{
		Count: n,
		Mean:  sum / float64(n),
		Min:   scores[0],
		Max:   scores[n-1],
	}
	if n%2 == 1 {
		s.Median = scores[n/2]
	} else {
		s.Median = (scores[n/2-1] + scores[n/2]) / 2
	}

	variance := 0.0
	for _, v := range scores {
		variance += (v - s.Mean) * (v - s.Mean)
	}
	s.StdDev = math.Sqrt(variance / float64(n))
	return s
}

// ComputeTrend averages the first and last k points, k = max(1, n/3), of a
// series already in timeline order. Fewer than two points is stable.
func ComputeTrend(series []models.ScorePoint) Trend {
	n := len(series)
	if n < 2 {
		return Trend{Direction: TrendStable, Window: n}
	}

	k := max(1, n/3)
	head, tail := 0.0, 0.0
	for i := 0; i < k; i++ {
		head += series[i].Score
		tail += series[n-k+i].Score
	}
	delta := (tail - head) / float64(k)

	t := Trend{Delta: delta, Window: k}
	switch {
	case math.Abs(delta) < stableBand:
		t.Direction = TrendStable
	case delta > 0:
		t.Direction = TrendUp
	default:
		t.Direction = TrendDown
	}
	return t
}

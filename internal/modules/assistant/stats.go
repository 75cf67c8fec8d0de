package assistant

import (
	"context"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

const popularQuestionLimit = 10

// Stats summarises assistant usage across all users.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	out := &Stats{}
	if err := s.repo.usageCounts(ctx, out); err != nil {
		return nil, err
	}

	times, err := s.repo.executionTimes(ctx)
	if err != nil {
		return nil, err
	}
	out.AvgResponseTimeMs, out.P95ResponseTimeMs = responseTimes(times)

	if out.MostActiveUser, err = s.repo.mostActiveUser(ctx); err != nil {
		return nil, err
	}
	if out.PopularQuestions, err = s.repo.popularQuestions(ctx, popularQuestionLimit); err != nil {
		return nil, err
	}
	return out, nil
}

// responseTimes returns the mean and 95th percentile of times, rounded to
// two decimals. An empty input yields zeros.
func responseTimes(times []float64) (mean, p95 float64) {
	if len(times) == 0 {
		return 0, 0
	}
	sorted := append([]float64(nil), times...)
	sort.Float64s(sorted)
	mean = stat.Mean(sorted, nil)
	p95 = stat.Quantile(0.95, stat.Empirical, sorted, nil)
	return round2(mean), round2(p95)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

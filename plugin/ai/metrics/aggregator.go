package metrics

import (
	"sort"
	"sync"
	"time"
)

// Aggregator aggregates metrics in memory, bucketed by hour.
type Aggregator struct {
	mu  sync.RWMutex
	now func() time.Time

	// Tier metrics: key = "hourBucket|tier"
	tierMetrics map[string]*tierBucket

	// Evaluation metrics: key = hourBucket
	evaluationMetrics map[string]*evaluationBucket
}

type tierBucket struct {
	hourBucket time.Time
	tier       Tier
	outcomes   OutcomeMix
	latencies  []int64 // in milliseconds
}

type evaluationBucket struct {
	hourBucket      time.Time
	count           int64
	scoreSum        float64
	recommendations map[string]int64
	latencies       []int64 // in milliseconds
}

// NewAggregator creates a new metrics aggregator.
func NewAggregator() *Aggregator {
	return newAggregatorWithClock(time.Now)
}

func newAggregatorWithClock(now func() time.Time) *Aggregator {
	return &Aggregator{
		now:               now,
		tierMetrics:       make(map[string]*tierBucket),
		evaluationMetrics: make(map[string]*evaluationBucket),
	}
}

// RecordTier records a single tier run.
func (a *Aggregator) RecordTier(tier Tier, latency time.Duration, outcome Outcome) {
	a.mu.Lock()
	defer a.mu.Unlock()

	hourBucket := truncateToHour(a.now())
	key := makeTierKey(hourBucket, tier)

	bucket, exists := a.tierMetrics[key]
	if !exists {
		bucket = &tierBucket{
			hourBucket: hourBucket,
			tier:       tier,
			outcomes:   make(OutcomeMix),
			latencies:  make([]int64, 0, 100),
		}
		a.tierMetrics[key] = bucket
	}

	bucket.outcomes[outcome]++
	if outcome != OutcomeSkipped {
		bucket.latencies = append(bucket.latencies, latency.Milliseconds())
	}
}

// RecordEvaluation records a finished pipeline run.
func (a *Aggregator) RecordEvaluation(recommendation string, score float64, latency time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()

	hourBucket := truncateToHour(a.now())
	key := hourBucket.Format(time.RFC3339)

	bucket, exists := a.evaluationMetrics[key]
	if !exists {
		bucket = &evaluationBucket{
			hourBucket:      hourBucket,
			recommendations: make(map[string]int64),
			latencies:       make([]int64, 0, 100),
		}
		a.evaluationMetrics[key] = bucket
	}

	bucket.count++
	bucket.scoreSum += score
	bucket.recommendations[recommendation]++
	bucket.latencies = append(bucket.latencies, latency.Milliseconds())
}

// Prune drops every bucket older than beforeHour and returns how many were dropped.
func (a *Aggregator) Prune(beforeHour time.Time) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	var dropped int
	for key, bucket := range a.tierMetrics {
		if bucket.hourBucket.Before(beforeHour) {
			delete(a.tierMetrics, key)
			dropped++
		}
	}
	for key, bucket := range a.evaluationMetrics {
		if bucket.hourBucket.Before(beforeHour) {
			delete(a.evaluationMetrics, key)
			dropped++
		}
	}
	return dropped
}

// Stats returns aggregated stats for the buckets inside timeRange.
func (a *Aggregator) Stats(timeRange TimeRange) *EvaluationMetrics {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := &EvaluationMetrics{
		Recommendations: make(map[string]int64),
		TierStats:       make(map[Tier]*TierStat),
		OutcomesByTier:  make(map[Tier]OutcomeMix),
	}

	// Aggregate evaluation metrics
	var scoreSum float64
	allLatencies := make([]int64, 0)
	for _, bucket := range a.evaluationMetrics {
		if !timeRange.Contains(bucket.hourBucket) {
			continue
		}
		stats.EvaluationCount += bucket.count
		scoreSum += bucket.scoreSum
		allLatencies = append(allLatencies, bucket.latencies...)
		for rec, n := range bucket.recommendations {
			stats.Recommendations[rec] += n
		}
	}
	if stats.EvaluationCount > 0 {
		stats.AverageScore = scoreSum / float64(stats.EvaluationCount)
	}
	stats.LatencyP50 = time.Duration(percentile(allLatencies, 50)) * time.Millisecond
	stats.LatencyP95 = time.Duration(percentile(allLatencies, 95)) * time.Millisecond

	// Aggregate tier metrics
	tierLatencies := make(map[Tier][]int64)
	for _, bucket := range a.tierMetrics {
		if !timeRange.Contains(bucket.hourBucket) {
			continue
		}
		mix, exists := stats.OutcomesByTier[bucket.tier]
		if !exists {
			mix = make(OutcomeMix)
			stats.OutcomesByTier[bucket.tier] = mix
		}
		for outcome, n := range bucket.outcomes {
			mix[outcome] += n
		}
		tierLatencies[bucket.tier] = append(tierLatencies[bucket.tier], bucket.latencies...)
	}

	for tier, mix := range stats.OutcomesByTier {
		tierStat := &TierStat{}
		for _, n := range mix {
			tierStat.Count += n
		}
		if tierStat.Count > 0 {
			succeeded := mix[OutcomeOK] + mix[OutcomeDegraded]
			tierStat.SuccessRate = float32(succeeded) / float32(tierStat.Count)
		}
		if latencies := tierLatencies[tier]; len(latencies) > 0 {
			avgMs := sumLatencies(latencies) / int64(len(latencies))
			tierStat.AvgLatency = time.Duration(avgMs) * time.Millisecond
			tierStat.LatencyP95 = time.Duration(percentile(latencies, 95)) * time.Millisecond
		}
		stats.TierStats[tier] = tierStat
	}

	return stats
}

// Helper functions

func truncateToHour(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, t.Location())
}

func makeTierKey(hourBucket time.Time, tier Tier) string {
	return hourBucket.Format(time.RFC3339) + "|" + string(tier)
}

func sumLatencies(latencies []int64) int64 {
	var sum int64
	for _, l := range latencies {
		sum += l
	}
	return sum
}

func percentile(latencies []int64, p int) int64 {
	if len(latencies) == 0 {
		return 0
	}

	sorted := make([]int64, len(latencies))
	copy(sorted, latencies)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	idx := (len(sorted) - 1) * p / 100
	return sorted[idx]
}

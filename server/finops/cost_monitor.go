package finops

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// defaultMaxRecords 内存中保留的最大记录数
const defaultMaxRecords = 10000

// CostMonitor 成本监控器，用于追踪评估中 Judge 调用的成本和性能
type CostMonitor struct {
	logger *slog.Logger
	now    func() time.Time

	mu         sync.RWMutex
	records    []JudgeCostRecord
	maxRecords int

	// 每日预算（美元），0 表示不限制
	dailyBudget float64
}

// JudgeCostRecord 单次评估的 Judge 成本记录
type JudgeCostRecord struct {
	Timestamp   time.Time `json:"timestamp"`
	ExecutionID string    `json:"execution_id"`
	Provider    string    `json:"provider"`
	Model       string    `json:"model"`

	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	TotalCost        float64 `json:"total_cost"`

	// 性能指标
	LatencyMs int64 `json:"latency_ms"`

	FallbackUsed bool `json:"fallback_used"`
}

// ProviderStats 按 provider 统计
type ProviderStats struct {
	Provider     string  `json:"provider"`
	CallCount    int64   `json:"call_count"`
	Cost         float64 `json:"cost"`
	AvgLatency   float64 `json:"avg_latency_ms"`
	FallbackRate float64 `json:"fallback_rate"`
}

// CostReport 成本报告
type CostReport struct {
	Period     string                    `json:"period"`
	TotalCost  float64                   `json:"total_cost"`
	ByProvider map[string]*ProviderStats `json:"by_provider"`
	TopCosts   []JudgeCostRecord         `json:"top_costs"`
}

// Option 配置 CostMonitor
type Option func(*CostMonitor)

// WithDailyBudget 设置每日预算
func WithDailyBudget(usd float64) Option {
	return func(m *CostMonitor) {
		m.dailyBudget = usd
	}
}

// WithClock 替换时钟（测试用）
func WithClock(now func() time.Time) Option {
	return func(m *CostMonitor) {
		m.now = now
	}
}

// NewCostMonitor 创建新的成本监控器
func NewCostMonitor(opts ...Option) *CostMonitor {
	m := &CostMonitor{
		logger:     slog.Default(),
		now:        time.Now,
		maxRecords: defaultMaxRecords,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Record 记录一次 Judge 成本
func (m *CostMonitor) Record(ctx context.Context, record *JudgeCostRecord) error {
	if record == nil {
		return fmt.Errorf("record cannot be nil")
	}

	// 参数验证
	if record.Provider == "" {
		m.logger.WarnContext(ctx, "Empty provider in cost record",
			"execution_id", record.ExecutionID,
		)
		return fmt.Errorf("provider cannot be empty")
	}
	if record.TotalCost < 0 {
		m.logger.WarnContext(ctx, "Negative total cost in cost record",
			"execution_id", record.ExecutionID,
			"total_cost", record.TotalCost,
		)
		return fmt.Errorf("total cost cannot be negative")
	}
	if record.LatencyMs < 0 {
		m.logger.WarnContext(ctx, "Negative latency in cost record",
			"execution_id", record.ExecutionID,
			"latency_ms", record.LatencyMs,
		)
		return fmt.Errorf("latency cannot be negative")
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = m.now()
	}

	m.mu.Lock()
	m.records = append(m.records, *record)
	if over := len(m.records) - m.maxRecords; over > 0 {
		m.records = append([]JudgeCostRecord(nil), m.records[over:]...)
	}
	m.mu.Unlock()

	m.logger.DebugContext(ctx, "Recorded judge cost",
		"execution_id", record.ExecutionID,
		"provider", record.Provider,
		"model", record.Model,
		"total_cost", record.TotalCost,
		"latency_ms", record.LatencyMs,
	)

	if m.dailyBudget > 0 {
		if spent := m.spentSince(m.now().AddDate(0, 0, -1)); spent > m.dailyBudget {
			m.logger.WarnContext(ctx, "Judge daily budget exceeded",
				"spent", spent,
				"budget", m.dailyBudget,
			)
		}
	}
	return nil
}

// OverBudget 判断过去 24 小时的成本是否超出预算
func (m *CostMonitor) OverBudget() bool {
	if m.dailyBudget <= 0 {
		return false
	}
	return m.spentSince(m.now().AddDate(0, 0, -1)) > m.dailyBudget
}

func (m *CostMonitor) spentSince(start time.Time) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var total float64
	for _, r := range m.records {
		if !r.Timestamp.Before(start) {
			total += r.TotalCost
		}
	}
	return total
}

// GetCostReport 获取成本报告
func (m *CostMonitor) GetCostReport(_ context.Context, period string) (*CostReport, error) {
	startTime, err := m.getPeriodStartTime(period)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	report := &CostReport{
		Period:     period,
		ByProvider: make(map[string]*ProviderStats),
	}

	var selected []JudgeCostRecord
	latencySum := make(map[string]int64)
	fallbacks := make(map[string]int64)
	for _, r := range m.records {
		if r.Timestamp.Before(startTime) {
			continue
		}
		selected = append(selected, r)
		report.TotalCost += r.TotalCost

		stats, ok := report.ByProvider[r.Provider]
		if !ok {
			stats = &ProviderStats{Provider: r.Provider}
			report.ByProvider[r.Provider] = stats
		}
		stats.CallCount++
		stats.Cost += r.TotalCost
		latencySum[r.Provider] += r.LatencyMs
		if r.FallbackUsed {
			fallbacks[r.Provider]++
		}
	}

	for provider, stats := range report.ByProvider {
		stats.AvgLatency = float64(latencySum[provider]) / float64(stats.CallCount)
		stats.FallbackRate = float64(fallbacks[provider]) / float64(stats.CallCount)
	}

	// 成本最高的前 10 条
	sort.SliceStable(selected, func(i, j int) bool {
		return selected[i].TotalCost > selected[j].TotalCost
	})
	if len(selected) > 10 {
		selected = selected[:10]
	}
	report.TopCosts = selected

	return report, nil
}

// getPeriodStartTime 根据周期获取开始时间
func (m *CostMonitor) getPeriodStartTime(period string) (time.Time, error) {
	now := m.now()

	switch period {
	case "", "daily", "today":
		return now.AddDate(0, 0, -1), nil
	case "weekly", "this_week":
		return now.AddDate(0, 0, -7), nil
	case "monthly", "this_month":
		return now.AddDate(0, -1, 0), nil
	default:
		return time.Time{}, fmt.Errorf("unknown period: %s", period)
	}
}

// CreateJudgeCostRecord 创建 Judge 成本记录（辅助函数）
func CreateJudgeCostRecord(
	executionID string,
	provider string,
	model string,
	promptTokens int,
	completionTokens int,
	totalCost float64,
	latencyMs int64,
	fallbackUsed bool,
) *JudgeCostRecord {
	return &JudgeCostRecord{
		Timestamp:        time.Now(),
		ExecutionID:      executionID,
		Provider:         provider,
		Model:            model,
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		TotalCost:        totalCost,
		LatencyMs:        latencyMs,
		FallbackUsed:     fallbackUsed,
	}
}

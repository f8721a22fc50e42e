package finops

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestCostMonitor_CreateJudgeCostRecord 测试创建成本记录
func TestCostMonitor_CreateJudgeCostRecord(t *testing.T) {
	record := CreateJudgeCostRecord(
		"exec-1",        // executionID
		"deepseek",      // provider
		"deepseek-chat", // model
		1200,            // promptTokens
		300,             // completionTokens
		0.0004,          // totalCost
		850,             // latencyMs
		false,           // fallbackUsed
	)

	assert.NotNil(t, record)
	assert.Equal(t, "exec-1", record.ExecutionID)
	assert.Equal(t, "deepseek", record.Provider)
	assert.Equal(t, 1200, record.PromptTokens)
	assert.Equal(t, 0.0004, record.TotalCost)
	assert.Equal(t, int64(850), record.LatencyMs)
	assert.False(t, record.Timestamp.IsZero())
}

// TestCostMonitor_RecordValidation 测试参数验证
func TestCostMonitor_RecordValidation(t *testing.T) {
	monitor := NewCostMonitor()
	ctx := context.Background()

	tests := []struct {
		name    string
		record  *JudgeCostRecord
		wantErr bool
	}{
		{name: "nil record", record: nil, wantErr: true},
		{name: "empty provider", record: &JudgeCostRecord{TotalCost: 0.1}, wantErr: true},
		{name: "negative cost", record: &JudgeCostRecord{Provider: "openai", TotalCost: -1}, wantErr: true},
		{name: "negative latency", record: &JudgeCostRecord{Provider: "openai", LatencyMs: -5}, wantErr: true},
		{name: "valid", record: &JudgeCostRecord{Provider: "openai", TotalCost: 0.01, LatencyMs: 10}, wantErr: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := monitor.Record(ctx, tt.record)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

// TestCostMonitor_GetCostReport 测试成本报告
func TestCostMonitor_GetCostReport(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	monitor := NewCostMonitor(WithClock(func() time.Time { return now }))
	ctx := context.Background()

	records := []*JudgeCostRecord{
		{Timestamp: now.Add(-time.Hour), Provider: "openai", TotalCost: 0.02, LatencyMs: 100},
		{Timestamp: now.Add(-2 * time.Hour), Provider: "openai", TotalCost: 0.04, LatencyMs: 300, FallbackUsed: true},
		{Timestamp: now.Add(-3 * time.Hour), Provider: "deepseek", TotalCost: 0.001, LatencyMs: 200},
		{Timestamp: now.AddDate(0, 0, -3), Provider: "deepseek", TotalCost: 1.0, LatencyMs: 200},
	}
	for _, r := range records {
		require.NoError(t, monitor.Record(ctx, r))
	}

	daily, err := monitor.GetCostReport(ctx, "daily")
	require.NoError(t, err)
	assert.InDelta(t, 0.061, daily.TotalCost, 1e-9)
	require.Contains(t, daily.ByProvider, "openai")
	assert.Equal(t, int64(2), daily.ByProvider["openai"].CallCount)
	assert.InDelta(t, 200, daily.ByProvider["openai"].AvgLatency, 1e-9)
	assert.InDelta(t, 0.5, daily.ByProvider["openai"].FallbackRate, 1e-9)
	require.Len(t, daily.TopCosts, 3)
	assert.Equal(t, 0.04, daily.TopCosts[0].TotalCost)

	weekly, err := monitor.GetCostReport(ctx, "weekly")
	require.NoError(t, err)
	assert.InDelta(t, 1.061, weekly.TotalCost, 1e-9)

	_, err = monitor.GetCostReport(ctx, "fortnightly")
	assert.Error(t, err)
}

// TestCostMonitor_Budget 测试预算
func TestCostMonitor_Budget(t *testing.T) {
	monitor := NewCostMonitor(WithDailyBudget(0.05))
	ctx := context.Background()

	require.NoError(t, monitor.Record(ctx, CreateJudgeCostRecord("a", "openai", "gpt-4o-mini", 0, 0, 0.03, 1, false)))
	assert.False(t, monitor.OverBudget())

	require.NoError(t, monitor.Record(ctx, CreateJudgeCostRecord("b", "openai", "gpt-4o-mini", 0, 0, 0.03, 1, false)))
	assert.True(t, monitor.OverBudget())

	assert.False(t, NewCostMonitor().OverBudget())
}

// TestCostMonitor_MaxRecords 测试记录上限
func TestCostMonitor_MaxRecords(t *testing.T) {
	monitor := NewCostMonitor()
	monitor.maxRecords = 5
	ctx := context.Background()

	for i := 0; i < 8; i++ {
		require.NoError(t, monitor.Record(ctx, &JudgeCostRecord{
			ExecutionID: fmt.Sprintf("exec-%d", i),
			Provider:    "openai",
		}))
	}

	assert.Len(t, monitor.records, 5)
	assert.Equal(t, "exec-3", monitor.records[0].ExecutionID)
}

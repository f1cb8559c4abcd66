package usecase

import "context"

// MetricsSummary represents aggregated gateway insights.
type MetricsSummary struct {
	TotalRequests      int64              `json:"total_requests"`
	SuccessfulRequests int64              `json:"successful_requests"`
	SuccessRate        float64            `json:"success_rate"`
	AverageLatencyMs   float64            `json:"average_latency_ms"`
	Operations         []OperationMetrics `json:"operations"`
}

// OperationMetrics is the per-operation slice of the summary.
type OperationMetrics struct {
	Operation          string  `json:"operation"`
	TotalRequests      int64   `json:"total_requests"`
	SuccessfulRequests int64   `json:"successful_requests"`
	SuccessRate        float64 `json:"success_rate"`
	AverageLatencyMs   float64 `json:"average_latency_ms"`
}

// GetMetricsSummary aggregates forwarded-call metrics from persisted logs.
func (uc *FaceUseCase) GetMetricsSummary(ctx context.Context) (*MetricsSummary, error) {
	if uc.repo == nil {
		return nil, ErrAuditDisabled
	}

	rows, err := uc.repo.AggregateMetrics(ctx)
	if err != nil {
		return nil, err
	}

	summary := &MetricsSummary{Operations: make([]OperationMetrics, 0, len(rows))}
	var latencyWeighted float64
	for _, row := range rows {
		op := OperationMetrics{
			Operation:          row.Operation,
			TotalRequests:      row.TotalCount,
			SuccessfulRequests: row.SuccessCount,
			AverageLatencyMs:   row.AverageLatencyMs,
		}
		if row.TotalCount > 0 {
			op.SuccessRate = float64(row.SuccessCount) / float64(row.TotalCount)
		}
		summary.Operations = append(summary.Operations, op)

		summary.TotalRequests += row.TotalCount
		summary.SuccessfulRequests += row.SuccessCount
		latencyWeighted += row.AverageLatencyMs * float64(row.TotalCount)
	}

	if summary.TotalRequests > 0 {
		summary.SuccessRate = float64(summary.SuccessfulRequests) / float64(summary.TotalRequests)
		summary.AverageLatencyMs = latencyWeighted / float64(summary.TotalRequests)
	}

	return summary, nil
}

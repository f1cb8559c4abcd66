package repository

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/example/face-gateway/internal/retry"
)

// RequestLog is one forwarded call as seen by the gateway. It records the
// outcome of the exchange, never the image or any face data.
type RequestLog struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	RequestID  string    `gorm:"column:request_id;index;size:64" json:"request_id"`
	Operation  string    `gorm:"column:operation;index;size:64" json:"operation"`
	Subject    string    `gorm:"column:subject;size:255" json:"subject,omitempty"`
	Success    bool      `gorm:"column:success" json:"success"`
	StatusCode int       `gorm:"column:status_code" json:"status_code"`
	LatencyMs  float64   `gorm:"column:latency_ms" json:"latency_ms"`
	Message    string    `gorm:"column:message;type:text" json:"message,omitempty"`
	ImageSHA1  string    `gorm:"column:image_sha1;size:40" json:"image_sha1,omitempty"`
	CreatedAt  time.Time `gorm:"column:created_at;index" json:"created_at"`
}

// TableName overrides the default table name.
func (RequestLog) TableName() string {
	return "gateway_request_logs"
}

// OperationAggregate summarizes the logs of one operation.
type OperationAggregate struct {
	Operation        string  `gorm:"column:operation"`
	TotalCount       int64   `gorm:"column:total_count"`
	SuccessCount     int64   `gorm:"column:success_count"`
	AverageLatencyMs float64 `gorm:"column:average_latency_ms"`
}

// RequestLogRepository persists gateway request logs through gorm.
type RequestLogRepository struct {
	db             *gorm.DB
	logger         *zap.Logger
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// NewRequestLogRepository creates a new repository instance.
func NewRequestLogRepository(db *gorm.DB, logger *zap.Logger) *RequestLogRepository {
	return &RequestLogRepository{
		db:             db,
		logger:         logger.Named("request_log_repository"),
		retryAttempts:  retry.Default.Attempts,
		initialBackoff: retry.Default.InitialBackoff,
		maxBackoff:     retry.Default.MaxBackoff,
	}
}

// AutoMigrate ensures the schema is available.
func (r *RequestLogRepository) AutoMigrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&RequestLog{})
}

// SaveLog persists a request log entry.
func (r *RequestLogRepository) SaveLog(ctx context.Context, log *RequestLog) error {
	return r.executeWithRetry(ctx, "repository.save_log", log.RequestID, func() error {
		return r.db.WithContext(ctx).Create(log).Error
	})
}

// FindByRequestID returns every log written for one inbound request.
func (r *RequestLogRepository) FindByRequestID(ctx context.Context, requestID string) ([]*RequestLog, error) {
	var logs []*RequestLog
	err := r.executeWithRetry(ctx, "repository.find_by_request_id", requestID, func() error {
		return r.db.WithContext(ctx).
			Where("request_id = ?", requestID).
			Order("created_at ASC").
			Find(&logs).Error
	})
	if err != nil {
		return nil, err
	}
	return logs, nil
}

// AggregateMetrics groups request logs per operation.
func (r *RequestLogRepository) AggregateMetrics(ctx context.Context) ([]OperationAggregate, error) {
	var rows []OperationAggregate
	err := r.executeWithRetry(ctx, "repository.aggregate_metrics", "", func() error {
		return r.db.WithContext(ctx).
			Model(&RequestLog{}).
			Select("operation, COUNT(*) AS total_count, " +
				"SUM(CASE WHEN success THEN 1 ELSE 0 END) AS success_count, " +
				"COALESCE(AVG(latency_ms), 0) AS average_latency_ms").
			Group("operation").
			Order("operation").
			Scan(&rows).Error
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *RequestLogRepository) executeWithRetry(ctx context.Context, operation, requestID string, fn func() error) error {
	policy := retry.Policy{
		Attempts:       r.retryAttempts,
		InitialBackoff: r.initialBackoff,
		MaxBackoff:     r.maxBackoff,
	}
	return retry.Do(ctx, policy, r.logger, operation, requestID, fn)
}

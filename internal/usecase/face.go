package usecase

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/face-gateway/internal/auth"
	"github.com/example/face-gateway/internal/faceapi"
	"github.com/example/face-gateway/internal/logging"
	"github.com/example/face-gateway/internal/repository"
	"github.com/example/face-gateway/internal/retry"
)

var (
	ErrInvalidThreshold = errors.New("threshold must be between 0 and 1")
	ErrInvalidFaceID    = errors.New("face id must be a positive integer")
	ErrAuditDisabled    = errors.New("request audit is not configured")
	ErrRequestNotFound  = errors.New("no audit records for request")
)

// StandardThreshold is used when Options leaves DefaultThreshold unset.
const StandardThreshold = 0.6

const (
	listCacheKey     = "face:list"
	comparePrefixKey = "face:compare:"
)

// AuditRepository defines the persistence operations needed by the use case.
type AuditRepository interface {
	SaveLog(ctx context.Context, log *repository.RequestLog) error
	FindByRequestID(ctx context.Context, requestID string) ([]*repository.RequestLog, error)
	AggregateMetrics(ctx context.Context) ([]repository.OperationAggregate, error)
}

// Options tunes the use case.
// A nil DefaultThreshold selects StandardThreshold; zero is a valid setting.
type Options struct {
	DefaultThreshold *float64
	CacheTTL         time.Duration
}

// FaceUseCase forwards face operations to the backend, one outbound call
// per inbound request, and keeps the gateway's audit trail and cache.
type FaceUseCase struct {
	client           faceapi.Client
	repo             AuditRepository
	cache            Cache
	logger           *zap.Logger
	defaultThreshold float64
	cacheTTL         time.Duration
	cachePolicy      retry.Policy
	now              func() time.Time
}

// NewFaceUseCase constructs a new use case instance. repo may be nil to
// disable auditing and cache may be nil to disable caching.
func NewFaceUseCase(client faceapi.Client, repo AuditRepository, cache Cache, logger *zap.Logger, opts Options) *FaceUseCase {
	if cache == nil {
		cache = NoopCache{}
	}
	threshold := StandardThreshold
	if opts.DefaultThreshold != nil {
		threshold = *opts.DefaultThreshold
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 30 * time.Second
	}
	return &FaceUseCase{
		client:           client,
		repo:             repo,
		cache:            cache,
		logger:           logger.Named("face_usecase"),
		defaultThreshold: threshold,
		cacheTTL:         opts.CacheTTL,
		cachePolicy:      retry.Default,
		now:              time.Now,
	}
}

// DefaultThreshold is applied when a request omits its threshold.
func (uc *FaceUseCase) DefaultThreshold() float64 {
	return uc.defaultThreshold
}

// AuditEnabled reports whether forwarded calls are persisted.
func (uc *FaceUseCase) AuditEnabled() bool {
	return uc.repo != nil
}

// CheckHealth relays the backend health report.
func (uc *FaceUseCase) CheckHealth(ctx context.Context) (*faceapi.HealthResponse, error) {
	ctx, requestID := uc.ensureRequestID(ctx)
	start := uc.now()

	resp, err := uc.client.Health(ctx)
	uc.audit(ctx, auditEntry{operation: "health", requestID: requestID, start: start, err: err, success: err == nil, message: healthMessage(resp)})
	if err != nil {
		return nil, logging.NewOperationError("usecase.check_health", requestID, err)
	}
	return resp, nil
}

// RegisterFace enrolls a face. A successful registration invalidates the
// cached face list.
func (uc *FaceUseCase) RegisterFace(ctx context.Context, req faceapi.RegisterRequest) (*faceapi.RegisterResponse, error) {
	ctx, requestID := uc.ensureRequestID(ctx)
	const operation = "usecase.register_face"

	image, err := faceapi.NormalizeImage(req.Image)
	if err != nil {
		return nil, logging.NewOperationError(operation, requestID, err)
	}
	req.Image = image

	start := uc.now()
	resp, err := uc.client.Register(ctx, req)
	uc.audit(ctx, auditEntry{operation: "register", requestID: requestID, start: start, err: err, outcome: resp, imageHash: hashOf(image)})
	var relayed faceapi.RegisterResponse
	if clientFailure(err, &relayed, &relayed.Message) {
		relayed.Success = false
		return &relayed, nil
	}
	if err != nil {
		return nil, logging.NewOperationError(operation, requestID, err)
	}

	if resp.Succeeded() {
		uc.invalidate(ctx, requestID, listCacheKey)
	}
	return resp, nil
}

// RecognizeFace identifies the faces in an image against the backend registry.
func (uc *FaceUseCase) RecognizeFace(ctx context.Context, req faceapi.RecognizeRequest) (*faceapi.RecognizeResponse, error) {
	ctx, requestID := uc.ensureRequestID(ctx)
	const operation = "usecase.recognize_face"

	threshold, err := uc.threshold(req.Threshold)
	if err != nil {
		return nil, logging.NewOperationError(operation, requestID, err)
	}
	image, err := faceapi.NormalizeImage(req.Image)
	if err != nil {
		return nil, logging.NewOperationError(operation, requestID, err)
	}
	req.Image, req.Threshold = image, &threshold

	start := uc.now()
	resp, err := uc.client.Recognize(ctx, req)
	uc.audit(ctx, auditEntry{operation: "recognize", requestID: requestID, start: start, err: err, outcome: resp, imageHash: hashOf(image)})
	var relayed faceapi.RecognizeResponse
	if clientFailure(err, &relayed, &relayed.Message) {
		relayed.Success = false
		return &relayed, nil
	}
	if err != nil {
		return nil, logging.NewOperationError(operation, requestID, err)
	}
	return resp, nil
}

// CompareFaces asks the backend whether two images show the same person.
// Successful comparisons are cached by their inputs.
func (uc *FaceUseCase) CompareFaces(ctx context.Context, req faceapi.CompareRequest) (*faceapi.CompareResponse, error) {
	ctx, requestID := uc.ensureRequestID(ctx)
	const operation = "usecase.compare_faces"

	threshold, err := uc.threshold(req.Threshold)
	if err != nil {
		return nil, logging.NewOperationError(operation, requestID, err)
	}
	image1, err := faceapi.NormalizeImage(req.Image1)
	if err != nil {
		return nil, logging.NewOperationError(operation, requestID, fmt.Errorf("image1: %w", err))
	}
	image2, err := faceapi.NormalizeImage(req.Image2)
	if err != nil {
		return nil, logging.NewOperationError(operation, requestID, fmt.Errorf("image2: %w", err))
	}
	req.Image1, req.Image2, req.Threshold = image1, image2, &threshold

	cacheKey := comparePrefixKey + hashOf(image1, image2, strconv.FormatFloat(threshold, 'f', -1, 64))
	var cached faceapi.CompareResponse
	if uc.lookup(ctx, requestID, cacheKey, &cached) {
		return &cached, nil
	}

	start := uc.now()
	resp, err := uc.client.Compare(ctx, req)
	uc.audit(ctx, auditEntry{operation: "compare", requestID: requestID, start: start, err: err, outcome: resp, imageHash: hashOf(image1, image2)})
	var relayed faceapi.CompareResponse
	if clientFailure(err, &relayed, &relayed.Message) {
		relayed.Success = false
		return &relayed, nil
	}
	if err != nil {
		return nil, logging.NewOperationError(operation, requestID, err)
	}

	if resp.Succeeded() {
		uc.store(ctx, requestID, cacheKey, resp)
	}
	return resp, nil
}

// ListRegisteredFaces returns the backend registry, served from cache when
// a fresh copy exists.
func (uc *FaceUseCase) ListRegisteredFaces(ctx context.Context) (*faceapi.ListResponse, error) {
	ctx, requestID := uc.ensureRequestID(ctx)

	var cached faceapi.ListResponse
	if uc.lookup(ctx, requestID, listCacheKey, &cached) {
		return &cached, nil
	}

	start := uc.now()
	resp, err := uc.client.List(ctx)
	uc.audit(ctx, auditEntry{operation: "list", requestID: requestID, start: start, err: err, outcome: resp})
	var relayed faceapi.ListResponse
	if clientFailure(err, &relayed, &relayed.Message) {
		relayed.Success = false
		return &relayed, nil
	}
	if err != nil {
		return nil, logging.NewOperationError("usecase.list_faces", requestID, err)
	}

	if resp.Succeeded() {
		uc.store(ctx, requestID, listCacheKey, resp)
	}
	return resp, nil
}

// DeleteFace removes a registered face. A backend 404 is reported as an
// unsuccessful outcome rather than an error.
func (uc *FaceUseCase) DeleteFace(ctx context.Context, faceID int64) (*faceapi.DeleteResponse, error) {
	ctx, requestID := uc.ensureRequestID(ctx)
	const operation = "usecase.delete_face"

	if faceID <= 0 {
		return nil, logging.NewOperationError(operation, requestID, ErrInvalidFaceID)
	}

	start := uc.now()
	resp, err := uc.client.Delete(ctx, faceID)
	uc.audit(ctx, auditEntry{operation: "delete", requestID: requestID, start: start, err: err, outcome: resp})
	var relayed faceapi.DeleteResponse
	if clientFailure(err, &relayed, &relayed.Message) {
		relayed.Success = false
		return &relayed, nil
	}
	if err != nil {
		return nil, logging.NewOperationError(operation, requestID, err)
	}

	if resp.Succeeded() {
		uc.invalidate(ctx, requestID, listCacheKey)
	}
	return resp, nil
}

// RequestLogs returns the audit trail of one inbound request.
func (uc *FaceUseCase) RequestLogs(ctx context.Context, requestID string) ([]*repository.RequestLog, error) {
	if uc.repo == nil {
		return nil, ErrAuditDisabled
	}
	logs, err := uc.repo.FindByRequestID(ctx, requestID)
	if err != nil {
		return nil, logging.NewOperationError("usecase.request_logs", requestID, err)
	}
	if len(logs) == 0 {
		return nil, ErrRequestNotFound
	}
	return logs, nil
}

func (uc *FaceUseCase) threshold(requested *float64) (float64, error) {
	if requested == nil {
		return uc.defaultThreshold, nil
	}
	if math.IsNaN(*requested) || *requested < 0 || *requested > 1 {
		return 0, fmt.Errorf("%w: got %v", ErrInvalidThreshold, *requested)
	}
	return *requested, nil
}

func (uc *FaceUseCase) ensureRequestID(ctx context.Context) (context.Context, string) {
	if id := faceapi.RequestIDFrom(ctx); id != "" {
		return ctx, id
	}
	id := uuid.NewString()
	return faceapi.WithRequestID(ctx, id), id
}

// lookup decodes a cached value into out. Misses and cache failures both
// report false; failures are only logged.
func (uc *FaceUseCase) lookup(ctx context.Context, requestID, key string, out any) bool {
	var (
		raw  string
		miss bool
	)
	err := retry.Do(ctx, uc.cachePolicy, uc.logger, "cache.get", requestID, func() error {
		value, err := uc.cache.Get(ctx, key)
		if errors.Is(err, redis.Nil) {
			miss = true
			return nil
		}
		if err != nil {
			return err
		}
		raw = value
		return nil
	})
	if err != nil {
		logging.WithOperation(uc.logger, "cache.get", requestID).Warn("failed to read cache", zap.String("key", key), zap.Error(err))
		return false
	}
	if miss {
		return false
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		logging.WithOperation(uc.logger, "cache.get", requestID).Warn("failed to decode cached value", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

func (uc *FaceUseCase) store(ctx context.Context, requestID, key string, value any) {
	serialized, err := json.Marshal(value)
	if err != nil {
		logging.WithOperation(uc.logger, "cache.set", requestID).Warn("failed to serialize value", zap.Error(err))
		return
	}
	if err := retry.Do(ctx, uc.cachePolicy, uc.logger, "cache.set", requestID, func() error {
		return uc.cache.Set(ctx, key, string(serialized), uc.cacheTTL)
	}); err != nil {
		logging.WithOperation(uc.logger, "cache.set", requestID).Warn("failed to cache value", zap.String("key", key), zap.Error(err))
	}
}

func (uc *FaceUseCase) invalidate(ctx context.Context, requestID string, keys ...string) {
	if err := retry.Do(ctx, uc.cachePolicy, uc.logger, "cache.delete", requestID, func() error {
		return uc.cache.Delete(ctx, keys...)
	}); err != nil {
		logging.WithOperation(uc.logger, "cache.delete", requestID).Warn("failed to invalidate cache", zap.Strings("keys", keys), zap.Error(err))
	}
}

type auditEntry struct {
	operation string
	requestID string
	start     time.Time
	err       error
	outcome   faceapi.Outcome
	success   bool
	message   string
	imageHash string
}

// audit persists one forwarded call. Persistence failures never fail the
// request.
func (uc *FaceUseCase) audit(ctx context.Context, e auditEntry) {
	if uc.repo == nil {
		return
	}

	log := &repository.RequestLog{
		RequestID:  e.requestID,
		Operation:  e.operation,
		Success:    e.success,
		StatusCode: http.StatusOK,
		LatencyMs:  float64(uc.now().Sub(e.start).Microseconds()) / 1000,
		Message:    e.message,
		ImageSHA1:  e.imageHash,
		CreatedAt:  uc.now().UTC(),
	}
	if subject, ok := auth.GetSubject(ctx); ok {
		log.Subject = subject
	}
	if e.outcome != nil && e.err == nil {
		log.Success = e.outcome.Succeeded()
		log.Message = e.outcome.Text()
	}

	var statusErr *faceapi.StatusError
	switch {
	case errors.As(e.err, &statusErr):
		log.StatusCode = statusErr.StatusCode
		log.Message = statusErr.Error()
	case e.err != nil:
		log.StatusCode = 0
		log.Message = e.err.Error()
	}

	if err := uc.repo.SaveLog(ctx, log); err != nil {
		logging.WithOperation(uc.logger, "usecase.audit", e.requestID).Error("failed to persist request log", zap.Error(err))
	}
}

// clientFailure reports whether err is a backend 4xx. When it is, the
// backend's reply is decoded into out where it parses, and message is filled
// from the error when the reply carried none.
func clientFailure(err error, out any, message *string) bool {
	var statusErr *faceapi.StatusError
	if !errors.As(err, &statusErr) || !statusErr.IsClientError() {
		return false
	}
	_ = statusErr.Decode(out)
	if *message == "" {
		*message = statusErr.Message
	}
	if *message == "" {
		*message = http.StatusText(statusErr.StatusCode)
	}
	return true
}

func healthMessage(resp *faceapi.HealthResponse) string {
	if resp == nil {
		return ""
	}
	return resp.Status
}

func hashOf(parts ...string) string {
	h := sha1.New()
	for i, p := range parts {
		if i > 0 {
			h.Write([]byte{0})
		}
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}

package handlers

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/example/face-gateway/internal/faceapi"
	"github.com/example/face-gateway/internal/logging"
	"github.com/example/face-gateway/internal/middleware"
	"github.com/example/face-gateway/internal/usecase"
)

// MaxUploadSize is the default per-file upload limit.
const MaxUploadSize = 10 << 20

// multipartOverhead is the allowance for form fields and part headers on top
// of the file payloads themselves.
const multipartOverhead = 1 << 20

const (
	maxNameLength        = 100
	maxDescriptionLength = 500
)

// ErrorResponse is the body of every gateway-side failure.
type ErrorResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// Handler serves the face API on top of the use case.
type Handler struct {
	uc             *usecase.FaceUseCase
	logger         *zap.Logger
	maxUploadBytes int64
}

// NewHandler builds a Handler. A non-positive maxUploadBytes selects MaxUploadSize.
func NewHandler(uc *usecase.FaceUseCase, logger *zap.Logger, maxUploadBytes int64) *Handler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = MaxUploadSize
	}
	return &Handler{uc: uc, logger: logger.Named("handlers"), maxUploadBytes: maxUploadBytes}
}

// RegisterRoutes wires the HTTP handlers to the Gin router. authMiddleware,
// when given, guards everything under /api/v1.
func RegisterRoutes(router *gin.Engine, h *Handler, authMiddleware ...gin.HandlerFunc) {
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api/v1", authMiddleware...)
	api.GET("/metrics", h.metrics)
	api.GET("/requests/:requestId", h.requestLogs)

	face := api.Group("/face")
	face.GET("/health", h.health)
	face.POST("/register", h.register)
	face.POST("/register-file", h.registerFile)
	face.POST("/recognize", h.recognize)
	face.POST("/recognize-file", h.recognizeFile)
	face.POST("/compare", h.compare)
	face.POST("/compare-files", h.compareFiles)
	face.GET("/list", h.list)
	face.DELETE("/delete/:faceId", h.deleteFace)
	face.GET("/test", func(c *gin.Context) {
		c.String(http.StatusOK, "Face Recognition Controller is working!")
	})
}

func (h *Handler) health(c *gin.Context) {
	resp, err := h.uc.CheckHealth(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) register(c *gin.Context) {
	var req faceapi.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, bindMessage(err))
		return
	}

	resp, err := h.uc.RegisterFace(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, resp)
}

func (h *Handler) registerFile(c *gin.Context) {
	if !h.limitBody(c, 1) {
		return
	}

	name := strings.TrimSpace(c.PostForm("name"))
	if name == "" {
		h.badRequest(c, "name is required")
		return
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		h.badRequest(c, fmt.Sprintf("name must be at most %d characters", maxNameLength))
		return
	}
	description := c.PostForm("description")
	if utf8.RuneCountInString(description) > maxDescriptionLength {
		h.badRequest(c, fmt.Sprintf("description must be at most %d characters", maxDescriptionLength))
		return
	}

	image, ok := h.readUpload(c, "image")
	if !ok {
		return
	}

	resp, err := h.uc.RegisterFace(c.Request.Context(), faceapi.RegisterRequest{
		Name:        name,
		Image:       faceapi.EncodeImage(image),
		Description: description,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, resp)
}

func (h *Handler) recognize(c *gin.Context) {
	var req faceapi.RecognizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, bindMessage(err))
		return
	}

	resp, err := h.uc.RecognizeFace(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, resp)
}

func (h *Handler) recognizeFile(c *gin.Context) {
	if !h.limitBody(c, 1) {
		return
	}

	threshold, ok := h.formThreshold(c)
	if !ok {
		return
	}
	image, ok := h.readUpload(c, "image")
	if !ok {
		return
	}

	resp, err := h.uc.RecognizeFace(c.Request.Context(), faceapi.RecognizeRequest{
		Image:     faceapi.EncodeImage(image),
		Threshold: threshold,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, resp)
}

func (h *Handler) compare(c *gin.Context) {
	var req faceapi.CompareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, bindMessage(err))
		return
	}

	resp, err := h.uc.CompareFaces(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, resp)
}

func (h *Handler) compareFiles(c *gin.Context) {
	if !h.limitBody(c, 2) {
		return
	}

	threshold, ok := h.formThreshold(c)
	if !ok {
		return
	}
	image1, ok := h.readUpload(c, "image1")
	if !ok {
		return
	}
	image2, ok := h.readUpload(c, "image2")
	if !ok {
		return
	}

	resp, err := h.uc.CompareFaces(c.Request.Context(), faceapi.CompareRequest{
		Image1:    faceapi.EncodeImage(image1),
		Image2:    faceapi.EncodeImage(image2),
		Threshold: threshold,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, resp)
}

func (h *Handler) list(c *gin.Context) {
	resp, err := h.uc.ListRegisteredFaces(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, resp)
}

func (h *Handler) deleteFace(c *gin.Context) {
	faceID, err := strconv.ParseInt(c.Param("faceId"), 10, 64)
	if err != nil || faceID <= 0 {
		h.badRequest(c, "faceId must be a positive integer")
		return
	}

	resp, err := h.uc.DeleteFace(c.Request.Context(), faceID)
	if err != nil {
		h.fail(c, err)
		return
	}
	if !resp.Succeeded() {
		c.JSON(http.StatusNotFound, resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) metrics(c *gin.Context) {
	summary, err := h.uc.GetMetricsSummary(c.Request.Context())
	if errors.Is(err, usecase.ErrAuditDisabled) {
		c.JSON(http.StatusNotFound, ErrorResponse{Message: err.Error(), RequestID: middleware.GetRequestID(c)})
		return
	}
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *Handler) requestLogs(c *gin.Context) {
	requestID := strings.TrimSpace(c.Param("requestId"))
	logs, err := h.uc.RequestLogs(c.Request.Context(), requestID)
	if errors.Is(err, usecase.ErrAuditDisabled) || errors.Is(err, usecase.ErrRequestNotFound) {
		c.JSON(http.StatusNotFound, ErrorResponse{Message: err.Error(), RequestID: middleware.GetRequestID(c)})
		return
	}
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "request_id": requestID, "logs": logs})
}

// respond maps a backend outcome onto 200 or 400.
func respond(c *gin.Context, outcome faceapi.Outcome) {
	if outcome.Succeeded() {
		c.JSON(http.StatusOK, outcome)
		return
	}
	c.JSON(http.StatusBadRequest, outcome)
}

// fail maps a use case error onto a status code.
func (h *Handler) fail(c *gin.Context, err error) {
	requestID := middleware.GetRequestID(c)
	_ = c.Error(err)

	switch {
	case errors.Is(err, faceapi.ErrInvalidImage),
		errors.Is(err, usecase.ErrInvalidThreshold),
		errors.Is(err, usecase.ErrInvalidFaceID):
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: clientMessage(err), RequestID: requestID})
	default:
		fields := []zap.Field{zap.Error(err), zap.String("request_id", requestID)}
		if op, ok := logging.OperationOf(err); ok {
			fields = append(fields, zap.String("failed_operation", op))
		}
		h.logger.Error("face request failed", fields...)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Message: "face recognition service unavailable", RequestID: requestID})
	}
}

func (h *Handler) badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Message: message, RequestID: middleware.GetRequestID(c)})
}

// limitBody caps the body of a multipart upload carrying the given number
// of files and parses the form. On failure the response has already been
// written.
func (h *Handler) limitBody(c *gin.Context, files int64) bool {
	mediaType, _, err := mime.ParseMediaType(c.GetHeader("Content-Type"))
	if err != nil || mediaType != "multipart/form-data" {
		h.badRequest(c, "multipart/form-data body required")
		return false
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, files*h.maxUploadBytes+multipartOverhead)
	if _, err := c.MultipartForm(); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			h.tooLarge(c)
			return false
		}
		h.badRequest(c, "invalid multipart body")
		return false
	}
	return true
}

// readUpload returns the bytes of one uploaded image. On failure the
// response has already been written.
func (h *Handler) readUpload(c *gin.Context, field string) ([]byte, bool) {
	requestID := middleware.GetRequestID(c)

	file, err := c.FormFile(field)
	if err != nil {
		h.badRequest(c, field+" file is required")
		return nil, false
	}
	if file.Size > h.maxUploadBytes {
		h.tooLarge(c)
		return nil, false
	}

	declared := file.Header.Get("Content-Type")
	if declared != "" && !isImageType(declared) && !isGenericType(declared) {
		c.JSON(http.StatusUnsupportedMediaType, ErrorResponse{Message: field + " must be an image", RequestID: requestID})
		return nil, false
	}

	src, err := file.Open()
	if err != nil {
		h.badRequest(c, "unable to open "+field)
		return nil, false
	}
	defer src.Close()

	data, err := io.ReadAll(io.LimitReader(src, h.maxUploadBytes+1))
	if err != nil {
		h.badRequest(c, "failed to read "+field)
		return nil, false
	}
	if len(data) == 0 {
		h.badRequest(c, field+" file is empty")
		return nil, false
	}
	if int64(len(data)) > h.maxUploadBytes {
		h.tooLarge(c)
		return nil, false
	}
	if (declared == "" || isGenericType(declared)) && !isImageType(http.DetectContentType(data)) {
		c.JSON(http.StatusUnsupportedMediaType, ErrorResponse{Message: field + " must be an image", RequestID: requestID})
		return nil, false
	}
	return data, true
}

func (h *Handler) tooLarge(c *gin.Context) {
	c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{
		Message:   fmt.Sprintf("file exceeds the %d MB upload limit", h.maxUploadBytes>>20),
		RequestID: middleware.GetRequestID(c),
	})
}

// formThreshold parses the optional multipart threshold field. A nil result
// selects the use case default.
func (h *Handler) formThreshold(c *gin.Context) (*float64, bool) {
	raw := strings.TrimSpace(c.PostForm("threshold"))
	if raw == "" {
		return nil, true
	}
	threshold, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		h.badRequest(c, "threshold must be a number")
		return nil, false
	}
	return &threshold, true
}

func isImageType(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	return err == nil && strings.HasPrefix(mediaType, "image/")
}

func isGenericType(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	return err == nil && mediaType == "application/octet-stream"
}

func clientMessage(err error) string {
	switch {
	case errors.Is(err, usecase.ErrInvalidThreshold):
		return usecase.ErrInvalidThreshold.Error()
	case errors.Is(err, usecase.ErrInvalidFaceID):
		return usecase.ErrInvalidFaceID.Error()
	}
	var opErr *logging.OperationError
	if errors.As(err, &opErr) {
		return opErr.Err.Error()
	}
	return err.Error()
}

func bindMessage(err error) string {
	if errors.Is(err, io.EOF) {
		return "request body required"
	}
	return "invalid request: " + err.Error()
}

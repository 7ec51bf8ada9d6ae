package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/Brownie44l1/qualitycast/internal/logger"
	"github.com/Brownie44l1/qualitycast/internal/metrics"
	"github.com/Brownie44l1/qualitycast/internal/model"
	"github.com/Brownie44l1/qualitycast/internal/pipeline"
	"github.com/Brownie44l1/qualitycast/internal/preprocess"
	"github.com/Brownie44l1/qualitycast/internal/rank"
)

type Options struct {
	Title          string
	OKClass        string
	MaxUploadBytes int64
}

type Handler struct {
	pipeline *pipeline.Pipeline
	opts     Options
	pages    map[string]*template.Template
}

func NewHandler(p *pipeline.Pipeline, opts Options) (*Handler, error) {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 10 << 20
	}
	if opts.Title == "" {
		opts.Title = "QualityCast"
	}

	pages, err := parsePages()
	if err != nil {
		return nil, err
	}

	return &Handler{
		pipeline: p,
		opts:     opts,
		pages:    pages,
	}, nil
}

// Routes registers every endpoint behind the CORS and security header
// middleware.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/", h.Home)
	mux.HandleFunc("/history", h.HistoryPage)
	mux.HandleFunc("/how-to", h.HowTo)
	mux.HandleFunc("/about", h.About)

	mux.HandleFunc("/health", h.Health)
	mux.HandleFunc("/predict", h.Predict)
	mux.HandleFunc("/predict/image", h.PredictFromImage)
	mux.HandleFunc("/api/history", h.History)
	mux.Handle("/metrics", metrics.Handler())

	return securityHeaders(enableCORS(mux))
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "healthy",
		"classes": h.pipeline.Labels(),
	})
}

// Predict classifies a raw, already preprocessed input tensor.
func (h *Handler) Predict(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.opts.MaxUploadBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read request body")
		return
	}

	var req model.PredictionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	expectedSize := h.pipeline.Metadata().InputSize()
	if len(req.Image) != expectedSize {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Expected %d values, got %d", expectedSize, len(req.Image)))
		return
	}

	out, err := h.pipeline.ClassifyTensor(r.Context(), req.Image)
	if err != nil {
		logger.Error("Prediction failed", zap.Error(err))
		writeError(w, statusFor(err), "Prediction failed")
		return
	}

	writeJSON(w, http.StatusOK, toResponse(out))
}

// PredictFromImage classifies a multipart upload in the "image" field and
// records it in the history log.
func (h *Handler) PredictFromImage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	filename, data, err := h.readUpload(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	out, err := h.pipeline.Classify(r.Context(), filename, data)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusBadRequest {
			writeError(w, status, "Invalid image format. Supported: JPEG, PNG")
			return
		}
		logger.Error("Classification failed", zap.String("filename", filename), zap.Error(err))
		writeError(w, status, "Classification failed")
		return
	}

	writeJSON(w, http.StatusOK, toResponse(out))
}

func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	records, err := h.pipeline.History().List(r.Context())
	if err != nil {
		logger.Error("Failed to read history", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to read history")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"count":   len(records),
		"history": records,
	})
}

func (h *Handler) readUpload(w http.ResponseWriter, r *http.Request) (string, []byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(h.opts.MaxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return "", nil, uploadError(fmt.Sprintf("Upload exceeds %d bytes", h.opts.MaxUploadBytes))
		}
		return "", nil, uploadError("Failed to parse form")
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		return "", nil, uploadError("No image file provided. Use 'image' as the form field name")
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return "", nil, uploadError("Failed to read uploaded file")
	}

	logger.Debug("Received file", zap.String("filename", header.Filename), zap.Int64("size", header.Size))
	return header.Filename, data, nil
}

// uploadError messages are shown to the user as is.
type uploadError string

func (e uploadError) Error() string {
	return string(e)
}

func toResponse(out *pipeline.Outcome) model.PredictionResponse {
	preds := make([]model.ClassScore, len(out.Ranked))
	for i, s := range out.Ranked {
		preds[i] = model.ClassScore{
			Class:      s.Class,
			Confidence: s.Score,
			Percent:    rank.FormatPercent(s.Score),
		}
	}
	return model.PredictionResponse{
		ID:          out.ID,
		Filename:    out.Filename,
		Class:       out.Top.Class,
		Confidence:  out.Top.Score,
		Complement:  out.Complement,
		Predictions: preds,
		Percentages: rank.Percentages(out.Ranked),
		Cached:      out.Cached,
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, preprocess.ErrDecode):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("Failed to encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

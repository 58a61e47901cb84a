package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"sort"

	"github.com/google/uuid"

	"github.com/Brownie44l1/xray-api/internal/history"
	"github.com/Brownie44l1/xray-api/internal/model"
	"github.com/Brownie44l1/xray-api/internal/service"
)

// Predictor is the part of service.Service the handlers call.
type Predictor interface {
	Predict(ctx context.Context, userID, fileName string, data []byte) (*service.Prediction, error)
	PredictURL(ctx context.Context, userID, imageURL string) (*service.Prediction, error)
	History(ctx context.Context, userID string) ([]service.HistoryEntry, error)
}

type Handler struct {
	predictor Predictor
	maxUpload int64
}

func NewHandler(predictor Predictor, maxUpload int64) *Handler {
	if maxUpload <= 0 {
		maxUpload = 10 << 20
	}
	return &Handler{
		predictor: predictor,
		maxUpload: maxUpload,
	}
}

// Routes registers every endpoint on mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("POST /predict/{uid}", h.Predict)
	mux.HandleFunc("POST /predict/url/{uid}", h.PredictURL)
	mux.HandleFunc("GET /predict/history/{uid}", h.History)
}

type statusBody struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

type predictionBody struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	*service.Prediction
}

type historyBody struct {
	Status  string                 `json:"status"`
	Message string                 `json:"message"`
	Data    []service.HistoryEntry `json:"data"`
}

func respondJSON(w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Warn("writing response", "error", err)
	}
}

func respondFailed(w http.ResponseWriter, message string, status int) {
	respondJSON(w, statusBody{Status: "Failed", Message: message}, status)
}

func (h *Handler) respondError(w http.ResponseWriter, log *slog.Logger, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		respondFailed(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, history.ErrNotFound):
		respondFailed(w, "User tidak ada dalam database", http.StatusNotFound)
	default:
		log.Error("request failed", "kind", model.KindOf(err), "error", err)
		respondJSON(w, statusBody{
			Status:  "Failed",
			Message: "An internal server error occurred",
			Error:   err.Error(),
		}, http.StatusInternalServerError)
	}
}

func requestLogger(r *http.Request) *slog.Logger {
	return slog.With("request_id", uuid.NewString(), "path", r.URL.Path)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "healthy"}, http.StatusOK)
}

// firstFile picks the upload to classify: the "image" or "file" field if
// present, otherwise the first field by name.
func firstFile(form *multipart.Form) *multipart.FileHeader {
	if form == nil || len(form.File) == 0 {
		return nil
	}
	for _, name := range []string{"image", "file"} {
		if fhs := form.File[name]; len(fhs) > 0 {
			return fhs[0]
		}
	}
	names := make([]string, 0, len(form.File))
	for name := range form.File {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if fhs := form.File[name]; len(fhs) > 0 {
			return fhs[0]
		}
	}
	return nil
}

func (h *Handler) Predict(w http.ResponseWriter, r *http.Request) {
	log := requestLogger(r)
	uid := r.PathValue("uid")

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		respondFailed(w, "Failed to parse form", http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	header := firstFile(r.MultipartForm)
	if header == nil {
		respondFailed(w, "Tidak ada file yang ditambahkan", http.StatusBadRequest)
		return
	}
	file, err := header.Open()
	if err != nil {
		respondFailed(w, "Failed to read file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		respondFailed(w, "Failed to read file", http.StatusBadRequest)
		return
	}

	log.Info("received file", "uid", uid, "name", header.Filename, "size", len(data))

	pred, err := h.predictor.Predict(r.Context(), uid, header.Filename, data)
	if err != nil {
		h.respondError(w, log, err)
		return
	}

	log.Info("prediction done", "uid", uid, "class", pred.Class, "percentage", pred.MaxLabel.Percentage)
	respondJSON(w, predictionBody{
		Status:     "Success",
		Message:    "Deteksi penyakit berhasil",
		Prediction: pred,
	}, http.StatusOK)
}

type predictURLRequest struct {
	ImageURL string `json:"image_url"`
}

func (h *Handler) PredictURL(w http.ResponseWriter, r *http.Request) {
	log := requestLogger(r)
	uid := r.PathValue("uid")

	var req predictURLRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		respondFailed(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	pred, err := h.predictor.PredictURL(r.Context(), uid, req.ImageURL)
	if err != nil {
		h.respondError(w, log, err)
		return
	}

	log.Info("prediction done", "uid", uid, "class", pred.Class, "url", req.ImageURL)
	respondJSON(w, predictionBody{
		Status:     "Success",
		Message:    "Deteksi penyakit berhasil",
		Prediction: pred,
	}, http.StatusOK)
}

func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	log := requestLogger(r)

	entries, err := h.predictor.History(r.Context(), r.PathValue("uid"))
	if err != nil {
		h.respondError(w, log, err)
		return
	}
	respondJSON(w, historyBody{
		Status:  "Success",
		Message: "History prediksi xray telah didapat",
		Data:    entries,
	}, http.StatusOK)
}

// EnableCORS allows browser clients from any origin.
func EnableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

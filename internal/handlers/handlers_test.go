package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Brownie44l1/xray-api/internal/history"
	"github.com/Brownie44l1/xray-api/internal/model"
	"github.com/Brownie44l1/xray-api/internal/service"
)

type mockPredictor struct {
	err error

	userID   string
	fileName string
	data     []byte
	url      string
}

func (m *mockPredictor) prediction(img string) *service.Prediction {
	return &service.Prediction{
		DetectionImg: img,
		Class:        model.LabelNormal,
		Predictions:  map[model.Label]string{model.LabelNormal: "90.0%"},
		MaxLabel:     service.MaxLabel{Label: model.LabelNormal, Percentage: "90.0%"},
		Created:      "06/01/2024, 02:30:15 PM",
	}
}

func (m *mockPredictor) Predict(_ context.Context, userID, fileName string, data []byte) (*service.Prediction, error) {
	m.userID, m.fileName, m.data = userID, fileName, data
	if m.err != nil {
		return nil, m.err
	}
	return m.prediction("https://cdn/" + fileName), nil
}

func (m *mockPredictor) PredictURL(_ context.Context, userID, imageURL string) (*service.Prediction, error) {
	m.userID, m.url = userID, imageURL
	if m.err != nil {
		return nil, m.err
	}
	return m.prediction(imageURL), nil
}

func (m *mockPredictor) History(_ context.Context, userID string) ([]service.HistoryEntry, error) {
	m.userID = userID
	if m.err != nil {
		return nil, m.err
	}
	return []service.HistoryEntry{{Type: history.TypeChestXRay, Datetime: "01 June, 2024 at 14:30:15", PredictedClass: model.LabelMass}}, nil
}

func newServer(p Predictor) http.Handler {
	mux := http.NewServeMux()
	NewHandler(p, 1<<20).Routes(mux)
	return EnableCORS(mux)
}

func multipartBody(t *testing.T, field, name string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	if field != "" {
		part, err := w.CreateFormFile(field, name)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, w.WriteField("note", "hello"))
	require.NoError(t, w.Close())
	return body, w.FormDataContentType()
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestPredict(t *testing.T) {
	p := &mockPredictor{}
	body, ct := multipartBody(t, "xray", "chest.jpg", []byte("jpeg bytes"))
	req := httptest.NewRequest(http.MethodPost, "/predict/user-42", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()

	newServer(p).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "user-42", p.userID)
	assert.Equal(t, "chest.jpg", p.fileName)
	assert.Equal(t, []byte("jpeg bytes"), p.data)

	out := decode(t, rec)
	assert.Equal(t, "Success", out["status"])
	assert.Equal(t, "Normal", out["class"])
	assert.Equal(t, "https://cdn/chest.jpg", out["detection_img"])
	assert.Equal(t, map[string]any{"label": "Normal", "percentage": "90.0%"}, out["maxLabel"])
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestPredict_NoFile(t *testing.T) {
	body, ct := multipartBody(t, "", "", nil)
	req := httptest.NewRequest(http.MethodPost, "/predict/u", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()

	newServer(&mockPredictor{}).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Failed", decode(t, rec)["status"])
}

func TestPredict_NotMultipart(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/predict/u", strings.NewReader("{}"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	newServer(&mockPredictor{}).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPredict_PipelineError(t *testing.T) {
	p := &mockPredictor{err: model.WithStage(model.Errorf(model.ErrDecode, "bad bytes"), model.StageDecoding, model.ErrDecode)}
	body, ct := multipartBody(t, "image", "a.png", []byte("x"))
	req := httptest.NewRequest(http.MethodPost, "/predict/u", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()

	newServer(p).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	out := decode(t, rec)
	assert.Equal(t, "Failed", out["status"])
	assert.Equal(t, "An internal server error occurred", out["message"])
	assert.Contains(t, out["error"], "bad bytes")
}

func TestPredictURL(t *testing.T) {
	p := &mockPredictor{}
	req := httptest.NewRequest(http.MethodPost, "/predict/url/u7", strings.NewReader(`{"image_url":"https://cdn/a.jpg"}`))
	rec := httptest.NewRecorder()

	newServer(p).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "u7", p.userID)
	assert.Equal(t, "https://cdn/a.jpg", p.url)

	rec = httptest.NewRecorder()
	newServer(p).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/predict/url/u7", strings.NewReader("nope")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	p.err = fmt.Errorf("%w: user id and image url are required", service.ErrInvalidInput)
	rec = httptest.NewRecorder()
	newServer(p).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/predict/url/u7", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHistory(t *testing.T) {
	p := &mockPredictor{}
	rec := httptest.NewRecorder()
	newServer(p).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/predict/history/u9", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "u9", p.userID)
	out := decode(t, rec)
	assert.Equal(t, "Success", out["status"])
	require.Len(t, out["data"], 1)

	p.err = fmt.Errorf("list: %w", history.ErrNotFound)
	rec = httptest.NewRecorder()
	newServer(p).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/predict/history/u9", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	p.err = errors.New("redis timeout")
	rec = httptest.NewRecorder()
	newServer(p).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/predict/history/u9", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHealthAndPreflight(t *testing.T) {
	srv := newServer(&mockPredictor{})

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decode(t, rec)["status"])

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/predict/u", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "POST, GET, OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))
}

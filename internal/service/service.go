// Package service ties the inference pipeline to storage and history.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/google/uuid"
	retry "github.com/sethvargo/go-retry"

	"github.com/Brownie44l1/xray-api/internal/diagnosis"
	"github.com/Brownie44l1/xray-api/internal/history"
	"github.com/Brownie44l1/xray-api/internal/imaging"
	"github.com/Brownie44l1/xray-api/internal/model"
	"github.com/Brownie44l1/xray-api/internal/storage"
)

const (
	createdLayout = "01/02/2006, 03:04:05 PM"
	historyLayout = "02 January, 2006 at 15:04:05"
)

var ErrInvalidInput = errors.New("invalid input")

// Classifier runs the inference pipeline.
type Classifier interface {
	Run(ctx context.Context, src imaging.Source, modelPath string) (*model.Result, error)
}

type Options struct {
	ModelPath string
	Location  *time.Location
	// Retries for storage and history calls; the pipeline itself is never retried.
	Retries   uint64
	RetryBase time.Duration
	// Client used for URL sources.
	HTTPClient *http.Client
	TempDir    string
	Now        func() time.Time
	// MaxDownload caps the size of an image fetched from a URL.
	MaxDownload int64
}

type Service struct {
	classifier Classifier
	store      storage.Store
	history    history.Store
	opts       Options
}

func New(classifier Classifier, store storage.Store, hist history.Store, opts Options) *Service {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.RetryBase <= 0 {
		opts.RetryBase = 200 * time.Millisecond
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{classifier: classifier, store: store, history: hist, opts: opts}
}

type MaxLabel struct {
	Label      model.Label `json:"label"`
	Percentage string      `json:"percentage"`
}

type Prediction struct {
	DetectionImg   string                   `json:"detection_img"`
	Class          model.Label              `json:"class"`
	Predictions    map[model.Label]string   `json:"predictions"`
	MaxLabel       MaxLabel                 `json:"maxLabel"`
	Created        string                   `json:"created"`
	AdditionalInfo diagnosis.Info           `json:"additionalInfo"`
	Recommendation diagnosis.Recommendation `json:"recommendation"`
}

type HistoryEntry struct {
	Type           string      `json:"type"`
	Datetime       string      `json:"datetime"`
	PredictedClass model.Label `json:"predicted_class"`
	DetectionImg   string      `json:"detection_img"`
}

// Predict classifies the upload and, once it succeeds, publishes the image
// and records the result.
func (s *Service) Predict(ctx context.Context, userID, fileName string, data []byte) (*Prediction, error) {
	if userID == "" || len(data) == 0 {
		return nil, fmt.Errorf("%w: user id and image are required", ErrInvalidInput)
	}

	result, err := s.classifier.Run(ctx, imaging.Bytes(data), s.opts.ModelPath)
	if err != nil {
		return nil, err
	}

	var url string
	err = s.retry(ctx, "store image", func(ctx context.Context) error {
		var err error
		url, err = s.store.Put(ctx, data, fileName)
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.record(ctx, userID, url, result)
}

// PredictURL classifies an image that is already published at imageURL.
func (s *Service) PredictURL(ctx context.Context, userID, imageURL string) (*Prediction, error) {
	if userID == "" || imageURL == "" {
		return nil, fmt.Errorf("%w: user id and image url are required", ErrInvalidInput)
	}
	src := imaging.URL{
		URL:      imageURL,
		Client:   s.opts.HTTPClient,
		TempDir:  s.opts.TempDir,
		MaxBytes: s.opts.MaxDownload,
	}
	result, err := s.classifier.Run(ctx, src, s.opts.ModelPath)
	if err != nil {
		return nil, err
	}
	return s.record(ctx, userID, imageURL, result)
}

func (s *Service) record(ctx context.Context, userID, imageURL string, result *model.Result) (*Prediction, error) {
	now := s.opts.Now().In(s.opts.Location)
	rec := history.Record{
		ID:             uuid.NewString(),
		Type:           history.TypeChestXRay,
		Timestamp:      now,
		PredictedClass: result.PredictedClass,
		ImageURL:       imageURL,
	}
	err := s.retry(ctx, "append history", func(ctx context.Context) error {
		return s.history.Append(ctx, userID, rec)
	})
	if err != nil {
		return nil, err
	}

	info, _ := diagnosis.Lookup(result.PredictedClass)
	return &Prediction{
		DetectionImg: imageURL,
		Class:        result.PredictedClass,
		Predictions:  result.Percentages,
		MaxLabel: MaxLabel{
			Label:      result.TopLabel,
			Percentage: result.TopPercentage,
		},
		Created:        now.Format(createdLayout),
		AdditionalInfo: info,
		Recommendation: diagnosis.DefaultRecommendation(),
	}, nil
}

// History lists a user's predictions, newest first.
func (s *Service) History(ctx context.Context, userID string) ([]HistoryEntry, error) {
	recs, err := s.history.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	slices.Reverse(recs)

	entries := make([]HistoryEntry, len(recs))
	for i, rec := range recs {
		entries[i] = HistoryEntry{
			Type:           rec.Type,
			Datetime:       rec.Timestamp.In(s.opts.Location).Format(historyLayout),
			PredictedClass: rec.PredictedClass,
			DetectionImg:   rec.ImageURL,
		}
	}
	return entries, nil
}

func (s *Service) retry(ctx context.Context, op string, fn func(context.Context) error) error {
	b := retry.WithMaxRetries(s.opts.Retries, retry.NewExponential(s.opts.RetryBase))
	attempt := 0
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		attempt++
		if err := fn(ctx); err != nil {
			slog.Warn("operation failed", "op", op, "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Package pipeline runs one radiograph through decode, model load,
// inference and result mapping.
package pipeline

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/Brownie44l1/xray-api/internal/imaging"
	"github.com/Brownie44l1/xray-api/internal/model"
)

// ModelLoader returns a loaded model for an artifact path.
type ModelLoader interface {
	Load(path string) (*model.Handle, error)
}

type Pipeline struct {
	models ModelLoader
}

func New(models ModelLoader) *Pipeline {
	return &Pipeline{models: models}
}

// Run classifies the image behind src with the model at modelPath. Stages
// run strictly in order and the first failure is returned as a
// *model.Error naming its stage.
func (p *Pipeline) Run(ctx context.Context, src imaging.Source, modelPath string) (*model.Result, error) {
	start := time.Now()

	var tensor *model.Tensor
	err := src.Fetch(ctx, func(r io.Reader) error {
		t, err := imaging.DecodeReader(r)
		if err != nil {
			return model.WithStage(err, model.StageDecoding, model.ErrDecode)
		}
		tensor = t
		return nil
	})
	if err != nil {
		return nil, model.WithStage(err, model.StageFetching, model.ErrDecode)
	}
	decoded := time.Now()

	handle, err := p.models.Load(modelPath)
	if err != nil {
		return nil, model.WithStage(err, model.StageLoadingModel, model.ErrArtifactInvalid)
	}

	vec, err := model.Infer(handle, tensor)
	if err != nil {
		return nil, model.WithStage(err, model.StageInferring, model.ErrInference)
	}
	inferred := time.Now()

	result, err := model.MapResult(vec, handle.Labels())
	if err != nil {
		return nil, model.WithStage(err, model.StageMapping, model.ErrLengthMismatch)
	}

	slog.Debug("prediction done",
		"class", result.PredictedClass,
		"decode", decoded.Sub(start),
		"inference", inferred.Sub(decoded),
		"total", time.Since(start))
	return result, nil
}

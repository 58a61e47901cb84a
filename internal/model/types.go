package model

// Label is one of the diagnostic classes the classifier can output.
type Label string

const (
	LabelMass         Label = "Mass"
	LabelNodule       Label = "Nodule"
	LabelNormal       Label = "Normal"
	LabelPneumonia    Label = "Pneumonia"
	LabelTuberculosis Label = "Tuberculosis"
)

// Labels is the output ordering of the chest X-ray model. Index i of the
// probability vector belongs to Labels[i].
var Labels = []Label{LabelMass, LabelNodule, LabelNormal, LabelPneumonia, LabelTuberculosis}

const (
	ImageSize = 224
	Channels  = 3
)

// InputShape is the batched NHWC shape the model consumes.
var InputShape = []int64{1, ImageSize, ImageSize, Channels}

// Tensor is a dense float32 array in row-major order.
type Tensor struct {
	Shape []int64
	Data  []float32
}

// ProbabilityVector holds one raw model output per label.
type ProbabilityVector []float64

// Result is a labeled prediction.
type Result struct {
	PredictedClass Label            `json:"class"`
	Percentages    map[Label]string `json:"predictions"`
	TopLabel       Label            `json:"label"`
	TopPercentage  string           `json:"percentage"`
}

func shapeEqual(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func shapeSize(s []int64) int64 {
	n := int64(1)
	for _, d := range s {
		n *= d
	}
	return n
}

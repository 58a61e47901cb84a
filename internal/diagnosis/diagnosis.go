// Package diagnosis holds the fixed patient-facing text shown next to a
// prediction.
package diagnosis

import (
	"fmt"

	"github.com/Brownie44l1/xray-api/internal/model"
)

type Info struct {
	Description string   `json:"description"`
	Symptoms    []string `json:"symptoms"`
	NextSteps   []string `json:"nextSteps"`
}

type Recommendation struct {
	Action  string `json:"action"`
	Message string `json:"message"`
}

var specialistSteps = []string{
	"Konsultasikan dengan spesialis untuk evaluasi lebih lanjut",
	"Tambahan tes mungkin diperlukan",
	"Ikuti rencana perawatan yang direkomendasikan",
}

var table = map[model.Label]Info{
	model.LabelNormal: {
		Description: "Kondisi normal tanpa adanya kelainan pada paru-paru.",
		Symptoms:    []string{},
		NextSteps:   []string{},
	},
	model.LabelMass: {
		Description: "Adanya massa atau tumor di paru-paru, yang bisa bersifat jinak atau ganas.",
		Symptoms:    []string{"Batuk", "Sesak napas", "Nyeri dada"},
		NextSteps:   specialistSteps,
	},
	model.LabelNodule: {
		Description: "Adanya pertumbuhan atau benjolan kecil yang tidak normal di paru-paru, yang bisa bersifat jinak atau ganas.",
		Symptoms:    []string{"Batuk", "Sesak napas", "Nyeri dada"},
		NextSteps:   specialistSteps,
	},
	model.LabelPneumonia: {
		Description: "Infeksi pada satu atau kedua paru-paru, yang bisa menyebabkan peradangan dan gejala pernapasan.",
		Symptoms:    []string{"Demam", "Batuk", "Sesak napas", "Nyeri dada"},
		NextSteps: []string{
			"Cari perhatian medis untuk diagnosis dan pengobatan",
			"Konsumsi obat yang diresepkan",
			"Istirahat yang cukup dan tetap terhidrasi",
		},
	},
	model.LabelTuberculosis: {
		Description: "Infeksi bakteri yang terutama mempengaruhi paru-paru, tetapi juga dapat mempengaruhi bagian tubuh lainnya.",
		Symptoms:    []string{"Batuk yang tidak kunjung sembuh", "Nyeri dada", "Kelelahan", "Demam", "Penurunan berat badan"},
		NextSteps: []string{
			"Cari perhatian medis untuk diagnosis dan pengobatan",
			"Ikuti jadwal pengobatan yang diresepkan",
			"Ambil tindakan pencegahan untuk mencegah penyebaran infeksi kepada orang lain",
		},
	},
}

var recommendation = Recommendation{
	Action:  "Mohon segera lakukan konsultasi dengan dokter spesialis",
	Message: "null",
}

// Lookup returns a copy of the entry for label.
func Lookup(label model.Label) (Info, bool) {
	info, ok := table[label]
	if !ok {
		return Info{}, false
	}
	return Info{
		Description: info.Description,
		Symptoms:    append([]string{}, info.Symptoms...),
		NextSteps:   append([]string{}, info.NextSteps...),
	}, true
}

func DefaultRecommendation() Recommendation {
	return recommendation
}

// Validate fails if any label has no entry.
func Validate(labels []model.Label) error {
	for _, l := range labels {
		if _, ok := table[l]; !ok {
			return fmt.Errorf("no diagnosis info for label %q", l)
		}
	}
	return nil
}

package pipeline

import (
	"strings"
	"sync"

	"github.com/jaypipes/ghw"
)

// GPUReport describes the graphics cards visible to the process.
type GPUReport struct {
	Found bool     `json:"found"`
	Cards []string `json:"cards,omitempty"`
	Error string   `json:"error,omitempty"`
}

var (
	gpuOnce   sync.Once
	gpuReport GPUReport
)

// CheckGPU inspects the host once and caches the result.
// It does not mutate state and is safe to call at any time.
func CheckGPU() GPUReport {
	gpuOnce.Do(func() { gpuReport = probeGPU() })
	return gpuReport
}

func probeGPU() GPUReport {
	info, err := ghw.GPU()
	if err != nil {
		return GPUReport{Error: err.Error()}
	}
	var r GPUReport
	for _, card := range info.GraphicsCards {
		if card == nil || card.DeviceInfo == nil {
			continue
		}
		var parts []string
		if v := card.DeviceInfo.Vendor; v != nil {
			parts = append(parts, v.Name)
		}
		if p := card.DeviceInfo.Product; p != nil {
			parts = append(parts, p.Name)
		}
		r.Cards = append(r.Cards, strings.TrimSpace(strings.Join(parts, " ")))
	}
	r.Found = len(r.Cards) > 0
	if !r.Found {
		r.Error = "no graphics cards found"
	}
	return r
}

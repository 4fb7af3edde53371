package pipeline

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"

	"diffusiond/internal/payload"
)

// Messages exchanged with a runtime worker. The HTTP and gRPC transports
// share them; gRPC carries them with the JSON codec.

type loadResponse struct {
	ID string `json:"id"`
}

type placeRequest struct {
	ID     string `json:"id,omitempty"`
	Device Device `json:"device"`
}

type loraRequest struct {
	ID   string `json:"id,omitempty"`
	Path string `json:"path"`
}

type generateRequest struct {
	ID     string         `json:"id,omitempty"`
	Kwargs payload.Params `json:"kwargs"`
}

type wireImage struct {
	Format string `json:"format"`
	B64    string `json:"b64"`
}

type generateResponse struct {
	Images []wireImage `json:"images"`
}

type releaseRequest struct {
	ID string `json:"id"`
}

type empty struct{}

// decodeImages turns worker images into image.Image values. PNG and JPEG are accepted.
func decodeImages(in []wireImage) ([]image.Image, error) {
	out := make([]image.Image, 0, len(in))
	for i, wi := range in {
		b, err := base64.StdEncoding.DecodeString(wi.B64)
		if err != nil {
			return nil, fmt.Errorf("image %d: base64: %w", i, err)
		}
		img, _, err := image.Decode(bytes.NewReader(b))
		if err != nil {
			return nil, fmt.Errorf("image %d (%s): %w", i, wi.Format, err)
		}
		out = append(out, img)
	}
	return out, nil
}

package pipeline

import (
	"context"
	"image"

	"diffusiond/internal/payload"
)

// Invoke calls p with params and returns the first image. Pipeline errors are
// returned unwrapped. No timeout is applied here.
func Invoke(ctx context.Context, p Pipeline, params payload.Params) (image.Image, error) {
	imgs, err := p.Generate(ctx, params)
	if err != nil {
		return nil, err
	}
	if len(imgs) == 0 || imgs[0] == nil {
		return nil, ErrNoImages
	}
	return imgs[0], nil
}

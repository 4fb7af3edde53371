package model

import (
	"bytes"
	"encoding/base64"
	"errors"
	"image"
	"image/png"

	"diffusiond/pkg/types"
)

// ImageFormat is the only format produced by EncodeImage.
const ImageFormat = "PNG"

// EncodeImage PNG-encodes img in memory and returns it base64 encoded.
func EncodeImage(img image.Image) (types.EncodedImage, error) {
	if img == nil {
		return types.EncodedImage{}, errors.New("encode: nil image")
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return types.EncodedImage{}, err
	}
	return types.EncodedImage{
		Format: ImageFormat,
		B64:    base64.StdEncoding.EncodeToString(buf.Bytes()),
	}, nil
}

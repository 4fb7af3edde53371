package payload

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
)

// Kind discriminates the Payload cases.
type Kind int

const (
	// KindInvalid is anything that is not a JSON object.
	KindInvalid Kind = iota
	// KindV1 is a JSON object sent to the v1 predict route.
	KindV1
	// KindV2 is a structured, versioned inference request.
	KindV2
)

func (k Kind) String() string {
	switch k {
	case KindV1:
		return "v1"
	case KindV2:
		return "v2"
	default:
		return "invalid"
	}
}

// RequestTypeHeader is set on the request headers once the shape is known.
const RequestTypeHeader = "Request-Type"

// Payload is the inbound request body, classified.
type Payload struct {
	Kind Kind
	// Object is set for KindV1.
	Object map[string]any
	// Raw holds the undecoded body for KindV2 and KindInvalid.
	Raw []byte
}

// V1 wraps an already-decoded object.
func V1(obj map[string]any) Payload { return Payload{Kind: KindV1, Object: obj} }

// DecodeV1 classifies a body received on the v1 route.
// Numbers are kept as json.Number so integer arguments are not widened to float.
func DecodeV1(body []byte) Payload {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return Payload{Kind: KindInvalid, Raw: body}
	}
	if dec.More() {
		return Payload{Kind: KindInvalid, Raw: body}
	}
	obj, ok := v.(map[string]any)
	if !ok || obj == nil {
		return Payload{Kind: KindInvalid, Raw: body}
	}
	return V1(obj)
}

// DecodeV2 classifies a body received on the v2 infer route.
func DecodeV2(body []byte) Payload { return Payload{Kind: KindV2, Raw: body} }

// Preprocess validates p and returns the normalized parameters of the first
// instance. headers may be nil.
func Preprocess(p Payload, headers http.Header) (Params, error) {
	switch p.Kind {
	case KindV2:
		return nil, ErrUnsupportedProtocol
	case KindV1:
	default:
		return nil, ErrInvalidPayload
	}
	raw, ok := p.Object["instances"]
	if !ok {
		return nil, ErrInvalidPayload
	}
	instances, ok := raw.([]any)
	if !ok || len(instances) == 0 {
		return nil, fmt.Errorf("%w: instances must be a non-empty list", ErrInvalidPayload)
	}
	first, ok := instances[0].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: instances[0] must be an object", ErrInvalidPayload)
	}
	if headers != nil {
		headers.Set(RequestTypeHeader, KindV1.String())
	}
	return Params(Normalize(first).(map[string]any)), nil
}

package payload

import (
	"encoding/json"
	"iter"
)

// Tuple is an immutable ordered sequence. The zero value is empty.
type Tuple struct {
	items []any
}

// NewTuple copies vs into a Tuple.
func NewTuple(vs ...any) Tuple {
	if len(vs) == 0 {
		return Tuple{}
	}
	return Tuple{items: append([]any(nil), vs...)}
}

// Len returns the number of elements.
func (t Tuple) Len() int { return len(t.items) }

// At returns element i. It panics when i is out of range, like a slice index.
func (t Tuple) At(i int) any { return t.items[i] }

// Values returns a copy of the elements.
func (t Tuple) Values() []any { return append([]any(nil), t.items...) }

// All iterates over index/value pairs.
func (t Tuple) All() iter.Seq2[int, any] {
	return func(yield func(int, any) bool) {
		for i, v := range t.items {
			if !yield(i, v) {
				return
			}
		}
	}
}

// MarshalJSON encodes the tuple as a JSON array.
func (t Tuple) MarshalJSON() ([]byte, error) {
	if t.items == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(t.items)
}

// Normalize returns a deep copy of v in which every list node is a Tuple.
// Maps keep their structure, scalars pass through. v is not modified.
func Normalize(v any) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = Normalize(e)
		}
		return out
	case []any:
		items := make([]any, len(x))
		for i, e := range x {
			items[i] = Normalize(e)
		}
		return Tuple{items: items}
	case Tuple:
		items := make([]any, len(x.items))
		for i, e := range x.items {
			items[i] = Normalize(e)
		}
		return Tuple{items: items}
	default:
		return v
	}
}

// Params are the keyword arguments forwarded to the pipeline.
type Params map[string]any

// Prompt returns the "prompt" argument when it is a string.
func (p Params) Prompt() (string, bool) {
	s, ok := p["prompt"].(string)
	return s, ok
}

package payload

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestNormalizeNestedLists(t *testing.T) {
	params, err := Preprocess(DecodeV1([]byte(`{"instances":[{"prompt":"x","negative_prompt_embeds":[[1,2],[3,4]]}]}`)), nil)
	if err != nil {
		t.Fatalf("preprocess: %v", err)
	}
	outer, ok := params["negative_prompt_embeds"].(Tuple)
	if !ok {
		t.Fatalf("outer is %T", params["negative_prompt_embeds"])
	}
	if outer.Len() != 2 {
		t.Fatalf("outer len=%d", outer.Len())
	}
	want := [][]string{{"1", "2"}, {"3", "4"}}
	for i, row := range outer.All() {
		inner, ok := row.(Tuple)
		if !ok {
			t.Fatalf("row %d is %T", i, row)
		}
		for j, v := range inner.Values() {
			if v.(json.Number).String() != want[i][j] {
				t.Fatalf("[%d][%d]=%v", i, j, v)
			}
		}
	}
}

func TestNormalizeListsInsideMaps(t *testing.T) {
	in := map[string]any{
		"a": map[string]any{"b": []any{"x", map[string]any{"c": []any{1, 2, 3}}}},
		"s": "keep",
		"n": 7,
	}
	out := Normalize(in).(map[string]any)
	b := out["a"].(map[string]any)["b"].(Tuple)
	if b.Len() != 2 || b.At(0) != "x" {
		t.Fatalf("b = %#v", b)
	}
	c := b.At(1).(map[string]any)["c"].(Tuple)
	if !reflect.DeepEqual(c.Values(), []any{1, 2, 3}) {
		t.Fatalf("c = %v", c.Values())
	}
	if out["s"] != "keep" || out["n"] != 7 {
		t.Fatalf("scalars changed: %v", out)
	}
	// input untouched
	if _, ok := in["a"].(map[string]any)["b"].([]any); !ok {
		t.Fatalf("input mutated")
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	in := map[string]any{"l": []any{[]any{}, []any{"a"}}}
	once := Normalize(in)
	twice := Normalize(once)
	a, _ := json.Marshal(once)
	b, _ := json.Marshal(twice)
	if string(a) != string(b) || string(a) != `{"l":[[],["a"]]}` {
		t.Fatalf("once=%s twice=%s", a, b)
	}
}

func TestTupleIsImmutable(t *testing.T) {
	src := []any{1, 2}
	tp := NewTuple(src...)
	src[0] = 99
	vals := tp.Values()
	vals[1] = 42
	if tp.At(0) != 1 || tp.At(1) != 2 {
		t.Fatalf("tuple changed: %v", tp.Values())
	}
	if (Tuple{}).Len() != 0 {
		t.Fatalf("zero tuple not empty")
	}
	b, err := json.Marshal(Tuple{})
	if err != nil || string(b) != "[]" {
		t.Fatalf("empty tuple json=%s err=%v", b, err)
	}
}

func TestTupleAllStopsEarly(t *testing.T) {
	tp := NewTuple("a", "b", "c")
	n := 0
	for range tp.All() {
		n++
		if n == 2 {
			break
		}
	}
	if n != 2 {
		t.Fatalf("iterated %d", n)
	}
}

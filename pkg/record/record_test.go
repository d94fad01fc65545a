package record

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestUnmarshalJSON_PreservesKeyOrder(t *testing.T) {
	var r Record
	input := `{"zeta": 1, "alpha": "a", "mid": null, "nested": {"b": 2, "a": 1}, "list": [1, 2]}`
	if err := json.Unmarshal([]byte(input), &r); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	want := []string{"zeta", "alpha", "mid", "nested", "list"}
	if got := r.Keys(); !reflect.DeepEqual(got, want) {
		t.Errorf("Keys() = %v, want %v", got, want)
	}
}

func TestText(t *testing.T) {
	var r Record
	input := `{"n": 42, "f": 1.50, "s": "judge", "b": true, "null": null, "obj": {"x": [1, 2]}}`
	if err := json.Unmarshal([]byte(input), &r); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	tests := []struct {
		key  string
		want string
	}{
		{"n", "42"},
		{"f", "1.50"},
		{"s", "judge"},
		{"b", "true"},
		{"null", ""},
		{"obj", `{"x":[1,2]}`},
		{"missing", ""},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			if got := r.Text(tt.key); got != tt.want {
				t.Errorf("Text(%q) = %q, want %q", tt.key, got, tt.want)
			}
		})
	}
}

func TestUnmarshalJSON_RejectsNonObject(t *testing.T) {
	for _, input := range []string{`[1, 2]`, `"str"`, `42`} {
		var r Record
		if err := json.Unmarshal([]byte(input), &r); err == nil {
			t.Errorf("Unmarshal(%s) expected error", input)
		}
	}
}

func TestSet_DuplicateKeyKeepsPosition(t *testing.T) {
	r := New()
	r.Set("a", "1")
	r.Set("b", "2")
	r.Set("a", "3")

	if got := r.Keys(); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("Keys() = %v, want [a b]", got)
	}
	if got := r.Text("a"); got != "3" {
		t.Errorf("Text(a) = %q, want 3", got)
	}
}

func TestMarshalJSON_KeyOrder(t *testing.T) {
	var r Record
	input := `{"b":1,"a":{"z":true}}`
	if err := json.Unmarshal([]byte(input), &r); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	out, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(out) != input {
		t.Errorf("Marshal() = %s, want %s", out, input)
	}
}

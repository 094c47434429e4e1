package store

import (
	"encoding/json"
	"testing"
)

func TestParseValueEquality(t *testing.T) {
	tests := []struct {
		name  string
		a, b  string
		equal bool
	}{
		{"same number", `1`, `1`, true},
		{"integer vs float literal", `1`, `1.0`, false},
		{"string vs number", `"1"`, `1`, false},
		{"object member order", `{"a":1,"b":[true,null]}`, `{"b":[true,null],"a":1}`, true},
		{"whitespace", ` [1, 2] `, `[1,2]`, true},
		{"array order matters", `[1,2]`, `[2,1]`, false},
		{"null", `null`, `null`, true},
		{"html chars kept", `"<a&b>"`, `"<a&b>"`, true},
		{"trailing zeros", `1.0`, `1.00`, true},
		{"exponent vs decimal", `1e2`, `100.0`, true},
		{"nested float", `{"a":[2.50]}`, `{"a":[25e-1]}`, true},
		{"different floats", `1.5`, `1.25`, false},
		{"float never equals integer", `100`, `1e2`, false},
		{"paired surrogates", `"\ud83d\ude00"`, `"😀"`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := ParseValue([]byte(tt.a))
			if err != nil {
				t.Fatalf("ParseValue(%s): %v", tt.a, err)
			}
			b, err := ParseValue([]byte(tt.b))
			if err != nil {
				t.Fatalf("ParseValue(%s): %v", tt.b, err)
			}
			if got := a.Equal(b); got != tt.equal {
				t.Errorf("%s == %s: got %v, want %v", tt.a, tt.b, got, tt.equal)
			}
			if tt.equal && a != b {
				t.Errorf("equal values must be identical map keys: %v vs %v", a, b)
			}
		})
	}
}

func TestParseValueInvalid(t *testing.T) {
	for _, raw := range []string{``, `{`, `1 2`, `nope`, `"\ud800"`, `"\udfff"`, `"\ud800x"`, `["\ud800\u0041"]`, "\"\xff\""} {
		if _, err := ParseValue([]byte(raw)); err == nil {
			t.Errorf("expected error for %q", raw)
		}
	}
}

func TestCanonicalFloatEncoding(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{`1.0`, `1.0`},
		{`1.50`, `1.5`},
		{`1e2`, `100.0`},
		{`-2.0E0`, `-2.0`},
		{`12`, `12`},
		{`1e400`, `1e400`},
	}

	for _, tt := range tests {
		v, err := ParseValue([]byte(tt.raw))
		if err != nil {
			t.Fatalf("ParseValue(%s): %v", tt.raw, err)
		}
		if v.String() != tt.want {
			t.Errorf("expected %s for %s, got %s", tt.want, tt.raw, v)
		}
	}
}

func TestValueJSON(t *testing.T) {
	var body struct {
		Key   Key   `json:"key"`
		Value Value `json:"value"`
		Other Value `json:"other"`
	}
	if err := json.Unmarshal([]byte(`{"key":"x","value":null}`), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if body.Key.String() != `"x"` {
		t.Errorf("expected key \"x\", got %s", body.Key)
	}
	if body.Value.IsZero() || !body.Value.IsNull() {
		t.Error("explicit null should decode as Null, not as a missing field")
	}
	if !body.Other.IsZero() {
		t.Error("missing field should stay zero")
	}

	out, err := json.Marshal(map[string]Value{"v": MustValue(map[string]any{"b": 2, "a": "<"})})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != `{"v":{"a":"<","b":2}}` {
		t.Errorf("unexpected encoding: %s", out)
	}
}

func TestZeroValueIsNull(t *testing.T) {
	var zero Value
	if !zero.Equal(Null) {
		t.Error("zero value should compare equal to Null")
	}
	out, _ := json.Marshal(zero)
	if string(out) != "null" {
		t.Errorf("zero value should encode as null, got %s", out)
	}
}

package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Value は任意のJSON値を正規化して保持する
//
// 正規化した表現同士をバイト比較するので、オブジェクトのメンバ順は無視される。
// 整数リテラルと小数は別の値（1 と 1.0 は異なる）だが、小数同士は
// float64としての値で比較する（1.0 と 1.00、1e2 と 100.0 は等しい）。
// 文字列フィールド1つだけの構造体なのでmapのキーにもそのまま使える。
type Value struct {
	canon string
}

// Key はストアのキー。値と同じ正規化規則に従う
type Key = Value

// Null は値が無いことを表す番兵
var Null = Value{canon: "null"}

// ParseValue は生のJSONを正規化してValueにする
//
// 不正なUTF-8や対になっていないサロゲートのエスケープはU+FFFDに潰れて
// 別の値と等しくなってしまうので拒否する。
func ParseValue(raw []byte) (Value, error) {
	if !utf8.Valid(raw) {
		return Value{}, fmt.Errorf("invalid JSON value: invalid UTF-8")
	}
	if err := checkSurrogates(raw); err != nil {
		return Value{}, fmt.Errorf("invalid JSON value: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return Value{}, fmt.Errorf("invalid JSON value: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return Value{}, fmt.Errorf("invalid JSON value: trailing data")
	}
	return canonical(normalizeNumbers(v))
}

// normalizeNumbers は小数を最短の表現に揃える。整数リテラルはそのまま残す
func normalizeNumbers(v any) any {
	switch t := v.(type) {
	case json.Number:
		return canonicalNumber(t)
	case map[string]any:
		for k, e := range t {
			t[k] = normalizeNumbers(e)
		}
		return t
	case []any:
		for i, e := range t {
			t[i] = normalizeNumbers(e)
		}
		return t
	default:
		return v
	}
}

func canonicalNumber(n json.Number) json.Number {
	lit := string(n)
	if !strings.ContainsAny(lit, ".eE") {
		return n
	}
	f, err := strconv.ParseFloat(lit, 64)
	if err != nil {
		// float64に収まらない値はリテラルのまま比較する
		return n
	}
	out := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(out, ".eE") {
		// 整数リテラルと区別するため小数点を残す
		out += ".0"
	}
	return json.Number(out)
}

// checkSurrogates は文字列中の\uエスケープが正しいサロゲートペアになっているか調べる
// rawはデコードに成功する前提で、エスケープ以外の構文は見ない
func checkSurrogates(raw []byte) error {
	inString := false
	pendingHigh := false
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if !inString {
			if c == '"' {
				inString = true
			}
			continue
		}

		if c != '\\' {
			if pendingHigh {
				return errors.New("unpaired surrogate escape")
			}
			if c == '"' {
				inString = false
			}
			continue
		}

		if i+1 >= len(raw) {
			return nil
		}
		i++
		if raw[i] != 'u' || i+4 >= len(raw) {
			if pendingHigh {
				return errors.New("unpaired surrogate escape")
			}
			continue
		}
		r, err := strconv.ParseUint(string(raw[i+1:i+5]), 16, 16)
		if err != nil {
			return nil
		}
		i += 4

		switch {
		case r >= 0xD800 && r <= 0xDBFF:
			if pendingHigh {
				return errors.New("unpaired surrogate escape")
			}
			pendingHigh = true
		case r >= 0xDC00 && r <= 0xDFFF:
			if !pendingHigh {
				return errors.New("unpaired surrogate escape")
			}
			pendingHigh = false
		default:
			if pendingHigh {
				return errors.New("unpaired surrogate escape")
			}
		}
	}
	return nil
}

// ValueOf はGoの値からValueを作る
func ValueOf(v any) (Value, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return Value{}, err
	}
	return ParseValue(raw)
}

// MustValue はValueOfのpanic版。テストと定数定義用
func MustValue(v any) Value {
	val, err := ValueOf(v)
	if err != nil {
		panic(err)
	}
	return val
}

func canonical(v any) (Value, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return Value{}, err
	}
	return Value{canon: string(bytes.TrimRight(buf.Bytes(), "\n"))}, nil
}

// IsZero はデコードされていない（フィールド欠落の）値かどうかを返す
func (v Value) IsZero() bool {
	return v.canon == ""
}

// IsNull はnullかどうかを返す
func (v Value) IsNull() bool {
	return v.canon == "null"
}

// Equal は構造的に等しいかを返す
func (v Value) Equal(o Value) bool {
	return v.normalize() == o.normalize()
}

func (v Value) normalize() Value {
	if v.canon == "" {
		return Null
	}
	return v
}

func (v Value) String() string {
	return v.normalize().canon
}

// MarshalJSON は正規化済みの表現をそのまま書き出す
func (v Value) MarshalJSON() ([]byte, error) {
	return []byte(v.normalize().canon), nil
}

// UnmarshalJSON はJSONを正規化して取り込む。nullも値として受け付ける
func (v *Value) UnmarshalJSON(raw []byte) error {
	parsed, err := ParseValue(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

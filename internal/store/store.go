package store

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrKeyNotFound はCASの対象キーが存在しないことを表す
	ErrKeyNotFound = errors.New("key does not exist")
	// ErrPreconditionFailed はCASの期待値が現在値と一致しないことを表す
	ErrPreconditionFailed = errors.New("value does not match")
	// ErrClosed は停止済みのストアに対する操作を表す
	ErrClosed = errors.New("store closed")
)

// Store はKVSの基本操作を定義するインターフェース
//
// 3つの操作は互いにアトミックでなければならない。
type Store interface {
	Get(key Key) (Value, bool)
	Insert(key Key, value Value)
	CompareAndSwap(key Key, from, to Value) error
	Keys() []Key
	Len() int
}

// Mode はストア実装の種類
type Mode string

const (
	// ModeLocked はRWMutexで保護されたmap
	ModeLocked Mode = "locked"
	// ModeOwned は専有ゴルーチンがmapを所有しチャネル経由でアクセスする
	ModeOwned Mode = "owned"
)

// ParseMode は設定文字列をModeに変換する
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(s)) {
	case "", ModeLocked:
		return ModeLocked, nil
	case ModeOwned:
		return ModeOwned, nil
	default:
		return "", fmt.Errorf("unknown store mode: %q", s)
	}
}

// New はModeに応じたストアを作成する
// ModeOwnedの場合、返り値のcloseで所有ゴルーチンを止める
func New(mode Mode) (s Store, closeFn func()) {
	if mode == ModeOwned {
		o := NewOwned()
		return o, o.Close
	}
	return NewLocked(), func() {}
}

// cas はロック済みまたは所有ゴルーチン内のmapに対するCAS本体
func cas(data map[Key]Value, key Key, from, to Value) error {
	current, ok := data[key.normalize()]
	if !ok {
		return ErrKeyNotFound
	}
	if !current.Equal(from) {
		return ErrPreconditionFailed
	}
	data[key.normalize()] = to.normalize()
	return nil
}

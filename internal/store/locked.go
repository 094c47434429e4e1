package store

import "sync"

// Ensure Locked implements Store
var _ Store = (*Locked)(nil)

// Locked はストア全体を1つのRWMutexで保護する実装
type Locked struct {
	mu   sync.RWMutex
	data map[Key]Value
}

// NewLocked は空のLockedストアを作成する
func NewLocked() *Locked {
	return &Locked{
		data: make(map[Key]Value),
	}
}

// Get はキーに対応する値を取得する
func (s *Locked) Get(key Key) (Value, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, exists := s.data[key.normalize()]
	return value, exists
}

// Insert はキーに値を無条件に設定する
func (s *Locked) Insert(key Key, value Value) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[key.normalize()] = value.normalize()
}

// CompareAndSwap は現在値がfromと等しい場合のみtoに置き換える
func (s *Locked) CompareAndSwap(key Key, from, to Value) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return cas(s.data, key, from, to)
}

// Keys は全てのキーを返す
func (s *Locked) Keys() []Key {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]Key, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	return keys
}

// Len はデータストアのサイズを返す
func (s *Locked) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

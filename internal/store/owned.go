package store

import "sync"

// Ensure Owned implements Store
var _ Store = (*Owned)(nil)

type opKind int

const (
	opGet opKind = iota
	opInsert
	opCAS
	opKeys
	opLen
)

type request struct {
	kind  opKind
	key   Key
	from  Value
	to    Value
	reply chan response
}

type response struct {
	value Value
	found bool
	err   error
	keys  []Key
	n     int
}

// Owned はmapを1つのゴルーチンが専有する実装
//
// 全ての操作はリクエストチャネルで直列化されるためロックを持たない。
// Close後の操作は空の結果を返し、書き込みは捨てられる。
// CASだけはErrClosedで失敗を知らせる。
type Owned struct {
	reqs      chan request
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewOwned は所有ゴルーチンを起動してストアを返す
func NewOwned() *Owned {
	o := &Owned{
		reqs: make(chan request),
		done: make(chan struct{}),
	}
	o.wg.Add(1)
	go o.run()
	return o
}

func (o *Owned) run() {
	defer o.wg.Done()

	data := make(map[Key]Value)
	for {
		select {
		case <-o.done:
			return
		case req := <-o.reqs:
			var resp response
			switch req.kind {
			case opGet:
				resp.value, resp.found = data[req.key.normalize()]
			case opInsert:
				data[req.key.normalize()] = req.to.normalize()
			case opCAS:
				resp.err = cas(data, req.key, req.from, req.to)
			case opKeys:
				resp.keys = make([]Key, 0, len(data))
				for k := range data {
					resp.keys = append(resp.keys, k)
				}
			case opLen:
				resp.n = len(data)
			}
			req.reply <- resp
		}
	}
}

func (o *Owned) do(req request) (response, bool) {
	req.reply = make(chan response, 1)
	select {
	case o.reqs <- req:
		return <-req.reply, true
	case <-o.done:
		return response{}, false
	}
}

// Get はキーに対応する値を取得する
func (o *Owned) Get(key Key) (Value, bool) {
	resp, _ := o.do(request{kind: opGet, key: key})
	return resp.value, resp.found
}

// Insert はキーに値を無条件に設定する
func (o *Owned) Insert(key Key, value Value) {
	o.do(request{kind: opInsert, key: key, to: value})
}

// CompareAndSwap は現在値がfromと等しい場合のみtoに置き換える
func (o *Owned) CompareAndSwap(key Key, from, to Value) error {
	resp, ok := o.do(request{kind: opCAS, key: key, from: from, to: to})
	if !ok {
		return ErrClosed
	}
	return resp.err
}

// Keys は全てのキーを返す
func (o *Owned) Keys() []Key {
	resp, _ := o.do(request{kind: opKeys})
	return resp.keys
}

// Len はデータストアのサイズを返す
func (o *Owned) Len() int {
	resp, _ := o.do(request{kind: opLen})
	return resp.n
}

// Close は所有ゴルーチンを停止する
func (o *Owned) Close() {
	o.closeOnce.Do(func() {
		close(o.done)
	})
	o.wg.Wait()
}

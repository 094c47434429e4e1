package bus

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	maelstrom "github.com/jepsen-io/maelstrom/demo/go"

	"github.com/asg0451/crakv/internal/logger"
)

const maxFrameBytes = 16 * 1024 * 1024

type frame struct {
	msg maelstrom.Message
	err error
}

// Ensure Stdio implements Conn
var _ Conn = (*Stdio)(nil)

// Stdio は改行区切りJSONでメッセージをやりとりするトランスポート
//
// 読み取りは専用ゴルーチンが行い、EOFでErrClosedになる。
// デコードできない行や読み取りエラーはErrMalformedとしてRecvに渡す。
type Stdio struct {
	frames chan frame

	mu  sync.Mutex
	out *bufio.Writer
}

// NewStdio はrから読み、wへ書くトランスポートを作成する
func NewStdio(r io.Reader, w io.Writer) *Stdio {
	s := &Stdio{
		frames: make(chan frame),
		out:    bufio.NewWriter(w),
	}
	go s.readLoop(r)
	return s
}

func (s *Stdio) readLoop(r io.Reader) {
	defer close(s.frames)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxFrameBytes)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		logger.Debug("", "recv %s", line)

		var msg maelstrom.Message
		if err := json.Unmarshal(line, &msg); err != nil {
			s.frames <- frame{err: fmt.Errorf("%w: %v: %s", ErrMalformed, err, line)}
			continue
		}
		s.frames <- frame{msg: msg}
	}

	// 長すぎる行や読み取りエラーはクローズではなく不正なフレームとして渡す
	if err := scanner.Err(); err != nil {
		logger.Warn("", "stdin read failed: %v", err)
		s.frames <- frame{err: fmt.Errorf("%w: %v", ErrMalformed, err)}
	}
}

// Recv は次のメッセージを返す
func (s *Stdio) Recv(ctx context.Context) (maelstrom.Message, error) {
	select {
	case f, ok := <-s.frames:
		if !ok {
			return maelstrom.Message{}, ErrClosed
		}
		return f.msg, f.err
	case <-ctx.Done():
		return maelstrom.Message{}, ctx.Err()
	}
}

// Send はメッセージを1行のJSONとして書き出す
func (s *Stdio) Send(_ context.Context, msg maelstrom.Message) error {
	line, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}
	logger.Debug("", "send %s", line)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.out.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := s.out.Flush(); err != nil {
		return fmt.Errorf("failed to flush message: %w", err)
	}
	return nil
}

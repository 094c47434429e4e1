package bus

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	maelstrom "github.com/jepsen-io/maelstrom/demo/go"
)

func TestStdioRecv(t *testing.T) {
	input := strings.Join([]string{
		`{"src":"c1","dest":"n1","body":{"type":"read","msg_id":1,"key":"x"}}`,
		``,
		`not json`,
		`{"src":"c2","dest":"n1","body":{"type":"write","msg_id":2,"key":"x","value":1}}`,
	}, "\n")

	s := NewStdio(strings.NewReader(input), &bytes.Buffer{})
	ctx := context.Background()

	msg, err := s.Recv(ctx)
	if err != nil {
		t.Fatalf("recv failed: %v", err)
	}
	if msg.Src != "c1" || msg.Type() != "read" {
		t.Errorf("unexpected first message: %+v", msg)
	}

	if _, err := s.Recv(ctx); !errors.Is(err, ErrMalformed) {
		t.Errorf("expected ErrMalformed for a non-JSON line, got %v", err)
	}

	msg, err = s.Recv(ctx)
	if err != nil {
		t.Fatalf("recv failed: %v", err)
	}
	if msg.Src != "c2" || msg.Type() != "write" {
		t.Errorf("unexpected third message: %+v", msg)
	}

	if _, err := s.Recv(ctx); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed at EOF, got %v", err)
	}
}

func TestStdioOversizedFrame(t *testing.T) {
	line := `{"src":"c1","dest":"n1","body":{"type":"write","msg_id":1,"key":"x","value":"` +
		strings.Repeat("a", maxFrameBytes) + `"}}`

	s := NewStdio(strings.NewReader(line+"\n"), &bytes.Buffer{})
	ctx := context.Background()

	_, err := s.Recv(ctx)
	if !errors.Is(err, ErrMalformed) {
		t.Errorf("expected ErrMalformed for an oversized frame, got %v", err)
	}
	if errors.Is(err, ErrClosed) {
		t.Error("an oversized frame must not look like closure")
	}

	if _, err := s.Recv(ctx); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed after the read failure, got %v", err)
	}
}

func TestStdioReadError(t *testing.T) {
	input := io.MultiReader(
		strings.NewReader(`{"src":"c1","dest":"n1","body":{"type":"read","msg_id":1,"key":"x"}}`+"\n"),
		iotest.ErrReader(errors.New("stdin broken")),
	)

	s := NewStdio(input, &bytes.Buffer{})
	ctx := context.Background()

	if _, err := s.Recv(ctx); err != nil {
		t.Fatalf("recv failed: %v", err)
	}
	if _, err := s.Recv(ctx); !errors.Is(err, ErrMalformed) {
		t.Errorf("expected ErrMalformed for a read error, got %v", err)
	}
}

func TestStdioSend(t *testing.T) {
	out := &bytes.Buffer{}
	s := NewStdio(strings.NewReader(""), out)

	msg := maelstrom.Message{
		Src:  "n1",
		Dest: "c1",
		Body: json.RawMessage(`{"type":"write_ok","msg_id":1,"in_reply_to":3}`),
	}
	if err := s.Send(context.Background(), msg); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	line := out.String()
	if !strings.HasSuffix(line, "\n") || strings.Count(line, "\n") != 1 {
		t.Errorf("expected exactly one newline-terminated frame, got %q", line)
	}

	var decoded maelstrom.Message
	if err := json.Unmarshal([]byte(line), &decoded); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if decoded.Dest != "c1" || decoded.Type() != "write_ok" {
		t.Errorf("unexpected frame: %s", line)
	}
}

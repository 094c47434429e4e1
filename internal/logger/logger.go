package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Level はログレベルを表す
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel は設定文字列をLevelに変換する
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level: %q", s)
	}
}

// Logger はスレッドセーフなロガー
type Logger struct {
	mu       sync.Mutex
	out      io.Writer
	minLevel Level
}

// Default はデフォルトのロガー
// stdoutはプロトコル用なので標準エラー出力に書く
var Default = New(os.Stderr, LevelInfo)

// New は新しいロガーを作成する
func New(out io.Writer, minLevel Level) *Logger {
	return &Logger{
		out:      out,
		minLevel: minLevel,
	}
}

// SetLevel はログレベルを設定する
func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.minLevel = level
}

// SetOutput は出力先を差し替える
func (l *Logger) SetOutput(out io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.out = out
}

// Enabled は指定レベルが出力対象かどうかを返す
func (l *Logger) Enabled(level Level) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return level >= l.minLevel
}

func (l *Logger) log(level Level, nodeID string, format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if level < l.minLevel {
		return
	}

	timestamp := time.Now().Format("2006-01-02 15:04:05.000")
	msg := fmt.Sprintf(format, args...)

	if nodeID != "" {
		_, _ = fmt.Fprintf(l.out, "[%s] [%s] [%s] %s\n", timestamp, level, nodeID, msg)
	} else {
		_, _ = fmt.Fprintf(l.out, "[%s] [%s] %s\n", timestamp, level, msg)
	}
}

// Debug はデバッグログを出力する
func (l *Logger) Debug(nodeID string, format string, args ...any) {
	l.log(LevelDebug, nodeID, format, args...)
}

// Info は情報ログを出力する
func (l *Logger) Info(nodeID string, format string, args ...any) {
	l.log(LevelInfo, nodeID, format, args...)
}

// Warn は警告ログを出力する
func (l *Logger) Warn(nodeID string, format string, args ...any) {
	l.log(LevelWarn, nodeID, format, args...)
}

// Error はエラーログを出力する
func (l *Logger) Error(nodeID string, format string, args ...any) {
	l.log(LevelError, nodeID, format, args...)
}

// グローバル関数（デフォルトロガーを使用）

// SetLevel はデフォルトロガーのレベルを設定する
func SetLevel(level Level) {
	Default.SetLevel(level)
}

// Enabled はデフォルトロガーで指定レベルが有効かを返す
func Enabled(level Level) bool {
	return Default.Enabled(level)
}

// Debug はデバッグログを出力する
func Debug(nodeID string, format string, args ...any) {
	Default.Debug(nodeID, format, args...)
}

// Info は情報ログを出力する
func Info(nodeID string, format string, args ...any) {
	Default.Info(nodeID, format, args...)
}

// Warn は警告ログを出力する
func Warn(nodeID string, format string, args ...any) {
	Default.Warn(nodeID, format, args...)
}

// Error はエラーログを出力する
func Error(nodeID string, format string, args ...any) {
	Default.Error(nodeID, format, args...)
}

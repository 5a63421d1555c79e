// Package logger はJSON構造化ログの出力設定を提供する。
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// ServiceName は全ログに付与するサービス名。
const ServiceName = "vipchannel"

// Options はロガーの設定。
type Options struct {
	// Level は出力する最低レベル。ゼロ値はINFO。
	Level slog.Level
	// Command はserve、worker、migrate、seedのいずれか。空の場合は付与しない。
	Command string
}

// Setup はJSON構造化ログ出力のslog.Loggerを生成して返す。
// 全エントリにserviceと（指定されていれば）commandを付与し、
// 同じ集約先に流れるAPIサーバーとイベント中継ワーカーのログを区別できるようにする。
func Setup(w io.Writer, opts Options) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: opts.Level,
	})
	l := slog.New(handler).With(slog.String("service", ServiceName))
	if opts.Command != "" {
		l = l.With(slog.String("command", opts.Command))
	}
	return l
}

// SetupDefault はJSON構造化ログ出力をグローバルロガーとして設定する。
// writerがnilの場合はos.Stdoutに出力する。
func SetupDefault(w io.Writer, opts Options) {
	if w == nil {
		w = os.Stdout
	}
	slog.SetDefault(Setup(w, opts))
}

// ParseLevel はLOG_LEVELの値（debug, info, warn, error）をslog.Levelに変換する。
// 空文字列はINFOとして扱う。
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

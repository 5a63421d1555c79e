package client

import (
	"fmt"

	"github.com/hitoshi/vipchannel/internal/model"
)

// APIError はサーバーが返した4xxのエラーレスポンス。
// errors.Asで*model.APIErrorとしても取り出せる。
type APIError struct {
	StatusCode int
	Err        *model.APIError
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error (status %d): %s", e.StatusCode, e.Err.Error())
}

func (e *APIError) Unwrap() error { return e.Err }

// TransportError は通信失敗・タイムアウト・5xx応答を表す。再試行可能な一時的エラーとして扱う。
type TransportError struct {
	Op         string
	StatusCode int // 応答がない場合は0
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: server returned status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Retryable は常にtrueを返す。
func (e *TransportError) Retryable() bool { return true }

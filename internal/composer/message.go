package composer

import (
	"context"
	"strings"
	"sync"

	"github.com/hitoshi/vipchannel/internal/model"
)

// MessageComposer はメッセージ入力欄の状態。
type MessageComposer struct {
	mu         sync.Mutex
	poster     Poster
	channelID  string
	role       model.ViewerRole
	input      string
	submitting bool
}

// NewMessageComposer はMessageComposerを生成する。
func NewMessageComposer(poster Poster, channelID string, role model.ViewerRole) *MessageComposer {
	return &MessageComposer{poster: poster, channelID: channelID, role: role}
}

// SetInput は入力内容を更新する。
func (c *MessageComposer) SetInput(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.input = s
}

// Input は現在の入力内容を返す。
func (c *MessageComposer) Input() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.input
}

// CanSubmit は送信ボタンを有効にできるかを返す。
func (c *MessageComposer) CanSubmit() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.role.CanPost() && !c.submitting && strings.TrimSpace(c.input) != ""
}

// Submit は入力内容を送信する。
// 空白のみの入力は何もせず(nil, nil)を返す。送信に成功した場合のみ入力をクリアし、
// 失敗した場合は再送できるよう入力を保持する。
func (c *MessageComposer) Submit(ctx context.Context) (*model.Message, error) {
	c.mu.Lock()
	if !c.role.CanPost() {
		c.mu.Unlock()
		return nil, ErrNotAllowed
	}
	if c.submitting {
		c.mu.Unlock()
		return nil, ErrSubmitInProgress
	}
	body := c.input
	if strings.TrimSpace(body) == "" {
		c.mu.Unlock()
		return nil, nil
	}
	c.submitting = true
	c.mu.Unlock()

	msg, err := c.poster.PostMessage(ctx, c.channelID, body)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.submitting = false
	if err != nil {
		return nil, err
	}
	// 送信中に追記された入力は残す
	if c.input == body {
		c.input = ""
	}
	return msg, nil
}

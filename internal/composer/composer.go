// Package composer はチャンネル画面の投稿UIの状態を管理する。
//
// メッセージ入力欄とVIP予想フォームの表示可否・入力内容・送信状態を保持し、
// 永続化はPosterに委譲する。表示制御とは別に、送信時にもロールを再確認する。
package composer

import (
	"context"
	"errors"

	"github.com/hitoshi/vipchannel/internal/model"
	"github.com/hitoshi/vipchannel/internal/prediction"
)

var (
	// ErrNotAllowed は作成者以外が送信しようとした場合のエラー。
	ErrNotAllowed = errors.New("composer: posting is restricted to the channel creator")
	// ErrSubmitInProgress は送信中に再度送信しようとした場合のエラー。
	ErrSubmitInProgress = errors.New("composer: submission already in progress")
	// ErrFormClosed は閉じたフォームから送信しようとした場合のエラー。
	ErrFormClosed = errors.New("composer: form is closed")
)

// Poster は投稿の永続化を担うコラボレーター。
type Poster interface {
	PostMessage(ctx context.Context, channelID, body string) (*model.Message, error)
	PostPrediction(ctx context.Context, channelID string, draft prediction.Draft) (*model.Prediction, error)
}

// Controls はロールに応じて表示する投稿コントロール。
type Controls struct {
	MessageBox       bool
	PredictionButton bool
	ReadOnlyNotice   bool
}

// Capabilities はロールに応じた投稿コントロールの表示可否を返す。
func Capabilities(role model.ViewerRole) Controls {
	if role.CanPost() {
		return Controls{MessageBox: true, PredictionButton: true}
	}
	return Controls{ReadOnlyNotice: true}
}

package composer

import (
	"context"
	"sync"

	"github.com/hitoshi/vipchannel/internal/model"
	"github.com/hitoshi/vipchannel/internal/prediction"
)

// FormState はVIP予想フォームの送信状態。
type FormState int

const (
	StateIdle FormState = iota
	StateValidating
	StateSubmitting
)

func (s FormState) String() string {
	switch s {
	case StateValidating:
		return "validating"
	case StateSubmitting:
		return "submitting"
	default:
		return "idle"
	}
}

// PredictionForm はVIP予想の投稿フォーム。
//
// 状態遷移: Idle → Validating → Submitting → Idle。
// 成功時はフォームをリセットして閉じ、失敗時は入力とエラーを保持したまま開いておく。
// 送信中に閉じられた場合、その送信結果はフォームに反映しないが、
// 結果が戻るまでは開き直しても再送信できない。
type PredictionForm struct {
	mu        sync.Mutex
	poster    Poster
	channelID string
	role      model.ViewerRole

	open       bool
	state      FormState
	generation uint64

	draft prediction.Draft
	err   error
}

// NewPredictionForm はPredictionFormを生成する。生成直後は閉じている。
func NewPredictionForm(poster Poster, channelID string, role model.ViewerRole) *PredictionForm {
	return &PredictionForm{poster: poster, channelID: channelID, role: role}
}

// Open はフォームを開く。作成者以外は開けない。
func (f *PredictionForm) Open() error {
	if !f.role.CanPost() {
		return ErrNotAllowed
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.open = true
	return nil
}

// Close はフォームを閉じ、入力内容と画像プレビューを破棄する。
// 送信中のリクエストは取り消さず、その結果を無視する。送信中の状態は結果が戻るまで残る。
func (f *PredictionForm) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.open = false
	f.draft = prediction.Draft{}
	f.err = nil
	f.generation++
}

func (f *PredictionForm) SetOdds(s string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.draft.Odds = s
}

func (f *PredictionForm) SetDescription(s string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.draft.Description = s
}

func (f *PredictionForm) SetPredictionText(s string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.draft.PredictionText = s
}

// AttachImage は画像を添付する。上限サイズを超える画像は添付せずエラーを返す。
func (f *PredictionForm) AttachImage(img *prediction.Image) error {
	if err := prediction.CheckSize(img.Size()); err != nil {
		f.mu.Lock()
		f.err = err
		f.mu.Unlock()
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.draft.Image = img
	f.err = nil
	return nil
}

// RemoveImage は添付画像（プレビュー）を破棄する。
func (f *PredictionForm) RemoveImage() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.draft.Image = nil
}

// Draft は現在の入力内容を返す。
func (f *PredictionForm) Draft() prediction.Draft {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.draft
}

func (f *PredictionForm) IsOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}

func (f *PredictionForm) State() FormState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Err は表示中のエラーを返す。
func (f *PredictionForm) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

// CanSubmit は送信ボタンを有効にできるかを返す。
func (f *PredictionForm) CanSubmit() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.role.CanPost() && f.open && f.state == StateIdle
}

// Submit は入力を検証し、問題がなければPosterへ送信する。
// 検証エラーの場合は送信せず、Field付きの*model.APIErrorを返す。
func (f *PredictionForm) Submit(ctx context.Context) (*model.Prediction, error) {
	if !f.role.CanPost() {
		return nil, ErrNotAllowed
	}

	f.mu.Lock()
	if !f.open {
		f.mu.Unlock()
		return nil, ErrFormClosed
	}
	if f.state != StateIdle {
		f.mu.Unlock()
		return nil, ErrSubmitInProgress
	}

	f.state = StateValidating
	if _, err := prediction.Validate(f.draft); err != nil {
		f.state = StateIdle
		f.err = err
		f.mu.Unlock()
		return nil, err
	}

	f.state = StateSubmitting
	f.err = nil
	draft := f.draft
	gen := f.generation
	f.mu.Unlock()

	p, err := f.poster.PostPrediction(ctx, f.channelID, draft)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = StateIdle
	if gen != f.generation {
		// 送信中に閉じられたフォームには反映しない
		return p, err
	}
	if err != nil {
		f.err = err
		return nil, err
	}
	f.draft = prediction.Draft{}
	f.open = false
	return p, nil
}

// Package model はドメインモデルを定義する。
package model

import "time"

// Channel は作成者が1人だけ存在するVIPコンテンツのストリームを表す。
// 作成者は暗黙的にメンバーとして扱われる。
type Channel struct {
	ID          string
	Name        string
	Description string
	CreatorID   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ChannelSubscription はユーザーのチャンネル購読を表す。
// 購読は閲覧権限のみを与え、作成後に変更されることはない（解除時に削除される）。
type ChannelSubscription struct {
	ChannelID string
	UserID    string
	JoinedAt  time.Time
}

// Message はチャンネルに投稿されたテキストメッセージを表す。作成後は不変。
type Message struct {
	ID         string
	ChannelID  string
	AuthorID   string
	AuthorName string // profilesとJOINして取得する表示名
	Body       string
	CreatedAt  time.Time
}

// Prediction はチャンネルに投稿されたVIP予想（prono）を表す。作成後は不変。
type Prediction struct {
	ID             string
	ChannelID      string
	AuthorID       string
	AuthorName     string
	Odds           float64
	Description    string
	PredictionText string
	ImageRef       string // オブジェクトストレージのキー。空文字は画像なし
	CreatedAt      time.Time
}

// HasImage は予想に画像が添付されているかを返す。
func (p *Prediction) HasImage() bool {
	return p.ImageRef != ""
}

// ViewerRole はチャンネル閲覧者の役割を表す。永続化されず、毎回導出される。
type ViewerRole string

const (
	// RoleCreator はチャンネル作成者。閲覧と投稿ができる。
	RoleCreator ViewerRole = "creator"
	// RoleSubscriber は購読者。閲覧のみできる。
	RoleSubscriber ViewerRole = "subscriber"
	// RoleGuest は購読していない閲覧者。閲覧のみできる。
	RoleGuest ViewerRole = "guest"
)

// CanPost は役割が投稿権限を持つかを返す。
func (r ViewerRole) CanPost() bool {
	return r == RoleCreator
}

// EventKind はチャンネルイベントの種別を表す。
type EventKind string

const (
	// EventMessagePosted はメッセージ投稿イベント。
	EventMessagePosted EventKind = "message.posted"
	// EventPredictionPosted は予想投稿イベント。
	EventPredictionPosted EventKind = "prediction.posted"
)

// ChannelEvent は外部へ配信するためのアウトボックスイベントを表す。
// エントリ作成と同一トランザクションで保存され、リレーワーカーがKafkaへ送信する。
type ChannelEvent struct {
	ID            string
	ChannelID     string
	Kind          EventKind
	EntryID       string
	Payload       []byte
	Attempts      int
	LastError     string
	NextAttemptAt time.Time
	PublishedAt   *time.Time
	Dead          bool
	CreatedAt     time.Time
}

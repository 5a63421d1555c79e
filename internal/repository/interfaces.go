// Package repository はデータ永続化のインターフェースとPostgreSQL実装を提供する。
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/hitoshi/vipchannel/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// CreateWithProfile はユーザー、プロフィール、identityを同一トランザクションで作成する。
	// identityがnilの場合はユーザーとプロフィールのみ作成する（デモデータ投入用）。
	CreateWithProfile(ctx context.Context, user *model.User, profile *model.Profile, identity *model.Identity) error

	// DeleteByID は指定IDのユーザーを削除する。
	// identities、profiles、作成したチャンネルと投稿はCASCADE削除される。
	DeleteByID(ctx context.Context, id string) error
}

// IdentityRepository は外部IdP紐付け情報の永続化インターフェース。
type IdentityRepository interface {
	// FindByProviderAndProviderUserID はproviderとprovider_user_idでidentityを検索する。
	// 見つからない場合はnilを返す。
	FindByProviderAndProviderUserID(ctx context.Context, provider, providerUserID string) (*model.Identity, error)
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
}

// ProfileRepository は公開プロフィールの永続化インターフェース。
type ProfileRepository interface {
	// FindByUserID は指定ユーザーのプロフィールを取得する。見つからない場合はnilを返す。
	FindByUserID(ctx context.Context, userID string) (*model.Profile, error)

	// FindByUsername はユーザー名でプロフィールを検索する。見つからない場合はnilを返す。
	FindByUsername(ctx context.Context, username string) (*model.Profile, error)
}

// ChannelRepository はチャンネルの永続化インターフェース。
type ChannelRepository interface {
	// FindByID は指定IDのチャンネルを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Channel, error)

	// ListByCreatorID は作成者のチャンネル一覧を作成日時の昇順で返す。
	ListByCreatorID(ctx context.Context, creatorID string) ([]*model.Channel, error)

	// Create はチャンネルを作成する。
	Create(ctx context.Context, channel *model.Channel) error
}

// ChannelSubscriptionRepository はチャンネル購読の永続化インターフェース。
type ChannelSubscriptionRepository interface {
	// Exists はユーザーがチャンネルを購読しているかを返す。
	Exists(ctx context.Context, channelID, userID string) (bool, error)

	// CountByChannelID はチャンネルの購読者数を返す。
	CountByChannelID(ctx context.Context, channelID string) (int, error)

	// Create は購読を作成する。既に購読済みの場合は何もしない。
	Create(ctx context.Context, sub *model.ChannelSubscription) error

	// Delete は購読を削除する。購読が存在しない場合も成功とする。
	Delete(ctx context.Context, channelID, userID string) error

	// DeleteByUserID はユーザーの全購読を削除する。
	DeleteByUserID(ctx context.Context, userID string) error
}

// MessageRepository はチャンネルメッセージの永続化インターフェース。
type MessageRepository interface {
	// ListByChannelID はチャンネルのメッセージを作成日時の昇順で返す。
	// AuthorNameはprofilesから解決する。
	ListByChannelID(ctx context.Context, channelID string) ([]*model.Message, error)

	// CreateWithEvent はメッセージとアウトボックスイベントを同一トランザクションで作成する。
	CreateWithEvent(ctx context.Context, msg *model.Message, event *model.ChannelEvent) error
}

// PredictionRepository はVIP予想の永続化インターフェース。
type PredictionRepository interface {
	// ListByChannelID はチャンネルの予想を作成日時の昇順で返す。
	ListByChannelID(ctx context.Context, channelID string) ([]*model.Prediction, error)

	// FindByID は指定IDの予想を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Prediction, error)

	// CreateWithEvent は予想とアウトボックスイベントを同一トランザクションで作成する。
	CreateWithEvent(ctx context.Context, p *model.Prediction, event *model.ChannelEvent) error
}

// EventRepository はアウトボックスイベントの永続化インターフェース。
type EventRepository interface {
	// ClaimDue は送信期限を迎えた未送信イベントを最大limit件取得し、
	// leaseの間だけ他のワーカーから見えないようnext_attempt_atを先送りする。
	// FOR UPDATE SKIP LOCKEDにより複数ワーカーでの重複取得を防ぐ。
	ClaimDue(ctx context.Context, limit int, lease time.Duration) ([]*model.ChannelEvent, error)

	// MarkPublished はイベントを送信済みにする。
	MarkPublished(ctx context.Context, id string, publishedAt time.Time) error

	// MarkFailed は送信失敗を記録する。deadがtrueの場合は以降再送しない。
	MarkFailed(ctx context.Context, id string, attempts int, nextAttemptAt time.Time, lastError string, dead bool) error
}

// TxBeginner はトランザクション開始用のインターフェース。
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

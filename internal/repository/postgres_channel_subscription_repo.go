package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/vipchannel/internal/model"
)

// PostgresChannelSubscriptionRepo はPostgreSQLを使用したチャンネル購読リポジトリ。
type PostgresChannelSubscriptionRepo struct {
	db *sql.DB
}

// NewPostgresChannelSubscriptionRepo はPostgresChannelSubscriptionRepoを生成する。
func NewPostgresChannelSubscriptionRepo(db *sql.DB) *PostgresChannelSubscriptionRepo {
	return &PostgresChannelSubscriptionRepo{db: db}
}

// Exists はユーザーがチャンネルを購読しているかを返す。
func (r *PostgresChannelSubscriptionRepo) Exists(ctx context.Context, channelID, userID string) (bool, error) {
	if !isUUID(channelID) || !isUUID(userID) {
		return false, nil
	}

	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM channel_subscriptions WHERE channel_id = $1 AND user_id = $2)`,
		channelID, userID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("購読状態の確認に失敗しました: %w", err)
	}
	return exists, nil
}

// CountByChannelID はチャンネルの購読者数を返す。
func (r *PostgresChannelSubscriptionRepo) CountByChannelID(ctx context.Context, channelID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM channel_subscriptions WHERE channel_id = $1`,
		channelID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("購読者数の取得に失敗しました: %w", err)
	}
	return count, nil
}

// Create は購読を作成する。既に購読済みの場合は何もしない。
func (r *PostgresChannelSubscriptionRepo) Create(ctx context.Context, sub *model.ChannelSubscription) error {
	if _, err := r.db.ExecContext(ctx,
		`INSERT INTO channel_subscriptions (channel_id, user_id, joined_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (channel_id, user_id) DO NOTHING`,
		sub.ChannelID, sub.UserID, sub.JoinedAt,
	); err != nil {
		return fmt.Errorf("購読の作成に失敗しました: %w", err)
	}
	return nil
}

// Delete は購読を削除する。購読が存在しない場合も成功とする。
func (r *PostgresChannelSubscriptionRepo) Delete(ctx context.Context, channelID, userID string) error {
	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM channel_subscriptions WHERE channel_id = $1 AND user_id = $2`,
		channelID, userID,
	); err != nil {
		return fmt.Errorf("購読の削除に失敗しました: %w", err)
	}
	return nil
}

// DeleteByUserID はユーザーの全購読を削除する。
func (r *PostgresChannelSubscriptionRepo) DeleteByUserID(ctx context.Context, userID string) error {
	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM channel_subscriptions WHERE user_id = $1`,
		userID,
	); err != nil {
		return fmt.Errorf("ユーザーの全購読削除に失敗しました: %w", err)
	}
	return nil
}

var _ ChannelSubscriptionRepository = (*PostgresChannelSubscriptionRepo)(nil)

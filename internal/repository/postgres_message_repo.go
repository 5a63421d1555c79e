package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/vipchannel/internal/model"
)

// PostgresMessageRepo はPostgreSQLを使用したメッセージリポジトリ。
type PostgresMessageRepo struct {
	db *sql.DB
}

// NewPostgresMessageRepo はPostgresMessageRepoを生成する。
func NewPostgresMessageRepo(db *sql.DB) *PostgresMessageRepo {
	return &PostgresMessageRepo{db: db}
}

// ListByChannelID はチャンネルのメッセージを作成日時の昇順で返す。
// 投稿者のプロフィールが存在しない場合、AuthorNameは空文字となる。
func (r *PostgresMessageRepo) ListByChannelID(ctx context.Context, channelID string) ([]*model.Message, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT m.id, m.channel_id, m.author_id, COALESCE(p.display_name, ''), m.body, m.created_at
		 FROM channel_messages m
		 LEFT JOIN profiles p ON p.user_id = m.author_id
		 WHERE m.channel_id = $1
		 ORDER BY m.created_at ASC, m.id ASC`,
		channelID,
	)
	if err != nil {
		return nil, fmt.Errorf("メッセージ一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	messages := []*model.Message{}
	for rows.Next() {
		m := &model.Message{}
		if err := rows.Scan(&m.ID, &m.ChannelID, &m.AuthorID, &m.AuthorName, &m.Body, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("メッセージ行の読み取りに失敗しました: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("メッセージ一覧の走査に失敗しました: %w", err)
	}
	return messages, nil
}

// CreateWithEvent はメッセージとアウトボックスイベントを同一トランザクションで作成する。
func (r *PostgresMessageRepo) CreateWithEvent(ctx context.Context, msg *model.Message, event *model.ChannelEvent) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO channel_messages (id, channel_id, author_id, body, created_at)
			 VALUES ($1, $2, $3, $4, $5)`,
			msg.ID, msg.ChannelID, msg.AuthorID, msg.Body, msg.CreatedAt,
		); err != nil {
			return fmt.Errorf("メッセージの作成に失敗しました: %w", err)
		}
		return insertEvent(ctx, tx, event)
	})
}

var _ MessageRepository = (*PostgresMessageRepo)(nil)

package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/vipchannel/internal/model"
)

// PostgresEventRepo はPostgreSQLを使用したアウトボックスイベントリポジトリ。
type PostgresEventRepo struct {
	db *sql.DB
}

// NewPostgresEventRepo はPostgresEventRepoを生成する。
func NewPostgresEventRepo(db *sql.DB) *PostgresEventRepo {
	return &PostgresEventRepo{db: db}
}

// ClaimDue は送信期限を迎えた未送信イベントを最大limit件取得する。
// 取得したイベントのnext_attempt_atをleaseだけ先送りし、
// ワーカーが処理中に停止した場合もlease経過後に再取得されるようにする。
func (r *PostgresEventRepo) ClaimDue(ctx context.Context, limit int, lease time.Duration) ([]*model.ChannelEvent, error) {
	rows, err := r.db.QueryContext(ctx,
		`UPDATE channel_events
		 SET next_attempt_at = now() + make_interval(secs => $2)
		 WHERE id IN (
		     SELECT id FROM channel_events
		     WHERE published_at IS NULL AND dead = false AND next_attempt_at <= now()
		     ORDER BY next_attempt_at ASC, created_at ASC
		     LIMIT $1
		     FOR UPDATE SKIP LOCKED
		 )
		 RETURNING id, channel_id, kind, entry_id, payload, attempts, COALESCE(last_error, ''), next_attempt_at, created_at`,
		limit, lease.Seconds(),
	)
	if err != nil {
		return nil, fmt.Errorf("送信対象イベントの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var events []*model.ChannelEvent
	for rows.Next() {
		e := &model.ChannelEvent{}
		var kind string
		if err := rows.Scan(&e.ID, &e.ChannelID, &kind, &e.EntryID, &e.Payload,
			&e.Attempts, &e.LastError, &e.NextAttemptAt, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("イベント行の読み取りに失敗しました: %w", err)
		}
		e.Kind = model.EventKind(kind)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("イベント一覧の走査に失敗しました: %w", err)
	}
	return events, nil
}

// MarkPublished はイベントを送信済みにする。
func (r *PostgresEventRepo) MarkPublished(ctx context.Context, id string, publishedAt time.Time) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE channel_events SET published_at = $2, last_error = NULL WHERE id = $1`,
		id, publishedAt,
	); err != nil {
		return fmt.Errorf("イベントの送信済み更新に失敗しました: %w", err)
	}
	return nil
}

// MarkFailed は送信失敗を記録する。
func (r *PostgresEventRepo) MarkFailed(ctx context.Context, id string, attempts int, nextAttemptAt time.Time, lastError string, dead bool) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE channel_events
		 SET attempts = $2, next_attempt_at = $3, last_error = $4, dead = $5
		 WHERE id = $1`,
		id, attempts, nextAttemptAt, lastError, dead,
	); err != nil {
		return fmt.Errorf("イベントの失敗記録に失敗しました: %w", err)
	}
	return nil
}

var _ EventRepository = (*PostgresEventRepo)(nil)

package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/hitoshi/vipchannel/internal/model"
)

// isUUID は文字列がUUID形式かを返す。
// uuid型カラムへの不正な値の問い合わせでクエリエラーにならないよう事前に判定する。
func isUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

// insertEvent はトランザクション内でアウトボックスイベントを作成する。
func insertEvent(ctx context.Context, tx *sql.Tx, event *model.ChannelEvent) error {
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO channel_events (id, channel_id, kind, entry_id, payload, next_attempt_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		event.ID, event.ChannelID, string(event.Kind), event.EntryID, event.Payload,
		event.NextAttemptAt, event.CreatedAt,
	); err != nil {
		return fmt.Errorf("イベントの作成に失敗しました: %w", err)
	}
	return nil
}

// withTx はトランザクション内でfnを実行し、成功時にコミットする。
func withTx(ctx context.Context, db TxBeginner, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクションの開始に失敗しました: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("トランザクションのコミットに失敗しました: %w", err)
	}
	return nil
}

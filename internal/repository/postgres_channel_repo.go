package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/vipchannel/internal/model"
)

// PostgresChannelRepo はPostgreSQLを使用したチャンネルリポジトリ。
type PostgresChannelRepo struct {
	db *sql.DB
}

// NewPostgresChannelRepo はPostgresChannelRepoを生成する。
func NewPostgresChannelRepo(db *sql.DB) *PostgresChannelRepo {
	return &PostgresChannelRepo{db: db}
}

// FindByID は指定IDのチャンネルを取得する。見つからない場合はnilを返す。
// IDがUUID形式でない場合も見つからない扱いとする。
func (r *PostgresChannelRepo) FindByID(ctx context.Context, id string) (*model.Channel, error) {
	if !isUUID(id) {
		return nil, nil
	}

	var ch model.Channel
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, description, creator_id, created_at, updated_at
		 FROM channels WHERE id = $1`,
		id,
	).Scan(&ch.ID, &ch.Name, &ch.Description, &ch.CreatorID, &ch.CreatedAt, &ch.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("チャンネルの取得に失敗しました: %w", err)
	}
	return &ch, nil
}

// ListByCreatorID は作成者のチャンネル一覧を作成日時の昇順で返す。
func (r *PostgresChannelRepo) ListByCreatorID(ctx context.Context, creatorID string) ([]*model.Channel, error) {
	if !isUUID(creatorID) {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, description, creator_id, created_at, updated_at
		 FROM channels WHERE creator_id = $1 ORDER BY created_at ASC`,
		creatorID,
	)
	if err != nil {
		return nil, fmt.Errorf("チャンネル一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var channels []*model.Channel
	for rows.Next() {
		ch := &model.Channel{}
		if err := rows.Scan(&ch.ID, &ch.Name, &ch.Description, &ch.CreatorID, &ch.CreatedAt, &ch.UpdatedAt); err != nil {
			return nil, fmt.Errorf("チャンネル行の読み取りに失敗しました: %w", err)
		}
		channels = append(channels, ch)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("チャンネル一覧の走査に失敗しました: %w", err)
	}
	return channels, nil
}

// Create はチャンネルを作成する。
func (r *PostgresChannelRepo) Create(ctx context.Context, ch *model.Channel) error {
	if _, err := r.db.ExecContext(ctx,
		`INSERT INTO channels (id, name, description, creator_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		ch.ID, ch.Name, ch.Description, ch.CreatorID, ch.CreatedAt, ch.UpdatedAt,
	); err != nil {
		return fmt.Errorf("チャンネルの作成に失敗しました: %w", err)
	}
	return nil
}

var _ ChannelRepository = (*PostgresChannelRepo)(nil)

package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/vipchannel/internal/model"
)

// PostgresProfileRepo はPostgreSQLを使用したプロフィールリポジトリ。
type PostgresProfileRepo struct {
	db *sql.DB
}

// NewPostgresProfileRepo はPostgresProfileRepoを生成する。
func NewPostgresProfileRepo(db *sql.DB) *PostgresProfileRepo {
	return &PostgresProfileRepo{db: db}
}

const selectProfile = `SELECT user_id, username, display_name, COALESCE(badge, ''), COALESCE(avatar_url, ''), created_at, updated_at
	FROM profiles`

// FindByUserID は指定ユーザーのプロフィールを取得する。見つからない場合はnilを返す。
// IDがUUID形式でない場合も見つからない扱いとする。
func (r *PostgresProfileRepo) FindByUserID(ctx context.Context, userID string) (*model.Profile, error) {
	if !isUUID(userID) {
		return nil, nil
	}
	return r.findOne(ctx, selectProfile+` WHERE user_id = $1`, userID)
}

// FindByUsername はユーザー名でプロフィールを検索する。見つからない場合はnilを返す。
func (r *PostgresProfileRepo) FindByUsername(ctx context.Context, username string) (*model.Profile, error) {
	return r.findOne(ctx, selectProfile+` WHERE username = $1`, username)
}

func (r *PostgresProfileRepo) findOne(ctx context.Context, query string, arg string) (*model.Profile, error) {
	var p model.Profile
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&p.UserID, &p.Username, &p.DisplayName, &p.Badge, &p.AvatarURL, &p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("プロフィールの取得に失敗しました: %w", err)
	}
	return &p, nil
}

var _ ProfileRepository = (*PostgresProfileRepo)(nil)

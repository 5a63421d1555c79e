package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/vipchannel/internal/model"
)

// PostgresPredictionRepo はPostgreSQLを使用したVIP予想リポジトリ。
type PostgresPredictionRepo struct {
	db *sql.DB
}

// NewPostgresPredictionRepo はPostgresPredictionRepoを生成する。
func NewPostgresPredictionRepo(db *sql.DB) *PostgresPredictionRepo {
	return &PostgresPredictionRepo{db: db}
}

const selectPrediction = `SELECT v.id, v.channel_id, v.author_id, COALESCE(p.display_name, ''),
		v.odds, v.description, v.prediction_text, COALESCE(v.image_ref, ''), v.created_at
	FROM vip_predictions v
	LEFT JOIN profiles p ON p.user_id = v.author_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPrediction(s rowScanner) (*model.Prediction, error) {
	p := &model.Prediction{}
	err := s.Scan(&p.ID, &p.ChannelID, &p.AuthorID, &p.AuthorName,
		&p.Odds, &p.Description, &p.PredictionText, &p.ImageRef, &p.CreatedAt)
	return p, err
}

// ListByChannelID はチャンネルの予想を作成日時の昇順で返す。
func (r *PostgresPredictionRepo) ListByChannelID(ctx context.Context, channelID string) ([]*model.Prediction, error) {
	rows, err := r.db.QueryContext(ctx,
		selectPrediction+` WHERE v.channel_id = $1 ORDER BY v.created_at ASC, v.id ASC`,
		channelID,
	)
	if err != nil {
		return nil, fmt.Errorf("予想一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	predictions := []*model.Prediction{}
	for rows.Next() {
		p, err := scanPrediction(rows)
		if err != nil {
			return nil, fmt.Errorf("予想行の読み取りに失敗しました: %w", err)
		}
		predictions = append(predictions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("予想一覧の走査に失敗しました: %w", err)
	}
	return predictions, nil
}

// FindByID は指定IDの予想を取得する。見つからない場合はnilを返す。
func (r *PostgresPredictionRepo) FindByID(ctx context.Context, id string) (*model.Prediction, error) {
	if !isUUID(id) {
		return nil, nil
	}
	p, err := scanPrediction(r.db.QueryRowContext(ctx, selectPrediction+` WHERE v.id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("予想の取得に失敗しました: %w", err)
	}
	return p, nil
}

// CreateWithEvent は予想とアウトボックスイベントを同一トランザクションで作成する。
func (r *PostgresPredictionRepo) CreateWithEvent(ctx context.Context, p *model.Prediction, event *model.ChannelEvent) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO vip_predictions (id, channel_id, author_id, odds, description, prediction_text, image_ref, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8)`,
			p.ID, p.ChannelID, p.AuthorID, p.Odds, p.Description, p.PredictionText, p.ImageRef, p.CreatedAt,
		); err != nil {
			return fmt.Errorf("予想の作成に失敗しました: %w", err)
		}
		return insertEvent(ctx, tx, event)
	})
}

var _ PredictionRepository = (*PostgresPredictionRepo)(nil)

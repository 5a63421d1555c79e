// Package seed はデモ用の作成者、VIPチャンネル、予想を投入する。
// 同じシード値からは同じ予想が生成される。
package seed

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"

	"github.com/hitoshi/vipchannel/internal/channel"
	"github.com/hitoshi/vipchannel/internal/model"
	"github.com/hitoshi/vipchannel/internal/prediction"
	"github.com/hitoshi/vipchannel/internal/repository"
)

// DefaultPredictionsPerCreator は作成者ごとに生成する予想の件数。
const DefaultPredictionsPerCreator = 10

// ChannelService は投入に使うチャンネル操作。*channel.Serviceが満たす。
type ChannelService interface {
	Create(ctx context.Context, creatorID, name, description string) (*model.Channel, error)
	Subscribe(ctx context.Context, channelID, userID string) error
	PostPrediction(ctx context.Context, channelID, viewerID string, in channel.PredictionInput) (*model.Prediction, error)
	CreatorProfile(ctx context.Context, userID string) (*model.Profile, []*model.Channel, error)
}

// Config はSeederの設定。
type Config struct {
	PredictionsPerCreator int
	Seed                  uint64
}

// Result は投入結果の件数。
type Result struct {
	CreatorsCreated    int
	CreatorsSkipped    int
	PredictionsCreated int
	Subscriptions      int
}

// Seeder はデモデータの投入処理。
type Seeder struct {
	users    repository.UserRepository
	profiles repository.ProfileRepository
	channels ChannelService
	logger   *slog.Logger
	config   Config
	now      func() time.Time
}

// NewSeeder はSeederを生成する。
func NewSeeder(users repository.UserRepository, profiles repository.ProfileRepository, channels ChannelService, logger *slog.Logger, cfg Config) *Seeder {
	if cfg.PredictionsPerCreator <= 0 {
		cfg.PredictionsPerCreator = DefaultPredictionsPerCreator
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Seeder{
		users:    users,
		profiles: profiles,
		channels: channels,
		logger:   logger,
		config:   cfg,
		now:      time.Now,
	}
}

// Run はデモデータを投入する。
// ユーザー名が既に存在する作成者はスキップし、その作成者の予想は追加しない。
// 最後に各作成者が次の作成者のチャンネルを購読する。
func (s *Seeder) Run(ctx context.Context) (*Result, error) {
	res := &Result{}
	rnd := rand.New(rand.NewPCG(s.config.Seed, s.config.Seed^0x9e3779b97f4a7c15))

	channelIDs := make([]string, len(DemoCreators))
	for i, c := range DemoCreators {
		existing, err := s.profiles.FindByUsername(ctx, c.Username)
		if err != nil {
			return nil, fmt.Errorf("プロフィールの検索に失敗 (%s): %w", c.Username, err)
		}

		if existing != nil {
			res.CreatorsSkipped++
			s.logger.Info("seed creator already exists, skipping",
				slog.String("username", c.Username),
			)
			_, chs, err := s.channels.CreatorProfile(ctx, existing.UserID)
			if err != nil {
				return nil, fmt.Errorf("既存チャンネルの取得に失敗 (%s): %w", c.Username, err)
			}
			if len(chs) > 0 {
				channelIDs[i] = chs[0].ID
			}
			continue
		}

		ch, err := s.createCreator(ctx, c)
		if err != nil {
			return nil, err
		}
		channelIDs[i] = ch.ID
		res.CreatorsCreated++

		for _, draft := range GenerateDrafts(rnd, s.config.PredictionsPerCreator) {
			if _, err := s.channels.PostPrediction(ctx, ch.ID, c.UserID, channel.PredictionInput{Draft: draft}); err != nil {
				return nil, fmt.Errorf("予想の投入に失敗 (%s): %w", c.Username, err)
			}
			res.PredictionsCreated++
		}
	}

	for i, c := range DemoCreators {
		target := channelIDs[(i+1)%len(DemoCreators)]
		if target == "" || target == channelIDs[i] {
			continue
		}
		if err := s.channels.Subscribe(ctx, target, c.UserID); err != nil {
			return nil, fmt.Errorf("購読の投入に失敗 (%s): %w", c.Username, err)
		}
		res.Subscriptions++
	}

	s.logger.Info("seed completed",
		slog.Int("creators_created", res.CreatorsCreated),
		slog.Int("creators_skipped", res.CreatorsSkipped),
		slog.Int("predictions_created", res.PredictionsCreated),
		slog.Int("subscriptions", res.Subscriptions),
	)
	return res, nil
}

func (s *Seeder) createCreator(ctx context.Context, c DemoCreator) (*model.Channel, error) {
	now := s.now()
	user := &model.User{
		ID:        c.UserID,
		Email:     c.Email(),
		Name:      c.DisplayName,
		CreatedAt: now,
		UpdatedAt: now,
	}
	profile := &model.Profile{
		UserID:      c.UserID,
		Username:    c.Username,
		DisplayName: c.DisplayName,
		Badge:       c.Badge,
		AvatarURL:   c.AvatarURL(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.users.CreateWithProfile(ctx, user, profile, nil); err != nil {
		return nil, fmt.Errorf("作成者の投入に失敗 (%s): %w", c.Username, err)
	}

	ch, err := s.channels.Create(ctx, c.UserID, "VIP "+c.DisplayName, "Pronostics VIP de "+c.DisplayName)
	if err != nil {
		return nil, fmt.Errorf("チャンネルの投入に失敗 (%s): %w", c.Username, err)
	}
	return ch, nil
}

// GenerateDrafts は試合一覧、賭けの種類、選択肢ごとのオッズ範囲からn件の予想を生成する。
// オッズは小数点以下2桁に丸める。
func GenerateDrafts(rnd *rand.Rand, n int) []prediction.Draft {
	drafts := make([]prediction.Draft, 0, n)
	for range n {
		m := matches[rnd.IntN(len(matches))]
		bt := betTypes[rnd.IntN(len(betTypes))]
		p := bt.picks[rnd.IntN(len(bt.picks))]
		analysis := analyses[rnd.IntN(len(analyses))]

		drafts = append(drafts, prediction.Draft{
			Odds:           prediction.FormatOdds(generateOdds(rnd, p.odds)),
			Description:    fmt.Sprintf("%s vs %s (%s, %s %s)\n%s", m.home, m.away, m.competition, m.date, m.time, analysis),
			PredictionText: bt.name + ": " + p.label,
		})
	}
	return drafts
}

func generateOdds(rnd *rand.Rand, r oddsRange) float64 {
	if r.max <= r.min {
		r = defaultOddsRange
	}
	v := r.min + rnd.Float64()*(r.max-r.min)
	return math.Round(v*100) / 100
}

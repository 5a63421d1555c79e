// Package relay はチャンネルイベントのアウトボックスをKafkaへ中継するワーカーを提供する。
// 送信期限を迎えたイベントを定期的に取得し、並列数を制御しながら送信する。
package relay

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/vipchannel/internal/metrics"
	"github.com/hitoshi/vipchannel/internal/model"
	"github.com/hitoshi/vipchannel/internal/repository"
)

const (
	defaultBatchSize      = 100
	defaultMaxConcurrency = 10
	// claimLease は取得したイベントを他のワーカーから隠す期間。
	claimLease = 2 * time.Minute
)

// Publisher はイベントの送信先。
type Publisher interface {
	Publish(ctx context.Context, key string, value []byte) error
}

// Config はRelayの動作設定。
type Config struct {
	BatchSize      int
	MaxConcurrency int
}

// Relay はアウトボックスイベントの中継ワーカー。
type Relay struct {
	events    repository.EventRepository
	publisher Publisher
	metrics   metrics.MetricsCollector
	logger    *slog.Logger

	batchSize      int
	maxConcurrency int
	now            func() time.Time
}

// New はRelayを生成する。0以下の設定値にはデフォルト値を使用する。
func New(events repository.EventRepository, publisher Publisher, m metrics.MetricsCollector, logger *slog.Logger, cfg Config) *Relay {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = defaultMaxConcurrency
	}
	if m == nil {
		m = metrics.Nop{}
	}
	return &Relay{
		events:         events,
		publisher:      publisher,
		metrics:        m,
		logger:         logger,
		batchSize:      cfg.BatchSize,
		maxConcurrency: cfg.MaxConcurrency,
		now:            time.Now,
	}
}

// Start はinterval間隔でRunOnceを繰り返す。コンテキストがキャンセルされるまで実行を継続する。
func (r *Relay) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.logger.Info("イベント中継を開始しました",
		slog.Duration("interval", interval),
		slog.Int("batch_size", r.batchSize),
		slog.Int("max_concurrency", r.maxConcurrency),
	)

	r.runLogged(ctx)
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("イベント中継を停止しました")
			return
		case <-ticker.C:
			r.runLogged(ctx)
		}
	}
}

func (r *Relay) runLogged(ctx context.Context) {
	if _, err := r.RunOnce(ctx); err != nil {
		r.logger.Error("イベント中継サイクルの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}
}

// RunOnce は送信対象イベントを1回取得して送信し、送信に成功した件数を返す。
// 個々のイベントの送信失敗はバックオフとして記録し、エラーとしては返さない。
func (r *Relay) RunOnce(ctx context.Context) (int, error) {
	events, err := r.events.ClaimDue(ctx, r.batchSize, claimLease)
	if err != nil {
		return 0, err
	}
	if len(events) == 0 {
		return 0, nil
	}

	start := r.now()
	sem := make(chan struct{}, r.maxConcurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex
	published := 0

	for _, event := range events {
		wg.Add(1)
		sem <- struct{}{}

		go func(e *model.ChannelEvent) {
			defer wg.Done()
			defer func() { <-sem }()

			if r.deliver(ctx, e) {
				mu.Lock()
				published++
				mu.Unlock()
			}
		}(event)
	}
	wg.Wait()

	r.logger.Info("イベント中継サイクルが完了しました",
		slog.Int("claimed", len(events)),
		slog.Int("published", published),
		slog.Float64("duration_ms", float64(r.now().Sub(start).Milliseconds())),
	)
	return published, nil
}

// deliver は1件のイベントを送信し、結果を記録する。送信できた場合にtrueを返す。
func (r *Relay) deliver(ctx context.Context, e *model.ChannelEvent) bool {
	if err := r.publisher.Publish(ctx, e.ChannelID, e.Payload); err != nil {
		r.recordFailure(ctx, e, err)
		return false
	}

	if err := r.events.MarkPublished(ctx, e.ID, r.now()); err != nil {
		// 送信済みのため、次回の再送は受信側のevent_idで重複排除される
		r.logger.Error("イベントの送信済み更新に失敗しました",
			slog.String("event_id", e.ID),
			slog.String("error", err.Error()),
		)
		return false
	}
	r.metrics.RecordEventPublished(string(e.Kind))
	return true
}

func (r *Relay) recordFailure(ctx context.Context, e *model.ChannelEvent, cause error) {
	attempts, next, dead := NextAttempt(e.Attempts, r.now())
	r.metrics.RecordEventFailure(dead)

	level := slog.LevelWarn
	if dead {
		level = slog.LevelError
	}
	r.logger.Log(ctx, level, "イベントの送信に失敗しました",
		slog.String("event_id", e.ID),
		slog.String("kind", string(e.Kind)),
		slog.Int("attempts", attempts),
		slog.Bool("dead", dead),
		slog.String("error", cause.Error()),
	)

	if err := r.events.MarkFailed(ctx, e.ID, attempts, next, cause.Error(), dead); err != nil {
		r.logger.Error("イベントの失敗記録に失敗しました",
			slog.String("event_id", e.ID),
			slog.String("error", err.Error()),
		)
	}
}

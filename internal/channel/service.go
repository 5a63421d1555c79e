package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/vipchannel/internal/feed"
	"github.com/hitoshi/vipchannel/internal/metrics"
	"github.com/hitoshi/vipchannel/internal/model"
	"github.com/hitoshi/vipchannel/internal/prediction"
	"github.com/hitoshi/vipchannel/internal/repository"
	"github.com/hitoshi/vipchannel/internal/security"
)

// defaultImageURLTTL は画像の署名付きURLのデフォルト有効期間。
const defaultImageURLTTL = 15 * time.Minute

// ImageStore は予想画像を保存するオブジェクトストレージのインターフェース。
type ImageStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Remove(ctx context.Context, key string) error
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// ImageFetcher は外部URLから画像を取得するインターフェース。
type ImageFetcher interface {
	Fetch(ctx context.Context, rawURL string) (*security.FetchedImage, error)
}

// SubscriberCountCache は購読者数のキャッシュ。
// 購読状態そのものはキャッシュせず、件数表示のみに使用する。
type SubscriberCountCache interface {
	Get(ctx context.Context, channelID string) (count int, ok bool, err error)
	Set(ctx context.Context, channelID string, count int) error
	Invalidate(ctx context.Context, channelID string) error
}

// Deps はServiceの依存を表す。
// Images、Fetcher、Countsはnilでもよく、その場合は該当機能が無効になる。
type Deps struct {
	Channels      repository.ChannelRepository
	Profiles      repository.ProfileRepository
	Subscriptions repository.ChannelSubscriptionRepository
	Messages      repository.MessageRepository
	Predictions   repository.PredictionRepository

	Images    ImageStore
	Fetcher   ImageFetcher
	Counts    SubscriberCountCache
	Sanitizer security.TextSanitizer
	Metrics   metrics.MetricsCollector
	Logger    *slog.Logger

	ImageURLTTL time.Duration
	Now         func() time.Time
}

// Service はVIPチャンネルのドメインサービス。
type Service struct {
	channels      repository.ChannelRepository
	profiles      repository.ProfileRepository
	subscriptions repository.ChannelSubscriptionRepository
	messages      repository.MessageRepository
	predictions   repository.PredictionRepository

	images    ImageStore
	fetcher   ImageFetcher
	counts    SubscriberCountCache
	sanitizer security.TextSanitizer
	metrics   metrics.MetricsCollector
	logger    *slog.Logger

	imageURLTTL time.Duration
	now         func() time.Time
}

// NewService はServiceを生成する。未指定の補助依存にはデフォルトを設定する。
func NewService(d Deps) *Service {
	s := &Service{
		channels:      d.Channels,
		profiles:      d.Profiles,
		subscriptions: d.Subscriptions,
		messages:      d.Messages,
		predictions:   d.Predictions,
		images:        d.Images,
		fetcher:       d.Fetcher,
		counts:        d.Counts,
		sanitizer:     d.Sanitizer,
		metrics:       d.Metrics,
		logger:        d.Logger,
		imageURLTTL:   d.ImageURLTTL,
		now:           d.Now,
	}
	if s.sanitizer == nil {
		s.sanitizer = security.NewTextSanitizer()
	}
	if s.metrics == nil {
		s.metrics = metrics.Nop{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.imageURLTTL <= 0 {
		s.imageURLTTL = defaultImageURLTTL
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// CreatorSummary はチャンネルヘッダーに表示する作成者情報。
type CreatorSummary struct {
	UserID      string
	DisplayName string
	Badge       string
	AvatarURL   string
}

// View はチャンネル画面の表示に必要なデータ一式。
// EmptyStateはEntriesが空の場合のみ設定される。
type View struct {
	Channel         *model.Channel
	Creator         CreatorSummary
	SubscriberCount int
	Role            model.ViewerRole
	Capabilities    Capabilities
	Entries         []feed.Entry
	EmptyState      *feed.EmptyState
}

// PredictionInput はVIP予想の投稿入力。
// ImageURLはDraft.Imageが未指定の場合にのみ使用される。
type PredictionInput struct {
	Draft    prediction.Draft
	ImageURL string
}

// Load はチャンネルを閲覧者の視点で読み込む。
// 購読状態は呼び出しごとに確認し、セッション単位でキャッシュしない。
func (s *Service) Load(ctx context.Context, channelID, viewerID string) (*View, error) {
	start := s.now()

	ch, err := s.findChannel(ctx, channelID)
	if err != nil {
		return nil, err
	}

	role, err := s.resolveRole(ctx, ch, viewerID)
	if err != nil {
		return nil, err
	}

	creator, err := s.creatorSummary(ctx, ch.CreatorID)
	if err != nil {
		return nil, err
	}

	count, err := s.CountSubscribers(ctx, ch.ID)
	if err != nil {
		return nil, err
	}

	messages, err := s.messages.ListByChannelID(ctx, ch.ID)
	if err != nil {
		return nil, fmt.Errorf("メッセージの取得に失敗: %w", err)
	}
	predictions, err := s.predictions.ListByChannelID(ctx, ch.ID)
	if err != nil {
		return nil, fmt.Errorf("予想の取得に失敗: %w", err)
	}

	view := &View{
		Channel:         ch,
		Creator:         creator,
		SubscriberCount: count,
		Role:            role,
		Capabilities:    CapabilitiesFor(role),
		Entries:         feed.Compose(messages, predictions),
	}
	if len(view.Entries) == 0 {
		empty := feed.EmptyStateFor(role)
		view.EmptyState = &empty
	}

	s.metrics.RecordChannelLoad(s.now().Sub(start))
	return view, nil
}

// Create はチャンネルを作成する。作成者は暗黙的にメンバーとなるため購読は作成しない。
func (s *Service) Create(ctx context.Context, creatorID, name, description string) (*model.Channel, error) {
	name = s.sanitizer.Sanitize(name)
	if name == "" {
		return nil, model.NewInvalidChannelNameError()
	}

	now := s.now()
	ch := &model.Channel{
		ID:          uuid.New().String(),
		Name:        name,
		Description: s.sanitizer.Sanitize(description),
		CreatorID:   creatorID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.channels.Create(ctx, ch); err != nil {
		return nil, fmt.Errorf("チャンネルの作成に失敗: %w", err)
	}

	s.logger.Info("チャンネルを作成しました",
		slog.String("channel_id", ch.ID),
		slog.String("creator_id", creatorID),
	)
	return ch, nil
}

// Subscribe はユーザーをチャンネルの購読者として登録する。既に購読済みの場合は成功とする。
func (s *Service) Subscribe(ctx context.Context, channelID, userID string) error {
	ch, err := s.findChannel(ctx, channelID)
	if err != nil {
		return err
	}
	if ch.CreatorID == userID {
		return model.NewAlreadyMemberError()
	}

	sub := &model.ChannelSubscription{
		ChannelID: ch.ID,
		UserID:    userID,
		JoinedAt:  s.now(),
	}
	if err := s.subscriptions.Create(ctx, sub); err != nil {
		return fmt.Errorf("購読の登録に失敗: %w", err)
	}
	s.invalidateCount(ctx, ch.ID)
	return nil
}

// Unsubscribe はチャンネルの購読を解除する。購読していない場合も成功とする。
// 解除後の最初の読み込みから閲覧者はGuestとして扱われる。
func (s *Service) Unsubscribe(ctx context.Context, channelID, userID string) error {
	ch, err := s.findChannel(ctx, channelID)
	if err != nil {
		return err
	}
	if err := s.subscriptions.Delete(ctx, ch.ID, userID); err != nil {
		return fmt.Errorf("購読の解除に失敗: %w", err)
	}
	s.invalidateCount(ctx, ch.ID)
	return nil
}

// PostMessage は作成者としてメッセージを投稿する。
// 作成者以外の場合は書き込み前にPERMISSION_DENIEDを返す。
// HTMLを除去した本文が空の場合はEMPTY_MESSAGEを返し、何も追加しない。
func (s *Service) PostMessage(ctx context.Context, channelID, viewerID, body string) (*model.Message, error) {
	ch, err := s.findChannel(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeWrite(ch, viewerID, "message"); err != nil {
		return nil, err
	}

	body = s.sanitizer.Sanitize(body)
	if body == "" {
		s.metrics.RecordWriteRejected(metrics.RejectValidation)
		return nil, model.NewEmptyMessageError()
	}

	msg := &model.Message{
		ID:        uuid.New().String(),
		ChannelID: ch.ID,
		AuthorID:  viewerID,
		Body:      body,
		CreatedAt: s.now(),
	}
	event, err := s.newEvent(model.EventMessagePosted, ch.ID, msg.ID, msg.CreatedAt, messagePayload{
		AuthorID: msg.AuthorID,
		Body:     msg.Body,
	})
	if err != nil {
		return nil, err
	}
	if err := s.messages.CreateWithEvent(ctx, msg, event); err != nil {
		return nil, fmt.Errorf("メッセージの保存に失敗: %w", err)
	}

	msg.AuthorName = s.displayName(ctx, viewerID)
	s.metrics.RecordMessagePosted()
	s.logger.Info("メッセージを投稿しました",
		slog.String("channel_id", ch.ID),
		slog.String("message_id", msg.ID),
	)
	return msg, nil
}

// PostPrediction は作成者としてVIP予想を投稿する。
//
// 処理順序:
//  1. 作成者であることを確認する
//  2. オッズ・説明・予想本文・添付画像を検証する
//  3. ImageURLが指定されていれば画像を取得して検証する
//  4. 画像をオブジェクトストレージへ保存する
//  5. 予想とイベントを同一トランザクションで保存する（失敗時は保存済み画像を削除する）
func (s *Service) PostPrediction(ctx context.Context, channelID, viewerID string, in PredictionInput) (*model.Prediction, error) {
	ch, err := s.findChannel(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeWrite(ch, viewerID, "prediction"); err != nil {
		return nil, err
	}

	draft := in.Draft
	draft.Description = s.sanitizer.Sanitize(draft.Description)
	draft.PredictionText = s.sanitizer.Sanitize(draft.PredictionText)

	valid, err := prediction.Validate(draft)
	if err != nil {
		s.metrics.RecordWriteRejected(metrics.RejectValidation)
		return nil, err
	}

	if valid.Image == nil && strings.TrimSpace(in.ImageURL) != "" {
		img, err := s.fetchImage(ctx, strings.TrimSpace(in.ImageURL))
		if err != nil {
			s.metrics.RecordWriteRejected(metrics.RejectValidation)
			return nil, err
		}
		valid.Image = img
	}

	p := &model.Prediction{
		ID:             uuid.New().String(),
		ChannelID:      ch.ID,
		AuthorID:       viewerID,
		Odds:           valid.Odds,
		Description:    valid.Description,
		PredictionText: valid.PredictionText,
		CreatedAt:      s.now(),
	}

	if valid.Image != nil {
		if s.images == nil {
			return nil, model.NewImageStorageUnavailableError()
		}
		key := imageKey(ch.ID, p.ID, valid.Image.ContentType)
		if err := s.images.Put(ctx, key, valid.Image.Data, valid.Image.ContentType); err != nil {
			return nil, fmt.Errorf("画像の保存に失敗: %w", err)
		}
		p.ImageRef = key
	}

	event, err := s.newEvent(model.EventPredictionPosted, ch.ID, p.ID, p.CreatedAt, predictionPayload{
		AuthorID:       p.AuthorID,
		Odds:           prediction.FormatOdds(p.Odds),
		Description:    p.Description,
		PredictionText: p.PredictionText,
		HasImage:       p.HasImage(),
	})
	if err == nil {
		err = s.predictions.CreateWithEvent(ctx, p, event)
	}
	if err != nil {
		s.discardImage(p.ImageRef)
		return nil, fmt.Errorf("予想の保存に失敗: %w", err)
	}

	p.AuthorName = s.displayName(ctx, viewerID)
	s.metrics.RecordPredictionPosted(p.HasImage())
	s.logger.Info("VIP予想を投稿しました",
		slog.String("channel_id", ch.ID),
		slog.String("prediction_id", p.ID),
		slog.Bool("with_image", p.HasImage()),
	)
	return p, nil
}

// PredictionImageURL は予想画像の署名付きURLを返す。
// チャンネルを閲覧できるユーザーであれば取得できる。
func (s *Service) PredictionImageURL(ctx context.Context, channelID, predictionID string) (string, error) {
	ch, err := s.findChannel(ctx, channelID)
	if err != nil {
		return "", err
	}

	p, err := s.predictions.FindByID(ctx, predictionID)
	if err != nil {
		return "", fmt.Errorf("予想の取得に失敗: %w", err)
	}
	if p == nil || p.ChannelID != ch.ID || !p.HasImage() {
		return "", model.NewPredictionNotFoundError(predictionID)
	}
	if s.images == nil {
		return "", model.NewImageStorageUnavailableError()
	}

	url, err := s.images.PresignGet(ctx, p.ImageRef, s.imageURLTTL)
	if err != nil {
		return "", fmt.Errorf("署名付きURLの生成に失敗: %w", err)
	}
	return url, nil
}

// CreatorProfile は作成者のプロフィールと作成チャンネル一覧を返す。
func (s *Service) CreatorProfile(ctx context.Context, userID string) (*model.Profile, []*model.Channel, error) {
	p, err := s.profiles.FindByUserID(ctx, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("プロフィールの取得に失敗: %w", err)
	}
	if p == nil {
		return nil, nil, model.NewProfileNotFoundError(userID)
	}
	channels, err := s.channels.ListByCreatorID(ctx, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("チャンネル一覧の取得に失敗: %w", err)
	}
	return p, channels, nil
}

// CountSubscribers はチャンネルの購読者数を返す。キャッシュがあれば優先して使用する。
func (s *Service) CountSubscribers(ctx context.Context, channelID string) (int, error) {
	if s.counts != nil {
		count, ok, err := s.counts.Get(ctx, channelID)
		if err != nil {
			s.logger.Warn("購読者数キャッシュの取得に失敗しました",
				slog.String("channel_id", channelID),
				slog.String("error", err.Error()),
			)
		} else if ok {
			return count, nil
		}
	}

	count, err := s.subscriptions.CountByChannelID(ctx, channelID)
	if err != nil {
		return 0, fmt.Errorf("購読者数の取得に失敗: %w", err)
	}

	if s.counts != nil {
		if err := s.counts.Set(ctx, channelID, count); err != nil {
			s.logger.Warn("購読者数キャッシュの保存に失敗しました",
				slog.String("channel_id", channelID),
				slog.String("error", err.Error()),
			)
		}
	}
	return count, nil
}

func (s *Service) findChannel(ctx context.Context, channelID string) (*model.Channel, error) {
	ch, err := s.channels.FindByID(ctx, channelID)
	if err != nil {
		return nil, fmt.Errorf("チャンネルの取得に失敗: %w", err)
	}
	if ch == nil {
		return nil, model.NewChannelNotFoundError(channelID)
	}
	return ch, nil
}

// resolveRole は作成者でない閲覧者についてのみ購読状態を問い合わせる。
func (s *Service) resolveRole(ctx context.Context, ch *model.Channel, viewerID string) (model.ViewerRole, error) {
	if role := ResolveRole(ch.CreatorID, viewerID, false); role == model.RoleCreator {
		return role, nil
	}
	subscribed, err := s.subscriptions.Exists(ctx, ch.ID, viewerID)
	if err != nil {
		return "", fmt.Errorf("購読状態の確認に失敗: %w", err)
	}
	return ResolveRole(ch.CreatorID, viewerID, subscribed), nil
}

// authorizeWrite は書き込み操作の直前に作成者であることを確認する。
// 購読状態は投稿権限に影響しないため問い合わせない。
func (s *Service) authorizeWrite(ch *model.Channel, viewerID, kind string) error {
	if ResolveRole(ch.CreatorID, viewerID, false).CanPost() {
		return nil
	}
	s.metrics.RecordWriteRejected(metrics.RejectPermission)
	s.logger.Warn("作成者以外による書き込みを拒否しました",
		slog.String("channel_id", ch.ID),
		slog.String("user_id", viewerID),
		slog.String("kind", kind),
	)
	return model.NewPermissionDeniedError()
}

func (s *Service) creatorSummary(ctx context.Context, creatorID string) (CreatorSummary, error) {
	summary := CreatorSummary{UserID: creatorID, DisplayName: model.DefaultDisplayName}
	p, err := s.profiles.FindByUserID(ctx, creatorID)
	if err != nil {
		return summary, fmt.Errorf("作成者プロフィールの取得に失敗: %w", err)
	}
	if p != nil {
		if p.DisplayName != "" {
			summary.DisplayName = p.DisplayName
		}
		summary.Badge = p.Badge
		summary.AvatarURL = p.AvatarURL
	}
	return summary, nil
}

// displayName は投稿直後のレスポンス用に投稿者名を解決する。取得に失敗した場合はデフォルト名とする。
func (s *Service) displayName(ctx context.Context, userID string) string {
	p, err := s.profiles.FindByUserID(ctx, userID)
	if err != nil || p == nil || p.DisplayName == "" {
		return model.DefaultDisplayName
	}
	return p.DisplayName
}

func (s *Service) fetchImage(ctx context.Context, rawURL string) (*prediction.Image, error) {
	if s.fetcher == nil {
		return nil, model.NewImageFetchFailedError("画像URLからの取得は無効です")
	}

	fetched, err := s.fetcher.Fetch(ctx, rawURL)
	if errors.Is(err, security.ErrImageTooLarge) {
		return nil, model.NewImageTooLargeError(prediction.MaxImageSize+1, prediction.MaxImageSize)
	}
	if err != nil {
		s.logger.Info("画像URLの取得に失敗しました",
			slog.String("url", rawURL),
			slog.String("error", err.Error()),
		)
		return nil, model.NewImageFetchFailedError("URLにアクセスできません")
	}

	return prediction.CheckImage(&prediction.Image{
		Filename:    fetched.Filename,
		ContentType: fetched.ContentType,
		Data:        fetched.Data,
	})
}

// discardImage はDB保存に失敗した予想の画像を削除する。
// 呼び出し元のコンテキストがキャンセル済みでも削除できるよう独立したコンテキストを使う。
func (s *Service) discardImage(key string) {
	if key == "" || s.images == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.images.Remove(ctx, key); err != nil {
		s.logger.Error("孤立した予想画像の削除に失敗しました",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
}

func (s *Service) invalidateCount(ctx context.Context, channelID string) {
	if s.counts == nil {
		return
	}
	if err := s.counts.Invalidate(ctx, channelID); err != nil {
		s.logger.Warn("購読者数キャッシュの無効化に失敗しました",
			slog.String("channel_id", channelID),
			slog.String("error", err.Error()),
		)
	}
}

// imageKey は予想画像のオブジェクトキーを返す。
func imageKey(channelID, predictionID, contentType string) string {
	return fmt.Sprintf("predictions/%s/%s%s", channelID, predictionID, prediction.Extension(contentType))
}

package handler

import (
	"context"

	"github.com/hitoshi/vipchannel/internal/channel"
	"github.com/hitoshi/vipchannel/internal/feed"
	"github.com/hitoshi/vipchannel/internal/model"
	"github.com/hitoshi/vipchannel/internal/prediction"
	"github.com/hitoshi/vipchannel/internal/user"
)

// ChannelServiceAdapter は channel.Service を ChannelServiceInterface と ProfileServiceInterface に適合させるアダプタ。
type ChannelServiceAdapter struct {
	svc *channel.Service
}

// NewChannelServiceAdapter はChannelServiceAdapterを生成する。
func NewChannelServiceAdapter(svc *channel.Service) *ChannelServiceAdapter {
	return &ChannelServiceAdapter{svc: svc}
}

// Create はチャンネルを作成しhandlerレスポンス型で返す。
func (a *ChannelServiceAdapter) Create(ctx context.Context, creatorID, name, description string) (*channelResponse, error) {
	ch, err := a.svc.Create(ctx, creatorID, name, description)
	if err != nil {
		return nil, err
	}
	resp := toChannelResponse(ch)
	return &resp, nil
}

// Load はチャンネル画面のデータをhandlerレスポンス型で返す。
func (a *ChannelServiceAdapter) Load(ctx context.Context, channelID, viewerID string) (*channelViewResponse, error) {
	view, err := a.svc.Load(ctx, channelID, viewerID)
	if err != nil {
		return nil, err
	}
	return toChannelViewResponse(view), nil
}

// PostMessage はメッセージを投稿しhandlerレスポンス型で返す。
func (a *ChannelServiceAdapter) PostMessage(ctx context.Context, channelID, viewerID, body string) (*messageResponse, error) {
	msg, err := a.svc.PostMessage(ctx, channelID, viewerID, body)
	if err != nil {
		return nil, err
	}
	resp := toMessageResponse(msg)
	return &resp, nil
}

// PostPrediction はVIP予想を投稿しhandlerレスポンス型で返す。
func (a *ChannelServiceAdapter) PostPrediction(ctx context.Context, channelID, viewerID string, in channel.PredictionInput) (*predictionResponse, error) {
	p, err := a.svc.PostPrediction(ctx, channelID, viewerID, in)
	if err != nil {
		return nil, err
	}
	resp := toPredictionResponse(p)
	return &resp, nil
}

// PredictionImageURL は予想画像の署名付きURLを返す。
func (a *ChannelServiceAdapter) PredictionImageURL(ctx context.Context, channelID, predictionID string) (string, error) {
	return a.svc.PredictionImageURL(ctx, channelID, predictionID)
}

// Subscribe はチャンネルを購読する。
func (a *ChannelServiceAdapter) Subscribe(ctx context.Context, channelID, userID string) error {
	return a.svc.Subscribe(ctx, channelID, userID)
}

// Unsubscribe はチャンネルの購読を解除する。
func (a *ChannelServiceAdapter) Unsubscribe(ctx context.Context, channelID, userID string) error {
	return a.svc.Unsubscribe(ctx, channelID, userID)
}

// GetProfile は作成者プロフィールと作成チャンネル一覧をhandlerレスポンス型で返す。
func (a *ChannelServiceAdapter) GetProfile(ctx context.Context, userID string) (*profileResponse, error) {
	p, channels, err := a.svc.CreatorProfile(ctx, userID)
	if err != nil {
		return nil, err
	}

	resp := &profileResponse{
		UserID:      p.UserID,
		Username:    p.Username,
		DisplayName: p.DisplayName,
		Badge:       p.Badge,
		AvatarURL:   p.AvatarURL,
		Channels:    make([]channelResponse, len(channels)),
	}
	for i, ch := range channels {
		resp.Channels[i] = toChannelResponse(ch)
	}
	return resp, nil
}

func toChannelResponse(ch *model.Channel) channelResponse {
	return channelResponse{
		ID:          ch.ID,
		Name:        ch.Name,
		Description: ch.Description,
		CreatorID:   ch.CreatorID,
		CreatedAt:   ch.CreatedAt,
	}
}

// toChannelViewResponse はドメインのViewをhandlerのレスポンス型に変換する。
// entriesは空の場合も空配列としてシリアライズする。
func toChannelViewResponse(v *channel.View) *channelViewResponse {
	resp := &channelViewResponse{
		Channel: toChannelResponse(v.Channel),
		Creator: creatorResponse{
			UserID:      v.Creator.UserID,
			DisplayName: v.Creator.DisplayName,
			Badge:       v.Creator.Badge,
			AvatarURL:   v.Creator.AvatarURL,
		},
		SubscriberCount: v.SubscriberCount,
		Role:            v.Role,
		Capabilities: capabilitiesResponse{
			CanRead:           v.Capabilities.CanRead,
			CanPostMessage:    v.Capabilities.CanPostMessage,
			CanPostPrediction: v.Capabilities.CanPostPrediction,
		},
		Entries: make([]entryResponse, len(v.Entries)),
	}
	for i, e := range v.Entries {
		resp.Entries[i] = toEntryResponse(e)
	}
	if v.EmptyState != nil {
		resp.EmptyState = &emptyStateResponse{
			Kind:    string(v.EmptyState.Kind),
			Title:   v.EmptyState.Title,
			Message: v.EmptyState.Message,
		}
	}
	return resp
}

func toEntryResponse(e feed.Entry) entryResponse {
	if e.Kind == feed.KindPrediction {
		p := e.Prediction
		resp := entryResponse{
			Kind:           string(feed.KindPrediction),
			ID:             p.ID,
			AuthorID:       p.AuthorID,
			AuthorName:     p.AuthorName,
			CreatedAt:      p.CreatedAt,
			Odds:           prediction.FormatOdds(p.Odds),
			Description:    p.Description,
			PredictionText: p.PredictionText,
			HasImage:       p.HasImage(),
		}
		if p.HasImage() {
			resp.ImageURL = predictionImagePath(p.ChannelID, p.ID)
		}
		return resp
	}

	m := e.Message
	return entryResponse{
		Kind:       string(feed.KindMessage),
		ID:         m.ID,
		AuthorID:   m.AuthorID,
		AuthorName: m.AuthorName,
		CreatedAt:  m.CreatedAt,
		Body:       m.Body,
	}
}

func toMessageResponse(m *model.Message) messageResponse {
	return messageResponse{
		ID:         m.ID,
		ChannelID:  m.ChannelID,
		AuthorID:   m.AuthorID,
		AuthorName: m.AuthorName,
		Body:       m.Body,
		CreatedAt:  m.CreatedAt,
	}
}

func toPredictionResponse(p *model.Prediction) predictionResponse {
	resp := predictionResponse{
		ID:             p.ID,
		ChannelID:      p.ChannelID,
		AuthorID:       p.AuthorID,
		AuthorName:     p.AuthorName,
		Odds:           prediction.FormatOdds(p.Odds),
		Description:    p.Description,
		PredictionText: p.PredictionText,
		HasImage:       p.HasImage(),
		CreatedAt:      p.CreatedAt,
	}
	if p.HasImage() {
		resp.ImageURL = predictionImagePath(p.ChannelID, p.ID)
	}
	return resp
}

// UserServiceAdapter は user.Service を UserServiceInterface に適合させるアダプタ。
type UserServiceAdapter struct {
	svc *user.Service
}

// NewUserServiceAdapter はUserServiceAdapterを生成する。
func NewUserServiceAdapter(svc *user.Service) *UserServiceAdapter {
	return &UserServiceAdapter{svc: svc}
}

// Withdraw はユーザーの退会処理を実行する。
func (a *UserServiceAdapter) Withdraw(ctx context.Context, userID string) error {
	return a.svc.Withdraw(ctx, userID)
}

// --- compile-time interface checks ---

var _ ChannelServiceInterface = (*ChannelServiceAdapter)(nil)
var _ ProfileServiceInterface = (*ChannelServiceAdapter)(nil)
var _ UserServiceInterface = (*UserServiceAdapter)(nil)

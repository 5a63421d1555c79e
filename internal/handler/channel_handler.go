package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/vipchannel/internal/channel"
	"github.com/hitoshi/vipchannel/internal/middleware"
	"github.com/hitoshi/vipchannel/internal/model"
	"github.com/hitoshi/vipchannel/internal/prediction"
)

// maxMultipartMemory は予想投稿フォームをメモリに保持する上限。
const maxMultipartMemory = 8 << 20

// maxPredictionFormSize は予想投稿リクエストボディ全体の上限。画像上限にテキスト分を加えた値。
const maxPredictionFormSize = prediction.MaxImageSize + 1<<20

// maxJSONBodySize はJSONリクエストボディの上限。
const maxJSONBodySize = 64 << 10

// ChannelServiceInterface はチャンネルハンドラーが必要とするサービスインターフェース。
type ChannelServiceInterface interface {
	// Create はチャンネルを作成する。
	Create(ctx context.Context, creatorID, name, description string) (*channelResponse, error)
	// Load は閲覧者の視点でチャンネルを読み込む。
	Load(ctx context.Context, channelID, viewerID string) (*channelViewResponse, error)
	// PostMessage は作成者としてメッセージを投稿する。
	PostMessage(ctx context.Context, channelID, viewerID, body string) (*messageResponse, error)
	// PostPrediction は作成者としてVIP予想を投稿する。
	PostPrediction(ctx context.Context, channelID, viewerID string, in channel.PredictionInput) (*predictionResponse, error)
	// PredictionImageURL は予想画像の署名付きURLを返す。
	PredictionImageURL(ctx context.Context, channelID, predictionID string) (string, error)
	// Subscribe はチャンネルを購読する。
	Subscribe(ctx context.Context, channelID, userID string) error
	// Unsubscribe はチャンネルの購読を解除する。
	Unsubscribe(ctx context.Context, channelID, userID string) error
}

// ChannelHandler はVIPチャンネルのHTTPハンドラー。
type ChannelHandler struct {
	service ChannelServiceInterface
}

// NewChannelHandler はChannelHandlerを生成する。
func NewChannelHandler(service ChannelServiceInterface) *ChannelHandler {
	return &ChannelHandler{service: service}
}

// createChannelRequest はチャンネル作成リクエストのボディ。
type createChannelRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// postMessageRequest はメッセージ投稿リクエストのボディ。
type postMessageRequest struct {
	Body string `json:"body"`
}

// channelResponse はチャンネル情報のAPIレスポンス。
type channelResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatorID   string    `json:"creator_id"`
	CreatedAt   time.Time `json:"created_at"`
}

type creatorResponse struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	Badge       string `json:"badge,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

type capabilitiesResponse struct {
	CanRead           bool `json:"can_read"`
	CanPostMessage    bool `json:"can_post_message"`
	CanPostPrediction bool `json:"can_post_prediction"`
}

// entryResponse はフィード要素のAPIレスポンス。kindに応じて一方のフィールド群のみ設定される。
type entryResponse struct {
	Kind       string    `json:"kind"`
	ID         string    `json:"id"`
	AuthorID   string    `json:"author_id"`
	AuthorName string    `json:"author_name"`
	CreatedAt  time.Time `json:"created_at"`

	Body string `json:"body,omitempty"`

	Odds           string `json:"odds,omitempty"`
	Description    string `json:"description,omitempty"`
	PredictionText string `json:"prediction_text,omitempty"`
	HasImage       bool   `json:"has_image,omitempty"`
	ImageURL       string `json:"image_url,omitempty"`
}

type emptyStateResponse struct {
	Kind    string `json:"kind"`
	Title   string `json:"title"`
	Message string `json:"message"`
}

// channelViewResponse はチャンネル画面のAPIレスポンス。
type channelViewResponse struct {
	Channel         channelResponse      `json:"channel"`
	Creator         creatorResponse      `json:"creator"`
	SubscriberCount int                  `json:"subscriber_count"`
	Role            model.ViewerRole     `json:"role"`
	Capabilities    capabilitiesResponse `json:"capabilities"`
	Entries         []entryResponse      `json:"entries"`
	EmptyState      *emptyStateResponse  `json:"empty_state"`
}

// messageResponse は投稿されたメッセージのAPIレスポンス。
type messageResponse struct {
	ID         string    `json:"id"`
	ChannelID  string    `json:"channel_id"`
	AuthorID   string    `json:"author_id"`
	AuthorName string    `json:"author_name"`
	Body       string    `json:"body"`
	CreatedAt  time.Time `json:"created_at"`
}

// predictionResponse は投稿されたVIP予想のAPIレスポンス。
type predictionResponse struct {
	ID             string    `json:"id"`
	ChannelID      string    `json:"channel_id"`
	AuthorID       string    `json:"author_id"`
	AuthorName     string    `json:"author_name"`
	Odds           string    `json:"odds"`
	Description    string    `json:"description"`
	PredictionText string    `json:"prediction_text"`
	HasImage       bool      `json:"has_image"`
	ImageURL       string    `json:"image_url,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// CreateChannel はチャンネルを作成する。
// POST /api/channels
func (h *ChannelHandler) CreateChannel(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	var req createChannelRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeInvalidRequest(w, "リクエストボディが不正です。")
		return
	}

	ch, err := h.service.Create(r.Context(), userID, req.Name, req.Description)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, ch)
}

// GetChannel はチャンネルを閲覧者の視点で返す。
// GET /api/channels/{id}
func (h *ChannelHandler) GetChannel(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	view, err := h.service.Load(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, view)
}

// PostMessage はメッセージを投稿する。
// POST /api/channels/{id}/messages
func (h *ChannelHandler) PostMessage(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	var req postMessageRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeInvalidRequest(w, "リクエストボディが不正です。")
		return
	}

	msg, err := h.service.PostMessage(r.Context(), chi.URLParam(r, "id"), userID, req.Body)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, msg)
}

// PostPrediction はVIP予想を投稿する。
// POST /api/channels/{id}/predictions
//
// multipart/form-data で odds、description、prediction_text を受け取る。
// 画像はファイル（image）またはURL（image_url）のいずれかで任意に添付できる。
func (h *ChannelHandler) PostPrediction(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxPredictionFormSize)
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			handleServiceError(w, model.NewImageTooLargeError(r.ContentLength, prediction.MaxImageSize))
			return
		}
		writeInvalidRequest(w, "フォームの形式が不正です。")
		return
	}
	defer r.MultipartForm.RemoveAll()

	in := channel.PredictionInput{
		Draft: prediction.Draft{
			Odds:           r.FormValue("odds"),
			Description:    r.FormValue("description"),
			PredictionText: r.FormValue("prediction_text"),
		},
		ImageURL: r.FormValue("image_url"),
	}

	img, err := readImagePart(r)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	in.Draft.Image = img

	p, err := h.service.PostPrediction(r.Context(), chi.URLParam(r, "id"), userID, in)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, p)
}

// GetPredictionImage は予想画像の署名付きURLへリダイレクトする。
// GET /api/channels/{id}/predictions/{predictionID}/image
func (h *ChannelHandler) GetPredictionImage(w http.ResponseWriter, r *http.Request) {
	if _, err := middleware.UserIDFromContext(r.Context()); err != nil {
		writeUnauthorized(w)
		return
	}

	location, err := h.service.PredictionImageURL(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "predictionID"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Cache-Control", "private, no-store")
	http.Redirect(w, r, location, http.StatusFound)
}

// Subscribe はチャンネルを購読する。
// POST /api/channels/{id}/subscription
func (h *ChannelHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	if err := h.service.Subscribe(r.Context(), chi.URLParam(r, "id"), userID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Unsubscribe はチャンネルの購読を解除する。
// DELETE /api/channels/{id}/subscription
func (h *ChannelHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	if err := h.service.Unsubscribe(r.Context(), chi.URLParam(r, "id"), userID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// readImagePart はフォームの画像ファイルを読み込む。ファイルがない場合はnilを返す。
func readImagePart(r *http.Request) (*prediction.Image, error) {
	file, header, err := r.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, model.NewInvalidImageError("unreadable")
	}
	defer file.Close()

	if err := prediction.CheckSize(header.Size); err != nil {
		return nil, err
	}

	data, err := io.ReadAll(io.LimitReader(file, prediction.MaxImageSize+1))
	if err != nil {
		return nil, model.NewInvalidImageError("unreadable")
	}

	return &prediction.Image{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

// decodeJSONBody はサイズ上限付きでJSONボディをデコードする。
func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodySize)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("unexpected trailing data")
	}
	return nil
}

// predictionImagePath は予想画像取得エンドポイントのパスを返す。
func predictionImagePath(channelID, predictionID string) string {
	return "/api/channels/" + url.PathEscape(channelID) + "/predictions/" + url.PathEscape(predictionID) + "/image"
}

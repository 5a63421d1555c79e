package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/vipchannel/internal/middleware"
)

// ProfileServiceInterface はプロフィールハンドラーが必要とするサービスインターフェース。
type ProfileServiceInterface interface {
	GetProfile(ctx context.Context, userID string) (*profileResponse, error)
}

// ProfileHandler は作成者プロフィールのHTTPハンドラー。
type ProfileHandler struct {
	service ProfileServiceInterface
}

// NewProfileHandler はProfileHandlerを生成する。
func NewProfileHandler(service ProfileServiceInterface) *ProfileHandler {
	return &ProfileHandler{service: service}
}

// profileResponse は作成者プロフィールのAPIレスポンス。
type profileResponse struct {
	UserID      string            `json:"user_id"`
	Username    string            `json:"username"`
	DisplayName string            `json:"display_name"`
	Badge       string            `json:"badge,omitempty"`
	AvatarURL   string            `json:"avatar_url,omitempty"`
	Channels    []channelResponse `json:"channels"`
}

// GetProfile は作成者のプロフィールと作成チャンネル一覧を返す。
// GET /api/profiles/{userID}
func (h *ProfileHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	if _, err := middleware.UserIDFromContext(r.Context()); err != nil {
		writeUnauthorized(w)
		return
	}

	profile, err := h.service.GetProfile(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, profile)
}

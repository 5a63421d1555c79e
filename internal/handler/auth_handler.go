// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"

	"github.com/hitoshi/vipchannel/internal/middleware"
	"github.com/hitoshi/vipchannel/internal/model"
)

const (
	sessionCookieName = "session_id"
	oauthStateCookie  = "oauth_state"
	oauthStateMaxAge  = 600 // 10分
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	GetLoginURL(state string) string
	HandleCallback(ctx context.Context, code string) (*model.Login, error)
	Logout(ctx context.Context, sessionID string) error
	GetCurrentAccount(ctx context.Context, sessionID string) (*model.Account, error)
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	BaseURL       string
	CookieDomain  string
	CookieSecure  bool
	SessionMaxAge int // セッションCookieの有効期間（秒）
}

// AuthHandler はOAuth認証関連のHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
	config  AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		service: service,
		config:  config,
	}
}

// accountResponse はログイン中ユーザーのレスポンス。
// チャンネル画面で投稿者として表示される公開プロフィールを含む。
type accountResponse struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	Name        string `json:"name"`
	Username    string `json:"username,omitempty"`
	DisplayName string `json:"display_name"`
	Badge       string `json:"badge,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

func toAccountResponse(a *model.Account) accountResponse {
	resp := accountResponse{
		ID:          a.User.ID,
		Email:       a.User.Email,
		Name:        a.User.Name,
		DisplayName: a.DisplayName(),
	}
	if p := a.Profile; p != nil {
		resp.Username = p.Username
		resp.Badge = p.Badge
		resp.AvatarURL = p.AvatarURL
	}
	return resp
}

// Login はGoogle OAuthフローを開始する。
// GET /auth/google/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	state, err := generateState()
	if err != nil {
		slog.Error("failed to generate oauth state", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	// stateはCookieと照合する
	http.SetCookie(w, h.cookie(oauthStateCookie, state, oauthStateMaxAge, false))
	http.Redirect(w, r, h.service.GetLoginURL(state), http.StatusTemporaryRedirect)
}

// Callback はOAuthコールバックを処理し、セッションCookieを発行してフロントエンドへ戻す。
// GET /auth/google/callback?code=xxx&state=yyy
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	state := r.URL.Query().Get("state")
	stateCookie, err := r.Cookie(oauthStateCookie)
	if err != nil || state == "" || stateCookie.Value != state {
		slog.Warn("oauth state mismatch", slog.String("query_state", state))
		writeInvalidRequest(w, "stateパラメータが不正です。")
		return
	}
	http.SetCookie(w, h.cookie(oauthStateCookie, "", -1, false))

	code := r.URL.Query().Get("code")
	if code == "" {
		writeInvalidRequest(w, "認可コードがありません。")
		return
	}

	login, err := h.service.HandleCallback(r.Context(), code)
	if err != nil {
		slog.Error("oauth callback failed", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	attrs := []any{
		slog.String("user_id", login.Session.UserID),
		slog.Bool("new_user", login.NewUser),
	}
	if p := login.Account.Profile; p != nil {
		attrs = append(attrs, slog.String("username", p.Username))
	}
	slog.Info("login completed", attrs...)

	http.SetCookie(w, h.cookie(sessionCookieName, login.Session.ID, h.config.SessionMaxAge, true))
	http.Redirect(w, r, h.config.BaseURL, http.StatusTemporaryRedirect)
}

// Logout はセッションを破棄する。破棄に失敗してもCookieはクリアする。
// POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(sessionCookieName); err == nil && cookie.Value != "" {
		if logoutErr := h.service.Logout(r.Context(), cookie.Value); logoutErr != nil {
			slog.Error("failed to logout", slog.String("error", logoutErr.Error()))
		}
	}

	http.SetCookie(w, h.cookie(sessionCookieName, "", -1, true))
	http.Redirect(w, r, h.config.BaseURL, http.StatusTemporaryRedirect)
}

// Me は現在のログインユーザーと公開プロフィールを返す。
// GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil || cookie.Value == "" {
		writeUnauthorized(w)
		return
	}

	account, err := h.service.GetCurrentAccount(r.Context(), cookie.Value)
	if err != nil {
		slog.Warn("failed to get current account", slog.String("error", err.Error()))
		writeUnauthorized(w)
		return
	}

	writeJSON(w, http.StatusOK, toAccountResponse(account))
}

// cookie はHttpOnlyのCookieを生成する。withDomainはセッションCookieにのみ指定する。
func (h *AuthHandler) cookie(name, value string, maxAge int, withDomain bool) *http.Cookie {
	c := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
	if withDomain {
		c.Domain = h.config.CookieDomain
	}
	return c
}

// generateState はCSRF対策用のランダムなstate値を生成する。
func generateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

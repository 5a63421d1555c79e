// Package auth はOAuth認証フロー、セッション管理を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/vipchannel/internal/model"
	"github.com/hitoshi/vipchannel/internal/repository"
)

// OAuthUserInfo はOAuthプロバイダーから取得したユーザー情報を表す。
type OAuthUserInfo struct {
	ProviderUserID string
	Email          string
	Name           string
	AvatarURL      string // プロフィールのアバター初期値。空の場合は設定しない
	Provider       string // "google", "github" 等
}

// OAuthProvider はOAuth認証プロバイダーのインターフェース。
// 将来的に複数IdP（Google, GitHub等）に対応するための抽象化。
type OAuthProvider interface {
	// GetLoginURL はOAuth認証URLを生成する。
	GetLoginURL(state string) string
	// ExchangeCode は認可コードをトークンに交換し、ユーザー情報を取得する。
	ExchangeCode(ctx context.Context, code string) (*OAuthUserInfo, error)
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge int // セッション有効期間（秒）
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	oauth       OAuthProvider
	userRepo    repository.UserRepository
	identRepo   repository.IdentityRepository
	profileRepo repository.ProfileRepository
	sessionRepo repository.SessionRepository
	config      ServiceConfig
}

// NewService はServiceを生成する。
func NewService(
	oauth OAuthProvider,
	userRepo repository.UserRepository,
	identRepo repository.IdentityRepository,
	profileRepo repository.ProfileRepository,
	sessionRepo repository.SessionRepository,
	config ServiceConfig,
) *Service {
	return &Service{
		oauth:       oauth,
		userRepo:    userRepo,
		identRepo:   identRepo,
		profileRepo: profileRepo,
		sessionRepo: sessionRepo,
		config:      config,
	}
}

// GetLoginURL はOAuth認証URLを生成する。
func (s *Service) GetLoginURL(state string) string {
	return s.oauth.GetLoginURL(state)
}

// HandleCallback はOAuthコールバックを処理し、セッションとログインしたアカウントを返す。
// 未登録ユーザーの場合はusers、profiles、identitiesレコードを同一トランザクションで自動作成する。
// 登録済みユーザーの場合はidentitiesテーブルで既存ユーザーを特定し、プロフィールを読み込む。
func (s *Service) HandleCallback(ctx context.Context, code string) (*model.Login, error) {
	userInfo, err := s.oauth.ExchangeCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange oauth code: %w", err)
	}

	identity, err := s.identRepo.FindByProviderAndProviderUserID(ctx, userInfo.Provider, userInfo.ProviderUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find identity: %w", err)
	}

	var login *model.Login
	if identity != nil {
		account, err := s.loadAccount(ctx, identity.UserID)
		if err != nil {
			return nil, err
		}
		login = &model.Login{Account: *account}
		slog.Info("existing user logged in",
			slog.String("user_id", identity.UserID),
			slog.String("provider", userInfo.Provider),
		)
	} else {
		account, err := s.register(ctx, userInfo)
		if err != nil {
			return nil, err
		}
		login = &model.Login{Account: *account, NewUser: true}
		slog.Info("new user created",
			slog.String("user_id", account.User.ID),
			slog.String("username", account.Profile.Username),
			slog.String("provider", userInfo.Provider),
		)
	}

	session, err := s.createSession(ctx, login.Account.User.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	login.Session = session
	return login, nil
}

// register はOAuthユーザー情報からユーザー、プロフィール、identityを作成する。
// ユーザー名はメールアドレスとユーザーIDから生成し、バッジは付与しない。
func (s *Service) register(ctx context.Context, info *OAuthUserInfo) (*model.Account, error) {
	userID := uuid.New().String()
	now := time.Now()

	user := &model.User{
		ID:        userID,
		Email:     info.Email,
		Name:      info.Name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	profile := &model.Profile{
		UserID:      userID,
		Username:    defaultUsername(info.Email, userID),
		DisplayName: defaultDisplayName(info),
		AvatarURL:   info.AvatarURL,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	identity := &model.Identity{
		ID:             uuid.New().String(),
		UserID:         userID,
		Provider:       info.Provider,
		ProviderUserID: info.ProviderUserID,
		CreatedAt:      now,
	}

	if err := s.userRepo.CreateWithProfile(ctx, user, profile, identity); err != nil {
		return nil, fmt.Errorf("failed to create user and profile: %w", err)
	}
	return &model.Account{User: user, Profile: profile}, nil
}

// Logout はセッションを破棄する。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID is required")
	}

	if err := s.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	slog.Info("user logged out", slog.String("session_id", sessionID))
	return nil
}

// GetCurrentAccount はセッションから現在のユーザーとプロフィールを取得する。
func (s *Service) GetCurrentAccount(ctx context.Context, sessionID string) (*model.Account, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session ID is required")
	}

	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil {
		return nil, fmt.Errorf("session not found or expired")
	}

	return s.loadAccount(ctx, session.UserID)
}

// loadAccount はユーザーとプロフィールを読み込む。プロフィールがなくてもエラーにしない。
func (s *Service) loadAccount(ctx context.Context, userID string) (*model.Account, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("user not found")
	}

	profile, err := s.profileRepo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find profile: %w", err)
	}
	return &model.Account{User: user, Profile: profile}, nil
}

// createSession はセッションを作成し永続化する。
func (s *Service) createSession(ctx context.Context, userID string) (*model.Session, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	session := &model.Session{
		ID:        sessionID,
		UserID:    userID,
		ExpiresAt: time.Now().Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt: time.Now(),
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return session, nil
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// defaultUsername はメールアドレスのローカル部とユーザーIDの先頭8文字からユーザー名を生成する。
// ユーザーIDを含めることで一意性を保つ。
func defaultUsername(email, userID string) string {
	local, _, _ := strings.Cut(email, "@")
	local = strings.ToLower(strings.TrimSpace(local))
	if local == "" {
		local = "user"
	}
	suffix := userID
	if len(suffix) > 8 {
		suffix = suffix[:8]
	}
	return local + "_" + suffix
}

func defaultDisplayName(info *OAuthUserInfo) string {
	if name := strings.TrimSpace(info.Name); name != "" {
		return name
	}
	if local, _, _ := strings.Cut(info.Email, "@"); local != "" {
		return local
	}
	return model.DefaultDisplayName
}

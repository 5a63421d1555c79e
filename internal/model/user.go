// Package model はドメインモデルを定義する。
package model

import "time"

// User はサービス利用ユーザーを表す。
type User struct {
	ID        string
	Email     string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Identity は外部IdPとの紐付け情報を表す。
// 将来的に複数のIdP（Google, GitHub等）に対応可能な構造。
type Identity struct {
	ID             string
	UserID         string
	Provider       string
	ProviderUserID string
	CreatedAt      time.Time
}

// Session はユーザーのログインセッションを表す。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Profile はユーザーの公開プロフィールを表す。
// チャンネルヘッダーの作成者表示や投稿者名に使用する。
type Profile struct {
	UserID      string
	Username    string
	DisplayName string
	Badge       string // 空文字はバッジなし
	AvatarURL   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// DefaultDisplayName はプロフィールが存在しない作成者の表示名。
const DefaultDisplayName = "ユーザー"

// Account はログインユーザーと公開プロフィールの組。
// プロフィールが未作成のユーザーではProfileはnilとなる。
type Account struct {
	User    *User
	Profile *Profile
}

// DisplayName はプロフィールの表示名を返す。
// プロフィールがなければユーザー名、それも空ならDefaultDisplayNameを返す。
func (a *Account) DisplayName() string {
	if a.Profile != nil && a.Profile.DisplayName != "" {
		return a.Profile.DisplayName
	}
	if a.User != nil && a.User.Name != "" {
		return a.User.Name
	}
	return DefaultDisplayName
}

// Login はOAuthログインの結果。
type Login struct {
	Session *Session
	Account Account
	NewUser bool
}

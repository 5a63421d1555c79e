// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizer は投稿本文からHTMLを取り除いてプレーンテキストに正規化し、
// ImageFetcher はSSRF対策付きHTTPクライアントで外部画像を取得する。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer はユーザー入力テキストのサニタイズ機能のインターフェースを定義する。
// メッセージ本文、予想の説明・本文の保存前に使用される。
type TextSanitizer interface {
	// Sanitize はすべてのHTMLタグを除去したプレーンテキストを返す。
	// script, styleタグは内容ごと除去される。
	// 文字参照はデコードされ、前後の空白は除去される。
	Sanitize(raw string) string
}

// textSanitizer はTextSanitizerの実装。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerの新しいインスタンスを生成する。
// bluemondayのStrictPolicy（全タグ不許可）を使用する。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize はHTMLを除去したプレーンテキストを返す。
func (s *textSanitizer) Sanitize(raw string) string {
	if raw == "" {
		return ""
	}
	// StrictPolicyは出力をHTMLエスケープするため、表示用のテキストに戻す
	return strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(raw)))
}

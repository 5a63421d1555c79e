// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
// Fieldはバリデーションエラーの場合に問題のある入力項目名を保持する。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, channel, permission, system
	Action   string // ユーザー向け対処方法
	Field    string // バリデーション対象の項目名（該当する場合のみ）
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("[%s] %s (%s)", e.Code, e.Message, e.Field)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// IsValidation はクライアント側で検出可能な入力エラーかを返す。
func (e *APIError) IsValidation() bool {
	return e.Category == "validation"
}

// 定義済みエラーコード
const (
	ErrCodeChannelNotFound         = "CHANNEL_NOT_FOUND"
	ErrCodeProfileNotFound         = "PROFILE_NOT_FOUND"
	ErrCodePredictionNotFound      = "PREDICTION_NOT_FOUND"
	ErrCodeUserNotFound            = "USER_NOT_FOUND"
	ErrCodePermissionDenied        = "PERMISSION_DENIED"
	ErrCodeEmptyMessage            = "EMPTY_MESSAGE"
	ErrCodeInvalidOdds             = "INVALID_ODDS"
	ErrCodeEmptyDescription        = "EMPTY_DESCRIPTION"
	ErrCodeEmptyPredictionText     = "EMPTY_PREDICTION_TEXT"
	ErrCodeImageTooLarge           = "IMAGE_TOO_LARGE"
	ErrCodeInvalidImage            = "INVALID_IMAGE"
	ErrCodeImageFetchFailed        = "IMAGE_FETCH_FAILED"
	ErrCodeImageStorageUnavailable = "IMAGE_STORAGE_UNAVAILABLE"
	ErrCodeInvalidChannelName      = "INVALID_CHANNEL_NAME"
	ErrCodeAlreadyMember           = "ALREADY_MEMBER"
)

// 入力項目名
const (
	FieldBody           = "body"
	FieldOdds           = "odds"
	FieldDescription    = "description"
	FieldPredictionText = "prediction_text"
	FieldImage          = "image"
	FieldName           = "name"
)

// NewChannelNotFoundError はチャンネル未検出エラーを生成する。
func NewChannelNotFoundError(channelID string) *APIError {
	return &APIError{
		Code:     ErrCodeChannelNotFound,
		Message:  fmt.Sprintf("このチャンネルは現在利用できません: %s", channelID),
		Category: "channel",
		Action:   "チャンネル一覧に戻り、別のチャンネルを選択してください。",
	}
}

// NewProfileNotFoundError はプロフィール未検出エラーを生成する。
func NewProfileNotFoundError(userID string) *APIError {
	return &APIError{
		Code:     ErrCodeProfileNotFound,
		Message:  fmt.Sprintf("指定されたプロフィールが見つかりません: %s", userID),
		Category: "channel",
		Action:   "ユーザーIDを確認してください。",
	}
}

// NewPredictionNotFoundError は予想未検出エラーを生成する。
func NewPredictionNotFoundError(predictionID string) *APIError {
	return &APIError{
		Code:     ErrCodePredictionNotFound,
		Message:  fmt.Sprintf("指定された予想が見つかりません: %s", predictionID),
		Category: "channel",
		Action:   "チャンネルを再読み込みしてください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewPermissionDeniedError は作成者以外による書き込みを拒否するエラーを生成する。
// 通常のUI操作では到達しないため、詳細は返さず汎用的なメッセージとする。
func NewPermissionDeniedError() *APIError {
	return &APIError{
		Code:     ErrCodePermissionDenied,
		Message:  "この操作は実行できませんでした。",
		Category: "permission",
		Action:   "チャンネルを再読み込みしてから再度お試しください。",
	}
}

// NewEmptyMessageError は空メッセージの投稿エラーを生成する。
func NewEmptyMessageError() *APIError {
	return &APIError{
		Code:     ErrCodeEmptyMessage,
		Message:  "メッセージが空です。",
		Category: "validation",
		Action:   "メッセージを入力してください。",
		Field:    FieldBody,
	}
}

// NewInvalidOddsError は無効なオッズのエラーを生成する。
func NewInvalidOddsError(raw string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidOdds,
		Message:  fmt.Sprintf("無効なオッズです: %q", raw),
		Category: "validation",
		Action:   "0より大きい数値を入力してください（例: 2.50）。",
		Field:    FieldOdds,
	}
}

// NewEmptyDescriptionError は説明が空の場合のエラーを生成する。
func NewEmptyDescriptionError() *APIError {
	return &APIError{
		Code:     ErrCodeEmptyDescription,
		Message:  "説明が入力されていません。",
		Category: "validation",
		Action:   "予想の説明を入力してください。",
		Field:    FieldDescription,
	}
}

// NewEmptyPredictionTextError は予想本文が空の場合のエラーを生成する。
func NewEmptyPredictionTextError() *APIError {
	return &APIError{
		Code:     ErrCodeEmptyPredictionText,
		Message:  "予想が入力されていません。",
		Category: "validation",
		Action:   "予想の内容を入力してください。",
		Field:    FieldPredictionText,
	}
}

// NewImageTooLargeError は画像サイズ上限超過エラーを生成する。
func NewImageTooLargeError(size, limit int64) *APIError {
	return &APIError{
		Code:     ErrCodeImageTooLarge,
		Message:  fmt.Sprintf("画像サイズが上限を超えています: %dバイト（上限 %dバイト）", size, limit),
		Category: "validation",
		Action:   "5MB以下の画像を選択してください。",
		Field:    FieldImage,
	}
}

// NewInvalidImageError は画像形式が不正な場合のエラーを生成する。
func NewInvalidImageError(contentType string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidImage,
		Message:  fmt.Sprintf("画像として認識できないファイルです: %s", contentType),
		Category: "validation",
		Action:   "PNGまたはJPGの画像を選択してください。",
		Field:    FieldImage,
	}
}

// NewImageFetchFailedError は画像URLの取得失敗エラーを生成する。
func NewImageFetchFailedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeImageFetchFailed,
		Message:  fmt.Sprintf("画像の取得に失敗しました: %s", reason),
		Category: "validation",
		Action:   "公開されている画像のURLを指定するか、画像ファイルを直接添付してください。",
		Field:    FieldImage,
	}
}

// NewImageStorageUnavailableError は画像ストレージ未設定時のエラーを生成する。
func NewImageStorageUnavailableError() *APIError {
	return &APIError{
		Code:     ErrCodeImageStorageUnavailable,
		Message:  "現在、画像を保存できません。",
		Category: "system",
		Action:   "画像なしで投稿するか、しばらく待ってから再度お試しください。",
		Field:    FieldImage,
	}
}

// NewInvalidChannelNameError はチャンネル名が無効な場合のエラーを生成する。
func NewInvalidChannelNameError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidChannelName,
		Message:  "チャンネル名が入力されていません。",
		Category: "validation",
		Action:   "チャンネル名を入力してください。",
		Field:    FieldName,
	}
}

// NewAlreadyMemberError は作成者が自分のチャンネルを購読しようとした場合のエラーを生成する。
func NewAlreadyMemberError() *APIError {
	return &APIError{
		Code:     ErrCodeAlreadyMember,
		Message:  "作成者は既にこのチャンネルのメンバーです。",
		Category: "channel",
		Action:   "購読は不要です。",
	}
}

// Package prediction はVIP予想（オッズ・説明・予想本文・任意の画像）の入力検証を提供する。
//
// サーバー側の書き込み経路とクライアント側の投稿フォームの両方から利用され、
// 同一の規則でバリデーションエラーを返す。
package prediction

import (
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/hitoshi/vipchannel/internal/model"
)

// MaxImageSize は添付画像の最大サイズ（5MB）。
const MaxImageSize int64 = 5 * 1024 * 1024

// MaxOdds は保存できるオッズの最大値（NUMERIC(10,2)）。
const MaxOdds = 99999999.99

// sniffLen はContent-Type判定に使用する先頭バイト数。
const sniffLen = 512

// Draft は検証前の予想入力を表す。
// Oddsはフォームから受け取った文字列のまま保持する。
type Draft struct {
	Odds           string
	Description    string
	PredictionText string
	Image          *Image
}

// Image は添付画像を表す。
type Image struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Size は画像のバイト数を返す。
func (i *Image) Size() int64 {
	return int64(len(i.Data))
}

// Valid は検証済みの予想入力を表す。
type Valid struct {
	Odds           float64
	Description    string
	PredictionText string
	Image          *Image
}

// Validate はDraftを検証し、正規化済みのValidを返す。
// 検証はフィールド順（odds, description, prediction_text, image）に行い、
// 最初に見つかった問題をField付きの*model.APIErrorとして返す。
func Validate(d Draft) (*Valid, error) {
	odds, err := ParseOdds(d.Odds)
	if err != nil {
		return nil, err
	}

	description := strings.TrimSpace(d.Description)
	if description == "" {
		return nil, model.NewEmptyDescriptionError()
	}

	text := strings.TrimSpace(d.PredictionText)
	if text == "" {
		return nil, model.NewEmptyPredictionTextError()
	}

	var img *Image
	if d.Image != nil && len(d.Image.Data) > 0 {
		checked, err := CheckImage(d.Image)
		if err != nil {
			return nil, err
		}
		img = checked
	}

	return &Valid{
		Odds:           odds,
		Description:    description,
		PredictionText: text,
		Image:          img,
	}, nil
}

// ParseOdds はオッズ文字列を正の数値として解釈する。
// 数字と小数点（"." または ","）のみを受け付ける（"2,50" は 2.5）。
// 指数表記や16進表記、0以下、MaxOddsを超える値はすべてINVALID_ODDSとなる。
func ParseOdds(raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	if !isPlainDecimal(s) {
		return 0, model.NewInvalidOddsError(raw)
	}
	s = strings.Replace(s, ",", ".", 1)

	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v <= 0 {
		return 0, model.NewInvalidOddsError(raw)
	}

	// 保存時の精度（小数点以下2桁）に丸める
	rounded := math.Round(v*100) / 100
	if rounded <= 0 || rounded > MaxOdds {
		return 0, model.NewInvalidOddsError(raw)
	}
	return rounded, nil
}

// isPlainDecimal は数字と高々1つの小数点だけからなる文字列かを判定する。
func isPlainDecimal(s string) bool {
	digits, seps := 0, 0
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == '.' || r == ',':
			seps++
		default:
			return false
		}
	}
	return digits > 0 && seps <= 1
}

// FormatOdds はオッズを小数点以下2桁の文字列に整形する。
func FormatOdds(odds float64) string {
	return strconv.FormatFloat(odds, 'f', 2, 64)
}

// CheckSize は画像サイズが上限以内かを検証する。
func CheckSize(size int64) error {
	if size > MaxImageSize {
		return model.NewImageTooLargeError(size, MaxImageSize)
	}
	return nil
}

// CheckImage は画像のサイズと形式を検証する。
// Content-Typeはクライアントの申告ではなく先頭バイトから判定した値で上書きする。
func CheckImage(img *Image) (*Image, error) {
	if err := CheckSize(img.Size()); err != nil {
		return nil, err
	}

	head := img.Data
	if len(head) > sniffLen {
		head = head[:sniffLen]
	}
	ct := http.DetectContentType(head)
	if !strings.HasPrefix(ct, "image/") {
		return nil, model.NewInvalidImageError(ct)
	}

	return &Image{
		Filename:    img.Filename,
		ContentType: ct,
		Data:        img.Data,
	}, nil
}

// Extension はContent-Typeに対応するファイル拡張子を返す。
// 未知の形式の場合は空文字列を返す。
func Extension(contentType string) string {
	switch contentType {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "image/bmp":
		return ".bmp"
	default:
		return ""
	}
}

// Package client はVIPチャンネルREST APIのクライアントを提供する。
// セッションCookieで認証し、投稿フォーム（composer）の永続化先として利用できる。
package client

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"

	"github.com/hitoshi/vipchannel/internal/composer"
	"github.com/hitoshi/vipchannel/internal/model"
	"github.com/hitoshi/vipchannel/internal/prediction"
)

const (
	sessionCookieName = "session_id"
	csrfCookieName    = "csrf_token"
	csrfHeaderName    = "X-CSRF-Token"
	userAgent         = "VIPChannel-Client/1.0"

	// maxResponseSize はレスポンスボディの読み取り上限。
	maxResponseSize = 4 * 1024 * 1024
)

// Client はREST APIのクライアント。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	baseURL    string
	sessionID  string
	csrfToken  string
}

// NewClient はClientを生成する。sessionIDはログイン時に発行されたセッションCookieの値。
func NewClient(baseURL, sessionID string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		baseURL:    strings.TrimRight(baseURL, "/"),
		sessionID:  sessionID,
		csrfToken:  newCSRFToken(),
	}
}

// LoadChannel はチャンネルを閲覧者の視点で読み込む。
func (c *Client) LoadChannel(ctx context.Context, channelID string) (*ChannelView, error) {
	var view ChannelView
	if err := c.do(ctx, "load channel", http.MethodGet, channelPath(channelID), nil, "", &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// PostMessage はメッセージを投稿する。
func (c *Client) PostMessage(ctx context.Context, channelID, body string) (*model.Message, error) {
	payload, err := json.Marshal(map[string]string{"body": body})
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}

	var resp messageResponse
	if err := c.do(ctx, "post message", http.MethodPost, channelPath(channelID)+"/messages",
		bytes.NewReader(payload), "application/json", &resp); err != nil {
		return nil, err
	}
	return &model.Message{
		ID:         resp.ID,
		ChannelID:  resp.ChannelID,
		AuthorID:   resp.AuthorID,
		AuthorName: resp.AuthorName,
		Body:       resp.Body,
		CreatedAt:  resp.CreatedAt,
	}, nil
}

// PostPrediction はVIP予想をmultipart/form-dataで投稿する。
func (c *Client) PostPrediction(ctx context.Context, channelID string, draft prediction.Draft) (*model.Prediction, error) {
	body, contentType, err := encodePredictionForm(draft)
	if err != nil {
		return nil, err
	}

	var resp predictionResponse
	if err := c.do(ctx, "post prediction", http.MethodPost, channelPath(channelID)+"/predictions",
		body, contentType, &resp); err != nil {
		return nil, err
	}

	odds, err := strconv.ParseFloat(resp.Odds, 64)
	if err != nil {
		return nil, fmt.Errorf("decode odds %q: %w", resp.Odds, err)
	}
	p := &model.Prediction{
		ID:             resp.ID,
		ChannelID:      resp.ChannelID,
		AuthorID:       resp.AuthorID,
		AuthorName:     resp.AuthorName,
		Odds:           odds,
		Description:    resp.Description,
		PredictionText: resp.PredictionText,
		CreatedAt:      resp.CreatedAt,
	}
	if resp.HasImage {
		p.ImageRef = resp.ImageURL
	}
	return p, nil
}

// Subscribe はチャンネルを購読する。
func (c *Client) Subscribe(ctx context.Context, channelID string) error {
	return c.do(ctx, "subscribe", http.MethodPost, channelPath(channelID)+"/subscription", nil, "", nil)
}

// Unsubscribe はチャンネルの購読を解除する。
func (c *Client) Unsubscribe(ctx context.Context, channelID string) error {
	return c.do(ctx, "unsubscribe", http.MethodDelete, channelPath(channelID)+"/subscription", nil, "", nil)
}

func channelPath(channelID string) string {
	return "/api/channels/" + url.PathEscape(channelID)
}

// do はリクエストを送信し、2xxの場合はレスポンスをoutへデコードする。
func (c *Client) do(ctx context.Context, op, method, path string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("%s: create request: %w", op, err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.sessionID != "" {
		req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: c.sessionID})
	}
	if method != http.MethodGet {
		// ダブルサブミットCookie方式のCSRFトークン
		req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: c.csrfToken})
		req.Header.Set(csrfHeaderName, c.csrfToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("APIの呼び出しに失敗しました",
			slog.String("op", op),
			slog.String("error", err.Error()),
		)
		return &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return &TransportError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode >= 500 {
		c.logger.Warn("APIがサーバーエラーを返しました",
			slog.String("op", op),
			slog.Int("http_status", resp.StatusCode),
		)
		var cause error = errors.New(http.StatusText(resp.StatusCode))
		if apiErr := decodeAPIError(data); apiErr != nil {
			cause = apiErr
		}
		return &TransportError{Op: op, StatusCode: resp.StatusCode, Err: cause}
	}
	if resp.StatusCode >= 400 {
		apiErr := decodeAPIError(data)
		if apiErr == nil {
			apiErr = &model.APIError{
				Code:     "HTTP_" + strconv.Itoa(resp.StatusCode),
				Message:  strings.TrimSpace(string(data)),
				Category: "system",
			}
		}
		return &APIError{StatusCode: resp.StatusCode, Err: apiErr}
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

func decodeAPIError(data []byte) *model.APIError {
	var body errorResponse
	if err := json.Unmarshal(data, &body); err != nil || body.Code == "" {
		return nil
	}
	return &model.APIError{
		Code:     body.Code,
		Message:  body.Message,
		Category: body.Category,
		Action:   body.Action,
		Field:    body.Field,
	}
}

// encodePredictionForm はDraftをmultipart/form-dataにエンコードする。
func encodePredictionForm(d prediction.Draft) (io.Reader, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fields := []struct{ name, value string }{
		{model.FieldOdds, d.Odds},
		{model.FieldDescription, d.Description},
		{model.FieldPredictionText, d.PredictionText},
	}
	for _, f := range fields {
		if err := mw.WriteField(f.name, f.value); err != nil {
			return nil, "", fmt.Errorf("encode %s: %w", f.name, err)
		}
	}

	if d.Image != nil && len(d.Image.Data) > 0 {
		filename := d.Image.Filename
		if filename == "" {
			filename = "image"
		}
		ct := d.Image.ContentType
		if ct == "" {
			ct = http.DetectContentType(d.Image.Data)
		}
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, model.FieldImage, filename))
		h.Set("Content-Type", ct)
		part, err := mw.CreatePart(h)
		if err != nil {
			return nil, "", fmt.Errorf("encode image: %w", err)
		}
		if _, err := part.Write(d.Image.Data); err != nil {
			return nil, "", fmt.Errorf("encode image: %w", err)
		}
	}

	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("encode form: %w", err)
	}
	return &buf, mw.FormDataContentType(), nil
}

func newCSRFToken() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "vipchannel-client"
	}
	return hex.EncodeToString(b)
}

var _ composer.Poster = (*Client)(nil)

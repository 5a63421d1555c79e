package client

import (
	"time"

	"github.com/hitoshi/vipchannel/internal/model"
)

// ChannelView はGET /api/channels/{id} のレスポンス。
type ChannelView struct {
	Channel         ChannelInfo      `json:"channel"`
	Creator         Creator          `json:"creator"`
	SubscriberCount int              `json:"subscriber_count"`
	Role            model.ViewerRole `json:"role"`
	Capabilities    Capabilities     `json:"capabilities"`
	Entries         []Entry          `json:"entries"`
	EmptyState      *EmptyState      `json:"empty_state"`
}

type ChannelInfo struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatorID   string    `json:"creator_id"`
	CreatedAt   time.Time `json:"created_at"`
}

type Creator struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	Badge       string `json:"badge,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

type Capabilities struct {
	CanRead           bool `json:"can_read"`
	CanPostMessage    bool `json:"can_post_message"`
	CanPostPrediction bool `json:"can_post_prediction"`
}

// Entry はフィード要素。Kindが"message"の場合はBody、"prediction"の場合は予想のフィールドが設定される。
type Entry struct {
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

type EmptyState struct {
	Kind    string `json:"kind"`
	Title   string `json:"title"`
	Message string `json:"message"`
}

type messageResponse struct {
	ID         string    `json:"id"`
	ChannelID  string    `json:"channel_id"`
	AuthorID   string    `json:"author_id"`
	AuthorName string    `json:"author_name"`
	Body       string    `json:"body"`
	CreatedAt  time.Time `json:"created_at"`
}

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

type errorResponse struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
	Field    string `json:"field,omitempty"`
}

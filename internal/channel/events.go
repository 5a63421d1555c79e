package channel

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/vipchannel/internal/model"
)

// EventEnvelope はKafkaへ送信するチャンネルイベントのJSON形式。
type EventEnvelope struct {
	EventID   string          `json:"event_id"`
	Kind      model.EventKind `json:"kind"`
	ChannelID string          `json:"channel_id"`
	EntryID   string          `json:"entry_id"`
	CreatedAt time.Time       `json:"created_at"`
	Data      json.RawMessage `json:"data"`
}

type messagePayload struct {
	AuthorID string `json:"author_id"`
	Body     string `json:"body"`
}

type predictionPayload struct {
	AuthorID       string `json:"author_id"`
	Odds           string `json:"odds"`
	Description    string `json:"description"`
	PredictionText string `json:"prediction_text"`
	HasImage       bool   `json:"has_image"`
}

// newEvent はエントリ作成と同時に保存するアウトボックスイベントを生成する。
func (s *Service) newEvent(kind model.EventKind, channelID, entryID string, createdAt time.Time, data any) (*model.ChannelEvent, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("イベントデータのエンコードに失敗: %w", err)
	}

	id := uuid.New().String()
	payload, err := json.Marshal(EventEnvelope{
		EventID:   id,
		Kind:      kind,
		ChannelID: channelID,
		EntryID:   entryID,
		CreatedAt: createdAt.UTC(),
		Data:      raw,
	})
	if err != nil {
		return nil, fmt.Errorf("イベントのエンコードに失敗: %w", err)
	}

	return &model.ChannelEvent{
		ID:            id,
		ChannelID:     channelID,
		Kind:          kind,
		EntryID:       entryID,
		Payload:       payload,
		NextAttemptAt: createdAt,
		CreatedAt:     createdAt,
	}, nil
}

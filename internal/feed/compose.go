package feed

import (
	"cmp"
	"slices"
	"time"

	"github.com/hitoshi/vipchannel/internal/model"
)

// EntryKind はフィード要素の種別を表す。
type EntryKind string

const (
	// KindMessage は通常メッセージ
	KindMessage EntryKind = "message"
	// KindPrediction はVIP予想
	KindPrediction EntryKind = "prediction"
)

// Entry はメッセージまたはVIP予想のいずれか一方を保持するフィード要素。
// Kindに対応するフィールドのみが非nilとなる。
type Entry struct {
	Kind       EntryKind
	Message    *model.Message
	Prediction *model.Prediction
}

// CreatedAt は要素の作成日時を返す。
func (e Entry) CreatedAt() time.Time {
	if e.Kind == KindPrediction {
		return e.Prediction.CreatedAt
	}
	return e.Message.CreatedAt
}

// ID は要素のIDを返す。
func (e Entry) ID() string {
	if e.Kind == KindPrediction {
		return e.Prediction.ID
	}
	return e.Message.ID
}

// AuthorID は投稿者のユーザーIDを返す。
func (e Entry) AuthorID() string {
	if e.Kind == KindPrediction {
		return e.Prediction.AuthorID
	}
	return e.Message.AuthorID
}

// Compose はメッセージとVIP予想を作成日時の昇順で1つの列に統合する。
//
// 並び順:
//   - createdAt の昇順
//   - 同時刻の場合はメッセージを予想より先に置く
//   - それでも同じ場合はIDの昇順
//
// 入力スライスは変更しない。取得順序に関わらず同じ結果を返す。
// nil要素は無視する。
func Compose(messages []*model.Message, predictions []*model.Prediction) []Entry {
	entries := make([]Entry, 0, len(messages)+len(predictions))
	for _, m := range messages {
		if m != nil {
			entries = append(entries, Entry{Kind: KindMessage, Message: m})
		}
	}
	for _, p := range predictions {
		if p != nil {
			entries = append(entries, Entry{Kind: KindPrediction, Prediction: p})
		}
	}

	slices.SortStableFunc(entries, compareEntries)
	return entries
}

func compareEntries(a, b Entry) int {
	if c := a.CreatedAt().Compare(b.CreatedAt()); c != 0 {
		return c
	}
	if a.Kind != b.Kind {
		if a.Kind == KindMessage {
			return -1
		}
		return 1
	}
	return cmp.Compare(a.ID(), b.ID())
}

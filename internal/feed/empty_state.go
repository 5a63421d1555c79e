package feed

import "github.com/hitoshi/vipchannel/internal/model"

// EmptyStateKind は空フィード時の表示種別を表す。
type EmptyStateKind string

const (
	// EmptyCallToAction は作成者向けの投稿促進表示
	EmptyCallToAction EmptyStateKind = "call_to_action"
	// EmptyWaiting は閲覧者向けの待機表示
	EmptyWaiting EmptyStateKind = "waiting"
)

// EmptyState は空フィード時に表示する文言を表す。
type EmptyState struct {
	Kind    EmptyStateKind
	Title   string
	Message string
}

// EmptyStateFor は閲覧者ロールに応じた空フィード表示を返す。
func EmptyStateFor(role model.ViewerRole) EmptyState {
	if role == model.RoleCreator {
		return EmptyState{
			Kind:    EmptyCallToAction,
			Title:   "まだメッセージはありません",
			Message: "最初のメッセージを投稿しましょう！",
		}
	}
	return EmptyState{
		Kind:    EmptyWaiting,
		Title:   "まだメッセージはありません",
		Message: "作成者がコンテンツを共有するまでお待ちください",
	}
}

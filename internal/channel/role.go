// Package channel はVIPチャンネルの閲覧・投稿・購読を扱うドメインロジックを提供する。
//
// 閲覧者のロールは永続化せず、リクエストごとに作成者IDと購読状態から導出する。
// 書き込み操作はプレゼンテーション層の表示制御とは独立して、ここで作成者であることを再確認する。
package channel

import "github.com/hitoshi/vipchannel/internal/model"

// ResolveRole はチャンネル作成者IDと閲覧者IDから閲覧者のロールを決定する。
// IDが一致すれば購読状態に関わらずCreatorとなる。
// それ以外はsubscribedに応じてSubscriberまたはGuestとなる。
func ResolveRole(creatorID, viewerID string, subscribed bool) model.ViewerRole {
	if viewerID != "" && viewerID == creatorID {
		return model.RoleCreator
	}
	if subscribed {
		return model.RoleSubscriber
	}
	return model.RoleGuest
}

// Capabilities はロールから導出される操作可否を表す。
type Capabilities struct {
	CanRead           bool
	CanPostMessage    bool
	CanPostPrediction bool
}

// CapabilitiesFor はロールに対応する操作可否を返す。
// 閲覧は全ロールに許可され、投稿は作成者のみに許可される。
func CapabilitiesFor(role model.ViewerRole) Capabilities {
	canPost := role.CanPost()
	return Capabilities{
		CanRead:           true,
		CanPostMessage:    canPost,
		CanPostPrediction: canPost,
	}
}

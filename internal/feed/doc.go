// Package feed はチャンネルの表示用フィードを構成する。
// メッセージとVIP予想を1つのタグ付き列に統合し、空の場合はロール別の表示を返す。
package feed

// Package model はドメインモデルを定義する。
package model

import "time"

// Session は読者のログインセッションを表す。
// ログイン処理が作成し、このサービスは検証と期限切れの掃除のみ行う。
type Session struct {
	ID        string
	ReaderID  string
	ExpiresAt time.Time
	CreatedAt time.Time
}

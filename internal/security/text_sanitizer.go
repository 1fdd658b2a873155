// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizer は言語モデルが生成した推薦テキストからマークアップを取り除く。
// モデルの出力は信頼できない入力として扱い、永続化とAPI応答の前に必ず通す。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer はプレーンテキスト化のインターフェースを定義する。
type TextSanitizer interface {
	// Sanitize はすべてのタグを除去したプレーンテキストを返す。
	// script, styleなどの要素は中身ごと除去する。
	// 前後の空白は取り除く。空文字列の入力には空文字列を返す。
	Sanitize(raw string) string
}

// textSanitizer はTextSanitizerの実装。
// bluemondayのポリシーはスレッドセーフなので共有してよい。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerの新しいインスタンスを生成する。
// タグを一切許可しないStrictPolicyを使う。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize はrawからタグを除去する。
// bluemondayが付けた実体参照は戻し、書名の "&" などはそのまま残す。
// 戻り値はHTMLではなくテキストとして扱うこと。
func (s *textSanitizer) Sanitize(raw string) string {
	if raw == "" {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(raw)))
}

package model

import "time"

// ModelUsedDatabaseFallback はデータベースフォールバックで生成された推薦を示すmodel_usedの値。
const ModelUsedDatabaseFallback = "database_fallback"

// Recommendation は正規化済みの推薦1件を表す。
// すべてのフィールドは空文字列をデフォルトとし、欠損を区別しない。
type Recommendation struct {
	Title      string `json:"title"`
	Author     string `json:"author"`
	CallNumber string `json:"call_number"`
	Reason     string `json:"reason"`
	// Category はデータベースフォールバック由来の推薦でのみ設定される。
	Category string `json:"category,omitempty"`
}

// RecommendationHistory は永続化された推薦履歴1行を表す。
// 書名・著者・理由は作成時点のスナップショットで、蔵書側の変更には追従しない。
type RecommendationHistory struct {
	ID         string
	ReaderID   string
	ModelUsed  string
	Title      string
	Author     string
	Reason     string
	CallNumber string
	IsRejected bool
	CreatedAt  time.Time
}

// RecentBook は読者の最近の貸出から得た (書名, 著者) の組。
// モデルへのプロンプト文脈としてのみ使用する。
type RecentBook struct {
	Title  string
	Author string
}

// BorrowSignal は読者の貸出履歴から導出した (資料種別, 著者) の組。
// 永続化せず、推薦リクエストごとに再計算する。
type BorrowSignal struct {
	DocType string
	Author  string
}

// RecommendationSource は推薦結果を提供した経路を表す。
type RecommendationSource string

const (
	// SourceModel は外部言語モデルが推薦を提供したことを示す。
	SourceModel RecommendationSource = "model"
	// SourceDatabaseFallback はデータベースフォールバックが推薦を提供したことを示す。
	SourceDatabaseFallback RecommendationSource = "database_fallback"
	// SourceUnavailable はどちらの経路も利用できなかったことを示す。
	SourceUnavailable RecommendationSource = "unavailable"
)

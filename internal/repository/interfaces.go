// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/hitoshi/librarian/internal/model"
)

// SessionRepository はセッションデータの永続化インターフェース。
// セッションの発行はログイン処理の責務で、このサービスは検証と掃除のみ行う。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteExpired は期限切れのセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context) (int64, error)
}

// BorrowRepository は貸出記録の参照インターフェース。
type BorrowRepository interface {
	// ListRecentBooks は読者が最近借りた (書名, 著者) を重複なく新しい順に最大limit件返す。
	ListRecentBooks(ctx context.Context, readerID string, limit int) ([]model.RecentBook, error)

	// ListSignals は読者の貸出履歴から (分類, 著者) を重複なく新しい順に最大limit件返す。
	ListSignals(ctx context.Context, readerID string, limit int) ([]model.BorrowSignal, error)
}

// BorrowListRepository は読者向け貸出記録一覧の参照インターフェース。
type BorrowListRepository interface {
	// ListByReader は読者の貸出記録を貸出日の新しい順に返す。
	// 2番目の戻り値は条件に合う総件数。
	ListByReader(ctx context.Context, readerID string, filter model.BorrowFilter) ([]*model.BorrowRecord, int, error)
}

// BookRepository は蔵書の参照インターフェース。
type BookRepository interface {
	// FindByID は指定IDの蔵書を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Book, error)

	// ListRelatedCandidates は指定蔵書と分類または著者が同じ蔵書を、自身を除いて最大limit件返す。
	ListRelatedCandidates(ctx context.Context, book *model.Book, limit int) ([]*model.Book, error)

	// QueryFallback はフォールバック用に組み立てたクエリを実行し、
	// 各行を列名をキーとするレコードとして返す。NULLは空文字列になる。
	QueryFallback(ctx context.Context, query string, args []any) ([]map[string]any, error)
}

// BookCatalogRepository は読者向け蔵書検索の参照インターフェース。
type BookCatalogRepository interface {
	// FindDetail は貸出状況付きで蔵書を取得する。見つからない場合はnilを返す。
	FindDetail(ctx context.Context, id string) (*model.BookDetail, error)

	// Search は条件に合う蔵書を返す。2番目の戻り値は条件に合う総件数。
	Search(ctx context.Context, q model.BookSearch) ([]*model.BookListing, int, error)
}

// RecommendationHistoryRepository は推薦履歴の永続化インターフェース。
type RecommendationHistoryRepository interface {
	// CreateBatch は推薦1件につき1行を同一トランザクションで作成する。
	// 各レコードのIDとCreatedAtを設定する。
	CreateBatch(ctx context.Context, records []*model.RecommendationHistory) error

	// ListByReader は読者の推薦履歴をcreated_at降順で返す。
	// includeRejectedがfalseの場合は却下済みを除く。2番目の戻り値は条件に合う総件数。
	ListByReader(ctx context.Context, readerID string, includeRejected bool, limit, offset int) ([]*model.RecommendationHistory, int, error)

	// FindByID は指定IDの推薦履歴を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.RecommendationHistory, error)

	// UpdateRejected は却下フラグを更新し、更新後のレコードを返す。
	// 見つからない場合はnilを返す。
	UpdateRejected(ctx context.Context, id string, isRejected bool) (*model.RecommendationHistory, error)
}

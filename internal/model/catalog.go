package model

import "time"

// BookDetail は蔵書詳細画面向けに貸出状況を付けた蔵書。
type BookDetail struct {
	Book
	// CurrentBorrows は未返却の貸出件数。
	CurrentBorrows int
	TotalBorrows   int
}

// AvailableCount は貸出可能な冊数を返す。蔵書1件は1冊として扱う。
func (d *BookDetail) AvailableCount() int {
	if d.CurrentBorrows > 0 {
		return 0
	}
	return 1
}

// BookSort は蔵書検索の並び順。
type BookSort string

const (
	// BookSortPopularity は貸出回数の多い順（同数は書名順）。
	BookSortPopularity BookSort = "popularity"
	// BookSortTitle は書名順。
	BookSortTitle BookSort = "title"
	// BookSortPublicationYear は出版年の新しい順。
	BookSortPublicationYear BookSort = "publication_year"
)

// BookSearch は蔵書検索の条件。空文字の条件は絞り込みに使わない。
type BookSearch struct {
	// Keyword は書名・著者・出版者の部分一致。
	Keyword  string
	Category string
	// Author は著者の部分一致。
	Author   string
	Language string
	Sort     BookSort
	Limit    int
	Offset   int
}

// BookListing は検索結果の蔵書1件。
type BookListing struct {
	Book
	BorrowCount int
}

// BorrowRecord は読者の貸出記録1件。書誌は貸出時点ではなく現在の蔵書から引く。
type BorrowRecord struct {
	ID         int64
	ReaderID   string
	BookID     string
	Title      string
	Author     string
	CallNo     string
	BorrowDate time.Time
	// ReturnDate は未返却ならnil。
	ReturnDate *time.Time
}

// BorrowFilter は貸出記録一覧の条件。
type BorrowFilter struct {
	// Keyword は書名・著者・請求記号の部分一致。
	Keyword string
	// From と To は貸出日の範囲（両端を含む）。nilは無制限。
	From   *time.Time
	To     *time.Time
	Limit  int
	Offset int
}

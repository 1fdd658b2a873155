package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/librarian/internal/model"
)

// PostgresBorrowRepo はPostgreSQLを使用した貸出記録リポジトリ。
type PostgresBorrowRepo struct {
	db *sql.DB
}

// NewPostgresBorrowRepo はPostgresBorrowRepoを生成する。
func NewPostgresBorrowRepo(db *sql.DB) *PostgresBorrowRepo {
	return &PostgresBorrowRepo{db: db}
}

// ListRecentBooks は読者が最近借りた (書名, 著者) を重複なく新しい順に返す。
// 同じ本を複数回借りた場合は最後の貸出日で並べる。
func (r *PostgresBorrowRepo) ListRecentBooks(ctx context.Context, readerID string, limit int) ([]model.RecentBook, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT b.title, COALESCE(b.author, '')
		 FROM borrow_records br
		 JOIN books b ON b.book_id = br.book_id
		 WHERE br.reader_id = $1
		 GROUP BY b.title, COALESCE(b.author, '')
		 ORDER BY MAX(br.borrow_date) DESC
		 LIMIT $2`,
		readerID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent books: %w", err)
	}
	defer rows.Close()

	var books []model.RecentBook
	for rows.Next() {
		var b model.RecentBook
		if err := rows.Scan(&b.Title, &b.Author); err != nil {
			return nil, fmt.Errorf("failed to scan recent book: %w", err)
		}
		books = append(books, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate recent books: %w", err)
	}

	return books, nil
}

// ListSignals は読者の貸出履歴から (分類, 著者) を重複なく新しい順に返す。
// 分類のない蔵書は除く。
func (r *PostgresBorrowRepo) ListSignals(ctx context.Context, readerID string, limit int) ([]model.BorrowSignal, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT b.doc_type, COALESCE(b.author, '')
		 FROM borrow_records br
		 JOIN books b ON b.book_id = br.book_id
		 WHERE br.reader_id = $1 AND b.doc_type IS NOT NULL AND b.doc_type <> ''
		 GROUP BY b.doc_type, COALESCE(b.author, '')
		 ORDER BY MAX(br.borrow_date) DESC
		 LIMIT $2`,
		readerID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list borrow signals: %w", err)
	}
	defer rows.Close()

	var signals []model.BorrowSignal
	for rows.Next() {
		var s model.BorrowSignal
		if err := rows.Scan(&s.DocType, &s.Author); err != nil {
			return nil, fmt.Errorf("failed to scan borrow signal: %w", err)
		}
		signals = append(signals, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate borrow signals: %w", err)
	}

	return signals, nil
}

// compile-time interface check
var _ BorrowRepository = (*PostgresBorrowRepo)(nil)

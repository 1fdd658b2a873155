package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/librarian/internal/model"
)

// PostgresBookRepo はPostgreSQLを使用した蔵書リポジトリ。
type PostgresBookRepo struct {
	db *sql.DB
}

// NewPostgresBookRepo はPostgresBookRepoを生成する。
func NewPostgresBookRepo(db *sql.DB) *PostgresBookRepo {
	return &PostgresBookRepo{db: db}
}

const bookColumns = `book_id, title, COALESCE(author, ''), COALESCE(publisher, ''),
	COALESCE(publication_year, 0), COALESCE(call_no, ''), COALESCE(language, ''), COALESCE(doc_type, '')`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBook(s rowScanner) (*model.Book, error) {
	b := &model.Book{}
	err := s.Scan(&b.ID, &b.Title, &b.Author, &b.Publisher,
		&b.PublicationYear, &b.CallNo, &b.Language, &b.DocType)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// FindByID は指定IDの蔵書を取得する。見つからない場合はnilを返す。
func (r *PostgresBookRepo) FindByID(ctx context.Context, id string) (*model.Book, error) {
	book, err := scanBook(r.db.QueryRowContext(ctx,
		`SELECT `+bookColumns+` FROM books WHERE book_id = $1`,
		id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find book: %w", err)
	}
	return book, nil
}

// ListRelatedCandidates は分類または著者が同じ蔵書を、指定蔵書を除いて新しい順に返す。
func (r *PostgresBookRepo) ListRelatedCandidates(ctx context.Context, book *model.Book, limit int) ([]*model.Book, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+bookColumns+`
		 FROM books
		 WHERE book_id <> $1 AND (doc_type = $2 OR author = $3)
		 ORDER BY publication_year DESC NULLS LAST, book_id
		 LIMIT $4`,
		book.ID, book.DocType, book.Author, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list related candidates: %w", err)
	}
	defer rows.Close()

	var books []*model.Book
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan book: %w", err)
		}
		books = append(books, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate books: %w", err)
	}

	return books, nil
}

// QueryFallback はフォールバック用のクエリを実行し、各行を列名をキーとするレコードで返す。
// 値はすべて文字列として読み、NULLは空文字列にする。
func (r *PostgresBookRepo) QueryFallback(ctx context.Context, query string, args []any) ([]map[string]any, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to run fallback query: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read fallback columns: %w", err)
	}

	var records []map[string]any
	for rows.Next() {
		values := make([]sql.NullString, len(columns))
		dest := make([]any, len(columns))
		for i := range values {
			dest[i] = &values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan fallback row: %w", err)
		}

		record := make(map[string]any, len(columns))
		for i, col := range columns {
			record[col] = values[i].String
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate fallback rows: %w", err)
	}

	return records, nil
}

// compile-time interface check
var _ BookRepository = (*PostgresBookRepo)(nil)

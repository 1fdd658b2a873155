package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/hitoshi/librarian/internal/model"
)

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern は部分一致用のLIKEパターンを返す。
func containsPattern(s string) string {
	return "%" + likeEscaper.Replace(s) + "%"
}

// whereBuilder はプレースホルダ番号を管理しながらWHERE句を組み立てる。
type whereBuilder struct {
	conds []string
	args  []any
}

// add はcondの中の "?" を次のプレースホルダに置き換えて条件を追加する。
func (b *whereBuilder) add(cond string, arg any) {
	b.args = append(b.args, arg)
	b.conds = append(b.conds, strings.ReplaceAll(cond, "?", fmt.Sprintf("$%d", len(b.args))))
}

func (b *whereBuilder) clause() string {
	if len(b.conds) == 0 {
		return ""
	}
	return "WHERE " + strings.Join(b.conds, " AND ")
}

// next は次に使うプレースホルダ番号を返す。
func (b *whereBuilder) next() int {
	return len(b.args) + 1
}

// FindDetail は貸出状況付きで蔵書を取得する。見つからない場合はnilを返す。
func (r *PostgresBookRepo) FindDetail(ctx context.Context, id string) (*model.BookDetail, error) {
	d := &model.BookDetail{}
	err := r.db.QueryRowContext(ctx,
		`SELECT `+bookColumns+`,
			(SELECT count(*) FROM borrow_records br WHERE br.book_id = books.book_id AND br.return_date IS NULL),
			(SELECT count(*) FROM borrow_records br WHERE br.book_id = books.book_id)
		 FROM books WHERE book_id = $1`,
		id,
	).Scan(&d.ID, &d.Title, &d.Author, &d.Publisher, &d.PublicationYear, &d.CallNo, &d.Language, &d.DocType,
		&d.CurrentBorrows, &d.TotalBorrows)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find book detail: %w", err)
	}
	return d, nil
}

// Search は条件に合う蔵書を貸出回数付きで返す。
func (r *PostgresBookRepo) Search(ctx context.Context, q model.BookSearch) ([]*model.BookListing, int, error) {
	var w whereBuilder
	if q.Keyword != "" {
		w.add("(b.title ILIKE ? OR b.author ILIKE ? OR b.publisher ILIKE ?)", containsPattern(q.Keyword))
	}
	if q.Category != "" {
		w.add("b.doc_type = ?", q.Category)
	}
	if q.Author != "" {
		w.add("b.author ILIKE ?", containsPattern(q.Author))
	}
	if q.Language != "" {
		w.add("b.language = ?", q.Language)
	}

	var total int
	if err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM books b `+w.clause(), w.args...,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count books: %w", err)
	}

	orderBy := "count(br.borrow_id) DESC, b.title, b.book_id"
	switch q.Sort {
	case model.BookSortTitle:
		orderBy = "b.title, b.book_id"
	case model.BookSortPublicationYear:
		orderBy = "b.publication_year DESC NULLS LAST, b.title, b.book_id"
	}

	n := w.next()
	args := append(w.args, q.Limit, q.Offset)
	rows, err := r.db.QueryContext(ctx,
		`SELECT b.book_id, b.title, COALESCE(b.author, ''), COALESCE(b.publisher, ''),
			COALESCE(b.publication_year, 0), COALESCE(b.call_no, ''), COALESCE(b.language, ''), COALESCE(b.doc_type, ''),
			count(br.borrow_id)
		 FROM books b
		 LEFT JOIN borrow_records br ON br.book_id = b.book_id
		 `+w.clause()+`
		 GROUP BY b.book_id
		 ORDER BY `+orderBy+`
		 LIMIT $`+fmt.Sprint(n)+` OFFSET $`+fmt.Sprint(n+1),
		args...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to search books: %w", err)
	}
	defer rows.Close()

	var books []*model.BookListing
	for rows.Next() {
		l := &model.BookListing{}
		if err := rows.Scan(&l.ID, &l.Title, &l.Author, &l.Publisher, &l.PublicationYear,
			&l.CallNo, &l.Language, &l.DocType, &l.BorrowCount); err != nil {
			return nil, 0, fmt.Errorf("failed to scan book: %w", err)
		}
		books = append(books, l)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate books: %w", err)
	}

	return books, total, nil
}

// ListByReader は読者の貸出記録を貸出日の新しい順に返す。
func (r *PostgresBorrowRepo) ListByReader(ctx context.Context, readerID string, filter model.BorrowFilter) ([]*model.BorrowRecord, int, error) {
	var w whereBuilder
	w.add("br.reader_id = ?", readerID)
	if filter.Keyword != "" {
		w.add("(b.title ILIKE ? OR b.author ILIKE ? OR b.call_no ILIKE ?)", containsPattern(filter.Keyword))
	}
	if filter.From != nil {
		w.add("br.borrow_date >= ?", *filter.From)
	}
	if filter.To != nil {
		w.add("br.borrow_date <= ?", *filter.To)
	}

	const from = `FROM borrow_records br LEFT JOIN books b ON b.book_id = br.book_id `

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT count(*) `+from+w.clause(), w.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count borrow records: %w", err)
	}

	n := w.next()
	args := append(w.args, filter.Limit, filter.Offset)
	rows, err := r.db.QueryContext(ctx,
		`SELECT br.borrow_id, br.reader_id, br.book_id,
			COALESCE(b.title, ''), COALESCE(b.author, ''), COALESCE(b.call_no, ''),
			br.borrow_date, br.return_date
		 `+from+w.clause()+`
		 ORDER BY br.borrow_date DESC, br.borrow_id DESC
		 LIMIT $`+fmt.Sprint(n)+` OFFSET $`+fmt.Sprint(n+1),
		args...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list borrow records: %w", err)
	}
	defer rows.Close()

	var records []*model.BorrowRecord
	for rows.Next() {
		rec := &model.BorrowRecord{}
		var returned sql.NullTime
		if err := rows.Scan(&rec.ID, &rec.ReaderID, &rec.BookID, &rec.Title, &rec.Author, &rec.CallNo,
			&rec.BorrowDate, &returned); err != nil {
			return nil, 0, fmt.Errorf("failed to scan borrow record: %w", err)
		}
		if returned.Valid {
			t := returned.Time
			rec.ReturnDate = &t
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate borrow records: %w", err)
	}

	return records, total, nil
}

// compile-time interface check
var (
	_ BookCatalogRepository = (*PostgresBookRepo)(nil)
	_ BorrowListRepository  = (*PostgresBorrowRepo)(nil)
)

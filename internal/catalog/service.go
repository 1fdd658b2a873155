// Package catalog は読者向けの蔵書検索と貸出記録の参照を提供する。
package catalog

import (
	"context"
	"fmt"

	"github.com/hitoshi/librarian/internal/model"
	"github.com/hitoshi/librarian/internal/repository"
)

const (
	defaultPageLimit = 10
	maxPageLimit     = 100
)

// Page はページングの位置情報。
type Page struct {
	Page       int
	Limit      int
	Total      int
	TotalPages int
	HasNext    bool
	HasPrev    bool
}

func newPage(page, limit, total int) Page {
	totalPages := (total + limit - 1) / limit
	return Page{
		Page:       page,
		Limit:      limit,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
		HasPrev:    page > 1,
	}
}

// BookPage は蔵書検索結果の1ページ分。
type BookPage struct {
	Books []*model.BookListing
	Page
}

// BorrowPage は貸出記録一覧の1ページ分。
type BorrowPage struct {
	Records []*model.BorrowRecord
	Page
}

// Service は蔵書検索と貸出記録のサービス層。
type Service struct {
	books   repository.BookCatalogRepository
	borrows repository.BorrowListRepository
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(books repository.BookCatalogRepository, borrows repository.BorrowListRepository) *Service {
	return &Service{books: books, borrows: borrows}
}

// GetBook は貸出状況付きで蔵書を返す。存在しない場合はBOOK_NOT_FOUND。
func (s *Service) GetBook(ctx context.Context, bookID string) (*model.BookDetail, error) {
	book, err := s.books.FindDetail(ctx, bookID)
	if err != nil {
		return nil, fmt.Errorf("蔵書の取得に失敗しました: %w", err)
	}
	if book == nil {
		return nil, model.NewBookNotFoundError(bookID)
	}
	return book, nil
}

// SearchBooks は蔵書を検索する。pageは1以上、limitは1〜100に丸める。
// 並び順が未知の値の場合は貸出回数順。
func (s *Service) SearchBooks(ctx context.Context, q model.BookSearch, page, limit int) (*BookPage, error) {
	page, limit = normalizePaging(page, limit)
	switch q.Sort {
	case model.BookSortTitle, model.BookSortPublicationYear:
	default:
		q.Sort = model.BookSortPopularity
	}
	q.Limit = limit
	q.Offset = (page - 1) * limit

	books, total, err := s.books.Search(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("蔵書の検索に失敗しました: %w", err)
	}
	if books == nil {
		books = []*model.BookListing{}
	}
	return &BookPage{Books: books, Page: newPage(page, limit, total)}, nil
}

// ListBorrows は読者の貸出記録を新しい順に返す。pageは1以上、limitは1〜100に丸める。
func (s *Service) ListBorrows(ctx context.Context, readerID string, filter model.BorrowFilter, page, limit int) (*BorrowPage, error) {
	page, limit = normalizePaging(page, limit)
	if filter.From != nil && filter.To != nil && filter.From.After(*filter.To) {
		return nil, model.NewInvalidRequestError("start_date は end_date 以前の日付を指定してください")
	}
	filter.Limit = limit
	filter.Offset = (page - 1) * limit

	records, total, err := s.borrows.ListByReader(ctx, readerID, filter)
	if err != nil {
		return nil, fmt.Errorf("貸出記録の取得に失敗しました: %w", err)
	}
	if records == nil {
		records = []*model.BorrowRecord{}
	}
	return &BorrowPage{Records: records, Page: newPage(page, limit, total)}, nil
}

func normalizePaging(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultPageLimit
	}
	return page, min(limit, maxPageLimit)
}

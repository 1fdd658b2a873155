package handler

import (
	"context"

	"github.com/hitoshi/librarian/internal/catalog"
	"github.com/hitoshi/librarian/internal/llm"
	"github.com/hitoshi/librarian/internal/model"
	"github.com/hitoshi/librarian/internal/recommend"
)

// RecommendationServiceAdapter は recommend.Service を RecommendationServiceInterface に適合させるアダプタ。
type RecommendationServiceAdapter struct {
	svc *recommend.Service
}

// NewRecommendationServiceAdapter はRecommendationServiceAdapterを生成する。
func NewRecommendationServiceAdapter(svc *recommend.Service) *RecommendationServiceAdapter {
	return &RecommendationServiceAdapter{svc: svc}
}

// GetRecommendations は推薦結果をhandlerレスポンス型で返す。
func (a *RecommendationServiceAdapter) GetRecommendations(ctx context.Context, readerID, modelName, query string, limit int) (*recommendationsResponse, error) {
	result, err := a.svc.GetBookRecommendations(ctx, readerID, modelName, query, limit)
	if err != nil {
		return nil, err
	}

	items := make([]recommendationItem, len(result.Recommendations))
	for i, rec := range result.Recommendations {
		items[i] = recommendationItem{
			Title:      rec.Title,
			Author:     rec.Author,
			CallNumber: rec.CallNumber,
			Reason:     rec.Reason,
			Category:   rec.Category,
		}
	}
	return &recommendationsResponse{
		Recommendations: items,
		ModelType:       result.ModelType,
		Message:         result.Message,
		Total:           len(items),
	}, nil
}

// ListHistory は推薦履歴の1ページをhandlerレスポンス型で返す。
func (a *RecommendationServiceAdapter) ListHistory(ctx context.Context, readerID string, includeRejected bool, page, limit int) (*historyListResponse, error) {
	p, err := a.svc.ListHistory(ctx, readerID, includeRejected, page, limit)
	if err != nil {
		return nil, err
	}

	records := make([]historyRecordResponse, len(p.Records))
	for i, rec := range p.Records {
		records[i] = toHistoryRecordResponse(rec)
	}
	return &historyListResponse{
		Recommendations: records,
		Pagination: paginationResponse{
			Page:       p.Page,
			Limit:      p.Limit,
			Total:      p.Total,
			TotalPages: p.TotalPages,
			HasNext:    p.HasNext,
			HasPrev:    p.HasPrev,
		},
	}, nil
}

// SetRejected は却下フラグを更新し、更新後の履歴をhandlerレスポンス型で返す。
func (a *RecommendationServiceAdapter) SetRejected(ctx context.Context, readerID, recommendationID string, isRejected bool) (*historyRecordResponse, error) {
	rec, err := a.svc.SetRejected(ctx, recommendationID, readerID, isRejected)
	if err != nil {
		return nil, err
	}
	resp := toHistoryRecordResponse(rec)
	return &resp, nil
}

// Health はモデルサービスの死活を返す。
func (a *RecommendationServiceAdapter) Health(ctx context.Context) (*llm.HealthStatus, error) {
	return a.svc.Health(ctx)
}

// BookServiceAdapter は recommend.Service の関連書籍機能を BookServiceInterface に適合させるアダプタ。
type BookServiceAdapter struct {
	svc *recommend.Service
}

// NewBookServiceAdapter はBookServiceAdapterを生成する。
func NewBookServiceAdapter(svc *recommend.Service) *BookServiceAdapter {
	return &BookServiceAdapter{svc: svc}
}

// GetRelatedBooks は関連書籍をhandlerレスポンス型で返す。
func (a *BookServiceAdapter) GetRelatedBooks(ctx context.Context, bookID string, limit int) ([]bookResponse, error) {
	books, err := a.svc.GetRelatedBooks(ctx, bookID, limit)
	if err != nil {
		return nil, err
	}

	results := make([]bookResponse, len(books))
	for i, b := range books {
		results[i] = toBookResponse(b)
	}
	return results, nil
}

// CatalogServiceAdapter は catalog.Service を CatalogServiceInterface に適合させるアダプタ。
type CatalogServiceAdapter struct {
	svc *catalog.Service
}

// NewCatalogServiceAdapter はCatalogServiceAdapterを生成する。
func NewCatalogServiceAdapter(svc *catalog.Service) *CatalogServiceAdapter {
	return &CatalogServiceAdapter{svc: svc}
}

// GetBook は蔵書詳細をhandlerレスポンス型で返す。
func (a *CatalogServiceAdapter) GetBook(ctx context.Context, bookID string) (*bookDetailResponse, error) {
	d, err := a.svc.GetBook(ctx, bookID)
	if err != nil {
		return nil, err
	}
	return &bookDetailResponse{
		bookResponse:   toBookResponse(&d.Book),
		CurrentBorrows: d.CurrentBorrows,
		TotalBorrows:   d.TotalBorrows,
		TotalCount:     1,
		AvailableCount: d.AvailableCount(),
	}, nil
}

// SearchBooks は蔵書検索結果をhandlerレスポンス型で返す。
func (a *CatalogServiceAdapter) SearchBooks(ctx context.Context, q model.BookSearch, page, limit int) (*bookSearchResponse, error) {
	p, err := a.svc.SearchBooks(ctx, q, page, limit)
	if err != nil {
		return nil, err
	}

	books := make([]bookListingResponse, len(p.Books))
	for i, b := range p.Books {
		books[i] = bookListingResponse{bookResponse: toBookResponse(&b.Book), BorrowCount: b.BorrowCount}
	}
	return &bookSearchResponse{
		Books:      books,
		Total:      p.Total,
		Page:       p.Page.Page,
		Limit:      p.Limit,
		TotalPages: p.TotalPages,
	}, nil
}

// ListBorrows は貸出記録一覧をhandlerレスポンス型で返す。
func (a *CatalogServiceAdapter) ListBorrows(ctx context.Context, readerID string, filter model.BorrowFilter, page, limit int) (*borrowListResponse, error) {
	p, err := a.svc.ListBorrows(ctx, readerID, filter, page, limit)
	if err != nil {
		return nil, err
	}

	records := make([]borrowRecordResponse, len(p.Records))
	for i, rec := range p.Records {
		records[i] = borrowRecordResponse{
			ID:         rec.ID,
			ReaderID:   rec.ReaderID,
			BookID:     rec.BookID,
			Title:      rec.Title,
			Author:     rec.Author,
			CallNo:     rec.CallNo,
			BorrowDate: rec.BorrowDate,
			ReturnDate: rec.ReturnDate,
		}
	}
	return &borrowListResponse{
		Data: records,
		Pagination: paginationResponse{
			Page:       p.Page.Page,
			Limit:      p.Limit,
			Total:      p.Total,
			TotalPages: p.TotalPages,
			HasNext:    p.HasNext,
			HasPrev:    p.HasPrev,
		},
	}, nil
}

func toHistoryRecordResponse(rec *model.RecommendationHistory) historyRecordResponse {
	return historyRecordResponse{
		ID:         rec.ID,
		Title:      rec.Title,
		Author:     rec.Author,
		CallNumber: rec.CallNumber,
		Reason:     rec.Reason,
		ModelUsed:  rec.ModelUsed,
		IsRejected: rec.IsRejected,
		CreatedAt:  rec.CreatedAt,
	}
}

func toBookResponse(b *model.Book) bookResponse {
	return bookResponse{
		ID:              b.ID,
		Title:           b.Title,
		Author:          b.Author,
		Publisher:       b.Publisher,
		PublicationYear: b.PublicationYear,
		CallNo:          b.CallNo,
		Language:        b.Language,
		DocType:         b.DocType,
	}
}

var (
	_ RecommendationServiceInterface = (*RecommendationServiceAdapter)(nil)
	_ BookServiceInterface           = (*BookServiceAdapter)(nil)
	_ CatalogServiceInterface        = (*CatalogServiceAdapter)(nil)
)

package handler

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/librarian/internal/middleware"
	"github.com/hitoshi/librarian/internal/model"
)

const (
	defaultCatalogPageLimit = 10
	maxCatalogPageLimit     = 100

	dateLayout = "2006-01-02"
)

// CatalogServiceInterface は蔵書検索・貸出記録ハンドラーが依存するサービスのインターフェース。
type CatalogServiceInterface interface {
	GetBook(ctx context.Context, bookID string) (*bookDetailResponse, error)
	SearchBooks(ctx context.Context, q model.BookSearch, page, limit int) (*bookSearchResponse, error)
	ListBorrows(ctx context.Context, readerID string, filter model.BorrowFilter, page, limit int) (*borrowListResponse, error)
}

// CatalogHandler は蔵書検索と貸出記録のHTTPハンドラー。
type CatalogHandler struct {
	service CatalogServiceInterface
	logger  *slog.Logger
}

// NewCatalogHandler はCatalogHandlerの新しいインスタンスを生成する。
func NewCatalogHandler(service CatalogServiceInterface, logger *slog.Logger) *CatalogHandler {
	return &CatalogHandler{service: service, logger: logger}
}

// bookDetailResponse はGET /api/books/{id} のレスポンス。
type bookDetailResponse struct {
	bookResponse
	CurrentBorrows int `json:"current_borrows"`
	TotalBorrows   int `json:"total_borrows"`
	TotalCount     int `json:"total_count"`
	AvailableCount int `json:"available_count"`
}

type bookListingResponse struct {
	bookResponse
	BorrowCount int `json:"borrow_count"`
}

// bookSearchResponse はGET /api/books/search のレスポンス。
type bookSearchResponse struct {
	Books      []bookListingResponse `json:"books"`
	Total      int                   `json:"total"`
	Page       int                   `json:"page"`
	Limit      int                   `json:"limit"`
	TotalPages int                   `json:"totalPages"`
}

type borrowRecordResponse struct {
	ID         int64      `json:"borrow_id"`
	ReaderID   string     `json:"reader_id"`
	BookID     string     `json:"book_id"`
	Title      string     `json:"title"`
	Author     string     `json:"author"`
	CallNo     string     `json:"call_no"`
	BorrowDate time.Time  `json:"borrow_date"`
	ReturnDate *time.Time `json:"return_date"`
}

// borrowListResponse はGET /api/borrows のレスポンス。
type borrowListResponse struct {
	Data       []borrowRecordResponse `json:"data"`
	Pagination paginationResponse     `json:"pagination"`
}

type bookSearchQuery struct {
	Search   string `json:"search" validate:"max=200,utf8"`
	Category string `json:"category" validate:"max=64,utf8"`
	Author   string `json:"author" validate:"max=255,utf8"`
	Language string `json:"language" validate:"max=32,utf8"`
	SortBy   string `json:"sort_by" validate:"omitempty,oneof=popularity title publication_year"`
}

type borrowQuery struct {
	Search    string `json:"search" validate:"max=200,utf8"`
	StartDate string `json:"start_date" validate:"omitempty,datetime=2006-01-02"`
	EndDate   string `json:"end_date" validate:"omitempty,datetime=2006-01-02"`
}

// GetBook は蔵書の詳細を返す。
// GET /api/books/{id}
func (h *CatalogHandler) GetBook(w http.ResponseWriter, r *http.Request) {
	book, err := h.service.GetBook(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, book)
}

// SearchBooks は蔵書を検索する。
// GET /api/books/search?search=&category=&author=&language=&sort_by=&page=&limit=
func (h *CatalogHandler) SearchBooks(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	q := bookSearchQuery{
		Search:   query.Get("search"),
		Category: query.Get("category"),
		Author:   query.Get("author"),
		Language: query.Get("language"),
		SortBy:   firstParam(query, "sort_by", "sortBy"),
	}
	if err := validate.Struct(q); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError(validationReason(err)))
		return
	}

	page := parsePositiveInt(query.Get("page"), 1)
	limit := min(parsePositiveInt(query.Get("limit"), defaultCatalogPageLimit), maxCatalogPageLimit)

	resp, err := h.service.SearchBooks(r.Context(), model.BookSearch{
		Keyword:  q.Search,
		Category: q.Category,
		Author:   q.Author,
		Language: q.Language,
		Sort:     model.BookSort(q.SortBy),
	}, page, limit)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, resp)
}

// ListBorrows は読者自身の貸出記録を返す。
// GET /api/borrows?search=&start_date=&end_date=&page=&limit=
func (h *CatalogHandler) ListBorrows(w http.ResponseWriter, r *http.Request) {
	readerID, err := middleware.ReaderIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	query := r.URL.Query()
	q := borrowQuery{
		Search:    query.Get("search"),
		StartDate: firstParam(query, "start_date", "startDate"),
		EndDate:   firstParam(query, "end_date", "endDate"),
	}
	if err := validate.Struct(q); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError(validationReason(err)))
		return
	}

	filter := model.BorrowFilter{Keyword: q.Search}
	if q.StartDate != "" {
		from, _ := time.Parse(dateLayout, q.StartDate)
		filter.From = &from
	}
	if q.EndDate != "" {
		// 終了日はその日の終わりまでを含む
		end, _ := time.Parse(dateLayout, q.EndDate)
		to := end.AddDate(0, 0, 1).Add(-time.Nanosecond)
		filter.To = &to
	}

	page := parsePositiveInt(query.Get("page"), 1)
	limit := min(parsePositiveInt(query.Get("limit"), defaultCatalogPageLimit), maxCatalogPageLimit)

	resp, err := h.service.ListBorrows(r.Context(), readerID, filter, page, limit)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, resp)
}

// firstParam はsnake_caseとcamelCaseのどちらで送られたパラメータも受け付ける。
func firstParam(query url.Values, keys ...string) string {
	for _, k := range keys {
		if v := query.Get(k); v != "" {
			return v
		}
	}
	return ""
}

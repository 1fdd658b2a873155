package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/librarian/internal/middleware"
)

const (
	defaultRelatedLimit = 5
	maxRelatedLimit     = 30
)

// BookServiceInterface は蔵書ハンドラーが依存するサービスのインターフェース。
type BookServiceInterface interface {
	GetRelatedBooks(ctx context.Context, bookID string, limit int) ([]bookResponse, error)
}

// BookHandler は蔵書関連のHTTPハンドラー。
type BookHandler struct {
	service BookServiceInterface
	logger  *slog.Logger
}

// NewBookHandler はBookHandlerの新しいインスタンスを生成する。
func NewBookHandler(service BookServiceInterface, logger *slog.Logger) *BookHandler {
	return &BookHandler{service: service, logger: logger}
}

// bookResponse は蔵書1件のレスポンス表現。
type bookResponse struct {
	ID              string `json:"book_id"`
	Title           string `json:"title"`
	Author          string `json:"author"`
	Publisher       string `json:"publisher"`
	PublicationYear int    `json:"publication_year,omitempty"`
	CallNo          string `json:"call_no"`
	Language        string `json:"language,omitempty"`
	DocType         string `json:"doc_type"`
}

type relatedBooksResponse struct {
	Data []bookResponse `json:"data"`
}

// GetRelatedBooks は指定蔵書に関連する蔵書を返す。
// GET /api/books/{id}/related?limit=
func (h *BookHandler) GetRelatedBooks(w http.ResponseWriter, r *http.Request) {
	bookID := chi.URLParam(r, "id")
	limit := min(parsePositiveInt(r.URL.Query().Get("limit"), defaultRelatedLimit), maxRelatedLimit)

	books, err := h.service.GetRelatedBooks(r.Context(), bookID, limit)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	if books == nil {
		books = []bookResponse{}
	}

	middleware.WriteJSON(w, http.StatusOK, relatedBooksResponse{Data: books})
}

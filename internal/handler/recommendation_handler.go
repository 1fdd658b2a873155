package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/hitoshi/librarian/internal/llm"
	"github.com/hitoshi/librarian/internal/middleware"
	"github.com/hitoshi/librarian/internal/model"
)

const (
	defaultHistoryPageLimit = 10
	maxHistoryPageLimit     = 100

	// defaultModelAlias はクライアントが「設定済みのモデル」を指すときに送るモデル名。
	defaultModelAlias = "ollama"

	maxRejectBodyBytes = 4 << 10
)

// RecommendationServiceInterface は推薦ハンドラーが依存するサービスのインターフェース。
type RecommendationServiceInterface interface {
	GetRecommendations(ctx context.Context, readerID, modelName, query string, limit int) (*recommendationsResponse, error)
	ListHistory(ctx context.Context, readerID string, includeRejected bool, page, limit int) (*historyListResponse, error)
	SetRejected(ctx context.Context, readerID, recommendationID string, isRejected bool) (*historyRecordResponse, error)
	Health(ctx context.Context) (*llm.HealthStatus, error)
}

// RecommendationHandlerConfig は推薦件数の既定値と上限、および受け付けるモデル名。
type RecommendationHandlerConfig struct {
	DefaultLimit int
	MaxLimit     int
	// DefaultModel はサーバーに設定されたモデル名。model パラメータはこれと
	// "ollama" と空文字のみ受け付ける。
	DefaultModel string
}

// RecommendationHandler は推薦関連のHTTPハンドラー。
type RecommendationHandler struct {
	service RecommendationServiceInterface
	config  RecommendationHandlerConfig
	logger  *slog.Logger
}

// NewRecommendationHandler はRecommendationHandlerの新しいインスタンスを生成する。
func NewRecommendationHandler(service RecommendationServiceInterface, config RecommendationHandlerConfig, logger *slog.Logger) *RecommendationHandler {
	if config.MaxLimit < 1 {
		config.MaxLimit = 50
	}
	if config.DefaultLimit < 1 || config.DefaultLimit > config.MaxLimit {
		config.DefaultLimit = min(10, config.MaxLimit)
	}
	return &RecommendationHandler{service: service, config: config, logger: logger}
}

// recommendationItem は推薦1件のレスポンス表現。
type recommendationItem struct {
	Title      string `json:"title"`
	Author     string `json:"author"`
	CallNumber string `json:"call_number"`
	Reason     string `json:"reason"`
	Category   string `json:"category,omitempty"`
}

// recommendationsResponse はGET /api/recommendations のレスポンス。
type recommendationsResponse struct {
	Recommendations []recommendationItem `json:"recommendations"`
	ModelType       string               `json:"model_type"`
	Message         string               `json:"message"`
	Total           int                  `json:"total"`
}

// historyRecordResponse は推薦履歴1行のレスポンス表現。
type historyRecordResponse struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Author     string    `json:"author"`
	CallNumber string    `json:"call_number"`
	Reason     string    `json:"reason"`
	ModelUsed  string    `json:"model_used"`
	IsRejected bool      `json:"is_rejected"`
	CreatedAt  time.Time `json:"created_at"`
}

type paginationResponse struct {
	Page       int  `json:"page"`
	Limit      int  `json:"limit"`
	Total      int  `json:"total"`
	TotalPages int  `json:"totalPages"`
	HasNext    bool `json:"hasNext"`
	HasPrev    bool `json:"hasPrev"`
}

// historyListResponse はGET /api/recommendations/history のレスポンス。
type historyListResponse struct {
	Recommendations []historyRecordResponse `json:"recommendations"`
	Pagination      paginationResponse      `json:"pagination"`
	Message         string                  `json:"message"`
}

// recommendationQuery はGET /api/recommendations のクエリパラメータ。
type recommendationQuery struct {
	Model string `json:"model" validate:"max=100,utf8"`
	Query string `json:"query" validate:"max=200,utf8"`
}

// rejectRequest はPUT /api/recommendations/history/{id} のリクエストボディ。
type rejectRequest struct {
	IsRejected *bool `json:"is_rejected" validate:"required"`
}

type rejectResponse struct {
	Message string                 `json:"message"`
	Record  *historyRecordResponse `json:"record"`
}

// unavailableResponse は推薦サービス全体が利用できない場合の503レスポンス。
type unavailableResponse struct {
	Message         string               `json:"message"`
	Recommendations []recommendationItem `json:"recommendations"`
}

type modelHealthResponse struct {
	Status    string   `json:"status"`
	Available bool     `json:"available"`
	Models    []string `json:"models,omitempty"`
	Error     string   `json:"error,omitempty"`
	Message   string   `json:"message"`
}

// GetRecommendations は読者向けの推薦を返す。
// GET /api/recommendations?model=&query=&limit=
func (h *RecommendationHandler) GetRecommendations(w http.ResponseWriter, r *http.Request) {
	readerID, err := middleware.ReaderIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	q := recommendationQuery{
		Model: r.URL.Query().Get("model"),
		Query: r.URL.Query().Get("query"),
	}
	if err := validate.Struct(q); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError(validationReason(err)))
		return
	}

	modelName, ok := h.resolveModel(q.Model)
	if !ok {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("model は設定済みのモデルのみ指定できます"))
		return
	}
	limit := h.clampLimit(r.URL.Query().Get("limit"))

	resp, err := h.service.GetRecommendations(r.Context(), readerID, modelName, q.Query, limit)
	if err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) && apiErr.Code == model.ErrCodeServiceUnavailable {
			middleware.WriteJSON(w, http.StatusServiceUnavailable, unavailableResponse{
				Message:         apiErr.Message,
				Recommendations: []recommendationItem{},
			})
			return
		}
		handleServiceError(w, h.logger, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, resp)
}

// resolveModel はクライアント指定のモデル名をサービスに渡す名前に変換する。
// 空文字は設定済みモデルを意味する。
func (h *RecommendationHandler) resolveModel(name string) (string, bool) {
	switch {
	case name == "" || name == defaultModelAlias:
		return "", true
	case name == h.config.DefaultModel:
		return name, true
	default:
		return "", false
	}
}

// ListHistory は読者の推薦履歴を返す。
// GET /api/recommendations/history?page=&limit=&show_rejected=
func (h *RecommendationHandler) ListHistory(w http.ResponseWriter, r *http.Request) {
	readerID, err := middleware.ReaderIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	query := r.URL.Query()
	page := parsePositiveInt(query.Get("page"), 1)
	limit := min(parsePositiveInt(query.Get("limit"), defaultHistoryPageLimit), maxHistoryPageLimit)

	showRejected := firstParam(query, "show_rejected", "showRejected")

	resp, err := h.service.ListHistory(r.Context(), readerID, showRejected == "true", page, limit)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	resp.Message = "推薦履歴を取得しました"
	middleware.WriteJSON(w, http.StatusOK, resp)
}

// SetRejected は推薦履歴の却下フラグを更新する。
// PUT /api/recommendations/history/{id}
func (h *RecommendationHandler) SetRejected(w http.ResponseWriter, r *http.Request) {
	readerID, err := middleware.ReaderIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	recommendationID := chi.URLParam(r, "id")

	var req rejectRequest
	body := io.LimitReader(r.Body, maxRejectBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("JSONの形式が不正です"))
		return
	}
	if err := validate.Struct(req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError(validationReason(err)))
		return
	}

	record, err := h.service.SetRejected(r.Context(), readerID, recommendationID, *req.IsRejected)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, rejectResponse{
		Message: "推薦履歴を更新しました",
		Record:  record,
	})
}

// Health はモデルサービスの死活を返す。
// モデルが利用できなくてもフォールバックで推薦できるため、常に200で状態を返す。
// GET /api/recommendations/health
func (h *RecommendationHandler) Health(w http.ResponseWriter, r *http.Request) {
	status, err := h.service.Health(r.Context())
	if err != nil || status == nil || !status.Available {
		resp := modelHealthResponse{
			Status:  "degraded",
			Message: "モデルサービスは利用できません",
		}
		if err != nil {
			resp.Error = err.Error()
		}
		middleware.WriteJSON(w, http.StatusOK, resp)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, modelHealthResponse{
		Status:    "healthy",
		Available: true,
		Models:    status.Models,
		Message:   "モデルサービスは正常に稼働しています",
	})
}

// clampLimit はlimitクエリを [1, MaxLimit] に丸める。数値でない場合は既定値。
func (h *RecommendationHandler) clampLimit(raw string) int {
	limit, err := strconv.Atoi(raw)
	if err != nil || limit == 0 {
		return h.config.DefaultLimit
	}
	if limit < 1 {
		return 1
	}
	return min(limit, h.config.MaxLimit)
}

// parsePositiveInt はrawを1以上の整数として解釈する。解釈できない場合はdefを返す。
func parsePositiveInt(raw string, def int) int {
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return def
	}
	return n
}

package recommend

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/hitoshi/librarian/internal/llm"
	"github.com/hitoshi/librarian/internal/metrics"
	"github.com/hitoshi/librarian/internal/model"
	"github.com/hitoshi/librarian/internal/repository"
)

const (
	// recentBooksLimit はプロンプト文脈に使う最近の貸出の件数。
	recentBooksLimit = 10
	// signalLimit はフォールバックの絞り込みに使う貸出シグナルの件数。
	signalLimit = 5
	// maxHistoryPageLimit は履歴一覧1ページあたりの最大件数。
	maxHistoryPageLimit = 100
	// defaultHistoryPageLimit は履歴一覧1ページあたりのデフォルト件数。
	defaultHistoryPageLimit = 10
)

const (
	messageModelSuccess    = "推薦を取得しました。"
	messageFallbackSuccess = "モデルサービスが利用できないため、蔵書データベースから推薦しました。"
)

// ModelClient は推薦に使う言語モデルのクライアント。
type ModelClient interface {
	RequestCompletion(ctx context.Context, msgs []llm.Message, opts llm.Options) (string, error)
	Health(ctx context.Context) (*llm.HealthStatus, error)
	DefaultModel() string
}

// Sanitizer はモデルが生成したテキストからマークアップを取り除く。
type Sanitizer interface {
	Sanitize(s string) string
}

// Result は推薦1回分の結果。
type Result struct {
	Recommendations []model.Recommendation
	// ModelType は実際に推薦を提供した経路。モデル名または "database_fallback"。
	ModelType string
	Message   string
	Source    model.RecommendationSource
}

// HistoryPage は推薦履歴一覧の1ページ分。
type HistoryPage struct {
	Records    []*model.RecommendationHistory
	Page       int
	Limit      int
	Total      int
	TotalPages int
	HasNext    bool
	HasPrev    bool
}

// Service は推薦のサービス層。
// モデル経路を試し、失敗または空の場合はデータベースフォールバックに切り替える。
type Service struct {
	borrowRepo  repository.BorrowRepository
	bookRepo    repository.BookRepository
	historyRepo repository.RecommendationHistoryRepository
	modelClient ModelClient
	sanitizer   Sanitizer
	metrics     metrics.MetricsCollector
	logger      *slog.Logger
}

// NewService はServiceの新しいインスタンスを生成する。
// sanitizerとmcはnilでもよい。
func NewService(
	borrowRepo repository.BorrowRepository,
	bookRepo repository.BookRepository,
	historyRepo repository.RecommendationHistoryRepository,
	modelClient ModelClient,
	sanitizer Sanitizer,
	mc metrics.MetricsCollector,
	logger *slog.Logger,
) *Service {
	if mc == nil {
		mc = metrics.NopCollector{}
	}
	return &Service{
		borrowRepo:  borrowRepo,
		bookRepo:    bookRepo,
		historyRepo: historyRepo,
		modelClient: modelClient,
		sanitizer:   sanitizer,
		metrics:     mc,
		logger:      logger,
	}
}

// GetBookRecommendations は読者向けの推薦を返す。
// モデル経路の失敗は呼び出し元に返さずフォールバックに切り替える。
// フォールバック自体が失敗した場合のみSERVICE_UNAVAILABLEを返す。
func (s *Service) GetBookRecommendations(ctx context.Context, readerID, modelName, keyword string, count int) (*Result, error) {
	count = clampLimit(count)
	if modelName == "" {
		modelName = s.modelClient.DefaultModel()
	}

	recent, err := s.borrowRepo.ListRecentBooks(ctx, readerID, recentBooksLimit)
	if err != nil {
		s.logger.Warn("最近の貸出の取得に失敗しました。履歴なしとして扱います",
			slog.String("reader_id", readerID),
			slog.String("error", err.Error()),
		)
		recent = nil
	}

	recs, err := s.requestFromModel(ctx, recent, modelName, keyword, count)
	if err == nil && len(recs) > 0 {
		s.saveHistory(ctx, readerID, modelName, recs)
		s.metrics.RecordRecommendation(string(model.SourceModel))
		return &Result{
			Recommendations: recs,
			ModelType:       modelName,
			Message:         messageModelSuccess,
			Source:          model.SourceModel,
		}, nil
	}

	attrs := []any{
		slog.String("reader_id", readerID),
		slog.String("model", modelName),
	}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	} else {
		s.metrics.RecordModelFailure("empty")
		attrs = append(attrs, slog.String("error", "モデルが推薦を返しませんでした"))
	}
	s.logger.Warn("モデル経路が失敗したためデータベースにフォールバックします", attrs...)

	recs, err = s.recommendFromDatabase(ctx, readerID, keyword, count)
	if err != nil {
		s.logger.Error("データベースフォールバックに失敗しました",
			slog.String("reader_id", readerID),
			slog.String("error", err.Error()),
		)
		s.metrics.RecordRecommendation(string(model.SourceUnavailable))
		return nil, model.NewServiceUnavailableError()
	}

	s.saveHistory(ctx, readerID, model.ModelUsedDatabaseFallback, recs)
	s.metrics.RecordRecommendation(string(model.SourceDatabaseFallback))
	return &Result{
		Recommendations: recs,
		ModelType:       model.ModelUsedDatabaseFallback,
		Message:         messageFallbackSuccess,
		Source:          model.SourceDatabaseFallback,
	}, nil
}

// requestFromModel はモデルに推薦を問い合わせ、正規化して返す。
// 件数は指示どおりでなくてもよく、切り詰めや補完はしない。
func (s *Service) requestFromModel(ctx context.Context, recent []model.RecentBook, modelName, keyword string, count int) ([]model.Recommendation, error) {
	content, err := s.modelClient.RequestCompletion(ctx, BuildMessages(recent, keyword, count), llm.Options{Model: modelName})
	if err != nil {
		return nil, err
	}

	recs := NormalizeAll(llm.ExtractRecommendationArray(content))
	for i := range recs {
		recs[i] = s.sanitize(recs[i])
	}
	return recs, nil
}

// recommendFromDatabase は貸出シグナルとキーワードで蔵書を検索する。
// 履歴での絞り込みが0件でキーワードもない場合は、絞り込みなしで再検索する。
func (s *Service) recommendFromDatabase(ctx context.Context, readerID, keyword string, count int) ([]model.Recommendation, error) {
	signals, err := s.borrowRepo.ListSignals(ctx, readerID, signalLimit)
	if err != nil {
		return nil, fmt.Errorf("貸出シグナルの取得に失敗しました: %w", err)
	}

	q := BuildFallbackQuery(signals, keyword, count)
	rows, err := s.bookRepo.QueryFallback(ctx, q.SQL, q.Args)
	if err != nil {
		return nil, fmt.Errorf("フォールバッククエリの実行に失敗しました: %w", err)
	}

	if len(rows) == 0 && q.Strategy == StrategyHistory {
		s.logger.Info("履歴に基づくフォールバックが0件のため新着蔵書で再検索します",
			slog.String("reader_id", readerID),
		)
		q = BuildFallbackQuery(nil, "", count)
		rows, err = s.bookRepo.QueryFallback(ctx, q.SQL, q.Args)
		if err != nil {
			return nil, fmt.Errorf("フォールバッククエリの再実行に失敗しました: %w", err)
		}
	}

	recs := make([]model.Recommendation, 0, len(rows))
	for _, row := range rows {
		rec := Normalize(row)
		rec.Category, _ = scalarString(row["doc_type"])
		recs = append(recs, rec)
	}
	return recs, nil
}

// saveHistory は推薦を履歴として保存する。失敗してもレスポンスには影響させない。
func (s *Service) saveHistory(ctx context.Context, readerID, modelUsed string, recs []model.Recommendation) {
	if len(recs) == 0 {
		return
	}

	records := make([]*model.RecommendationHistory, 0, len(recs))
	for _, r := range recs {
		records = append(records, &model.RecommendationHistory{
			ReaderID:   readerID,
			ModelUsed:  modelUsed,
			Title:      r.Title,
			Author:     r.Author,
			Reason:     r.Reason,
			CallNumber: r.CallNumber,
		})
	}

	if err := s.historyRepo.CreateBatch(ctx, records); err != nil {
		s.metrics.RecordHistorySaveFailure()
		s.logger.Error("推薦履歴の保存に失敗しました",
			slog.String("reader_id", readerID),
			slog.String("model_used", modelUsed),
			slog.Int("count", len(records)),
			slog.String("error", err.Error()),
		)
	}
}

func (s *Service) sanitize(r model.Recommendation) model.Recommendation {
	if s.sanitizer == nil {
		return r
	}
	r.Title = s.sanitizer.Sanitize(r.Title)
	r.Author = s.sanitizer.Sanitize(r.Author)
	r.CallNumber = s.sanitizer.Sanitize(r.CallNumber)
	r.Reason = s.sanitizer.Sanitize(r.Reason)
	return r
}

// ListHistory は読者の推薦履歴を新しい順にページ単位で返す。
// pageは1以上、limitは1〜100に丸める。
func (s *Service) ListHistory(ctx context.Context, readerID string, includeRejected bool, page, limit int) (*HistoryPage, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultHistoryPageLimit
	}
	if limit > maxHistoryPageLimit {
		limit = maxHistoryPageLimit
	}

	records, total, err := s.historyRepo.ListByReader(ctx, readerID, includeRejected, limit, (page-1)*limit)
	if err != nil {
		return nil, fmt.Errorf("推薦履歴の取得に失敗しました: %w", err)
	}
	if records == nil {
		records = []*model.RecommendationHistory{}
	}

	totalPages := (total + limit - 1) / limit
	return &HistoryPage{
		Records:    records,
		Page:       page,
		Limit:      limit,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
		HasPrev:    page > 1,
	}, nil
}

// SetRejected は推薦履歴の却下フラグを更新する。
// 存在しない場合はNotFound、所有者以外の場合はForbiddenを返し、フラグは変更しない。
func (s *Service) SetRejected(ctx context.Context, recommendationID, readerID string, isRejected bool) (*model.RecommendationHistory, error) {
	if !isValidID(recommendationID) {
		return nil, model.NewRecommendationNotFoundError(recommendationID)
	}

	rec, err := s.historyRepo.FindByID(ctx, recommendationID)
	if err != nil {
		return nil, fmt.Errorf("推薦履歴の取得に失敗しました: %w", err)
	}
	if rec == nil {
		return nil, model.NewRecommendationNotFoundError(recommendationID)
	}
	if rec.ReaderID != readerID {
		return nil, model.NewRecommendationForbiddenError()
	}

	updated, err := s.historyRepo.UpdateRejected(ctx, recommendationID, isRejected)
	if err != nil {
		return nil, fmt.Errorf("推薦履歴の更新に失敗しました: %w", err)
	}
	if updated == nil {
		return nil, model.NewRecommendationNotFoundError(recommendationID)
	}
	return updated, nil
}

// Health はモデルサービスの死活を返す。
func (s *Service) Health(ctx context.Context) (*llm.HealthStatus, error) {
	return s.modelClient.Health(ctx)
}

// isValidID は推薦履歴IDがUUID形式かどうかを返す。
func isValidID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

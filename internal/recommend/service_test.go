package recommend

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/librarian/internal/llm"
	"github.com/hitoshi/librarian/internal/model"
)

// --- モック ---

type mockBorrowRepo struct {
	listRecentBooksFn func(ctx context.Context, readerID string, limit int) ([]model.RecentBook, error)
	listSignalsFn     func(ctx context.Context, readerID string, limit int) ([]model.BorrowSignal, error)
}

func (m *mockBorrowRepo) ListRecentBooks(ctx context.Context, readerID string, limit int) ([]model.RecentBook, error) {
	if m.listRecentBooksFn != nil {
		return m.listRecentBooksFn(ctx, readerID, limit)
	}
	return nil, nil
}
func (m *mockBorrowRepo) ListSignals(ctx context.Context, readerID string, limit int) ([]model.BorrowSignal, error) {
	if m.listSignalsFn != nil {
		return m.listSignalsFn(ctx, readerID, limit)
	}
	return nil, nil
}

type mockBookRepo struct {
	findByIDFn              func(ctx context.Context, id string) (*model.Book, error)
	listRelatedCandidatesFn func(ctx context.Context, book *model.Book, limit int) ([]*model.Book, error)
	queryFallbackFn         func(ctx context.Context, query string, args []any) ([]map[string]any, error)
}

func (m *mockBookRepo) FindByID(ctx context.Context, id string) (*model.Book, error) {
	return m.findByIDFn(ctx, id)
}
func (m *mockBookRepo) ListRelatedCandidates(ctx context.Context, book *model.Book, limit int) ([]*model.Book, error) {
	return m.listRelatedCandidatesFn(ctx, book, limit)
}
func (m *mockBookRepo) QueryFallback(ctx context.Context, query string, args []any) ([]map[string]any, error) {
	return m.queryFallbackFn(ctx, query, args)
}

type mockHistoryRepo struct {
	created          [][]*model.RecommendationHistory
	createBatchErr   error
	listByReaderFn   func(ctx context.Context, readerID string, includeRejected bool, limit, offset int) ([]*model.RecommendationHistory, int, error)
	findByIDFn       func(ctx context.Context, id string) (*model.RecommendationHistory, error)
	updateRejectedFn func(ctx context.Context, id string, isRejected bool) (*model.RecommendationHistory, error)
}

func (m *mockHistoryRepo) CreateBatch(ctx context.Context, records []*model.RecommendationHistory) error {
	if m.createBatchErr != nil {
		return m.createBatchErr
	}
	m.created = append(m.created, records)
	return nil
}
func (m *mockHistoryRepo) ListByReader(ctx context.Context, readerID string, includeRejected bool, limit, offset int) ([]*model.RecommendationHistory, int, error) {
	return m.listByReaderFn(ctx, readerID, includeRejected, limit, offset)
}
func (m *mockHistoryRepo) FindByID(ctx context.Context, id string) (*model.RecommendationHistory, error) {
	return m.findByIDFn(ctx, id)
}
func (m *mockHistoryRepo) UpdateRejected(ctx context.Context, id string, isRejected bool) (*model.RecommendationHistory, error) {
	return m.updateRejectedFn(ctx, id, isRejected)
}

// allRows は保存された全履歴行を返す。
func (m *mockHistoryRepo) allRows() []*model.RecommendationHistory {
	var rows []*model.RecommendationHistory
	for _, batch := range m.created {
		rows = append(rows, batch...)
	}
	return rows
}

type mockModelClient struct {
	requestFn func(ctx context.Context, msgs []llm.Message, opts llm.Options) (string, error)
	healthFn  func(ctx context.Context) (*llm.HealthStatus, error)
	calls     int
	lastOpts  llm.Options
	lastMsgs  []llm.Message
}

func (m *mockModelClient) RequestCompletion(ctx context.Context, msgs []llm.Message, opts llm.Options) (string, error) {
	m.calls++
	m.lastOpts = opts
	m.lastMsgs = msgs
	return m.requestFn(ctx, msgs, opts)
}
func (m *mockModelClient) Health(ctx context.Context) (*llm.HealthStatus, error) {
	return m.healthFn(ctx)
}
func (m *mockModelClient) DefaultModel() string { return "qwen2.5:7b" }

type stripTagsSanitizer struct{}

func (stripTagsSanitizer) Sanitize(s string) string {
	return strings.NewReplacer("<b>", "", "</b>", "").Replace(s)
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

type testDeps struct {
	borrow  *mockBorrowRepo
	book    *mockBookRepo
	history *mockHistoryRepo
	model   *mockModelClient
	logs    *bytes.Buffer
}

func newTestService(d *testDeps) *Service {
	if d.borrow == nil {
		d.borrow = &mockBorrowRepo{}
	}
	if d.book == nil {
		d.book = &mockBookRepo{}
	}
	if d.history == nil {
		d.history = &mockHistoryRepo{}
	}
	d.logs = &bytes.Buffer{}
	return NewService(d.borrow, d.book, d.history, d.model, stripTagsSanitizer{}, nil, newTestLogger(d.logs))
}

func failingModel() *mockModelClient {
	return &mockModelClient{
		requestFn: func(ctx context.Context, msgs []llm.Message, opts llm.Options) (string, error) {
			return "", llm.ErrModelUnavailable
		},
	}
}

func bookRows(n int, docType string) []map[string]any {
	rows := make([]map[string]any, 0, n)
	for i := 0; i < n; i++ {
		rows = append(rows, map[string]any{
			"title":    "书" + string(rune('A'+i)),
			"author":   "作者",
			"call_no":  "I247/" + string(rune('0'+i)),
			"doc_type": docType,
			"reason":   reasonKeyword,
		})
	}
	return rows
}

// --- GetBookRecommendations ---

// 読者に履歴があり、モデルが1件返した場合はそのまま返し、モデル名で履歴を保存する。
func TestGetBookRecommendations_ModelSuccess(t *testing.T) {
	d := &testDeps{
		borrow: &mockBorrowRepo{
			listRecentBooksFn: func(ctx context.Context, readerID string, limit int) ([]model.RecentBook, error) {
				if limit != 10 {
					t.Errorf("recent books limit = %d, want 10", limit)
				}
				return []model.RecentBook{{Title: "F1", Author: "X"}, {Title: "F2"}, {Title: "F3"}}, nil
			},
		},
		book: &mockBookRepo{
			queryFallbackFn: func(ctx context.Context, query string, args []any) ([]map[string]any, error) {
				t.Fatal("モデルが成功した場合はフォールバックしない")
				return nil, nil
			},
		},
		model: &mockModelClient{
			requestFn: func(ctx context.Context, msgs []llm.Message, opts llm.Options) (string, error) {
				return `[{"title":"T","author":"A","reason":"R"}]`, nil
			},
		},
	}
	svc := newTestService(d)

	res, err := svc.GetBookRecommendations(context.Background(), "reader-1", "my-model", "", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := model.Recommendation{Title: "T", Author: "A", CallNumber: "", Reason: "R"}
	if len(res.Recommendations) != 1 || res.Recommendations[0] != want {
		t.Fatalf("Recommendations = %+v, want [%+v]", res.Recommendations, want)
	}
	if res.ModelType != "my-model" || res.Source != model.SourceModel {
		t.Errorf("ModelType = %q, Source = %q", res.ModelType, res.Source)
	}
	if res.Message == "" {
		t.Error("Message should not be empty")
	}
	if d.model.lastOpts.Model != "my-model" {
		t.Errorf("requested model = %q, want my-model", d.model.lastOpts.Model)
	}
	if !strings.Contains(d.model.lastMsgs[1].Content, "《F1》") {
		t.Error("最近の貸出がプロンプトに含まれていない")
	}

	rows := d.history.allRows()
	if len(rows) != 1 {
		t.Fatalf("history rows = %d, want 1", len(rows))
	}
	if rows[0].ModelUsed != "my-model" || rows[0].ReaderID != "reader-1" || rows[0].Title != "T" {
		t.Errorf("history row = %+v", rows[0])
	}
}

func TestGetBookRecommendations_EmptyModelNameUsesDefault(t *testing.T) {
	d := &testDeps{
		model: &mockModelClient{
			requestFn: func(ctx context.Context, msgs []llm.Message, opts llm.Options) (string, error) {
				return `[{"title":"T"}]`, nil
			},
		},
	}
	svc := newTestService(d)

	res, err := svc.GetBookRecommendations(context.Background(), "reader-1", "", "", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ModelType != "qwen2.5:7b" {
		t.Errorf("ModelType = %q, want qwen2.5:7b", res.ModelType)
	}
}

func TestGetBookRecommendations_ModelCountIsAdvisory(t *testing.T) {
	d := &testDeps{
		model: &mockModelClient{
			requestFn: func(ctx context.Context, msgs []llm.Message, opts llm.Options) (string, error) {
				return `[{"title":"1"},{"title":"2"},{"title":"3"},{"title":"4"}]`, nil
			},
		},
	}
	svc := newTestService(d)

	res, err := svc.GetBookRecommendations(context.Background(), "reader-1", "", "", 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Recommendations) != 4 {
		t.Errorf("len = %d, want 4 (切り詰めない)", len(res.Recommendations))
	}
}

func TestGetBookRecommendations_SanitizesModelOutput(t *testing.T) {
	d := &testDeps{
		model: &mockModelClient{
			requestFn: func(ctx context.Context, msgs []llm.Message, opts llm.Options) (string, error) {
				return `[{"title":"<b>三体</b>","author":"刘慈欣","reason":"<b>好</b>"}]`, nil
			},
		},
	}
	svc := newTestService(d)

	res, err := svc.GetBookRecommendations(context.Background(), "reader-1", "", "", 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Recommendations[0].Title != "三体" || res.Recommendations[0].Reason != "好" {
		t.Errorf("Recommendation = %+v", res.Recommendations[0])
	}
	if d.history.allRows()[0].Title != "三体" {
		t.Error("保存される履歴もサニタイズ済みであるべき")
	}
}

// モデルが失敗した場合、モデル名の履歴は作らずフォールバックの結果を返す。
func TestGetBookRecommendations_ModelFails_FallsBack(t *testing.T) {
	d := &testDeps{
		borrow: &mockBorrowRepo{
			listSignalsFn: func(ctx context.Context, readerID string, limit int) ([]model.BorrowSignal, error) {
				if limit != 5 {
					t.Errorf("signal limit = %d, want 5", limit)
				}
				return []model.BorrowSignal{{DocType: "Fiction", Author: "A"}}, nil
			},
		},
		book: &mockBookRepo{
			queryFallbackFn: func(ctx context.Context, query string, args []any) ([]map[string]any, error) {
				return bookRows(3, "Fiction"), nil
			},
		},
		model: failingModel(),
	}
	svc := newTestService(d)

	res, err := svc.GetBookRecommendations(context.Background(), "reader-1", "my-model", "", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Source != model.SourceDatabaseFallback || res.ModelType != "database_fallback" {
		t.Errorf("Source = %q, ModelType = %q", res.Source, res.ModelType)
	}
	if len(res.Recommendations) != 3 {
		t.Fatalf("len = %d, want 3", len(res.Recommendations))
	}
	for _, row := range d.history.allRows() {
		if row.ModelUsed != model.ModelUsedDatabaseFallback {
			t.Errorf("ModelUsed = %q, want database_fallback", row.ModelUsed)
		}
	}
	if !strings.Contains(d.logs.String(), `"level":"WARN"`) {
		t.Error("モデル経路の失敗はWARNで記録されるべき")
	}
	if strings.Contains(d.logs.String(), `"level":"ERROR"`) {
		t.Error("フォールバックが成功した場合はERRORを記録しない")
	}
}

// モデルが空配列を返した場合も失敗と同様にフォールバックする。
func TestGetBookRecommendations_ModelReturnsEmpty_FallsBack(t *testing.T) {
	for _, content := range []string{"[]", "抱歉，我无法推荐。", `["a","b"]`} {
		d := &testDeps{
			book: &mockBookRepo{
				queryFallbackFn: func(ctx context.Context, query string, args []any) ([]map[string]any, error) {
					return bookRows(2, "History"), nil
				},
			},
			model: &mockModelClient{
				requestFn: func(ctx context.Context, msgs []llm.Message, opts llm.Options) (string, error) {
					return content, nil
				},
			},
		}
		svc := newTestService(d)

		res, err := svc.GetBookRecommendations(context.Background(), "reader-1", "my-model", "", 10)
		if err != nil {
			t.Fatalf("content %q: unexpected error: %v", content, err)
		}
		if res.Source != model.SourceDatabaseFallback {
			t.Errorf("content %q: Source = %q, want database_fallback", content, res.Source)
		}
		for _, row := range d.history.allRows() {
			if row.ModelUsed == "my-model" {
				t.Errorf("content %q: モデル名の履歴行が作られている", content)
			}
		}
	}
}

// 履歴なし・キーワード「科幻」・5件・モデル失敗のシナリオ。
func TestGetBookRecommendations_KeywordFallbackScenario(t *testing.T) {
	d := &testDeps{
		book: &mockBookRepo{
			queryFallbackFn: func(ctx context.Context, query string, args []any) ([]map[string]any, error) {
				if args[0] != "%科幻%" {
					t.Errorf("keyword arg = %v, want %%科幻%%", args[0])
				}
				if args[len(args)-1] != 5 {
					t.Errorf("limit arg = %v, want 5", args[len(args)-1])
				}
				return bookRows(5, "科幻小说"), nil
			},
		},
		model: failingModel(),
	}
	svc := newTestService(d)

	res, err := svc.GetBookRecommendations(context.Background(), "reader-1", "", "科幻", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Recommendations) > 5 {
		t.Errorf("len = %d, want <= 5", len(res.Recommendations))
	}
	for _, r := range res.Recommendations {
		if r.Category == "" {
			t.Errorf("Category が空: %+v", r)
		}
		if r.CallNumber == "" {
			t.Errorf("CallNumber が空: %+v", r)
		}
	}
	rows := d.history.allRows()
	if len(rows) != len(res.Recommendations) {
		t.Errorf("history rows = %d, want %d", len(rows), len(res.Recommendations))
	}
}

// 履歴の分類に一致する蔵書がない場合は絞り込みなしで再検索する。
func TestGetBookRecommendations_EmptyHistoryFallback_RetriesUnfiltered(t *testing.T) {
	var queries []string
	d := &testDeps{
		borrow: &mockBorrowRepo{
			listSignalsFn: func(ctx context.Context, readerID string, limit int) ([]model.BorrowSignal, error) {
				return []model.BorrowSignal{{DocType: "Poetry"}}, nil
			},
		},
		book: &mockBookRepo{
			queryFallbackFn: func(ctx context.Context, query string, args []any) ([]map[string]any, error) {
				queries = append(queries, query)
				if strings.Contains(query, "WHERE") {
					return nil, nil
				}
				return bookRows(4, "Fiction"), nil
			},
		},
		model: failingModel(),
	}
	svc := newTestService(d)

	res, err := svc.GetBookRecommendations(context.Background(), "reader-1", "", "", 4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(queries) != 2 {
		t.Fatalf("queries = %d, want 2", len(queries))
	}
	if strings.Contains(queries[1], "WHERE") {
		t.Errorf("再検索は絞り込みなしであるべき: %s", queries[1])
	}
	if len(res.Recommendations) != 4 || res.Recommendations[0].Category != "Fiction" {
		t.Errorf("Recommendations = %+v", res.Recommendations)
	}
}

// キーワード検索が0件の場合は再検索せず空で返す。
func TestGetBookRecommendations_EmptyKeywordFallback_NoRetry(t *testing.T) {
	calls := 0
	d := &testDeps{
		book: &mockBookRepo{
			queryFallbackFn: func(ctx context.Context, query string, args []any) ([]map[string]any, error) {
				calls++
				return nil, nil
			},
		},
		model: failingModel(),
	}
	svc := newTestService(d)

	res, err := svc.GetBookRecommendations(context.Background(), "reader-1", "", "不存在的书", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("query calls = %d, want 1", calls)
	}
	if res.Recommendations == nil || len(res.Recommendations) != 0 {
		t.Errorf("Recommendations = %v, want empty non-nil", res.Recommendations)
	}
	if len(d.history.created) != 0 {
		t.Error("0件の場合は履歴を保存しない")
	}
}

// フォールバックも失敗した場合のみSERVICE_UNAVAILABLEを返す。
func TestGetBookRecommendations_BothPathsFail_ServiceUnavailable(t *testing.T) {
	d := &testDeps{
		book: &mockBookRepo{
			queryFallbackFn: func(ctx context.Context, query string, args []any) ([]map[string]any, error) {
				return nil, errors.New("connection refused")
			},
		},
		model: failingModel(),
	}
	svc := newTestService(d)

	res, err := svc.GetBookRecommendations(context.Background(), "reader-1", "", "", 5)
	if res != nil {
		t.Errorf("res = %+v, want nil", res)
	}
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeServiceUnavailable {
		t.Fatalf("err = %v, want SERVICE_UNAVAILABLE", err)
	}
	if !strings.Contains(d.logs.String(), `"level":"ERROR"`) {
		t.Error("フォールバック失敗はERRORで記録されるべき")
	}
}

func TestGetBookRecommendations_SignalQueryFails_ServiceUnavailable(t *testing.T) {
	d := &testDeps{
		borrow: &mockBorrowRepo{
			listSignalsFn: func(ctx context.Context, readerID string, limit int) ([]model.BorrowSignal, error) {
				return nil, errors.New("db down")
			},
		},
		model: failingModel(),
	}
	svc := newTestService(d)

	_, err := svc.GetBookRecommendations(context.Background(), "reader-1", "", "", 5)
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeServiceUnavailable {
		t.Fatalf("err = %v, want SERVICE_UNAVAILABLE", err)
	}
}

// 履歴の保存に失敗してもレスポンスは返す。
func TestGetBookRecommendations_HistorySaveFailure_IsSwallowed(t *testing.T) {
	for _, m := range []*mockModelClient{
		{requestFn: func(ctx context.Context, msgs []llm.Message, opts llm.Options) (string, error) {
			return `[{"title":"T"}]`, nil
		}},
		failingModel(),
	} {
		d := &testDeps{
			book: &mockBookRepo{
				queryFallbackFn: func(ctx context.Context, query string, args []any) ([]map[string]any, error) {
					return bookRows(1, "Fiction"), nil
				},
			},
			history: &mockHistoryRepo{createBatchErr: errors.New("insert failed")},
			model:   m,
		}
		svc := newTestService(d)

		res, err := svc.GetBookRecommendations(context.Background(), "reader-1", "", "", 5)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(res.Recommendations) != 1 {
			t.Errorf("len = %d, want 1", len(res.Recommendations))
		}
		if !strings.Contains(d.logs.String(), "推薦履歴の保存に失敗しました") {
			t.Error("保存失敗がログに記録されていない")
		}
	}
}

func TestGetBookRecommendations_RecentBooksErrorTreatedAsNoHistory(t *testing.T) {
	d := &testDeps{
		borrow: &mockBorrowRepo{
			listRecentBooksFn: func(ctx context.Context, readerID string, limit int) ([]model.RecentBook, error) {
				return nil, errors.New("timeout")
			},
		},
		model: &mockModelClient{
			requestFn: func(ctx context.Context, msgs []llm.Message, opts llm.Options) (string, error) {
				return `[{"title":"T"}]`, nil
			},
		},
	}
	svc := newTestService(d)

	if _, err := svc.GetBookRecommendations(context.Background(), "reader-1", "", "", 3); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(d.model.lastMsgs[1].Content, "阅读了") {
		t.Error("履歴取得失敗時は履歴なしのテンプレートを使う")
	}
}

// --- ListHistory ---

func TestListHistory_PaginationAndClamping(t *testing.T) {
	tests := []struct {
		name            string
		page, limit     int
		total           int
		wantPage        int
		wantLimit       int
		wantOffset      int
		wantTotalPages  int
		wantNext, wantP bool
	}{
		{name: "1ページ目", page: 1, limit: 10, total: 25, wantPage: 1, wantLimit: 10, wantOffset: 0, wantTotalPages: 3, wantNext: true, wantP: false},
		{name: "最終ページ", page: 3, limit: 10, total: 25, wantPage: 3, wantLimit: 10, wantOffset: 20, wantTotalPages: 3, wantNext: false, wantP: true},
		{name: "不正なページは1", page: 0, limit: 10, total: 5, wantPage: 1, wantLimit: 10, wantOffset: 0, wantTotalPages: 1},
		{name: "上限100", page: 1, limit: 1000, total: 0, wantPage: 1, wantLimit: 100, wantOffset: 0, wantTotalPages: 0},
		{name: "0件はデフォルト10", page: 2, limit: 0, total: 15, wantPage: 2, wantLimit: 10, wantOffset: 10, wantTotalPages: 2, wantP: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &testDeps{
				history: &mockHistoryRepo{
					listByReaderFn: func(ctx context.Context, readerID string, includeRejected bool, limit, offset int) ([]*model.RecommendationHistory, int, error) {
						if limit != tt.wantLimit || offset != tt.wantOffset {
							t.Errorf("limit, offset = %d, %d, want %d, %d", limit, offset, tt.wantLimit, tt.wantOffset)
						}
						return nil, tt.total, nil
					},
				},
				model: failingModel(),
			}
			svc := newTestService(d)

			page, err := svc.ListHistory(context.Background(), "reader-1", false, tt.page, tt.limit)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if page.Page != tt.wantPage || page.Limit != tt.wantLimit || page.TotalPages != tt.wantTotalPages {
				t.Errorf("page = %+v", page)
			}
			if page.HasNext != tt.wantNext || page.HasPrev != tt.wantP {
				t.Errorf("HasNext, HasPrev = %v, %v, want %v, %v", page.HasNext, page.HasPrev, tt.wantNext, tt.wantP)
			}
			if page.Records == nil {
				t.Error("Records は nil であってはならない")
			}
		})
	}
}

func TestListHistory_PassesRejectedFilter(t *testing.T) {
	var got []bool
	d := &testDeps{
		history: &mockHistoryRepo{
			listByReaderFn: func(ctx context.Context, readerID string, includeRejected bool, limit, offset int) ([]*model.RecommendationHistory, int, error) {
				got = append(got, includeRejected)
				return nil, 0, nil
			},
		},
		model: failingModel(),
	}
	svc := newTestService(d)

	_, _ = svc.ListHistory(context.Background(), "reader-1", false, 1, 10)
	_, _ = svc.ListHistory(context.Background(), "reader-1", true, 1, 10)
	if len(got) != 2 || got[0] || !got[1] {
		t.Errorf("includeRejected = %v, want [false true]", got)
	}
}

// --- SetRejected ---

const historyID = "3f2b8c1e-5a4d-4f6b-9c7e-1d2a3b4c5d6e"

func TestSetRejected_Owner_Updates(t *testing.T) {
	d := &testDeps{
		history: &mockHistoryRepo{
			findByIDFn: func(ctx context.Context, id string) (*model.RecommendationHistory, error) {
				return &model.RecommendationHistory{ID: id, ReaderID: "reader-1"}, nil
			},
			updateRejectedFn: func(ctx context.Context, id string, isRejected bool) (*model.RecommendationHistory, error) {
				return &model.RecommendationHistory{ID: id, ReaderID: "reader-1", IsRejected: isRejected, CreatedAt: time.Now()}, nil
			},
		},
		model: failingModel(),
	}
	svc := newTestService(d)

	rec, err := svc.SetRejected(context.Background(), historyID, "reader-1", true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !rec.IsRejected {
		t.Error("IsRejected should be true")
	}
}

func TestSetRejected_OtherReader_Forbidden(t *testing.T) {
	updated := false
	d := &testDeps{
		history: &mockHistoryRepo{
			findByIDFn: func(ctx context.Context, id string) (*model.RecommendationHistory, error) {
				return &model.RecommendationHistory{ID: id, ReaderID: "owner", IsRejected: false}, nil
			},
			updateRejectedFn: func(ctx context.Context, id string, isRejected bool) (*model.RecommendationHistory, error) {
				updated = true
				return nil, nil
			},
		},
		model: failingModel(),
	}
	svc := newTestService(d)

	_, err := svc.SetRejected(context.Background(), historyID, "intruder", true)
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeRecommendationForbidden {
		t.Fatalf("err = %v, want RECOMMENDATION_FORBIDDEN", err)
	}
	if updated {
		t.Error("所有者以外の場合は更新しない")
	}
}

func TestSetRejected_NotFound(t *testing.T) {
	d := &testDeps{
		history: &mockHistoryRepo{
			findByIDFn: func(ctx context.Context, id string) (*model.RecommendationHistory, error) {
				return nil, nil
			},
		},
		model: failingModel(),
	}
	svc := newTestService(d)

	for _, id := range []string{historyID, "not-a-uuid", ""} {
		_, err := svc.SetRejected(context.Background(), id, "reader-1", true)
		var apiErr *model.APIError
		if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeRecommendationNotFound {
			t.Errorf("id %q: err = %v, want RECOMMENDATION_NOT_FOUND", id, err)
		}
	}
}

func TestSetRejected_RepositoryError_Propagates(t *testing.T) {
	d := &testDeps{
		history: &mockHistoryRepo{
			findByIDFn: func(ctx context.Context, id string) (*model.RecommendationHistory, error) {
				return nil, errors.New("db down")
			},
		},
		model: failingModel(),
	}
	svc := newTestService(d)

	_, err := svc.SetRejected(context.Background(), historyID, "reader-1", true)
	if err == nil {
		t.Fatal("expected error")
	}
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		t.Errorf("DBエラーはAPIErrorではない: %v", err)
	}
}

// --- Health ---

func TestHealth_DelegatesToModelClient(t *testing.T) {
	d := &testDeps{
		model: &mockModelClient{
			healthFn: func(ctx context.Context) (*llm.HealthStatus, error) {
				return &llm.HealthStatus{Available: true, Models: []string{"qwen2.5:7b"}}, nil
			},
		},
	}
	svc := newTestService(d)

	status, err := svc.Health(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !status.Available || len(status.Models) != 1 {
		t.Errorf("status = %+v", status)
	}
}

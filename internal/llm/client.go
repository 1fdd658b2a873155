// Package llm は外部言語モデルサービス（Ollama互換API）のクライアントを提供する。
// チャット補完の呼び出し、タイムアウトと再試行、サーキットブレーカー、
// 自由形式テキストからのJSON配列抽出を含む。
package llm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/sony/gobreaker/v2"

	"github.com/hitoshi/librarian/internal/metrics"
)

const (
	chatPath = "/api/chat"
	tagsPath = "/api/tags"

	// healthTimeout は死活確認1回あたりのタイムアウト。
	healthTimeout = 5 * time.Second
	// maxResponseBytes はレスポンスボディの読み取り上限。
	maxResponseBytes = 4 << 20
)

// ErrModelUnavailable は再試行を使い切ってもモデルから応答を得られなかったことを示す。
// 最後の試行のエラーをラップして返す。
var ErrModelUnavailable = errors.New("model service unavailable")

// Message はチャット形式の1ターンを表す。
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// RoleSystem などはMessage.Roleに指定する値。
const (
	RoleSystem = "system"
	RoleUser   = "user"
)

// Options は1回の補完リクエストに固有の設定。
// ゼロ値のフィールドはクライアント既定値を使う。
type Options struct {
	Model string
	// Format はOllamaのformat指定（例: "json"）。空の場合は送らない。
	Format string
	// Temperature がnilの場合はクライアント既定値を使う。
	Temperature *float64
}

// Config はClientの設定。
type Config struct {
	Host            string
	Model           string
	Timeout         time.Duration
	MaxRetries      int
	RetryBackoff    time.Duration
	Temperature     float64
	BreakerFailures int
	BreakerTimeout  time.Duration
}

// HealthStatus はモデルサービスの死活確認結果。
type HealthStatus struct {
	Available bool
	Models    []string
}

type chatRequest struct {
	Model    string      `json:"model"`
	Messages []Message   `json:"messages"`
	Stream   bool        `json:"stream"`
	Format   string      `json:"format,omitempty"`
	Options  chatOptions `json:"options"`
}

type chatOptions struct {
	Temperature float64 `json:"temperature"`
}

type chatResponse struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
}

type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// Client はモデルサービスのクライアント。
// 複数goroutineから同時に使用できる。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	metrics    metrics.MetricsCollector
	breaker    *gobreaker.CircuitBreaker[string]
	cfg        Config
	host       string // テスト用にホストを差し替え可能
}

// NewClient はClientの新しいインスタンスを生成する。
// httpClientのTimeoutは使わず、試行ごとにcontextでタイムアウトを設定する。
func NewClient(cfg Config, httpClient *http.Client, logger *slog.Logger, mc metrics.MetricsCollector) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if mc == nil {
		mc = metrics.NopCollector{}
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	c := &Client{
		httpClient: httpClient,
		logger:     logger,
		metrics:    mc,
		cfg:        cfg,
		host:       cfg.Host,
	}
	c.breaker = newBreaker(cfg, logger, mc)
	return c
}

// DefaultModel は設定されたモデル名を返す。
func (c *Client) DefaultModel() string {
	return c.cfg.Model
}

// RequestCompletion はチャット補完をリクエストし、応答テキストを返す。
// 試行ごとに設定のタイムアウトを適用し、通信エラー・タイムアウト・非2xxの場合は
// MaxRetries回まで再試行する。すべて失敗した場合はErrModelUnavailableを返す。
// サーキットブレーカーが開いている間はモデルを呼び出さずに即座に失敗する。
func (c *Client) RequestCompletion(ctx context.Context, msgs []Message, opts Options) (string, error) {
	content, err := c.breaker.Execute(func() (string, error) {
		return c.requestWithRetry(ctx, msgs, opts)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			c.metrics.RecordModelFailure("breaker_open")
			return "", fmt.Errorf("%w: %w", ErrModelUnavailable, err)
		}
		return "", err
	}
	return content, nil
}

func (c *Client) requestWithRetry(ctx context.Context, msgs []Message, opts Options) (string, error) {
	body, err := json.Marshal(c.buildRequest(msgs, opts))
	if err != nil {
		return "", fmt.Errorf("リクエストJSONの生成に失敗しました: %w", err)
	}

	attempts := c.cfg.MaxRetries + 1
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			if err := sleepContext(ctx, CalculateBackoff(c.cfg.RetryBackoff, attempt-2)); err != nil {
				break
			}
		}

		content, err := c.doChat(ctx, body)
		if err == nil {
			return content, nil
		}
		lastErr = err

		c.metrics.RecordModelFailure(failureReason(err))
		c.logger.Warn("モデルサービスの呼び出しに失敗しました",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", attempts),
			slog.String("error", err.Error()),
		)

		if !isRetryable(err) || ctx.Err() != nil {
			break
		}
	}
	if lastErr == nil {
		lastErr = ctx.Err()
	}
	return "", fmt.Errorf("%w: %w", ErrModelUnavailable, lastErr)
}

func (c *Client) buildRequest(msgs []Message, opts Options) chatRequest {
	model := opts.Model
	if model == "" {
		model = c.cfg.Model
	}
	temperature := c.cfg.Temperature
	if opts.Temperature != nil {
		temperature = *opts.Temperature
	}
	return chatRequest{
		Model:    model,
		Messages: msgs,
		Stream:   false,
		Format:   opts.Format,
		Options:  chatOptions{Temperature: temperature},
	}
}

// doChat は1回分の試行を行う。タイムアウトは試行ごとに独立する。
func (c *Client) doChat(ctx context.Context, body []byte) (string, error) {
	attemptCtx := ctx
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, c.host+chatPath, bytes.NewReader(body))
	if err != nil {
		return "", &permanentError{err: fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Librarian/1.0")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.RecordModelLatency(time.Since(start))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// 接続を再利用できるようにボディを読み捨てる
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return "", &statusError{StatusCode: resp.StatusCode}
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	var decoded chatResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", &permanentError{err: fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)}
	}
	return decoded.Message.Content, nil
}

// Health はモデルサービスの死活とインストール済みモデル一覧を確認する。
// サーキットブレーカーは経由しない。
func (c *Client) Health(ctx context.Context) (*HealthStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.host+tagsPath, nil)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("User-Agent", "Librarian/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &statusError{StatusCode: resp.StatusCode}
	}

	var tags tagsResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&tags); err != nil {
		return nil, fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
	}

	models := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		models = append(models, m.Name)
	}
	return &HealthStatus{Available: true, Models: models}, nil
}

// BreakerState はサーキットブレーカーの現在の状態を返す。
func (c *Client) BreakerState() gobreaker.State {
	return c.breaker.State()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

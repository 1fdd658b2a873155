// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/librarian/internal/model"
)

// SessionCookieName はログイン処理が発行するセッションCookieの名前。
const SessionCookieName = "session_id"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var readerIDContextKey = contextKey("reader_id")

var errNoReaderID = errors.New("reader ID not found in context")

// SessionFinder はセッションの検索に必要なインターフェース。
// repository.SessionRepositoryの部分集合。
type SessionFinder interface {
	FindByID(ctx context.Context, id string) (*model.Session, error)
}

// NewSessionMiddleware はCookieのセッションを検証し、読者IDをコンテキストに注入する。
// セッションがない、期限切れ、または検索に失敗した場合は401を返す。
func NewSessionMiddleware(finder SessionFinder, logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(SessionCookieName)
			if err != nil || cookie.Value == "" {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			session, err := finder.FindByID(r.Context(), cookie.Value)
			if err != nil {
				logger.Error("failed to find session",
					slog.String("error", err.Error()),
				)
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}
			if session == nil {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			recordReaderID(r.Context(), session.ReaderID)
			next.ServeHTTP(w, r.WithContext(ContextWithReaderID(r.Context(), session.ReaderID)))
		})
	}
}

// ReaderIDFromContext はリクエストコンテキストから読者IDを取得する。
// セッションミドルウェアを通過したリクエストでのみ有効。
func ReaderIDFromContext(ctx context.Context) (string, error) {
	readerID, ok := ctx.Value(readerIDContextKey).(string)
	if !ok || readerID == "" {
		return "", errNoReaderID
	}
	return readerID, nil
}

// ContextWithReaderID はコンテキストに読者IDを注入する。
func ContextWithReaderID(ctx context.Context, readerID string) context.Context {
	return context.WithValue(ctx, readerIDContextKey, readerID)
}

func contextWithReaderIDHolder(ctx context.Context, h *readerIDHolder) context.Context {
	return context.WithValue(ctx, readerIDHolderKey, h)
}

// recordReaderID はアクセスログ用に読者IDを外側のミドルウェアへ伝える。
func recordReaderID(ctx context.Context, readerID string) {
	if h, ok := ctx.Value(readerIDHolderKey).(*readerIDHolder); ok {
		h.readerID = readerID
	}
}

package recommend

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/hitoshi/librarian/internal/llm"
	"github.com/hitoshi/librarian/internal/model"
)

const (
	// relatedCandidateLimit は関連書籍の候補として取得する最大件数。
	relatedCandidateLimit = 30
	// DefaultRelatedLimit は関連書籍のデフォルト件数。
	DefaultRelatedLimit = 5
)

const relatedSystemPromptTemplate = `你是一个专业的图书推荐系统。请根据目标书籍的特征，从给定的候选列表中选出最相似或最相关的 %d 本书。
请只返回被选中书籍的 ID，格式为 JSON: {"ids": ["ID1", "ID2", "ID3"]}。不要包含任何解释或其他文字。`

// GetRelatedBooks は指定蔵書に関連する蔵書を最大limit件返す。
// 分類または著者が同じ候補からモデルに選ばせ、選ばれた候補を蔵書順に並べて
// 残りの候補で不足分を補う。モデルが失敗した場合は候補の先頭limit件を返す。
func (s *Service) GetRelatedBooks(ctx context.Context, bookID string, limit int) ([]*model.Book, error) {
	if limit < 1 {
		limit = DefaultRelatedLimit
	}
	if limit > relatedCandidateLimit {
		limit = relatedCandidateLimit
	}

	book, err := s.bookRepo.FindByID(ctx, bookID)
	if err != nil {
		return nil, fmt.Errorf("蔵書の取得に失敗しました: %w", err)
	}
	if book == nil {
		return nil, model.NewBookNotFoundError(bookID)
	}

	candidates, err := s.bookRepo.ListRelatedCandidates(ctx, book, relatedCandidateLimit)
	if err != nil {
		return nil, fmt.Errorf("関連書籍候補の取得に失敗しました: %w", err)
	}
	if len(candidates) == 0 {
		return []*model.Book{}, nil
	}

	content, err := s.modelClient.RequestCompletion(ctx, buildRelatedMessages(book, candidates, limit), llm.Options{Format: "json"})
	if err != nil {
		s.logger.Warn("関連書籍の選定にモデルを使えなかったため候補順で返します",
			slog.String("book_id", bookID),
			slog.String("error", err.Error()),
		)
		return firstN(candidates, limit), nil
	}

	chosen := chosenIDs(llm.ExtractJSONArray(content))
	if len(chosen) == 0 {
		return firstN(candidates, limit), nil
	}
	return pickRelated(candidates, chosen, limit), nil
}

// pickRelated はモデルが選んだ候補を蔵書順に並べ、残りの候補で limit 件まで補う。
func pickRelated(candidates []*model.Book, chosen map[string]struct{}, limit int) []*model.Book {
	result := make([]*model.Book, 0, limit)
	var rest []*model.Book
	for _, b := range candidates {
		if _, ok := chosen[b.ID]; ok {
			if len(result) < limit {
				result = append(result, b)
			}
			continue
		}
		rest = append(rest, b)
	}
	for _, b := range rest {
		if len(result) >= limit {
			break
		}
		result = append(result, b)
	}
	return result
}

// chosenIDs はモデル出力の配列要素をIDの集合に変換する。数値は文字列化する。
func chosenIDs(values []any) map[string]struct{} {
	ids := make(map[string]struct{}, len(values))
	for _, v := range values {
		switch x := v.(type) {
		case string:
			if x = strings.TrimSpace(x); x != "" {
				ids[x] = struct{}{}
			}
		case float64:
			ids[strconv.FormatFloat(x, 'f', -1, 64)] = struct{}{}
		}
	}
	return ids
}

func buildRelatedMessages(book *model.Book, candidates []*model.Book, limit int) []llm.Message {
	var sb strings.Builder
	fmt.Fprintf(&sb, "目标书籍:\n书名: 《%s》\n作者: %s\n出版社: %s\n分类: %s\n\n候选书籍列表:\n",
		book.Title, book.Author, orUnknown(book.Publisher), book.DocType)
	for i, c := range candidates {
		fmt.Fprintf(&sb, "%d. ID: %s, 书名: 《%s》, 作者: %s, 出版社: %s\n",
			i+1, c.ID, c.Title, c.Author, orUnknown(c.Publisher))
	}
	fmt.Fprintf(&sb, "\n请从中选出最相关的 %d 本书。", limit)

	return []llm.Message{
		{Role: llm.RoleSystem, Content: fmt.Sprintf(relatedSystemPromptTemplate, limit)},
		{Role: llm.RoleUser, Content: sb.String()},
	}
}

func orUnknown(s string) string {
	if s == "" {
		return "未知"
	}
	return s
}

func firstN(books []*model.Book, n int) []*model.Book {
	if len(books) <= n {
		return books
	}
	return books[:n]
}

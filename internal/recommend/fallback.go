package recommend

import (
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/hitoshi/librarian/internal/model"
)

// FallbackStrategy はフォールバッククエリの絞り込み方法。
type FallbackStrategy string

const (
	// StrategyKeyword はキーワードで書名・著者・分類を部分一致検索する。
	StrategyKeyword FallbackStrategy = "keyword"
	// StrategyHistory は読者が借りたことのある分類に絞り込む。
	StrategyHistory FallbackStrategy = "history"
	// StrategyLatest は絞り込みなしで出版年の新しい順に返す。
	StrategyLatest FallbackStrategy = "latest"
)

// MaxLimit は1回の推薦で返す件数のハードリミット。
const MaxLimit = 50

// フォールバック推薦に付与する理由文。
const (
	reasonKeyword = "キーワードに一致する蔵書です"
	reasonHistory = "あなたの貸出履歴に基づく推薦です"
	reasonLatest  = "新着の蔵書です"
)

const fallbackSelect = `SELECT b.title, b.author, b.call_no, b.doc_type, '%s' AS reason FROM books b`

// FallbackQuery は実行可能なパラメータ化済みクエリ。
type FallbackQuery struct {
	SQL      string
	Args     []any
	Strategy FallbackStrategy
	// Authors は貸出履歴から導出した著者の集合。
	// 現状クエリの絞り込みには使っておらず、分類のみで絞り込む。
	Authors []string
}

// BuildFallbackQuery は貸出シグナルとキーワードから蔵書検索クエリを組み立てる。
// キーワードがあれば履歴は無視し、なければ履歴の分類で絞り込み、
// どちらもなければ絞り込まない。いずれも出版年の降順で limit 件まで返す。
// 同じ入力からは常に同じSQLと引数を生成する。
func BuildFallbackQuery(signals []model.BorrowSignal, keyword string, limit int) FallbackQuery {
	limit = clampLimit(limit)
	keyword = strings.TrimSpace(keyword)

	var (
		args     []any
		where    string
		strategy FallbackStrategy
		reason   string
		authors  []string
	)

	switch {
	case keyword != "":
		args = append(args, "%"+escapeLike(keyword)+"%")
		where = fmt.Sprintf("(b.title ILIKE $%[1]d OR b.author ILIKE $%[1]d OR b.doc_type ILIKE $%[1]d)", len(args))
		strategy = StrategyKeyword
		reason = reasonKeyword
	default:
		docTypes, signalAuthors := distinctSignals(signals)
		authors = signalAuthors
		if len(docTypes) > 0 {
			args = append(args, pq.StringArray(docTypes))
			where = fmt.Sprintf("b.doc_type = ANY($%d)", len(args))
			strategy = StrategyHistory
			reason = reasonHistory
		} else {
			strategy = StrategyLatest
			reason = reasonLatest
		}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, fallbackSelect, reason)
	if where != "" {
		sb.WriteString(" WHERE ")
		sb.WriteString(where)
	}
	args = append(args, limit)
	fmt.Fprintf(&sb, " ORDER BY b.publication_year DESC NULLS LAST, b.book_id LIMIT $%d", len(args))

	return FallbackQuery{
		SQL:      sb.String(),
		Args:     args,
		Strategy: strategy,
		Authors:  authors,
	}
}

// distinctSignals は出現順を保ったまま空でない分類と著者を重複なく取り出す。
func distinctSignals(signals []model.BorrowSignal) (docTypes, authors []string) {
	seenType := make(map[string]struct{}, len(signals))
	seenAuthor := make(map[string]struct{}, len(signals))
	for _, s := range signals {
		if s.DocType != "" {
			if _, ok := seenType[s.DocType]; !ok {
				seenType[s.DocType] = struct{}{}
				docTypes = append(docTypes, s.DocType)
			}
		}
		if s.Author != "" {
			if _, ok := seenAuthor[s.Author]; !ok {
				seenAuthor[s.Author] = struct{}{}
				authors = append(authors, s.Author)
			}
		}
	}
	return docTypes, authors
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike はLIKEパターンのメタ文字をエスケープする。
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func clampLimit(limit int) int {
	if limit < 1 {
		return 1
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

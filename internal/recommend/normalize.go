// Package recommend は図書推薦のオーケストレーションを提供する。
// 外部言語モデルへの問い合わせ、出力の正規化、モデルが使えない場合の
// データベースフォールバック、推薦履歴の永続化を含む。
package recommend

import (
	"strconv"

	"github.com/hitoshi/librarian/internal/model"
)

// 正規化時に参照するキーの優先順位。先頭から順に、最初の非空の値を採用する。
var (
	titleKeys      = []string{"title", "book_title", "name", "Title"}
	authorKeys     = []string{"author", "book_author", "writer", "Author"}
	callNumberKeys = []string{"call_number", "call_no", "callNumber", "callNum", "call_num"}
	reasonKeys     = []string{"reason", "explanation", "rationale"}
)

// Normalize は出所ごとにキー名が異なるレコードを正規形のRecommendationに変換する。
// どのような入力でもパニックせず、欠損フィールドは空文字列になる。
func Normalize(record map[string]any) model.Recommendation {
	return model.Recommendation{
		Title:      firstString(record, titleKeys),
		Author:     firstString(record, authorKeys),
		CallNumber: firstString(record, callNumberKeys),
		Reason:     firstString(record, reasonKeys),
	}
}

// NormalizeAll はレコード列を順に正規化する。結果は常に非nil。
func NormalizeAll(records []map[string]any) []model.Recommendation {
	recs := make([]model.Recommendation, 0, len(records))
	for _, r := range records {
		recs = append(recs, Normalize(r))
	}
	return recs
}

func firstString(record map[string]any, keys []string) string {
	for _, k := range keys {
		if s, ok := scalarString(record[k]); ok {
			return s
		}
	}
	return ""
}

// scalarString は値を文字列に変換する。
// nil・空文字列・false・0、およびスカラー以外は「値なし」として扱う。
func scalarString(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, x != ""
	case []byte:
		return string(x), len(x) > 0
	case bool:
		if !x {
			return "", false
		}
		return "true", true
	case float64:
		if x == 0 {
			return "", false
		}
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case float32:
		if x == 0 {
			return "", false
		}
		return strconv.FormatFloat(float64(x), 'f', -1, 32), true
	case int:
		if x == 0 {
			return "", false
		}
		return strconv.Itoa(x), true
	case int64:
		if x == 0 {
			return "", false
		}
		return strconv.FormatInt(x, 10), true
	case int32:
		if x == 0 {
			return "", false
		}
		return strconv.FormatInt(int64(x), 10), true
	default:
		return "", false
	}
}

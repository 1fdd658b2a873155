package llm

import (
	"strings"

	"github.com/goccy/go-json"
)

// ExtractJSONArray は自由形式テキストから最初の '[' と最後の ']' の間をJSON配列として取り出す。
// 括弧がない場合やパースに失敗した場合は空のスライスを返し、エラーにはしない。
func ExtractJSONArray(raw string) []any {
	start := strings.Index(raw, "[")
	end := strings.LastIndex(raw, "]")
	if start == -1 || end == -1 || end < start {
		return []any{}
	}

	var arr []any
	if err := json.Unmarshal([]byte(raw[start:end+1]), &arr); err != nil {
		return []any{}
	}
	if arr == nil {
		return []any{}
	}
	return arr
}

// ExtractRecommendationArray はモデル出力から推薦レコードの配列を取り出す。
// オブジェクト以外の要素は捨てる。結果は常に非nil。
func ExtractRecommendationArray(raw string) []map[string]any {
	arr := ExtractJSONArray(raw)
	records := make([]map[string]any, 0, len(arr))
	for _, v := range arr {
		if obj, ok := v.(map[string]any); ok {
			records = append(records, obj)
		}
	}
	return records
}

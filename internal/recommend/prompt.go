package recommend

import (
	"fmt"
	"strings"

	"github.com/hitoshi/librarian/internal/llm"
	"github.com/hitoshi/librarian/internal/model"
)

// 蔵書とモデルの対話は中国語で行う。

const systemPromptTemplate = `你是一位经验丰富的图书管理员，精通图书推荐和阅读指导。
请根据用户提供的阅读历史或关键词，精准推荐相关领域的优质书籍。
推荐时请综合考虑相关性、书籍质量、权威性和实用价值，并且严格保证书籍、文献必须真实存在，不得虚构。
不要提供推理过程、解释或额外信息，仅输出一个包含 %d 个对象的 JSON 数组，格式必须严格如下:
[
    {"title": "书名", "author": "作者", "introduction": "五十字简介", "reason": "推荐理由"}
]
再次强调: 不要在 JSON 数组之外输出任何文字。`

const countSuffix = "请严格按照 %d 本的数量进行推荐。"

// PromptKind はユーザープロンプトのテンプレート種別。
type PromptKind int

const (
	PromptGeneral PromptKind = iota
	PromptKeyword
	PromptHistory
	PromptHistoryKeyword
)

// SelectPromptKind は履歴とキーワードの有無からテンプレートを選ぶ。
func SelectPromptKind(recent []model.RecentBook, keyword string) PromptKind {
	hasHistory := len(recent) > 0
	hasKeyword := strings.TrimSpace(keyword) != ""
	switch {
	case hasHistory && hasKeyword:
		return PromptHistoryKeyword
	case hasHistory:
		return PromptHistory
	case hasKeyword:
		return PromptKeyword
	default:
		return PromptGeneral
	}
}

// SystemPrompt はcount件のJSON配列を要求するシステム指示を返す。
func SystemPrompt(count int) string {
	return fmt.Sprintf(systemPromptTemplate, count)
}

// UserPrompt は読者の文脈に応じたユーザーターンを組み立てる。
func UserPrompt(recent []model.RecentBook, keyword string, count int) string {
	keyword = strings.TrimSpace(keyword)
	suffix := fmt.Sprintf(countSuffix, count)

	switch SelectPromptKind(recent, keyword) {
	case PromptHistoryKeyword:
		return fmt.Sprintf("我最近阅读了以下书籍:\n%s\n现在我对关键词含有 \"%s\" 的书籍感兴趣，请结合我的阅读历史和这个关键词，为我推荐 %d 本相关书籍。%s",
			formatRecentBooks(recent), keyword, count, suffix)
	case PromptHistory:
		return fmt.Sprintf("我最近阅读了以下书籍:\n%s\n请根据我的阅读历史，为我推荐 %d 本可能会感兴趣的新书。%s",
			formatRecentBooks(recent), count, suffix)
	case PromptKeyword:
		return fmt.Sprintf("我对关键词 \"%s\" 感兴趣，请为我推荐 %d 本相关的优质书籍。%s", keyword, count, suffix)
	default:
		return fmt.Sprintf("请为我推荐 %d 本优质的书籍。%s", count, suffix)
	}
}

// BuildMessages はモデルに送る会話を組み立てる。
func BuildMessages(recent []model.RecentBook, keyword string, count int) []llm.Message {
	return []llm.Message{
		{Role: llm.RoleSystem, Content: SystemPrompt(count)},
		{Role: llm.RoleUser, Content: UserPrompt(recent, keyword, count)},
	}
}

func formatRecentBooks(recent []model.RecentBook) string {
	lines := make([]string, 0, len(recent))
	for _, b := range recent {
		if b.Author != "" {
			lines = append(lines, fmt.Sprintf("- 《%s》（%s）", b.Title, b.Author))
		} else {
			lines = append(lines, fmt.Sprintf("- 《%s》", b.Title))
		}
	}
	return strings.Join(lines, "\n")
}

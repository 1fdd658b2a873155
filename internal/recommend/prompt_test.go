package recommend

import (
	"strings"
	"testing"

	"github.com/hitoshi/librarian/internal/llm"
	"github.com/hitoshi/librarian/internal/model"
)

var recentTwo = []model.RecentBook{
	{Title: "活着", Author: "余华"},
	{Title: "无名之书", Author: ""},
}

func TestSelectPromptKind(t *testing.T) {
	tests := []struct {
		name    string
		recent  []model.RecentBook
		keyword string
		want    PromptKind
	}{
		{name: "履歴とキーワード", recent: recentTwo, keyword: "科幻", want: PromptHistoryKeyword},
		{name: "履歴のみ", recent: recentTwo, keyword: "", want: PromptHistory},
		{name: "キーワードのみ", recent: nil, keyword: "科幻", want: PromptKeyword},
		{name: "どちらもなし", recent: nil, keyword: "", want: PromptGeneral},
		{name: "空白のみのキーワード", recent: nil, keyword: "  ", want: PromptGeneral},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SelectPromptKind(tt.recent, tt.keyword); got != tt.want {
				t.Errorf("SelectPromptKind() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestUserPrompt_IncludesContextAndCount(t *testing.T) {
	p := UserPrompt(recentTwo, "科幻", 7)

	for _, want := range []string{"《活着》（余华）", "《无名之书》", `"科幻"`, "7 本"} {
		if !strings.Contains(p, want) {
			t.Errorf("prompt %q does not contain %q", p, want)
		}
	}
}

func TestUserPrompt_TemplatesAreDistinct(t *testing.T) {
	prompts := map[string]string{
		"history+keyword": UserPrompt(recentTwo, "科幻", 5),
		"history":         UserPrompt(recentTwo, "", 5),
		"keyword":         UserPrompt(nil, "科幻", 5),
		"general":         UserPrompt(nil, "", 5),
	}

	seen := make(map[string]string)
	for name, p := range prompts {
		if other, ok := seen[p]; ok {
			t.Errorf("%s と %s のプロンプトが同一", name, other)
		}
		seen[p] = name
	}

	if strings.Contains(prompts["keyword"], "阅读了") {
		t.Error("キーワードのみのプロンプトに履歴が含まれている")
	}
	if strings.Contains(prompts["history"], "关键词") {
		t.Error("履歴のみのプロンプトにキーワードが含まれている")
	}
}

func TestBuildMessages_SystemThenUser(t *testing.T) {
	msgs := BuildMessages(nil, "", 3)

	if len(msgs) != 2 {
		t.Fatalf("len = %d, want 2", len(msgs))
	}
	if msgs[0].Role != llm.RoleSystem || msgs[1].Role != llm.RoleUser {
		t.Errorf("roles = %s, %s", msgs[0].Role, msgs[1].Role)
	}
	if !strings.Contains(msgs[0].Content, "3 个对象") {
		t.Errorf("system prompt does not request 3 items: %s", msgs[0].Content)
	}
	for _, field := range []string{`"title"`, `"author"`, `"introduction"`, `"reason"`} {
		if !strings.Contains(msgs[0].Content, field) {
			t.Errorf("system prompt missing field %s", field)
		}
	}
}

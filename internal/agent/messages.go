package agent

import (
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"

	"tvcagent/internal/session"
	"tvcagent/internal/steps"
)

// BuildDirectMessages 组装工具调用路径的完整消息序列：
// system + 最近 N 条历史 + 本轮用户输入（带图片附件）。
func BuildDirectMessages(system string, story *session.StoryContext, userPrompt string, maxHistory int) []*schema.Message {
	if maxHistory < 0 {
		maxHistory = 0
	}
	msgs := []*schema.Message{schema.SystemMessage(system)}

	if story != nil {
		history := story.RecentMessages
		if len(history) > maxHistory {
			history = history[len(history)-maxHistory:]
		}
		for _, m := range history {
			converted := convertMessage(m)
			if converted != nil {
				msgs = append(msgs, converted)
			}
		}
	}

	msgs = append(msgs, buildUserMessage(userPrompt))
	return msgs
}

func convertMessage(m session.Message) *schema.Message {
	switch m.Role {
	case "user":
		if strings.TrimSpace(m.Content) == "" {
			return nil
		}
		return buildUserMessage(m.Content)
	case "assistant":
		out := schema.AssistantMessage(m.Content, nil)
		for _, tc := range m.ToolCalls {
			out.ToolCalls = append(out.ToolCalls, schema.ToolCall{
				ID:       tc.ID,
				Function: schema.FunctionCall{Name: tc.Name, Arguments: tc.Arguments},
			})
		}
		if strings.TrimSpace(m.Content) == "" && len(out.ToolCalls) == 0 {
			return nil
		}
		return out
	case "tool":
		if m.ToolCallID == "" {
			return nil
		}
		return schema.ToolMessage(m.Content, m.ToolCallID, schema.WithToolName(m.Name))
	}
	return nil
}

// buildUserMessage 把文本里的图片 URL 提成多模态 part，并附上
// kind+ordinal 提示，提醒模型不要回显 URL
func buildUserMessage(raw string) *schema.Message {
	text := strings.TrimSpace(strings.ReplaceAll(raw, "\r\n", "\n"))
	urls := steps.ExtractURLs(text)
	var images []string
	for _, u := range urls {
		if isImageURL(u) {
			images = append(images, u)
		}
	}
	if len(images) == 0 {
		return schema.UserMessage(text)
	}

	var metaLines []string
	for i := range images {
		metaLines = append(metaLines, fmt.Sprintf("- 图片%d: 用户上传图片", i+1))
	}
	metaHint := "用户上传了图片（用于多模态理解；可用 kind+ordinal 做稳定引用；不要对用户输出 URL）：\n" +
		strings.Join(metaLines, "\n")

	textPart := metaHint
	if text != "" {
		textPart = text + "\n\n" + metaHint
	}
	parts := []schema.ChatMessagePart{{Type: schema.ChatMessagePartTypeText, Text: textPart}}
	for _, u := range images {
		parts = append(parts, schema.ChatMessagePart{
			Type:     schema.ChatMessagePartTypeImageURL,
			ImageURL: &schema.ChatMessageImageURL{URL: u},
		})
	}
	msg := schema.UserMessage("")
	msg.MultiContent = parts
	return msg
}

var imageExts = []string{".png", ".jpg", ".jpeg", ".webp", ".gif", ".bmp"}

func isImageURL(u string) bool {
	lower := strings.ToLower(u)
	if i := strings.IndexAny(lower, "?#"); i >= 0 {
		lower = lower[:i]
	}
	for _, ext := range imageExts {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

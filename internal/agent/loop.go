package agent

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"

	"tvcagent/internal/demux"
	"tvcagent/internal/session"
)

// maxStepsFallback 模型在步数上限内没有产出最终回复时对用户的兜底文案
const maxStepsFallback = "本轮工具调用步数已达上限，请重试或把需求拆小一些。"

// deltaChunkRunes 最终文本按固定粒度喂给分流器，下游体验与流式一致
const deltaChunkRunes = 64

// RunLoop 工具调用主循环：Generate → 执行工具 → 追加结果，
// 直到模型给出无工具调用的最终回复或达到步数上限。
// 最终文本通过 dm 分流下发，全部消息进 ob 等回合末落库。
func RunLoop(ctx context.Context, chatModel model.ToolCallingChatModel, rt *Runtime, msgs []*schema.Message, dm *demux.Demux, ob *Outbox, maxSteps int) error {
	if maxSteps <= 0 {
		maxSteps = 10
	}

	toolset := Tools(rt)
	infos, err := ToolInfos(ctx, toolset)
	if err != nil {
		return err
	}
	bound, err := chatModel.WithTools(infos)
	if err != nil {
		return fmt.Errorf("bind tools: %w", err)
	}

	byName := map[string]int{}
	for i, info := range infos {
		byName[info.Name] = i
	}

	for step := 0; step < maxSteps; step++ {
		resp, err := bound.Generate(ctx, msgs)
		if err != nil {
			return fmt.Errorf("ark chat: %w", err)
		}

		if len(resp.ToolCalls) == 0 {
			pushChunked(dm, resp.Content)
			ob.AddAssistant(resp.Content, nil)
			return nil
		}

		calls := resp.ToolCalls
		for i := range calls {
			if calls[i].ID == "" {
				calls[i].ID = uuid.NewString()
			}
		}
		msgs = append(msgs, schema.AssistantMessage(resp.Content, calls))

		var recorded []session.ToolCall
		for _, tc := range calls {
			recorded = append(recorded, session.ToolCall{
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			})
		}
		ob.AddAssistant(resp.Content, recorded)

		for _, tc := range calls {
			name := tc.Function.Name
			idx, ok := byName[name]
			if !ok {
				out := UnknownToolPayload(name)
				msgs = append(msgs, schema.ToolMessage(out, tc.ID, schema.WithToolName(name)))
				ob.AddTool(name, tc.ID, out)
				continue
			}
			rt.status("正在调用工具："+name, name)
			out, err := toolset[idx].InvokableRun(ctx, tc.Function.Arguments)
			if err != nil {
				return err
			}
			msgs = append(msgs, schema.ToolMessage(out, tc.ID, schema.WithToolName(name)))
			ob.AddTool(name, tc.ID, out)
		}
	}

	pushChunked(dm, maxStepsFallback)
	ob.AddAssistant(maxStepsFallback, nil)
	return nil
}

func pushChunked(dm *demux.Demux, text string) {
	if dm == nil || text == "" {
		return
	}
	runes := []rune(text)
	for i := 0; i < len(runes); i += deltaChunkRunes {
		end := i + deltaChunkRunes
		if end > len(runes) {
			end = len(runes)
		}
		dm.Push(string(runes[i:end]))
	}
}

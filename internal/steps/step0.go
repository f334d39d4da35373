package steps

import (
	"context"
	"fmt"
	"strings"

	"tvcagent/internal/jsonx"
	"tvcagent/internal/skills"
	"tvcagent/internal/stepxml"
)

func runStep0(ctx context.Context, c Context, d Deps) (Result, error) {
	title := stepxml.DefaultTitle(0)

	skill, err := skills.Load("tvc-orchestrator")
	if err != nil {
		return Result{}, err
	}
	user := "调用 load_skill_instructions，参数：{\"skill\":\"tvc-orchestrator\"}\n" +
		"返回内容：\n" + skill + "\n\n" +
		"用户输入：\n" + c.UserText + "\n\n" +
		"请抽取：品牌定位、目标客户、美学理念、品牌使命、核心信息、广告目的、产品图URL列表（如有），并给出需要用户补充的关键信息问题列表。"

	full, err := completeOnce(ctx, d, SystemPrompt, user)
	if err != nil {
		return Result{}, err
	}

	parsed, err := jsonx.DecodeObject(full)
	if err != nil {
		parsed = map[string]any{}
	}

	var summaryLines []string
	for _, f := range []struct{ key, label string }{
		{"brandPositioning", "品牌定位"},
		{"targetAudience", "目标客户"},
		{"aesthetic", "美学理念"},
		{"mission", "品牌使命"},
		{"coreMessage", "核心信息"},
		{"adGoal", "广告目的"},
	} {
		if v := jsonx.PickString(parsed, f.key); v != "" {
			summaryLines = append(summaryLines, f.label+"："+v)
		}
	}

	var questions []string
	if raw, ok := parsed["questions"].([]any); ok {
		for _, q := range raw {
			if s, ok := q.(string); ok && strings.TrimSpace(s) != "" {
				questions = append(questions, strings.TrimSpace(s))
			}
		}
	}

	productLines := "产品图：未提供"
	if len(c.State.ProductImages) > 0 {
		var lines []string
		for i, u := range c.State.ProductImages {
			lines = append(lines, fmt.Sprintf("%d. %s", i+1, u))
		}
		productLines = "产品图：\n" + strings.Join(lines, "\n")
	}

	text := productLines + "\n\n" + strings.Join(summaryLines, "\n") + "\n\n"
	if len(questions) > 0 {
		var lines []string
		for i, q := range questions {
			lines = append(lines, fmt.Sprintf("%d. %s", i+1, q))
		}
		text += "需要补充：\n" + strings.Join(lines, "\n") + "\n\n"
	}
	text += "❓ 您对以上内容满意吗？"

	stepXML := stepxml.RenderStep(stepxml.Step{ID: "0", Title: title})
	responseXML := stepxml.RenderResponse(text, []stepxml.Action{
		{Command: "继续", Text: continueAction("进入剧本创作")},
		{Command: "修改", Text: modifyAction("重新提供信息")},
	})

	next := c.State
	next.CurrentStep = 0
	return Result{
		Raw:         stepXML + "\n\n" + responseXML,
		StepXML:     stepXML,
		ResponseXML: responseXML,
		NextState:   next.Touched(),
	}, nil
}

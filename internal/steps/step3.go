package steps

import (
	"context"
	"fmt"
	"strconv"

	"tvcagent/internal/jsonx"
	"tvcagent/internal/skills"
	"tvcagent/internal/stepxml"
)

func runStep3(ctx context.Context, c Context, d Deps) (Result, error) {
	title := stepxml.DefaultTitle(3)

	skill, err := skills.Load("tvc-storyboard")
	if err != nil {
		return Result{}, err
	}
	user := "调用 load_skill_instructions，参数：{\"skill\":\"tvc-storyboard\"}\n" +
		"返回内容：\n" + skill + "\n\n" +
		"用户输入：\n" + c.UserText + "\n\n已有剧本：\n" + prevStepXML(c, 1) +
		"\n\n已有参考图：\n" + prevStepXML(c, 2) + "\n\n" +
		"请输出storyboards数组，每项至少包含sequence、画面、动作、台词、时长(秒)、参考图index。"

	full, err := completeOnce(ctx, d, SystemPrompt, user)
	if err != nil {
		return Result{}, err
	}

	parsed, err := jsonx.DecodeObject(full)
	if err != nil {
		parsed = map[string]any{}
	}

	var storyboards []map[string]string
	if raw, ok := parsed["storyboards"].([]any); ok {
		for i, item := range raw {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			seq := jsonx.PickSequence(m)
			if seq == 0 {
				seq = i + 1
			}
			record := map[string]string{"sequence": strconv.Itoa(seq)}
			if v := jsonx.PickString(m, "画面", "visual"); v != "" {
				record["画面"] = v
			}
			if v := jsonx.PickString(m, "action", "动作"); v != "" {
				record["动作"] = v
			}
			if v := jsonx.PickString(m, "dialogue", "台词"); v != "" {
				record["台词"] = v
			}
			if dur := jsonx.PickDuration(m); dur > 0 {
				record["durationSeconds"] = strconv.Itoa(dur)
			}
			if v := jsonx.PickString(m, "reference_index", "参考图index", "referenceImageIndex"); v != "" {
				record["referenceImageIndex"] = v
			}
			if len(record) > 1 {
				storyboards = append(storyboards, record)
			}
		}
	}

	stepXML := stepxml.RenderStep(stepxml.Step{
		ID: "3", Title: title,
		Content: &stepxml.Content{Storyboards: storyboards},
	})
	responseXML := stepxml.RenderResponse(
		fmt.Sprintf("💡 当前步骤：%s\n✅ 已完成：创作%d个分镜头脚本\n❓ 您对以上内容满意吗？", title, len(storyboards)),
		[]stepxml.Action{
			{Command: "继续", Text: continueAction("进入首帧图生成")},
			{Command: "修改", Text: modifyAction("重新创作分镜头脚本")},
		})

	next := c.State
	next.CurrentStep = 3
	return Result{
		Raw:         stepXML + "\n\n" + responseXML,
		StepXML:     stepXML,
		ResponseXML: responseXML,
		NextState:   next.Touched(),
	}, nil
}

package steps

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"tvcagent/internal/jsonx"
	"tvcagent/internal/skills"
	"tvcagent/internal/stepxml"
)

func runStep1(ctx context.Context, c Context, d Deps) (Result, error) {
	title := stepxml.DefaultTitle(1)

	skill, err := skills.Load("tvc-script")
	if err != nil {
		return Result{}, err
	}
	user := "调用 load_skill_instructions，参数：{\"skill\":\"tvc-script\"}\n" +
		"返回内容：\n" + skill + "\n\n" +
		"用户输入：\n" + c.UserText + "\n\n已有步骤0内容：\n" + prevStepXML(c, 0) + "\n\n" +
		"请输出剧本大纲sections数组，每个section包含section_name和fields对象。"

	full, err := completeOnce(ctx, d, SystemPrompt, user)
	if err != nil {
		return Result{}, err
	}

	parsed, err := jsonx.DecodeObject(full)
	if err != nil {
		parsed = map[string]any{}
	}

	var sections []stepxml.Section
	if raw, ok := parsed["sections"].([]any); ok {
		for _, item := range raw {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			name := jsonx.PickString(m, "section_name", "sectionName")
			fieldsObj, _ := m["fields"].(map[string]any)
			keys := make([]string, 0, len(fieldsObj))
			for k := range fieldsObj {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			var fields []stepxml.Field
			for _, k := range keys {
				val := strings.TrimSpace(fmt.Sprint(fieldsObj[k]))
				if k == "" || val == "" {
					continue
				}
				fields = append(fields, stepxml.Field{Name: k, Value: val})
			}
			if name == "" || len(fields) == 0 {
				continue
			}
			sections = append(sections, stepxml.Section{SectionName: name, Fields: fields})
		}
	}

	stepXML := stepxml.RenderStep(stepxml.Step{
		ID: "1", Title: title,
		Content: &stepxml.Content{Sections: sections},
	})
	responseXML := stepxml.RenderResponse(
		fmt.Sprintf("💡 当前步骤：%s\n✅ 已完成：基于产品信息输出剧本大纲\n❓ 您对以上内容满意吗？", title),
		[]stepxml.Action{
			{Command: "继续", Text: continueAction("进入参考图生成")},
			{Command: "修改", Text: modifyAction("重新创作剧本")},
		})

	next := c.State
	next.CurrentStep = 1
	return Result{
		Raw:         stepXML + "\n\n" + responseXML,
		StepXML:     stepXML,
		ResponseXML: responseXML,
		NextState:   next.Touched(),
	}, nil
}

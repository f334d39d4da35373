package steps

import (
	"fmt"

	"tvcagent/internal/stepxml"
)

// runMockStep VIBE_MOCK_MODE 下的本地假执行，不触网
func runMockStep(c Context) (Result, error) {
	step := c.State.CurrentStep
	title := stepxml.DefaultTitle(step)

	var content *stepxml.Content
	switch step {
	case 1:
		content = &stepxml.Content{Sections: []stepxml.Section{{
			SectionName: "大纲",
			Fields: []stepxml.Field{
				{Name: "主题", Value: "mock"},
				{Name: "核心信息", Value: "mock"},
			},
		}}}
	case 2, 4:
		content = &stepxml.Content{Images: []map[string]string{{
			"index": "1", "sequence": "1",
			"url": "https://example.com/mock.png", "prompt": "mock image",
		}}}
	case 3:
		content = &stepxml.Content{Storyboards: []map[string]string{{
			"sequence": "1", "画面": "mock", "时长": "3", "台词": "mock",
		}}}
	case 5:
		content = &stepxml.Content{VideoClips: []map[string]string{{
			"sequence": "1", "url": "https://example.com/mock.mp4",
			"durationSeconds": "3", "prompt": "mock video",
		}}}
	}

	stepXML := stepxml.RenderStep(stepxml.Step{ID: fmt.Sprint(step), Title: title, Content: content})

	text := fmt.Sprintf("💡 当前步骤：%s\n✅ 已完成：mock 输出\n❓ 您对以上内容满意吗？", title)
	if step == 0 {
		text = fmt.Sprintf("已记录产品图：%d 张（若无可忽略）\n\n❓ 您对以上内容满意吗？", len(c.State.ProductImages))
	}
	actions := []stepxml.Action{
		{Command: "继续", Text: continueAction("进入下一步骤")},
		{Command: "修改", Text: modifyAction("重新创作此步骤")},
	}
	if step == 5 {
		actions = []stepxml.Action{
			{Command: "继续", Text: continueAction("推荐背景音乐")},
			{Command: "修改", Text: modifyAction("重新生成视频")},
		}
	}
	responseXML := stepxml.RenderResponse(text, actions)

	next := c.State
	return Result{
		Raw:         stepXML + "\n\n" + responseXML,
		StepXML:     stepXML,
		ResponseXML: responseXML,
		NextState:   next.Touched(),
	}, nil
}

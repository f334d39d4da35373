package steps

import (
	"context"
	"fmt"
	"regexp"
	"strconv"

	"github.com/sirupsen/logrus"

	"tvcagent/internal/assets"
	"tvcagent/internal/gen"
	"tvcagent/internal/jsonx"
	"tvcagent/internal/skills"
	"tvcagent/internal/stepxml"
)

var shotDescRe = regexp.MustCompile(`(?i)(?:镜头|shot)\s*0*(\d+)`)

// findFirstFrameBySequence 先查显式 sequence 字段，
// 再退化到描述文本里的 "镜头N" / "shot N"
func findFirstFrameBySequence(reg assets.Registry, seq int) (int, bool) {
	if idx, _, ok := reg.FirstFrameBySequence(seq); ok {
		return idx, true
	}
	for idx, ff := range reg.FirstFrames.Entries {
		m := shotDescRe.FindStringSubmatch(ff.Description)
		if m == nil {
			continue
		}
		if n, err := strconv.Atoi(m[1]); err == nil && n == seq {
			return idx, true
		}
	}
	return 0, false
}

func runStep5(ctx context.Context, c Context, d Deps) (Result, error) {
	title := stepxml.DefaultTitle(5)

	skill, err := skills.Load("tvc-video-generation")
	if err != nil {
		return Result{}, err
	}
	user := "调用 load_skill_instructions，参数：{\"skill\":\"tvc-video-generation\"}\n" +
		"返回内容：\n" + skill + "\n\n" +
		"用户输入：\n" + c.UserText + "\n\n已有分镜：\n" + prevStepXML(c, 3) +
		"\n\n已有首帧图：\n" + prevStepXML(c, 4) + "\n\n" +
		"请输出videos数组，每项包含sequence、prompt、durationSeconds。"

	full, err := completeOnce(ctx, d, SystemPrompt, user)
	if err != nil {
		return Result{}, err
	}

	parsed, err := jsonx.DecodeObject(full)
	if err != nil {
		parsed = map[string]any{}
	}

	type videoPlan struct {
		sequence        int
		prompt          string
		durationSeconds int
		firstFrameIndex int
	}
	var plans []videoPlan
	if raw, ok := parsed["videos"].([]any); ok {
		for i, item := range raw {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			prompt := jsonx.PickString(m, "prompt")
			if prompt == "" {
				continue
			}
			seq := jsonx.PickSequence(m)
			if seq == 0 {
				seq = i + 1
			}
			dur := jsonx.PickDuration(m)
			if dur == 0 {
				dur = 5
			}
			ffIdx, ok := findFirstFrameBySequence(c.State.Assets, seq)
			if !ok {
				// 找不到对应首帧的镜头直接跳过
				if d.Log != nil {
					d.Log.WithFields(logrus.Fields{"event": "video_plan_skipped", "traceId": c.TraceID, "sequence": seq}).
						Warn("镜头没有对应首帧，跳过")
				}
				continue
			}
			plans = append(plans, videoPlan{sequence: seq, prompt: prompt, durationSeconds: dur, firstFrameIndex: ffIdx})
		}
	}

	reqs := make([]gen.VideoClipRequest, 0, len(plans))
	for _, p := range plans {
		reqs = append(reqs, gen.VideoClipRequest{
			FirstFrameIndex: p.firstFrameIndex,
			Description:     fmt.Sprintf("镜头%d视频", p.sequence),
			Prompt:          p.prompt,
			DurationSeconds: p.durationSeconds,
		})
	}

	c.SendDelta(fmt.Sprintf("正在生成分镜视频（共%d段，可能较慢）...\n", len(reqs)))
	reg, results, err := gen.GenerateVideoClipsBatch(ctx, d.Gen, c.State.Assets, reqs,
		d.Video.Watermark, d.Video.MaxConcurrent, d.Log)
	if err != nil {
		return Result{}, err
	}

	var videoClips []map[string]string
	for i, r := range results {
		videoClips = append(videoClips, map[string]string{
			"index":             strconv.Itoa(r.Index),
			"first_frame_index": strconv.Itoa(r.FirstFrameIndex),
			"duration":          strconv.Itoa(r.DurationSeconds),
			"description":       fmt.Sprintf("镜头%d视频", plans[i].sequence),
		})
	}

	stepXML := stepxml.RenderStep(stepxml.Step{
		ID: "5", Title: title,
		Content: &stepxml.Content{VideoClips: videoClips},
	})
	responseXML := stepxml.RenderResponse(
		fmt.Sprintf("💡 当前步骤：%s\n✅ 已完成：生成%d个分镜视频片段\n❓ 您对以上内容满意吗？", title, len(videoClips)),
		[]stepxml.Action{
			{Command: "继续", Text: continueAction("推荐背景音乐")},
			{Command: "修改", Text: modifyAction("重新生成视频")},
		})

	next := c.State
	next.Assets = reg
	next.CurrentStep = 5
	return Result{
		Raw:         stepXML + "\n\n" + responseXML,
		StepXML:     stepXML,
		ResponseXML: responseXML,
		NextState:   next.Touched(),
	}, nil
}

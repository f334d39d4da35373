package steps

import (
	"context"
	"fmt"
	"regexp"
	"strconv"

	"tvcagent/internal/gen"
	"tvcagent/internal/jsonx"
	"tvcagent/internal/skills"
	"tvcagent/internal/stepxml"
)

var (
	indexEqRe = regexp.MustCompile(`(?i)\bindex\s*=\s*(\d+)\b`)
	bareNumRe = regexp.MustCompile(`\b(\d+)\b`)
)

// extractIndices 解析 "index=1; index=3" 形式的参考图引用，
// 没有 index= 写法时退化为抓取所有正整数
func extractIndices(text string) []int {
	var out []int
	seen := map[int]bool{}
	for _, m := range indexEqRe.FindAllStringSubmatch(text, -1) {
		if n, err := strconv.Atoi(m[1]); err == nil && n > 0 && !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	if len(out) > 0 {
		return out
	}
	for _, m := range bareNumRe.FindAllStringSubmatch(text, -1) {
		if n, err := strconv.Atoi(m[1]); err == nil && n > 0 && !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}

func runStep4(ctx context.Context, c Context, d Deps) (Result, error) {
	title := stepxml.DefaultTitle(4)

	skill, err := skills.Load("tvc-first-frame")
	if err != nil {
		return Result{}, err
	}
	user := "调用 load_skill_instructions，参数：{\"skill\":\"tvc-first-frame\"}\n" +
		"返回内容：\n" + skill + "\n\n" +
		"用户输入：\n" + c.UserText + "\n\n已有分镜：\n" + prevStepXML(c, 3) +
		"\n\n已有参考图：\n" + prevStepXML(c, 2) + "\n\n" +
		"请输出first_frames数组，每项包含sequence、prompt、reference_images(字符串)。"

	full, err := completeOnce(ctx, d, SystemPrompt, user)
	if err != nil {
		return Result{}, err
	}

	parsed, err := jsonx.DecodeObject(full)
	if err != nil {
		parsed = map[string]any{}
	}

	type framePlan struct {
		sequence int
		prompt   string
		refsText string
	}
	var plans []framePlan
	if raw, ok := parsed["first_frames"].([]any); ok {
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
			plans = append(plans, framePlan{
				sequence: seq,
				prompt:   prompt,
				refsText: jsonx.PickString(m, "reference_images", "referenceImages"),
			})
		}
	}

	reg, productOrdinals := c.State.Assets.UpsertUserImages(c.State.ProductImages)

	reqs := make([]gen.FirstFrameRequest, 0, len(plans))
	for _, p := range plans {
		merged := append(append([]int{}, productOrdinals...), extractIndices(p.refsText)...)
		merged = uniqueInts(merged)
		reqs = append(reqs, gen.FirstFrameRequest{
			Description:           fmt.Sprintf("镜头%d首帧图", p.sequence),
			Prompt:                p.prompt,
			Sequence:              p.sequence,
			ReferenceImageIndices: merged,
		})
	}

	c.SendDelta(fmt.Sprintf("正在生成首帧图（共%d张）...\n", len(reqs)))
	reg, results, err := gen.GenerateFirstFramesBatch(ctx, d.Gen, reg, reqs,
		d.Image.Size, d.Image.Watermark, imageMaxConcurrent, d.Log)
	if err != nil {
		return Result{}, err
	}

	var images []map[string]string
	for _, r := range results {
		images = append(images, map[string]string{
			"index":            strconv.Itoa(r.Index),
			"description":      reqs[r.RequestIndex].Description,
			"reference_images": r.ReferenceImages,
		})
	}

	stepXML := stepxml.RenderStep(stepxml.Step{
		ID: "4", Title: title,
		Content: &stepxml.Content{Images: images},
	})
	responseXML := stepxml.RenderResponse(
		fmt.Sprintf("💡 当前步骤：%s\n✅ 已完成：生成%d张首帧图\n❓ 您对以上内容满意吗？", title, len(images)),
		[]stepxml.Action{
			{Command: "继续", Text: continueAction("进入分镜视频生成")},
			{Command: "修改", Text: modifyAction("重新生成首帧图")},
		})

	next := c.State
	next.Assets = reg
	next.CurrentStep = 4
	return Result{
		Raw:         stepXML + "\n\n" + responseXML,
		StepXML:     stepXML,
		ResponseXML: responseXML,
		NextState:   next.Touched(),
	}, nil
}

func uniqueInts(in []int) []int {
	seen := map[int]bool{}
	out := make([]int, 0, len(in))
	for _, n := range in {
		if n <= 0 || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

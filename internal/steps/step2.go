package steps

import (
	"context"
	"fmt"
	"strconv"

	"tvcagent/internal/gen"
	"tvcagent/internal/jsonx"
	"tvcagent/internal/skills"
	"tvcagent/internal/stepxml"
)

func runStep2(ctx context.Context, c Context, d Deps) (Result, error) {
	title := stepxml.DefaultTitle(2)

	skill, err := skills.Load("tvc-reference-images")
	if err != nil {
		return Result{}, err
	}
	user := "调用 load_skill_instructions，参数：{\"skill\":\"tvc-reference-images\"}\n" +
		"返回内容：\n" + skill + "\n\n" +
		"用户输入：\n" + c.UserText + "\n\n已有剧本：\n" + prevStepXML(c, 1) + "\n\n" +
		"请输出需要生成的参考图列表images，每项包含index、category、description、prompt。"

	full, err := completeOnce(ctx, d, SystemPrompt, user)
	if err != nil {
		return Result{}, err
	}

	parsed, err := jsonx.DecodeObject(full)
	if err != nil {
		parsed = map[string]any{}
	}

	var reqs []gen.RefImageRequest
	if raw, ok := parsed["images"].([]any); ok {
		for _, item := range raw {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			prompt := jsonx.PickString(m, "prompt")
			if prompt == "" {
				continue
			}
			category := jsonx.PickString(m, "category")
			if category == "" {
				category = "背景"
			}
			description := jsonx.PickString(m, "description")
			if description == "" {
				description = "参考图"
			}
			reqs = append(reqs, gen.RefImageRequest{
				Type:        gen.NormalizeCategory("", category),
				Category:    category,
				Description: description,
				Prompt:      prompt,
			})
		}
	}

	// 用户产品图先入资产表，序号稳定
	reg, productOrdinals := c.State.Assets.UpsertUserImages(c.State.ProductImages)

	c.SendDelta(fmt.Sprintf("正在生成参考图（共%d张）...\n", len(reqs)))
	reg, results, err := gen.GenerateReferenceImagesBatch(ctx, d.Gen, reg, reqs,
		d.Image.Size, d.Image.Watermark, imageMaxConcurrent, d.Log)
	if err != nil {
		return Result{}, err
	}

	var images []map[string]string
	for _, idx := range productOrdinals {
		images = append(images, map[string]string{
			"type":        "用户图片",
			"category":    "产品",
			"index":       strconv.Itoa(idx),
			"description": "产品图",
		})
	}
	for _, r := range results {
		meta := reqs[r.RequestIndex]
		images = append(images, map[string]string{
			"type":        meta.Type,
			"category":    meta.Category,
			"index":       strconv.Itoa(r.Index),
			"description": meta.Description,
		})
	}

	stepXML := stepxml.RenderStep(stepxml.Step{
		ID: "2", Title: title,
		Content: &stepxml.Content{Images: images},
	})
	responseXML := stepxml.RenderResponse(
		fmt.Sprintf("💡 当前步骤：%s\n✅ 已完成：生成%d张参考图\n❓ 您对以上内容满意吗？", title, len(images)),
		[]stepxml.Action{
			{Command: "继续", Text: continueAction("进入分镜头脚本创作")},
			{Command: "修改", Text: modifyAction("重新生成参考图")},
		})

	next := c.State
	next.Assets = reg
	next.CurrentStep = 2
	return Result{
		Raw:         stepXML + "\n\n" + responseXML,
		StepXML:     stepXML,
		ResponseXML: responseXML,
		NextState:   next.Touched(),
	}, nil
}

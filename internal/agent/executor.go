package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"tvcagent/internal/errs"
	"tvcagent/internal/gen"
	"tvcagent/internal/skills"
)

// recoverablePayload 可恢复错误以 JSON 形式回给模型，让它自行纠正
func recoverablePayload(code, message, tool string) string {
	b, _ := json.Marshal(map[string]any{
		"error":         code,
		"message":       message,
		"tool":          tool,
		"allowedSkills": skills.Names,
	})
	return string(b)
}

// UnknownToolPayload 模型编造工具名时的占位返回
func UnknownToolPayload(name string) string {
	b, _ := json.Marshal(map[string]any{
		"error":   errs.CodeToolNotFound,
		"message": "工具不存在：" + name,
	})
	return string(b)
}

// recover 把可恢复的业务错误转成 JSON 返回，其余照常抛出
func recoverToolErr(err error, tool string) (string, error) {
	for _, code := range []string{errs.CodeToolArgsInvalid, errs.CodeToolNotAllowed, errs.CodeToolNotFound, errs.CodeSkillNotFound} {
		if errs.IsCode(err, code) {
			return recoverablePayload(code, err.Error(), tool), nil
		}
	}
	return "", err
}

// requireSkill 生成类工具的技能闸门
func (r *Runtime) requireSkill(tool string) error {
	active := strings.TrimSpace(r.GetState().ActiveSkill)
	if active == "" {
		return errs.New(errs.CodeToolNotAllowed, "未加载技能规范：请先调用 load_skill_instructions({skill})")
	}
	if !skills.Known(active) {
		return errs.New(errs.CodeToolNotAllowed, "未知技能："+active)
	}
	if !skills.ToolAllowed(active, tool) {
		return errs.New(errs.CodeToolNotAllowed, fmt.Sprintf("当前技能(%s)不允许调用工具：%s", active, tool))
	}
	return nil
}

func parseArgs(tool, raw string, out any) error {
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return errs.New(errs.CodeToolArgsInvalid, "工具参数不是合法 JSON："+tool)
	}
	return nil
}

func (r *Runtime) runLoadSkill(raw string) (string, error) {
	const tool = "load_skill_instructions"
	var args struct {
		Skill string `json:"skill"`
	}
	if err := parseArgs(tool, raw, &args); err != nil {
		return recoverToolErr(err, tool)
	}
	name := strings.TrimSpace(args.Skill)
	content, err := skills.Load(name)
	if err != nil {
		return recoverablePayload(errs.CodeSkillNotFound, err.Error(), tool), nil
	}
	st := r.GetState()
	st.ActiveSkill = name
	r.SetState(st.Touched())
	r.status("已加载技能："+name, tool)
	b, _ := json.Marshal(map[string]string{"skill": name, "content": content})
	return string(b), nil
}

func (r *Runtime) runGenerateImages(ctx context.Context, raw string) (string, error) {
	const tool = "generate_images_batch"
	if err := r.requireSkill(tool); err != nil {
		return recoverToolErr(err, tool)
	}
	var args struct {
		Requests []struct {
			Kind                   string `json:"kind"`
			Category               string `json:"category"`
			Name                   string `json:"name"`
			Description            string `json:"description"`
			Prompt                 string `json:"prompt"`
			ReferenceImageOrdinals []int  `json:"reference_image_ordinals"`
		} `json:"requests"`
	}
	if err := parseArgs(tool, raw, &args); err != nil {
		return recoverToolErr(err, tool)
	}

	var refReqs []gen.RefImageRequest
	var frameReqs []gen.FirstFrameRequest
	for _, req := range args.Requests {
		prompt := strings.TrimSpace(req.Prompt)
		if prompt == "" {
			return recoverToolErr(errs.New(errs.CodeToolArgsInvalid, "requests[].prompt 不能为空"), tool)
		}
		isFirstFrame := req.Kind == "first_frame" || len(req.ReferenceImageOrdinals) > 0
		if isFirstFrame {
			if len(req.ReferenceImageOrdinals) == 0 {
				return recoverToolErr(errs.New(errs.CodeToolArgsInvalid, "requests[].reference_image_ordinals 不能为空"), tool)
			}
			desc := strings.TrimSpace(req.Description)
			if desc == "" {
				desc = "首帧图"
			}
			frameReqs = append(frameReqs, gen.FirstFrameRequest{
				Description:           desc,
				Prompt:                prompt,
				ReferenceImageIndices: req.ReferenceImageOrdinals,
			})
			continue
		}
		if strings.TrimSpace(req.Category) == "" {
			return recoverToolErr(errs.New(errs.CodeToolArgsInvalid, "参考图 requests[].category 必须为 role/background/item"), tool)
		}
		if strings.TrimSpace(req.Name) == "" {
			return recoverToolErr(errs.New(errs.CodeToolArgsInvalid, "参考图 requests[].name 不能为空"), tool)
		}
		refReqs = append(refReqs, gen.RefImageRequest{
			Type:        gen.NormalizeCategory(req.Category, ""),
			Category:    req.Category,
			Description: strings.TrimSpace(req.Description),
			Prompt:      prompt,
		})
	}

	total := len(refReqs) + len(frameReqs)
	r.status(fmt.Sprintf("正在生成图片（共%d张）...", total), tool)
	if total == 0 {
		return `{"results":[]}`, nil
	}

	st := r.GetState()
	reg := st.Assets
	var results []map[string]any

	if len(refReqs) > 0 {
		next, refResults, err := gen.GenerateReferenceImagesBatch(ctx, r.Gen, reg, refReqs,
			r.Image.Size, r.Image.Watermark, 4, r.Log)
		if err != nil {
			return "", err
		}
		reg = next
		for _, res := range refResults {
			url, _ := reg.ResolveURL("reference_image", res.Index)
			results = append(results, map[string]any{
				"ordinal": res.Index, "status": "done", "kind": "reference_image", "url": url,
			})
		}
	}
	if len(frameReqs) > 0 {
		next, frameResults, err := gen.GenerateFirstFramesBatch(ctx, r.Gen, reg, frameReqs,
			r.Image.Size, r.Image.Watermark, 4, r.Log)
		if err != nil {
			return "", err
		}
		reg = next
		for _, res := range frameResults {
			url, _ := reg.ResolveURL("first_frame", res.Index)
			results = append(results, map[string]any{
				"ordinal": res.Index, "status": "done", "kind": "first_frame", "url": url,
			})
		}
	}

	st = r.GetState()
	st.Assets = reg
	r.SetState(st.Touched())
	b, _ := json.Marshal(map[string]any{"results": results})
	return string(b), nil
}

func (r *Runtime) runGenerateVideos(ctx context.Context, raw string) (string, error) {
	const tool = "generate_videos_from_images_batch"
	if err := r.requireSkill(tool); err != nil {
		return recoverToolErr(err, tool)
	}
	var args struct {
		Requests []struct {
			FirstFrameOrdinal int    `json:"first_frame_ordinal"`
			Description       string `json:"description"`
			Prompt            string `json:"prompt"`
			DurationSeconds   int    `json:"duration_seconds"`
		} `json:"requests"`
		MaxConcurrent int `json:"max_concurrent"`
	}
	if err := parseArgs(tool, raw, &args); err != nil {
		return recoverToolErr(err, tool)
	}

	durationHint := fmt.Sprintf("requests[].duration_seconds 必须为 %d~%d 的整数",
		r.Video.MinDuration, r.Video.MaxDuration)
	reqs := make([]gen.VideoClipRequest, 0, len(args.Requests))
	for _, req := range args.Requests {
		if strings.TrimSpace(req.Prompt) == "" {
			return recoverToolErr(errs.New(errs.CodeToolArgsInvalid, "requests[].prompt 不能为空"), tool)
		}
		if req.FirstFrameOrdinal <= 0 {
			return recoverToolErr(errs.New(errs.CodeToolArgsInvalid, "requests[].first_frame_ordinal 必须为正整数"), tool)
		}
		if req.DurationSeconds < r.Video.MinDuration || req.DurationSeconds > r.Video.MaxDuration {
			return recoverToolErr(errs.New(errs.CodeToolArgsInvalid, durationHint), tool)
		}
		desc := strings.TrimSpace(req.Description)
		if desc == "" {
			desc = fmt.Sprintf("首帧%d视频", req.FirstFrameOrdinal)
		}
		reqs = append(reqs, gen.VideoClipRequest{
			FirstFrameIndex: req.FirstFrameOrdinal,
			Description:     desc,
			Prompt:          req.Prompt,
			DurationSeconds: req.DurationSeconds,
		})
	}

	maxConcurrent := r.Video.MaxConcurrent
	if args.MaxConcurrent > 0 {
		maxConcurrent = args.MaxConcurrent
	}

	r.status(fmt.Sprintf("正在生成分镜视频（共%d段，可能较慢）...", len(reqs)), tool)
	if len(reqs) == 0 {
		return `{"results":[]}`, nil
	}

	st := r.GetState()
	next, clipResults, err := gen.GenerateVideoClipsBatch(ctx, r.Gen, st.Assets, reqs,
		r.Video.Watermark, maxConcurrent, r.Log)
	if err != nil {
		return "", err
	}

	var results []map[string]any
	for _, res := range clipResults {
		url, _ := next.ResolveURL("video_clip", res.Index)
		results = append(results, map[string]any{
			"ordinal": res.Index, "status": "done", "kind": "video_clip", "url": url,
		})
	}
	st = r.GetState()
	st.Assets = next
	r.SetState(st.Touched())
	b, _ := json.Marshal(map[string]any{"results": results})
	return string(b), nil
}

func (r *Runtime) runAssetsResolve(raw string) (string, error) {
	const tool = "assets_resolve"
	if err := r.requireSkill(tool); err != nil {
		return recoverToolErr(err, tool)
	}
	var args struct {
		Kind    string `json:"kind"`
		Ordinal int    `json:"ordinal"`
	}
	if err := parseArgs(tool, raw, &args); err != nil {
		return recoverToolErr(err, tool)
	}
	if args.Ordinal <= 0 {
		return recoverToolErr(errs.New(errs.CodeToolArgsInvalid, "ordinal 必须为正整数"), tool)
	}
	url, err := r.GetState().Assets.ResolveURL(args.Kind, args.Ordinal)
	if err != nil {
		b, _ := json.Marshal(map[string]any{
			"ok": false, "error": errs.CodeAssetNotFound, "kind": args.Kind, "ordinal": args.Ordinal,
		})
		return string(b), nil
	}
	b, _ := json.Marshal(map[string]any{
		"ok": true, "kind": args.Kind, "ordinal": args.Ordinal, "url": url,
	})
	return string(b), nil
}

func (r *Runtime) runRecommendMusic(raw string) (string, error) {
	const tool = "recommend_background_music"
	if err := r.requireSkill(tool); err != nil {
		return recoverToolErr(err, tool)
	}
	var args struct {
		SceneType       string `json:"scene_type"`
		Mood            string `json:"mood"`
		DurationSeconds int    `json:"duration_seconds"`
	}
	if err := parseArgs(tool, raw, &args); err != nil {
		return recoverToolErr(err, tool)
	}
	if strings.TrimSpace(args.SceneType) == "" || strings.TrimSpace(args.Mood) == "" {
		return recoverToolErr(errs.New(errs.CodeToolArgsInvalid, "scene_type 和 mood 不能为空"), tool)
	}
	rec := gen.RecommendBackgroundMusic(args.SceneType, args.Mood)
	b, _ := json.Marshal(rec)
	return string(b), nil
}

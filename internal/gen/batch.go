package gen

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"tvcagent/internal/assets"
	"tvcagent/internal/batch"
	"tvcagent/internal/errs"
)

type RefImageRequest struct {
	Type        string `json:"type"`
	Category    string `json:"category"`
	Description string `json:"description"`
	Prompt      string `json:"prompt"`
}

type RefImageResult struct {
	RequestIndex int `json:"requestIndex"`
	Index        int `json:"index"`
}

// GenerateReferenceImagesBatch 批量生成参考图并登记进资产表。
// 返回新的 Registry 快照，入参不被修改。
func GenerateReferenceImagesBatch(ctx context.Context, c Client, reg assets.Registry,
	reqs []RefImageRequest, size string, watermark bool, maxConcurrent int,
	log *logrus.Logger) (assets.Registry, []RefImageResult, error) {

	tasks := make([]func(context.Context) (string, error), len(reqs))
	for i, r := range reqs {
		r := r
		tasks[i] = func(tctx context.Context) (string, error) {
			return c.GenerateImage(tctx, ImageRequest{Prompt: r.Prompt, Size: size, Watermark: watermark})
		}
	}
	urls, err := batch.Run(ctx, tasks, maxConcurrent)
	if err != nil {
		return reg, nil, err
	}

	out := reg
	results := make([]RefImageResult, 0, len(urls))
	for i, url := range urls {
		if url == "" {
			continue
		}
		var idx int
		out, idx = out.AddReferenceImage(assets.ReferenceImage{
			URL:         url,
			SourceType:  assets.SourceGenerated,
			Category:    NormalizeCategory(reqs[i].Type, reqs[i].Category),
			Description: reqs[i].Description,
		})
		results = append(results, RefImageResult{RequestIndex: i, Index: idx})
	}
	return out, results, nil
}

type FirstFrameRequest struct {
	Description           string `json:"description"`
	Prompt                string `json:"prompt"`
	Sequence              int    `json:"sequence"`
	ReferenceImageIndices []int  `json:"referenceImageIndices"`
}

type FirstFrameResult struct {
	RequestIndex    int    `json:"requestIndex"`
	Index           int    `json:"index"`
	ReferenceImages string `json:"referenceImages"`
}

// GenerateFirstFramesBatch 以参考图为底生成首帧。引用了不存在的参考图
// 序号的请求整条跳过并记日志，其余照常执行。
func GenerateFirstFramesBatch(ctx context.Context, c Client, reg assets.Registry,
	reqs []FirstFrameRequest, size string, watermark bool, maxConcurrent int,
	log *logrus.Logger) (assets.Registry, []FirstFrameResult, error) {

	type job struct {
		requestIndex int
		req          FirstFrameRequest
		inputs       []string
	}
	var jobs []job
	for i, r := range reqs {
		inputs := make([]string, 0, len(r.ReferenceImageIndices))
		valid := true
		for _, idx := range r.ReferenceImageIndices {
			url, err := reg.ResolveURL(assets.KindReferenceImage, idx)
			if err != nil {
				valid = false
				if log != nil {
					log.WithFields(logrus.Fields{"event": "first_frame_skipped", "requestIndex": i, "ref": idx}).
						Warn("参考图序号无效，跳过该首帧请求")
				}
				break
			}
			inputs = append(inputs, url)
		}
		if !valid {
			continue
		}
		jobs = append(jobs, job{requestIndex: i, req: r, inputs: inputs})
	}

	tasks := make([]func(context.Context) (string, error), len(jobs))
	for i, j := range jobs {
		j := j
		tasks[i] = func(tctx context.Context) (string, error) {
			return c.GenerateImage(tctx, ImageRequest{
				Prompt:    j.req.Prompt,
				Images:    j.inputs,
				Size:      size,
				Watermark: watermark,
			})
		}
	}
	urls, err := batch.Run(ctx, tasks, maxConcurrent)
	if err != nil {
		return reg, nil, err
	}

	out := reg
	results := make([]FirstFrameResult, 0, len(jobs))
	for i, j := range jobs {
		if urls[i] == "" {
			continue
		}
		refs := make([]string, 0, len(j.req.ReferenceImageIndices))
		for _, n := range j.req.ReferenceImageIndices {
			refs = append(refs, fmt.Sprintf("index=%d", n))
		}
		next, idx, err := out.AddFirstFrame(assets.FirstFrame{
			URL:                urls[i],
			Description:        j.req.Description,
			Sequence:           j.req.Sequence,
			ReferenceImageRefs: j.req.ReferenceImageIndices,
		})
		if err != nil {
			return reg, nil, err
		}
		out = next
		results = append(results, FirstFrameResult{
			RequestIndex:    j.requestIndex,
			Index:           idx,
			ReferenceImages: strings.Join(refs, "; "),
		})
	}
	return out, results, nil
}

type VideoClipRequest struct {
	FirstFrameIndex int    `json:"firstFrameIndex"`
	Description     string `json:"description"`
	Prompt          string `json:"prompt"`
	DurationSeconds int    `json:"durationSeconds"`
}

type VideoClipResult struct {
	Index           int `json:"index"`
	FirstFrameIndex int `json:"firstFrameIndex"`
	DurationSeconds int `json:"durationSeconds"`
}

// GenerateVideoClipsBatch 以首帧为底批量生成视频。首帧序号无效会让
// 整批失败：视频耗时长，带着坏引用跑完一半没有意义。
func GenerateVideoClipsBatch(ctx context.Context, c Client, reg assets.Registry,
	reqs []VideoClipRequest, watermark bool, maxConcurrent int,
	log *logrus.Logger) (assets.Registry, []VideoClipResult, error) {

	type clip struct {
		VideoResult
		req VideoClipRequest
	}
	tasks := make([]func(context.Context) (clip, error), len(reqs))
	for i, r := range reqs {
		r := r
		tasks[i] = func(tctx context.Context) (clip, error) {
			firstFrameURL, err := reg.ResolveURL(assets.KindFirstFrame, r.FirstFrameIndex)
			if err != nil {
				return clip{}, errs.Wrap(errs.CodeInvalidReference,
					fmt.Sprintf("首帧不存在：%d", r.FirstFrameIndex), err)
			}
			res, err := c.GenerateVideo(tctx, VideoRequest{
				Prompt:          r.Prompt,
				FirstFrameURL:   firstFrameURL,
				DurationSeconds: r.DurationSeconds,
				Watermark:       watermark,
			})
			if err != nil {
				return clip{}, err
			}
			return clip{VideoResult: res, req: r}, nil
		}
	}
	clips, err := batch.Run(ctx, tasks, maxConcurrent)
	if err != nil {
		return reg, nil, err
	}

	out := reg
	results := make([]VideoClipResult, 0, len(clips))
	for _, c := range clips {
		next, idx, err := out.AddVideoClip(assets.VideoClip{
			URL:             c.VideoURL,
			Description:     c.req.Description,
			DurationSeconds: c.req.DurationSeconds,
			FirstFrameRef:   c.req.FirstFrameIndex,
			LastFrameURL:    c.LastFrameURL,
		})
		if err != nil {
			return reg, nil, err
		}
		out = next
		results = append(results, VideoClipResult{
			Index:           idx,
			FirstFrameIndex: c.req.FirstFrameIndex,
			DurationSeconds: c.req.DurationSeconds,
		})
	}
	return out, results, nil
}

// NormalizeCategory 把模型输出的类别字样归一到固定集合
func NormalizeCategory(typ, category string) string {
	s := strings.ToLower(strings.TrimSpace(typ + " " + category))
	switch {
	case strings.Contains(s, "role") || strings.Contains(s, "角色") || strings.Contains(s, "人物"):
		return "角色图"
	case strings.Contains(s, "背景") || strings.Contains(s, "场景") ||
		strings.Contains(s, "scene") || strings.Contains(s, "background"):
		return "场景图"
	case strings.Contains(s, "道具") || strings.Contains(s, "prop"):
		return "道具图"
	case strings.Contains(s, "氛围") || strings.Contains(s, "mood"):
		return "氛围图"
	case strings.Contains(s, "产品") || strings.Contains(s, "product"):
		return "产品图"
	}
	return "参考图"
}

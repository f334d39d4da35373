package assets

import (
	"fmt"

	"tvcagent/internal/errs"
)

// 资产种类，对应 assets_resolve 工具的 kind 入参
const (
	KindReferenceImage = "reference_image"
	KindFirstFrame     = "first_frame"
	KindVideoClip      = "video_clip"
)

const (
	SourceUser      = "user"
	SourceGenerated = "generated"
)

type ReferenceImage struct {
	URL         string `json:"url"`
	SourceType  string `json:"sourceType"`
	Category    string `json:"category"`
	Description string `json:"description,omitempty"`
}

type FirstFrame struct {
	URL                string `json:"url"`
	Description        string `json:"description,omitempty"`
	Sequence           int    `json:"sequence,omitempty"`
	ReferenceImageRefs []int  `json:"referenceImageRefs,omitempty"`
}

type VideoClip struct {
	URL             string `json:"url"`
	Description     string `json:"description,omitempty"`
	DurationSeconds int    `json:"durationSeconds,omitempty"`
	FirstFrameRef   int    `json:"firstFrameRef,omitempty"`
	LastFrameURL    string `json:"lastFrameUrl,omitempty"`
}

// Table 序号表。序号从 1 开始单调递增，删除不回收。
type Table[T any] struct {
	NextIndex int       `json:"nextIndex"`
	Entries   map[int]T `json:"entries"`
}

// Registry 会话内全部生成资产。所有修改方法都是 copy-on-write：
// 返回新 Registry，调用方持有的旧快照不受影响。
type Registry struct {
	ReferenceImages Table[ReferenceImage] `json:"referenceImages"`
	FirstFrames     Table[FirstFrame]     `json:"firstFrames"`
	VideoClips      Table[VideoClip]      `json:"videoClips"`
}

func NewRegistry() Registry {
	return Registry{
		ReferenceImages: Table[ReferenceImage]{NextIndex: 1, Entries: map[int]ReferenceImage{}},
		FirstFrames:     Table[FirstFrame]{NextIndex: 1, Entries: map[int]FirstFrame{}},
		VideoClips:      Table[VideoClip]{NextIndex: 1, Entries: map[int]VideoClip{}},
	}
}

// Normalize 修复反序列化出来的残缺表：nil map、NextIndex 落后于已有序号
func (r Registry) Normalize() Registry {
	r.ReferenceImages = normalizeTable(r.ReferenceImages)
	r.FirstFrames = normalizeTable(r.FirstFrames)
	r.VideoClips = normalizeTable(r.VideoClips)
	return r
}

func normalizeTable[T any](t Table[T]) Table[T] {
	if t.Entries == nil {
		t.Entries = map[int]T{}
	}
	if t.NextIndex < 1 {
		t.NextIndex = 1
	}
	for idx := range t.Entries {
		if idx >= t.NextIndex {
			t.NextIndex = idx + 1
		}
	}
	return t
}

func cloneTable[T any](t Table[T]) Table[T] {
	entries := make(map[int]T, len(t.Entries))
	for k, v := range t.Entries {
		entries[k] = v
	}
	return Table[T]{NextIndex: t.NextIndex, Entries: entries}
}

func insert[T any](t Table[T], v T) (Table[T], int) {
	out := cloneTable(t)
	idx := out.NextIndex
	out.Entries[idx] = v
	out.NextIndex = idx + 1
	return out, idx
}

// UpsertUserImages 把用户上传的产品图登记为参考图。按 URL 精确去重：
// 重复调用同一组 URL 不会新增序号。
func (r Registry) UpsertUserImages(urls []string) (Registry, []int) {
	byURL := map[string]int{}
	for idx, img := range r.ReferenceImages.Entries {
		if img.SourceType == SourceUser {
			byURL[img.URL] = idx
		}
	}
	out := r
	out.ReferenceImages = cloneTable(r.ReferenceImages)
	ordinals := make([]int, 0, len(urls))
	for _, u := range urls {
		if u == "" {
			continue
		}
		if idx, ok := byURL[u]; ok {
			ordinals = append(ordinals, idx)
			continue
		}
		idx := out.ReferenceImages.NextIndex
		out.ReferenceImages.Entries[idx] = ReferenceImage{
			URL:        u,
			SourceType: SourceUser,
			Category:   "产品图",
		}
		out.ReferenceImages.NextIndex = idx + 1
		byURL[u] = idx
		ordinals = append(ordinals, idx)
	}
	return out, ordinals
}

func (r Registry) AddReferenceImage(img ReferenceImage) (Registry, int) {
	if img.SourceType == "" {
		img.SourceType = SourceGenerated
	}
	out := r
	var idx int
	out.ReferenceImages, idx = insert(r.ReferenceImages, img)
	return out, idx
}

// AddFirstFrame 校验所有引用的参考图序号都存在，否则整条拒绝
func (r Registry) AddFirstFrame(ff FirstFrame) (Registry, int, error) {
	for _, ref := range ff.ReferenceImageRefs {
		if _, ok := r.ReferenceImages.Entries[ref]; !ok {
			return r, 0, errs.New(errs.CodeInvalidReference,
				fmt.Sprintf("参考图序号 %d 不存在", ref))
		}
	}
	out := r
	var idx int
	out.FirstFrames, idx = insert(r.FirstFrames, ff)
	return out, idx, nil
}

// AddVideoClip 首帧序号必须解析到已登记的首帧，0 也按缺失拒绝
func (r Registry) AddVideoClip(vc VideoClip) (Registry, int, error) {
	if _, ok := r.FirstFrames.Entries[vc.FirstFrameRef]; !ok {
		return r, 0, errs.New(errs.CodeInvalidReference,
			fmt.Sprintf("首帧序号 %d 不存在", vc.FirstFrameRef))
	}
	out := r
	var idx int
	out.VideoClips, idx = insert(r.VideoClips, vc)
	return out, idx, nil
}

// ResolveURL 按种类 + 序号取资产地址
func (r Registry) ResolveURL(kind string, ordinal int) (string, error) {
	switch kind {
	case KindReferenceImage:
		if img, ok := r.ReferenceImages.Entries[ordinal]; ok {
			return img.URL, nil
		}
	case KindFirstFrame:
		if ff, ok := r.FirstFrames.Entries[ordinal]; ok {
			return ff.URL, nil
		}
	case KindVideoClip:
		if vc, ok := r.VideoClips.Entries[ordinal]; ok {
			return vc.URL, nil
		}
	default:
		return "", errs.New(errs.CodeAssetNotFound, "未知资产种类："+kind)
	}
	return "", errs.New(errs.CodeAssetNotFound,
		fmt.Sprintf("资产不存在：%s #%d", kind, ordinal))
}

// FirstFrameBySequence 按镜头号找首帧，找不到返回 0
func (r Registry) FirstFrameBySequence(seq int) (int, FirstFrame, bool) {
	for idx, ff := range r.FirstFrames.Entries {
		if ff.Sequence == seq {
			return idx, ff, true
		}
	}
	return 0, FirstFrame{}, false
}

package gen

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tvcagent/internal/assets"
	"tvcagent/internal/errs"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func TestGenerateReferenceImagesBatch(t *testing.T) {
	client := &MockClient{}
	reg := assets.NewRegistry()

	next, results, err := GenerateReferenceImagesBatch(context.Background(), client, reg,
		[]RefImageRequest{
			{Type: "role", Description: "主角", Prompt: "年轻女性"},
			{Type: "background", Description: "厨房", Prompt: "清晨的厨房"},
		}, "2K", false, 4, testLogger())
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, 1, results[0].Index)
	assert.Equal(t, 2, results[1].Index)
	assert.Equal(t, "角色图", next.ReferenceImages.Entries[1].Category)
	assert.Equal(t, "场景图", next.ReferenceImages.Entries[2].Category)
	assert.Equal(t, assets.SourceGenerated, next.ReferenceImages.Entries[1].SourceType)
	// 入参快照不被修改
	assert.Empty(t, reg.ReferenceImages.Entries)
}

func TestGenerateFirstFramesBatchSkipsInvalidRef(t *testing.T) {
	client := &MockClient{}
	reg := assets.NewRegistry()
	reg, _ = reg.AddReferenceImage(assets.ReferenceImage{URL: "https://a/ref.png"})

	next, results, err := GenerateFirstFramesBatch(context.Background(), client, reg,
		[]FirstFrameRequest{
			{Description: "镜头1首帧图", Prompt: "p1", Sequence: 1, ReferenceImageIndices: []int{1}},
			{Description: "镜头2首帧图", Prompt: "p2", Sequence: 2, ReferenceImageIndices: []int{99}},
		}, "2K", false, 4, testLogger())
	require.NoError(t, err)

	// 无效引用整条跳过，不影响其余请求
	require.Len(t, results, 1)
	assert.Equal(t, 0, results[0].RequestIndex)
	assert.Equal(t, 1, results[0].Index)
	assert.Equal(t, "index=1", results[0].ReferenceImages)
	assert.Len(t, next.FirstFrames.Entries, 1)
	assert.Equal(t, 1, next.FirstFrames.Entries[1].Sequence)
}

func TestGenerateVideoClipsBatch(t *testing.T) {
	client := &MockClient{}
	reg := assets.NewRegistry()
	reg, _ = reg.AddReferenceImage(assets.ReferenceImage{URL: "https://a/ref.png"})
	reg, _, err := reg.AddFirstFrame(assets.FirstFrame{URL: "https://a/ff.png", Sequence: 1, ReferenceImageRefs: []int{1}})
	require.NoError(t, err)

	next, results, err := GenerateVideoClipsBatch(context.Background(), client, reg,
		[]VideoClipRequest{
			{FirstFrameIndex: 1, Description: "镜头1视频", Prompt: "推镜", DurationSeconds: 5},
		}, false, 2, testLogger())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 1, results[0].Index)
	assert.Equal(t, 5, results[0].DurationSeconds)

	clip := next.VideoClips.Entries[1]
	assert.Equal(t, 1, clip.FirstFrameRef)
	assert.NotEmpty(t, clip.URL)
	assert.NotEmpty(t, clip.LastFrameURL)
}

func TestGenerateVideoClipsBatchFailsOnBadFirstFrame(t *testing.T) {
	client := &MockClient{}
	reg := assets.NewRegistry()

	// 视频批量对坏引用整批失败
	_, _, err := GenerateVideoClipsBatch(context.Background(), client, reg,
		[]VideoClipRequest{{FirstFrameIndex: 7, Prompt: "p", DurationSeconds: 5}},
		false, 2, testLogger())
	require.Error(t, err)
	assert.True(t, errs.IsCode(err, errs.CodeInvalidReference))
}

func TestNormalizeCategory(t *testing.T) {
	cases := []struct{ typ, category, want string }{
		{"role", "", "角色图"},
		{"", "人物特写", "角色图"},
		{"background", "", "场景图"},
		{"", "场景", "场景图"},
		{"item", "道具", "道具图"},
		{"", "mood board", "氛围图"},
		{"", "产品", "产品图"},
		{"", "别的什么", "参考图"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, NormalizeCategory(c.typ, c.category), "%s/%s", c.typ, c.category)
	}
}

func TestRecommendBackgroundMusic(t *testing.T) {
	rec := RecommendBackgroundMusic("product", "exciting")
	assert.Equal(t, "product", rec.SceneType)
	assert.NotEmpty(t, rec.Style)
	assert.Contains(t, rec.BPM, "BPM")

	// 未知组合回退到默认档
	fallback := RecommendBackgroundMusic("unknown", "weird")
	assert.Equal(t, rec.Style, fallback.Style)
}

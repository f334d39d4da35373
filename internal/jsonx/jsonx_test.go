package jsonx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeObjectFromMarkdown(t *testing.T) {
	raw := "模型的说明文字\n```json\n{\"theme\": \"晨间咖啡\", \"count\": 3}\n```\n结尾废话"
	m, err := DecodeObject(raw)
	require.NoError(t, err)
	assert.Equal(t, "晨间咖啡", PickString(m, "theme"))
}

func TestParseRepairsBrokenJSON(t *testing.T) {
	// 尾逗号 + 单引号，模型输出的常见毛病
	m, err := Parse(`{'theme': '晨间咖啡', 'shots': 3,}`)
	require.NoError(t, err)
	assert.Equal(t, "晨间咖啡", PickString(m, "theme"))
}

func TestDecodeObjectNoObject(t *testing.T) {
	_, err := DecodeObject("纯文本，没有对象")
	assert.Error(t, err)
}

func TestPickSequence(t *testing.T) {
	cases := []struct {
		m    map[string]any
		want int
	}{
		{map[string]any{"sequence": float64(3)}, 3},
		{map[string]any{"镜头": "2"}, 2},
		{map[string]any{"index": float64(4)}, 4},
		{map[string]any{"title": "镜头 05 特写"}, 5},
		{map[string]any{"description": "Shot 2: close-up"}, 2},
		{map[string]any{"description": "没有序号"}, 0},
		{map[string]any{}, 0},
	}
	for i, c := range cases {
		assert.Equal(t, c.want, PickSequence(c.m), "case %d", i)
	}
}

func TestPickDuration(t *testing.T) {
	assert.Equal(t, 5, PickDuration(map[string]any{"durationSeconds": float64(5)}))
	assert.Equal(t, 8, PickDuration(map[string]any{"时长": "8"}))
	assert.Equal(t, 0, PickDuration(map[string]any{"其它": 1}))
}

func TestPickURL(t *testing.T) {
	assert.Equal(t, "https://a/v.mp4", PickURL(map[string]any{"video_url": "https://a/v.mp4"}))
	assert.Equal(t, "", PickURL(map[string]any{}))
}

func TestPickStringPriority(t *testing.T) {
	m := map[string]any{"a": "", "b": "值"}
	// 空字符串不占位，继续找后面的 key
	assert.Equal(t, "值", PickString(m, "a", "b"))
}

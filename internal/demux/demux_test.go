package demux

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	outside  strings.Builder
	deltas   map[string]string
	done     map[string]string
	doneList []string
}

func newRecorder() *recorder {
	return &recorder{deltas: map[string]string{}, done: map[string]string{}}
}

func (r *recorder) callbacks() Callbacks {
	return Callbacks{
		OnOutside: func(delta string) { r.outside.WriteString(delta) },
		OnChannelDelta: func(channel, delta string) {
			r.deltas[channel] += delta
		},
		OnChannelDone: func(channel, full string) {
			r.done[channel] = full
			r.doneList = append(r.doneList, channel)
		},
	}
}

func TestDemuxBasicSplit(t *testing.T) {
	rec := newRecorder()
	d := New(rec.callbacks())
	d.Push("前言<clarification>需要确认**预算**</clarification>后记")
	res := d.Flush()

	assert.Equal(t, "前言后记", rec.outside.String())
	assert.Equal(t, "需要确认**预算**", rec.deltas[ChannelClarification])
	assert.Equal(t, "需要确认**预算**", rec.done[ChannelClarification])
	assert.Empty(t, res.OutsideRemainder)
}

// 任意切分方式必须产出相同的回调序列
func TestDemuxChunkingInvariance(t *testing.T) {
	input := "开场白<script>## 剧本\n第一幕<标题>片段</script>中间<storyboards><item>\n" +
		"<field name=\"sequence\">1</field>\n</item></storyboards>收尾"

	var baseline *recorder
	for _, size := range []int{1, 2, 3, 5, 7, 64, len(input)} {
		rec := newRecorder()
		d := New(rec.callbacks())
		runes := []rune(input)
		for i := 0; i < len(runes); i += size {
			end := i + size
			if end > len(runes) {
				end = len(runes)
			}
			d.Push(string(runes[i:end]))
		}
		res := d.Flush()
		require.Empty(t, res.OutsideRemainder, "size=%d", size)

		if baseline == nil {
			baseline = rec
			continue
		}
		assert.Equal(t, baseline.outside.String(), rec.outside.String(), "size=%d", size)
		assert.Equal(t, baseline.deltas, rec.deltas, "size=%d", size)
		assert.Equal(t, baseline.done, rec.done, "size=%d", size)
		assert.Equal(t, baseline.doneList, rec.doneList, "size=%d", size)
	}
	require.NotNil(t, baseline)
	assert.Equal(t, "开场白中间收尾", baseline.outside.String())
	// storyboards 保留原始内部 XML，script 做 markdown 清洗
	assert.Equal(t, "<item>\n<field name=\"sequence\">1</field>\n</item>", baseline.done[ChannelStoryboards])
	assert.Equal(t, "## 剧本\n第一幕片段", baseline.done[ChannelScript])
}

func TestDemuxUnterminatedChannel(t *testing.T) {
	rec := newRecorder()
	d := New(rec.callbacks())
	d.Push("正文<script>写到一半就断")
	res := d.Flush()

	assert.Equal(t, "正文", rec.outside.String())
	assert.NotContains(t, rec.done, ChannelScript)
	assert.Equal(t, "<script>写到一半就断", res.OutsideRemainder)
}

func TestDemuxPartialTagAtEnd(t *testing.T) {
	rec := newRecorder()
	d := New(rec.callbacks())
	d.Push("文本<scri")
	// 尾部可能是开标记前缀，不能提前下发
	assert.Equal(t, "文本", rec.outside.String())
	res := d.Flush()
	assert.Equal(t, "<scri", res.OutsideRemainder)
}

func TestDemuxNonChannelTagPassesThrough(t *testing.T) {
	rec := newRecorder()
	d := New(rec.callbacks())
	d.Push("a < b 且 <b>加粗</b> 结束")
	d.Flush()
	assert.Equal(t, "a < b 且 <b>加粗</b> 结束", rec.outside.String())
}

func TestDemuxSequentialChannels(t *testing.T) {
	rec := newRecorder()
	d := New(rec.callbacks())
	d.Push("<clarification>问题A</clarification><script>剧本B</script>")
	d.Flush()
	assert.Equal(t, []string{ChannelClarification, ChannelScript}, rec.doneList)
}

func TestNormalizeMarkdown(t *testing.T) {
	in := "<p>第一段</p>\r\n\r\n\r\n\r\n第二段\n"
	assert.Equal(t, "第一段\n\n第二段", NormalizeMarkdown(in))
}

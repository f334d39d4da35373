// Package demux 把模型输出流按标记拆分到多个频道。
// <clarification>/<script>/<storyboards> 内的内容走各自频道，
// 其余文本走 outside。实现是单游标状态机：可能构成标记前缀的
// 尾部字节会被扣住不发，所以任意切分方式产出完全相同的回调序列。
package demux

import (
	"regexp"
	"strings"
)

const (
	ChannelClarification = "clarification"
	ChannelScript        = "script"
	ChannelStoryboards   = "storyboards"
)

var channels = []string{ChannelClarification, ChannelScript, ChannelStoryboards}

type Callbacks struct {
	OnOutside      func(delta string)
	OnChannelDelta func(channel, delta string)
	OnChannelDone  func(channel, full string)
}

type Demux struct {
	cb Callbacks

	buf     string // 未决尾部，可能是标记前缀
	channel string // "" 表示 outside
	inner   strings.Builder
}

type FlushResult struct {
	// OutsideRemainder 收尾时的未决文本。频道未闭合时这里包含
	// 开标记和已累积的频道内容，频道回调不会再收到它们。
	OutsideRemainder string
}

func New(cb Callbacks) *Demux {
	return &Demux{cb: cb}
}

func (d *Demux) Push(chunk string) {
	d.buf += chunk
	d.process()
}

// Flush 终止解析。未闭合频道的内容被丢弃，只通过 OutsideRemainder 返回。
func (d *Demux) Flush() FlushResult {
	var remainder string
	if d.channel != "" {
		remainder = "<" + d.channel + ">" + d.inner.String() + d.buf
	} else {
		remainder = d.buf
	}
	d.buf = ""
	d.channel = ""
	d.inner.Reset()
	return FlushResult{OutsideRemainder: remainder}
}

func (d *Demux) process() {
	for {
		lt := strings.IndexByte(d.buf, '<')
		if lt < 0 {
			d.emit(d.buf)
			d.buf = ""
			return
		}
		if lt > 0 {
			d.emit(d.buf[:lt])
			d.buf = d.buf[lt:]
		}
		tail := d.buf
		token, matched, partial := d.matchToken(tail)
		if partial {
			// 尾部可能是标记前缀，扣住等后续字节
			return
		}
		if !matched {
			d.emit("<")
			d.buf = d.buf[1:]
			continue
		}
		d.buf = d.buf[len(token):]
		if d.channel == "" {
			d.channel = strings.Trim(token, "<>")
		} else {
			d.closeChannel()
		}
	}
}

// matchToken 在 outside 状态匹配任一开标记，在频道内只匹配自己的闭标记
func (d *Demux) matchToken(tail string) (token string, matched, partial bool) {
	var candidates []string
	if d.channel == "" {
		for _, ch := range channels {
			candidates = append(candidates, "<"+ch+">")
		}
	} else {
		candidates = []string{"</" + d.channel + ">"}
	}
	for _, c := range candidates {
		if strings.HasPrefix(tail, c) {
			return c, true, false
		}
		if len(tail) < len(c) && strings.HasPrefix(c, tail) {
			partial = true
		}
	}
	return "", false, partial
}

func (d *Demux) emit(s string) {
	if s == "" {
		return
	}
	if d.channel == "" {
		if d.cb.OnOutside != nil {
			d.cb.OnOutside(s)
		}
		return
	}
	d.inner.WriteString(s)
	if d.cb.OnChannelDelta != nil {
		d.cb.OnChannelDelta(d.channel, s)
	}
}

func (d *Demux) closeChannel() {
	full := d.inner.String()
	// storyboards 的消费方要原始内部 XML，其余频道按 markdown 清洗
	if d.channel != ChannelStoryboards {
		full = NormalizeMarkdown(full)
	}
	if d.cb.OnChannelDone != nil {
		d.cb.OnChannelDone(d.channel, full)
	}
	d.channel = ""
	d.inner.Reset()
}

var (
	innerTagRe  = regexp.MustCompile(`<[^>]+>`)
	blankRunsRe = regexp.MustCompile(`\n{3,}`)
)

// NormalizeMarkdown 去掉残留标签并收敛空行
func NormalizeMarkdown(s string) string {
	s = innerTagRe.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = blankRunsRe.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

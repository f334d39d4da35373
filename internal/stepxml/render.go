// Package stepxml 渲染/解析画布用的 step XML 方言。
// 这不是标准 XML：field 名可以是中文，解析端只做宽松的正则提取。
package stepxml

import (
	"fmt"
	"sort"
	"strings"
)

type Field struct {
	Name  string
	Value string
}

type Section struct {
	SectionName string
	Fields      []Field
}

type Content struct {
	Prompt      string
	Sections    []Section
	Images      []map[string]string
	Storyboards []map[string]string
	VideoClips  []map[string]string
}

type Step struct {
	ID      string
	Title   string
	Content *Content
}

type Action struct {
	Command string
	Text    string
}

func escapeText(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return s
}

func escapeAttr(s string) string {
	s = escapeText(s)
	s = strings.ReplaceAll(s, `"`, "&quot;")
	s = strings.ReplaceAll(s, "'", "&apos;")
	return s
}

func renderField(name, value string) string {
	return fmt.Sprintf(`<field name="%s">%s</field>`, escapeAttr(name), escapeText(value))
}

// record 字段按 key 排序渲染，保证同一数据产出同一 XML
func renderRecordItem(record map[string]string) string {
	keys := make([]string, 0, len(record))
	for k := range record {
		if strings.TrimSpace(k) == "" || strings.TrimSpace(record[k]) == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, renderField(k, record[k]))
	}
	return "<item>\n" + strings.Join(parts, "\n") + "\n</item>"
}

func renderSections(sections []Section) string {
	items := make([]string, 0, len(sections))
	for _, s := range sections {
		fields := []string{renderField("section_name", s.SectionName)}
		for _, f := range s.Fields {
			fields = append(fields, renderField(f.Name, f.Value))
		}
		items = append(items, "<item>\n"+strings.Join(fields, "\n")+"\n</item>")
	}
	return "<sections>\n" + strings.Join(items, "\n") + "\n</sections>"
}

func renderListContainer(tag string, records []map[string]string) string {
	items := make([]string, 0, len(records))
	for _, r := range records {
		items = append(items, renderRecordItem(r))
	}
	return "<" + tag + ">\n" + strings.Join(items, "\n") + "\n</" + tag + ">"
}

// RenderStep 渲染画布 step XML
func RenderStep(step Step) string {
	id := escapeAttr(step.ID)
	title := escapeText(step.Title)
	if step.Content == nil {
		return fmt.Sprintf("<step id=\"%s\">\n<title>%s</title>\n</step>", id, title)
	}

	var blocks []string
	if len(step.Content.Sections) > 0 {
		blocks = append(blocks, renderSections(step.Content.Sections))
	}
	if len(step.Content.Images) > 0 {
		blocks = append(blocks, renderListContainer("images", step.Content.Images))
	}
	if len(step.Content.Storyboards) > 0 {
		blocks = append(blocks, renderListContainer("storyboards", step.Content.Storyboards))
	}
	if len(step.Content.VideoClips) > 0 {
		blocks = append(blocks, renderListContainer("video_clips", step.Content.VideoClips))
	}

	return fmt.Sprintf("<step id=\"%s\">\n<title>%s</title>\n<content>\n%s\n</content>\n</step>",
		id, title, strings.Join(blocks, "\n"))
}

// RenderResponse 渲染对话气泡：正文 + 空行 + 快捷操作提示
func RenderResponse(text string, actions []Action) string {
	lines := []string{strings.TrimSpace(text), ""}
	for _, a := range actions {
		lines = append(lines, a.Text)
	}
	body := escapeText(strings.TrimSpace(strings.Join(lines, "\n")))
	return "<response>\n" + body + "\n</response>"
}

// DefaultTitle 各阶段画布标题
func DefaultTitle(step int) string {
	switch step {
	case 0:
		return "收集产品图 + 需求澄清"
	case 1:
		return "剧本创作"
	case 2:
		return "参考图生成"
	case 3:
		return "分镜头脚本创作"
	case 4:
		return "首帧图生成"
	}
	return "分镜视频生成"
}

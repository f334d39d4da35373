package stepxml

import (
	"regexp"
	"strings"
)

var (
	tagRe        = regexp.MustCompile(`<[^>]+>`)
	blankRunsRe  = regexp.MustCompile(`\n{3,}`)
	stepOpenRe   = regexp.MustCompile(`(?i)<step\b[^>]*\bid=["']([^"']+)["'][^>]*>`)
	fieldRe      = regexp.MustCompile(`(?i)<field\b[^>]*\bname=["']([^"']+)["'][^>]*>([\s\S]*?)</field>`)
	responseRe   = regexp.MustCompile(`(?i)<response[^>]*>([\s\S]*?)</response>`)
	itemRe       = regexp.MustCompile(`(?i)<(item|image|video_clip|storyboard|section)\b[\s\S]*?</(?:item|image|video_clip|storyboard|section)>`)
	unescapeRepl = strings.NewReplacer("&lt;", "<", "&gt;", ">", "&quot;", `"`, "&apos;", "'", "&amp;", "&")
)

// StripTags 去掉所有尖括号标签并收敛空行
func StripTags(s string) string {
	s = tagRe.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = blankRunsRe.ReplaceAllString(s, "\n\n")
	return unescapeRepl.Replace(strings.TrimSpace(s))
}

// ExtractFirstTag 截取第一个完整的 <tag>...</tag> 片段
func ExtractFirstTag(raw, tag string) (string, bool) {
	start := strings.Index(raw, "<"+tag)
	if start < 0 {
		return "", false
	}
	closing := "</" + tag + ">"
	end := strings.Index(raw[start:], closing)
	if end < 0 {
		return "", false
	}
	return raw[start : start+end+len(closing)], true
}

// ExtractLastCompleteStep 取最后一个闭合的 <step>...</step> 片段，
// 流式输出尚无完整 step 时返回 ""。
func ExtractLastCompleteStep(raw string) string {
	start := strings.LastIndex(raw, "<step")
	if start < 0 {
		return ""
	}
	end := strings.Index(raw[start:], "</step>")
	if end < 0 {
		return ""
	}
	return raw[start : start+end+len("</step>")]
}

// ExtractPartialResponseBody 取最后一个 <response> 的正文，
// 闭合标签还没到也返回已有部分，用于边生成边刷新的快照。
func ExtractPartialResponseBody(raw string) string {
	start := strings.LastIndex(raw, "<response")
	if start < 0 {
		return ""
	}
	gt := strings.Index(raw[start:], ">")
	if gt < 0 {
		return ""
	}
	body := raw[start+gt+1:]
	if end := strings.LastIndex(body, "</response>"); end >= 0 {
		body = body[:end]
	}
	return strings.TrimRight(body, " \t\r\n")
}

// ExtractResponseText 取 <response> 正文，没有返回 ""
func ExtractResponseText(raw string) string {
	m := responseRe.FindStringSubmatch(raw)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

func extractContainer(stepXML, tag string) (string, bool) {
	return ExtractFirstTag(stepXML, tag)
}

func closedTagText(xml, tag string) string {
	re := regexp.MustCompile(`(?i)<` + tag + `[^>]*>([\s\S]*?)</` + tag + `>`)
	m := re.FindStringSubmatch(xml)
	if m == nil {
		return ""
	}
	return StripTags(m[1])
}

func parseFields(xml string) []Field {
	var out []Field
	for _, m := range fieldRe.FindAllStringSubmatch(xml, -1) {
		name := strings.TrimSpace(m[1])
		value := StripTags(m[2])
		if name == "" || value == "" {
			continue
		}
		out = append(out, Field{Name: name, Value: value})
	}
	return out
}

func parseRecordItem(itemXML string) map[string]string {
	record := map[string]string{}
	for _, f := range parseFields(itemXML) {
		record[f.Name] = f.Value
	}
	return record
}

func parseListContainer(stepXML, containerTag string) []map[string]string {
	container, ok := extractContainer(stepXML, containerTag)
	if !ok {
		return nil
	}
	var out []map[string]string
	for _, m := range itemRe.FindAllString(container, -1) {
		record := parseRecordItem(m)
		if len(record) > 0 {
			out = append(out, record)
		}
	}
	return out
}

func parseSections(stepXML string) []Section {
	container, ok := extractContainer(stepXML, "sections")
	if !ok {
		return nil
	}
	var out []Section
	for _, m := range itemRe.FindAllString(container, -1) {
		fields := parseFields(m)
		if len(fields) == 0 {
			continue
		}
		sec := Section{SectionName: "未命名"}
		for _, f := range fields {
			if f.Name == "section_name" || f.Name == "序号" {
				if sec.SectionName == "未命名" {
					sec.SectionName = f.Value
				}
				continue
			}
			sec.Fields = append(sec.Fields, f)
		}
		out = append(out, sec)
	}
	return out
}

// ParseStep 宽松解析 step XML。解析器只认闭合片段，
// 能和 RenderStep 的输出往返：渲染 → 解析 → 再渲染得到同一份 XML。
func ParseStep(stepXML string) (Step, bool) {
	m := stepOpenRe.FindStringSubmatch(stepXML)
	if m == nil || strings.TrimSpace(m[1]) == "" {
		return Step{}, false
	}
	step := Step{ID: strings.TrimSpace(m[1]), Title: closedTagText(stepXML, "title")}

	content := &Content{
		Prompt:      closedTagText(stepXML, "prompt"),
		Sections:    parseSections(stepXML),
		Images:      parseListContainer(stepXML, "images"),
		Storyboards: parseListContainer(stepXML, "storyboards"),
		VideoClips:  parseListContainer(stepXML, "video_clips"),
	}
	if content.Prompt != "" || len(content.Sections) > 0 || len(content.Images) > 0 ||
		len(content.Storyboards) > 0 || len(content.VideoClips) > 0 {
		step.Content = content
	}
	return step, true
}

package jsonx

import (
	"encoding/json"
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// ExtractObject 截取文本中第一个 "{" 到最后一个 "}" 之间的内容。
// 模型输出常带 markdown 代码块或说明文字，这里只取最外层对象。
func ExtractObject(s string) (string, bool) {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}

// Parse 先直接解析，失败后走 jsonrepair 修复再解析
func Parse(s string) (map[string]any, error) {
	var out map[string]any
	if err := json.Unmarshal([]byte(s), &out); err == nil {
		return out, nil
	}
	repaired, err := jsonrepair.JSONRepair(s)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(repaired), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DecodeObject 从自由文本中提取并解析第一个 JSON 对象
func DecodeObject(s string) (map[string]any, error) {
	raw, ok := ExtractObject(s)
	if !ok {
		return nil, errors.New("no json object in text")
	}
	return Parse(raw)
}

// 字段同义词表，按优先级排列
var (
	sequenceKeys = []string{"sequence", "shot", "序号", "镜头", "index"}
	durationKeys = []string{"duration_seconds", "durationSeconds", "duration", "时长", "duration_sec"}
	urlKeys      = []string{"url", "URL", "href", "video_url", "videoUrl", "last_frame_url"}

	shotPattern = regexp.MustCompile(`(?:镜头|[Ss]hot)\s*0*(\d+)`)
)

func PickString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if s := asString(v); s != "" {
				return s
			}
		}
	}
	return ""
}

// PickSequence 解析镜头序号：显式字段优先，其次从 title/description 文本里
// 提取 "镜头N" / "shot N"。返回 0 表示无法确定。
func PickSequence(m map[string]any) int {
	for _, k := range sequenceKeys {
		if v, ok := m[k]; ok {
			if n := asInt(v); n > 0 {
				return n
			}
		}
	}
	for _, k := range []string{"title", "description", "name"} {
		if v, ok := m[k]; ok {
			if match := shotPattern.FindStringSubmatch(asString(v)); match != nil {
				if n, err := strconv.Atoi(match[1]); err == nil && n > 0 {
					return n
				}
			}
		}
	}
	return 0
}

// PickDuration 返回秒数，0 表示缺失
func PickDuration(m map[string]any) int {
	for _, k := range durationKeys {
		if v, ok := m[k]; ok {
			if n := asInt(v); n > 0 {
				return n
			}
		}
	}
	return 0
}

func PickURL(m map[string]any) string {
	return PickString(m, urlKeys...)
}

func asString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	}
	return ""
}

func asInt(v any) int {
	switch t := v.(type) {
	case float64:
		return int(t)
	case int:
		return t
	case string:
		s := strings.TrimSpace(t)
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return int(f)
		}
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return int(n)
		}
	}
	return 0
}

package stream

import (
	"regexp"
	"strings"
)

var phaseLabels = map[int]string{
	0: "0 需求澄清",
	1: "1 剧本",
	2: "2 参考图",
	3: "3 分镜",
	4: "4 首帧",
	5: "5 视频与音乐",
}

func PhaseLabel(step int) string {
	if label, ok := phaseLabels[step]; ok {
		return label
	}
	return phaseLabels[0]
}

var tagLikeRe = regexp.MustCompile(`</?[A-Za-z][^<>\n]*>`)

// NormalizeDialog 收尾直连路径的对话正文：
// 把漏网的标签转成全角尖括号防止前端误解析，
// 并补齐"当前阶段/下一步/关键问题"三行开头。
func NormalizeDialog(s string, currentStep int) string {
	s = tagLikeRe.ReplaceAllStringFunc(s, func(m string) string {
		m = strings.ReplaceAll(m, "<", "＜")
		return strings.ReplaceAll(m, ">", "＞")
	})
	s = strings.TrimSpace(s)

	var prefix []string
	if !strings.Contains(s, "当前阶段：") {
		prefix = append(prefix, "当前阶段："+PhaseLabel(currentStep))
	}
	if !strings.Contains(s, "下一步：") {
		prefix = append(prefix, "下一步：…")
	}
	if !strings.Contains(s, "关键问题：") {
		prefix = append(prefix, "关键问题：无")
	}
	if len(prefix) > 0 {
		if s == "" {
			return strings.Join(prefix, "\n")
		}
		s = strings.Join(prefix, "\n") + "\n\n" + s
	}
	return s
}

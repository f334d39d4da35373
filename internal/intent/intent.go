package intent

import (
	"regexp"
	"strconv"
	"strings"
)

type Kind string

const (
	Start    Kind = "start"
	Continue Kind = "continue"
	Modify   Kind = "modify"
	Jump     Kind = "jump"
	Message  Kind = "message"
)

type Intent struct {
	Kind Kind
	Step int // 仅 Jump 有效
}

var (
	jumpBack = regexp.MustCompile(`回到步骤\s*(\d)`)
	jumpStep = regexp.MustCompile(`步骤\s*(\d)`)

	continueWords = []string{"继续", "下一步", "next", "满意", "ok", "好的", "可以"}
	modifyWords   = []string{"修改", "调整", "改一下", "重新", "再改一版", "不行", "不满意", "还要再改"}
	startWords    = []string{"开始创作", "创作", "创建", "制作", "写个剧本", "帮我"}
)

// NormalizeUserText 去掉前端附加的风格锁首行
func NormalizeUserText(prompt string) string {
	raw := strings.TrimSpace(prompt)
	if raw == "" {
		return ""
	}
	firstLine, rest, found := strings.Cut(raw, "\n")
	if found && strings.HasPrefix(firstLine, "当前风格锁：") {
		return strings.TrimSpace(rest)
	}
	return raw
}

// Parse 解析用户输入的回合意图。跳转优先于关键词，
// 关键词按 继续(全匹配) > 修改 > 继续(包含) > 开始 的顺序匹配。
func Parse(prompt string) Intent {
	text := NormalizeUserText(prompt)
	compact := strings.ToLower(removeSpaces(text))

	if m := jumpBack.FindStringSubmatch(text); m != nil {
		return jumpTo(m[1])
	}
	if m := jumpStep.FindStringSubmatch(text); m != nil {
		return jumpTo(m[1])
	}
	for _, w := range continueWords {
		if compact == w {
			return Intent{Kind: Continue}
		}
	}
	// 否定式优先："不满意"要落到修改而不是被"满意"截胡
	for _, w := range modifyWords {
		if strings.Contains(compact, w) {
			return Intent{Kind: Modify}
		}
	}
	for _, w := range continueWords {
		if strings.Contains(compact, w) {
			return Intent{Kind: Continue}
		}
	}
	for _, w := range startWords {
		if strings.Contains(compact, removeSpaces(w)) {
			return Intent{Kind: Start}
		}
	}
	return Intent{Kind: Message}
}

func jumpTo(digits string) Intent {
	n, _ := strconv.Atoi(digits)
	return Intent{Kind: Jump, Step: Clamp(n)}
}

func Clamp(step int) int {
	if step < 0 {
		return 0
	}
	if step > 5 {
		return 5
	}
	return step
}

// GuardStep 禁止跳过阶段：目标超过 current+1 时压回 current+1
func GuardStep(current, next int) int {
	next = Clamp(next)
	if next > current+1 {
		return Clamp(current + 1)
	}
	return next
}

func removeSpaces(s string) string {
	return strings.Join(strings.Fields(s), "")
}

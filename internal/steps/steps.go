// Package steps 六阶段创作流程的逐步执行器（legacy 路径）。
package steps

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/sirupsen/logrus"

	"tvcagent/internal/config"
	"tvcagent/internal/gen"
	"tvcagent/internal/intent"
	"tvcagent/internal/session"
)

// 图片批量生成的并发上限，视频并发走配置
const imageMaxConcurrent = 4

type Deps struct {
	Model model.ToolCallingChatModel
	Gen   gen.Client
	LLM   config.LLMConfig
	Image config.ImageConfig
	Video config.VideoConfig
	Mock  bool
	Log   *logrus.Logger
}

type Context struct {
	TraceID   string
	Story     *session.StoryContext
	State     session.State
	Intent    intent.Intent
	UserText  string
	SendDelta func(string)
}

type Result struct {
	Raw         string
	StepXML     string
	ResponseXML string
	NextState   session.State
}

// Execute 按会话当前阶段分发执行。阶段 0 先把用户输入里的
// 产品图 URL 收进状态。
func Execute(ctx context.Context, c Context, d Deps) (Result, error) {
	step := intent.Clamp(c.State.CurrentStep)
	c.State.CurrentStep = step
	if step == 0 {
		c.State.ProductImages = mergeUnique(c.State.ProductImages, ExtractURLs(c.UserText))
	}
	if c.SendDelta == nil {
		c.SendDelta = func(string) {}
	}

	if d.Mock {
		return runMockStep(c)
	}

	switch step {
	case 0:
		return runStep0(ctx, c, d)
	case 1:
		return runStep1(ctx, c, d)
	case 2:
		return runStep2(ctx, c, d)
	case 3:
		return runStep3(ctx, c, d)
	case 4:
		return runStep4(ctx, c, d)
	}
	return runStep5(ctx, c, d)
}

// completeOnce 单轮 system+user 调用，返回完整文本
func completeOnce(ctx context.Context, d Deps, system, user string) (string, error) {
	msgs := []*schema.Message{
		schema.SystemMessage(system),
		schema.UserMessage(user),
	}
	out, err := d.Model.Generate(ctx, msgs)
	if err != nil {
		return "", fmt.Errorf("ark chat: %w", err)
	}
	return out.Content, nil
}

// prevStepXML 取某阶段最新画布快照
func prevStepXML(c Context, stepID int) string {
	if c.Story == nil {
		return ""
	}
	if snap, ok := c.Story.StepsByID[stepID]; ok {
		return snap.StepXML
	}
	return ""
}

var urlRe = regexp.MustCompile(`\bhttps?://[^\s<>"']+`)

// ExtractURLs 提取文本中的 URL 并去重
func ExtractURLs(text string) []string {
	var out []string
	seen := map[string]bool{}
	for _, u := range urlRe.FindAllString(text, -1) {
		u = strings.TrimSpace(u)
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
	}
	return out
}

func mergeUnique(base, extra []string) []string {
	out := make([]string, 0, len(base)+len(extra))
	seen := map[string]bool{}
	for _, u := range append(append([]string{}, base...), extra...) {
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
	}
	return out
}

func continueAction(next string) string {
	return fmt.Sprintf("👉 输入\"继续\"%s", next)
}

func modifyAction(redo string) string {
	return fmt.Sprintf("👉 输入\"修改\"%s", redo)
}

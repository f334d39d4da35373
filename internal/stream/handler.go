package stream

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"tvcagent/internal/agent"
	"tvcagent/internal/config"
	"tvcagent/internal/demux"
	"tvcagent/internal/errs"
	"tvcagent/internal/gen"
	"tvcagent/internal/intent"
	"tvcagent/internal/session"
	"tvcagent/internal/steps"
	"tvcagent/internal/stepxml"
)

// 逐字回放参数，legacy 路径把整段产出模拟成流式下发
const (
	typewriterChunk = 14
	typewriterDelay = 12 * time.Millisecond
)

type Handler struct {
	Store *session.Store
	Model model.ToolCallingChatModel
	Gen   gen.Client
	LLM   config.LLMConfig
	Image config.ImageConfig
	Video config.VideoConfig
	Agent config.AgentConfig
	Mock  bool
	Log   *logrus.Logger
}

func (h *Handler) Register(r *gin.Engine) {
	r.POST("/tvc/agent/stream", h.Stream)
	r.GET("/tvc/agent/info", h.Info)
}

type streamRequest struct {
	Prompt    string `json:"prompt"`
	SessionID string `json:"sessionId"`
	ProjectID string `json:"projectId"`
}

// NewSessionID 生成前端可回传的会话标识
func NewSessionID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return uuid.NewString()
	}
	return hex.EncodeToString(b[:])
}

func (h *Handler) Info(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"ok": true,
		"data": gin.H{
			"mode":          h.Agent.Mode,
			"model":         h.LLM.Model,
			"maxSteps":      h.Agent.MaxSteps,
			"historyWindow": h.Agent.HistoryWindow,
			"timeoutMs":     h.Agent.Timeout.Milliseconds(),
			"mock":          h.Mock,
		},
	})
}

func (h *Handler) Stream(c *gin.Context) {
	var req streamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"ok":    false,
			"error": gin.H{"code": "BAD_REQUEST", "message": "请求体不是合法 JSON"},
		})
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"ok":    false,
			"error": gin.H{"code": "BAD_REQUEST", "message": "prompt 不能为空"},
		})
		return
	}
	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		sessionID = NewSessionID()
	}

	traceID := uuid.NewString()
	log := h.Log.WithFields(logrus.Fields{
		"trace_id":   traceID,
		"session_id": sessionID,
		"mode":       h.Agent.Mode,
	})

	c.Writer.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Writer.WriteHeader(http.StatusOK)
	c.Writer.Flush()

	w := NewWriter(c.Writer, traceID, h.Log)
	w.Event("start", gin.H{"sessionId": sessionID, "mode": h.Agent.Mode})
	go w.Heartbeat()

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.Agent.Timeout)
	defer cancel()

	var err error
	if h.Agent.Mode == "direct" {
		err = h.runDirect(ctx, w, traceID, sessionID, req.Prompt)
	} else {
		err = h.runLegacy(ctx, w, traceID, sessionID, req.Prompt)
	}
	if err == nil {
		return
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		log.Warn("stream_timeout")
		w.Error(errs.CodeTimeout, "执行超时，请重试")
	case errors.Is(err, context.Canceled):
		log.Info("stream_aborted")
		w.Error(errs.CodeAborted, "连接已断开")
	default:
		log.WithError(err).Error("stream_failed")
		w.Error(errs.CodeOf(err), err.Error())
	}
}

// runLegacy 逐步执行路径：服务端解析意图、推进阶段、渲染画布
func (h *Handler) runLegacy(ctx context.Context, w *Writer, traceID, sessionID, prompt string) error {
	unlock := h.Store.LockSession(sessionID)
	defer unlock()

	story, err := h.Store.LoadContext(ctx, sessionID, h.Agent.HistoryWindow)
	if err != nil {
		return err
	}

	it := intent.Parse(prompt)
	userText := intent.NormalizeUserText(prompt)

	state := story.State
	switch it.Kind {
	case intent.Continue:
		state.CurrentStep = intent.GuardStep(state.CurrentStep, state.CurrentStep+1)
	case intent.Jump:
		state.CurrentStep = intent.GuardStep(state.CurrentStep, it.Step)
	case intent.Start:
		// 开始创作 = 回到步骤 0 重来一轮
		state.CurrentStep = intent.GuardStep(state.CurrentStep, 0)
	}

	res, err := steps.Execute(ctx, steps.Context{
		TraceID:  traceID,
		Story:    &story,
		State:    state,
		Intent:   it,
		UserText: userText,
		SendDelta: func(text string) {
			w.Event("delta", gin.H{"text": text})
		},
	}, steps.Deps{
		Model: h.Model,
		Gen:   h.Gen,
		LLM:   h.LLM,
		Image: h.Image,
		Video: h.Video,
		Mock:  h.Mock,
		Log:   h.Log,
	})
	if err != nil {
		return err
	}

	if err := h.replayCanvas(ctx, w, res.Raw); err != nil {
		return err
	}
	responseText := stepxml.ExtractResponseText(res.Raw)
	if err := h.typewriter(ctx, w, responseText); err != nil {
		return err
	}

	if err := h.Store.SaveState(ctx, sessionID, res.NextState); err != nil {
		return err
	}
	if err := h.Store.SaveStepSnapshot(ctx, sessionID, session.Snapshot{
		StepID:      res.NextState.CurrentStep,
		StepXML:     res.StepXML,
		ResponseXML: res.ResponseXML,
	}); err != nil {
		return err
	}
	if err := h.Store.AppendMessages(ctx, sessionID, []session.Message{
		{Role: "user", Content: userText},
		{Role: "assistant", Content: res.Raw},
	}); err != nil {
		return err
	}

	w.Result(gin.H{
		"sessionId":    sessionID,
		"raw":          res.Raw,
		"stepXml":      res.StepXML,
		"responseText": responseText,
		"state":        gin.H{"currentStep": res.NextState.CurrentStep},
	})
	return nil
}

func wrapResponse(text string) string {
	return "<response>\n" + strings.TrimRight(text, " \t\r\n") + "\n</response>"
}

// replayCanvas 按固定节奏回放整段产出，每个节拍发一份累计快照：
// 最后一个闭合的 step 画布 + 当前 response 正文（还没闭合也算）。
// 快照没有变化的节拍不发事件。
func (h *Handler) replayCanvas(ctx context.Context, w *Writer, raw string) error {
	runes := []rune(raw)
	var lastStep, lastBody string
	for i := 0; i < len(runes); i += typewriterChunk {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := i + typewriterChunk
		if end > len(runes) {
			end = len(runes)
		}
		acc := string(runes[:end])

		stepXML := stepxml.ExtractLastCompleteStep(acc)
		body := stepxml.ExtractPartialResponseBody(acc)
		nextBody := body
		if nextBody == "" {
			nextBody = lastBody
		}
		if nextBody == "" {
			nextBody = "正在思考..."
		}

		hasStepUpdate := stepXML != "" && stepXML != lastStep
		hasBodyUpdate := body != "" && body != lastBody
		if hasStepUpdate || hasBodyUpdate {
			if hasStepUpdate {
				lastStep = stepXML
			}
			if hasBodyUpdate {
				lastBody = body
			}
			snapshot := wrapResponse(nextBody)
			if stepXML != "" {
				snapshot = stepXML + "\n\n" + wrapResponse(nextBody)
			}
			w.Event("delta", gin.H{"text": snapshot})
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(typewriterDelay):
		}
	}
	return nil
}

// typewriter 把回合文案按固定节奏拆成 delta 事件回放
func (h *Handler) typewriter(ctx context.Context, w *Writer, text string) error {
	runes := []rune(text)
	for i := 0; i < len(runes); i += typewriterChunk {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := i + typewriterChunk
		if end > len(runes) {
			end = len(runes)
		}
		w.Event("delta", gin.H{"text": string(runes[i:end])})
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(typewriterDelay):
		}
	}
	return nil
}

// runDirect 工具调用路径：模型自主推进，服务端只分流和执行工具
func (h *Handler) runDirect(ctx context.Context, w *Writer, traceID, sessionID, prompt string) error {
	unlock := h.Store.LockSession(sessionID)
	defer unlock()

	story, err := h.Store.LoadContext(ctx, sessionID, h.Agent.HistoryWindow)
	if err != nil {
		return err
	}

	userText := intent.NormalizeUserText(prompt)
	state := story.State
	if state.CurrentStep == 0 {
		state.ProductImages = append([]string{}, state.ProductImages...)
		for _, u := range steps.ExtractURLs(userText) {
			found := false
			for _, existing := range state.ProductImages {
				if existing == u {
					found = true
					break
				}
			}
			if !found {
				state.ProductImages = append(state.ProductImages, u)
			}
		}
	}

	ob := agent.NewOutbox()
	ob.AddUser(userText)

	var dialog strings.Builder
	var storyboardsXML string
	dm := demux.New(demux.Callbacks{
		OnOutside: func(delta string) {
			dialog.WriteString(delta)
			w.Event("delta", gin.H{"text": delta})
		},
		OnChannelDelta: func(channel, delta string) {
			if channel == demux.ChannelStoryboards {
				return
			}
			w.Event(channel, gin.H{"phase": "delta", "markdown": delta})
		},
		OnChannelDone: func(channel, full string) {
			if channel == demux.ChannelStoryboards {
				storyboardsXML = full
				return
			}
			w.Event(channel, gin.H{"phase": "done", "markdown": full})
		},
	})

	rt := &agent.Runtime{
		TraceID:  traceID,
		GetState: func() session.State { return state },
		SetState: func(next session.State) { state = next },
		SendStatus: func(text, op string) {
			w.Event("status", gin.H{"text": text, "op": op})
		},
		Gen:   h.Gen,
		Image: h.Image,
		Video: h.Video,
		Log:   h.Log,
	}

	msgs := agent.BuildDirectMessages(agent.DirectSystemPrompt, &story, userText, h.Agent.HistoryWindow)
	if err := agent.RunLoop(ctx, h.Model, rt, msgs, dm, ob, h.Agent.MaxSteps); err != nil {
		return err
	}

	if rem := dm.Flush(); rem.OutsideRemainder != "" {
		cleaned := demux.NormalizeMarkdown(rem.OutsideRemainder)
		if cleaned != "" {
			dialog.WriteString(cleaned)
			w.Event("delta", gin.H{"text": cleaned})
		}
	}

	content := NormalizeDialog(dialog.String(), state.CurrentStep)

	if err := ob.Flush(ctx, h.Store, sessionID); err != nil {
		return err
	}
	if err := h.Store.SaveState(ctx, sessionID, state.Touched()); err != nil {
		return err
	}

	result := gin.H{
		"sessionId":    sessionID,
		"raw":          content,
		"responseText": content,
		"state":        gin.H{"currentStep": state.CurrentStep},
	}
	if storyboardsXML != "" {
		result["storyboards"] = storyboardsXML
	}
	w.Result(result)
	return nil
}

package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tvcagent/internal/config"
	"tvcagent/internal/gen"
	"tvcagent/internal/session"
)

type sseEvent struct {
	Type string
	Data map[string]any
}

func parseSSE(t *testing.T, body string) []sseEvent {
	t.Helper()
	var out []sseEvent
	for _, block := range strings.Split(body, "\n\n") {
		var ev sseEvent
		for _, line := range strings.Split(block, "\n") {
			if strings.HasPrefix(line, "event: ") {
				ev.Type = strings.TrimPrefix(line, "event: ")
			}
			if strings.HasPrefix(line, "data: ") {
				require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev.Data))
			}
		}
		if ev.Type != "" {
			out = append(out, ev)
		}
	}
	return out
}

func countTerminal(events []sseEvent) int {
	n := 0
	for _, ev := range events {
		if ev.Type == "result" || ev.Type == "error" {
			n++
		}
	}
	return n
}

type finalOnlyModel struct {
	content string
}

func (f *finalOnlyModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	return schema.AssistantMessage(f.content, nil), nil
}

func (f *finalOnlyModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("stream not supported")
}

func (f *finalOnlyModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	return f, nil
}

func newTestHandler(t *testing.T, mode string, m model.ToolCallingChatModel, timeout time.Duration) (*Handler, *session.Store) {
	t.Helper()
	db, err := session.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	store := session.NewStore(db)

	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	return &Handler{
		Store: store,
		Model: m,
		Gen:   &gen.MockClient{},
		LLM:   config.LLMConfig{Model: "test-model"},
		Image: config.ImageConfig{Size: "2K"},
		Video: config.VideoConfig{MaxConcurrent: 2, MinDuration: 3, MaxDuration: 12},
		Agent: config.AgentConfig{
			Timeout:       timeout,
			MaxSteps:      10,
			HistoryWindow: 20,
			Mode:          mode,
		},
		Mock: true,
		Log:  log,
	}, store
}

func newTestRouter(h *Handler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h.Register(r)
	return r
}

func postStream(r *gin.Engine, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/tvc/agent/stream", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestStreamRejectsBadRequest(t *testing.T) {
	h, _ := newTestHandler(t, "legacy", nil, time.Second)
	r := newTestRouter(h)

	rec := postStream(r, `{broken`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postStream(r, `{"prompt":"  "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStreamLegacyMockTurn(t *testing.T) {
	h, store := newTestHandler(t, "legacy", nil, 30*time.Second)
	r := newTestRouter(h)

	rec := postStream(r, `{"prompt":"帮我做个咖啡机广告","sessionId":"s1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/event-stream")

	events := parseSSE(t, rec.Body.String())
	require.NotEmpty(t, events)
	assert.Equal(t, "start", events[0].Type)
	assert.Equal(t, 1, countTerminal(events))

	last := events[len(events)-1]
	require.Equal(t, "result", last.Type)
	assert.Equal(t, true, last.Data["ok"])
	data := last.Data["data"].(map[string]any)
	assert.Contains(t, data["raw"], "<step id=")
	assert.Contains(t, data["raw"], "<response>")
	assert.Contains(t, data["stepXml"], "<step id=")
	responseText := data["responseText"].(string)
	assert.NotEmpty(t, responseText)
	assert.NotContains(t, responseText, "<response>")

	// 回放期间发的是累计快照：完整 step 画布 + 当前响应正文
	var sawSnapshot bool
	for _, ev := range events {
		if ev.Type != "delta" {
			continue
		}
		text, _ := ev.Data["data"].(map[string]any)["text"].(string)
		if strings.Contains(text, "<step id=") && strings.Contains(text, "<response>") {
			sawSnapshot = true
		}
	}
	assert.True(t, sawSnapshot)

	// 成功回合落库：状态 + 快照 + 两条消息
	st, err := store.LoadState(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, 0, st.CurrentStep)
	msgs, err := store.RecentMessages(context.Background(), "s1", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "user", msgs[0].Role)
	assert.Equal(t, "assistant", msgs[1].Role)
}

func TestStreamLegacyContinueAdvancesStep(t *testing.T) {
	h, store := newTestHandler(t, "legacy", nil, 30*time.Second)
	r := newTestRouter(h)

	rec := postStream(r, `{"prompt":"帮我做广告","sessionId":"s1"}`)
	require.Equal(t, 1, countTerminal(parseSSE(t, rec.Body.String())))

	rec = postStream(r, `{"prompt":"继续","sessionId":"s1"}`)
	events := parseSSE(t, rec.Body.String())
	require.Equal(t, 1, countTerminal(events))

	st, err := store.LoadState(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, 1, st.CurrentStep)
}

func TestStreamLegacyJumpGuard(t *testing.T) {
	h, store := newTestHandler(t, "legacy", nil, 30*time.Second)
	r := newTestRouter(h)

	// 当前在 0，要求跳到 5，被压回 1
	rec := postStream(r, `{"prompt":"去步骤5","sessionId":"s1"}`)
	require.Equal(t, 1, countTerminal(parseSSE(t, rec.Body.String())))

	st, err := store.LoadState(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, 1, st.CurrentStep)
}

func TestStreamLegacyStartRestartsPipeline(t *testing.T) {
	h, store := newTestHandler(t, "legacy", nil, 30*time.Second)
	r := newTestRouter(h)

	rec := postStream(r, `{"prompt":"帮我做广告","sessionId":"s1"}`)
	require.Equal(t, 1, countTerminal(parseSSE(t, rec.Body.String())))
	rec = postStream(r, `{"prompt":"继续","sessionId":"s1"}`)
	require.Equal(t, 1, countTerminal(parseSSE(t, rec.Body.String())))

	st, err := store.LoadState(context.Background(), "s1")
	require.NoError(t, err)
	require.Equal(t, 1, st.CurrentStep)

	// 已推进到步骤 1 后再说"开始创作"，整条流水线回到步骤 0
	rec = postStream(r, `{"prompt":"开始创作","sessionId":"s1"}`)
	require.Equal(t, 1, countTerminal(parseSSE(t, rec.Body.String())))

	st, err = store.LoadState(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, 0, st.CurrentStep)
}

func TestStreamTimeoutEmitsSingleError(t *testing.T) {
	h, _ := newTestHandler(t, "legacy", nil, 5*time.Millisecond)
	r := newTestRouter(h)

	rec := postStream(r, `{"prompt":"帮我做广告","sessionId":"s1"}`)
	events := parseSSE(t, rec.Body.String())
	require.Equal(t, 1, countTerminal(events))

	last := events[len(events)-1]
	require.Equal(t, "error", last.Type)
	assert.Equal(t, false, last.Data["ok"])
	errData := last.Data["error"].(map[string]any)
	assert.Equal(t, "VIBE_TIMEOUT", errData["code"])
}

func TestStreamDirectMode(t *testing.T) {
	m := &finalOnlyModel{content: "当前阶段：0 需求澄清\n下一步：补充产品信息\n关键问题：无\n\n<clarification>请确认预算</clarification>好的，我们先明确需求。"}
	h, store := newTestHandler(t, "direct", m, 30*time.Second)
	r := newTestRouter(h)

	rec := postStream(r, `{"prompt":"帮我做个咖啡机广告","sessionId":"s1"}`)
	events := parseSSE(t, rec.Body.String())
	require.Equal(t, 1, countTerminal(events))

	var sawClarificationDone bool
	for _, ev := range events {
		if ev.Type == "clarification" {
			data := ev.Data["data"].(map[string]any)
			if phase, _ := data["phase"].(string); phase == "done" {
				sawClarificationDone = true
				assert.Equal(t, "请确认预算", data["markdown"])
			}
		}
	}
	assert.True(t, sawClarificationDone)

	last := events[len(events)-1]
	require.Equal(t, "result", last.Type)
	data := last.Data["data"].(map[string]any)
	raw := data["raw"].(string)
	assert.Contains(t, raw, "当前阶段：0 需求澄清")
	assert.NotContains(t, raw, "<clarification>")
	assert.Equal(t, raw, data["responseText"])

	// 消息经由 outbox 落库
	msgs, err := store.RecentMessages(context.Background(), "s1", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "user", msgs[0].Role)
	assert.Equal(t, "assistant", msgs[1].Role)
}

func TestInfoEndpoint(t *testing.T) {
	h, _ := newTestHandler(t, "legacy", nil, time.Second)
	r := newTestRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/tvc/agent/info", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["ok"])
	data := body["data"].(map[string]any)
	assert.Equal(t, "legacy", data["mode"])
	assert.Equal(t, true, data["mock"])
}

package stream

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestWriterSingleTerminalEvent(t *testing.T) {
	rec := httptest.NewRecorder()
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	w := NewWriter(rec, "t1", log)
	w.Event("start", map[string]string{"sessionId": "s1"})
	w.Result(map[string]string{"done": "yes"})
	// 终止之后的一切写入被丢弃
	w.Error("VIBE_STREAM_FAILED", "late error")
	w.Event("delta", map[string]string{"text": "late"})

	body := rec.Body.String()
	assert.Equal(t, 1, strings.Count(body, "event: result"))
	assert.Equal(t, 0, strings.Count(body, "event: error"))
	assert.Equal(t, 0, strings.Count(body, "late"))
	assert.Contains(t, body, `"traceId":"t1"`)

	select {
	case <-w.Done():
	default:
		t.Fatal("终止后 Done 应当已关闭")
	}
}

func TestHeartbeatPingsWhileIdle(t *testing.T) {
	rec := httptest.NewRecorder()
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	w := NewWriter(rec, "t3", log)
	go w.Heartbeat()
	time.Sleep(heartbeatIdleGap + 2*heartbeatInterval)
	w.Result(map[string]string{"done": "yes"})

	assert.Contains(t, rec.Body.String(), ": ping ")
}

func TestHeartbeatStopsAfterFirstDelta(t *testing.T) {
	rec := httptest.NewRecorder()
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	w := NewWriter(rec, "t4", log)
	w.Event("delta", map[string]string{"text": "开场"})
	go w.Heartbeat()
	time.Sleep(heartbeatIdleGap + 2*heartbeatInterval)
	w.Result(map[string]string{"done": "yes"})

	assert.NotContains(t, rec.Body.String(), ": ping ")
}

func TestWriterErrorEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	w := NewWriter(rec, "t2", log)
	w.Error("VIBE_TIMEOUT", "执行超时")

	body := rec.Body.String()
	assert.Contains(t, body, "event: error")
	assert.Contains(t, body, `"ok":false`)
	assert.Contains(t, body, `"code":"VIBE_TIMEOUT"`)
}

package stream

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	heartbeatInterval = 500 * time.Millisecond
	heartbeatIdleGap  = 1200 * time.Millisecond
)

// Writer 把事件编码成 SSE 帧写给客户端。
// result/error 是终止事件，整条流保证恰好发出一个。
type Writer struct {
	mu           sync.Mutex
	w            http.ResponseWriter
	flusher      http.Flusher
	traceID      string
	log          *logrus.Logger
	lastActivity time.Time
	sawDelta     bool
	terminated   bool
	done         chan struct{}
}

func NewWriter(w http.ResponseWriter, traceID string, log *logrus.Logger) *Writer {
	flusher, _ := w.(http.Flusher)
	return &Writer{
		w:            w,
		flusher:      flusher,
		traceID:      traceID,
		log:          log,
		lastActivity: time.Now(),
		done:         make(chan struct{}),
	}
}

// Done 终止事件发出后关闭
func (s *Writer) Done() <-chan struct{} { return s.done }

// Event 发送非终止事件，终止之后的调用被丢弃
func (s *Writer) Event(typ string, data any) {
	payload, err := json.Marshal(map[string]any{
		"ok":      true,
		"traceId": s.traceID,
		"data":    data,
	})
	if err != nil {
		s.log.WithError(err).Warn("sse_marshal")
		return
	}
	s.write(typ, string(payload), false)
}

// Result 终止事件：回合成功
func (s *Writer) Result(data any) {
	payload, err := json.Marshal(map[string]any{
		"ok":      true,
		"traceId": s.traceID,
		"data":    data,
	})
	if err != nil {
		s.Error("VIBE_STREAM_FAILED", "结果序列化失败")
		return
	}
	s.write("result", string(payload), true)
}

// Error 终止事件：回合失败
func (s *Writer) Error(code, message string) {
	payload, _ := json.Marshal(map[string]any{
		"ok":      false,
		"traceId": s.traceID,
		"error":   map[string]string{"code": code, "message": message},
	})
	s.write("error", string(payload), true)
}

func (s *Writer) write(typ, payload string, terminal bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.terminated {
		return
	}
	if terminal {
		s.terminated = true
		defer close(s.done)
	}
	switch typ {
	case "delta", "clarification", "script":
		s.sawDelta = true
	}
	fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", typ, payload)
	if s.flusher != nil {
		s.flusher.Flush()
	}
	s.lastActivity = time.Now()
}

// Heartbeat 周期性发 SSE 注释保活，有正常事件流动时不打扰。
// 第一条正文 delta 之后客户端已经在收数据，心跳永久停掉。
// 终止事件发出后返回。
func (s *Writer) Heartbeat() {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.mu.Lock()
			if s.terminated || s.sawDelta {
				s.mu.Unlock()
				return
			}
			if time.Since(s.lastActivity) >= heartbeatIdleGap {
				fmt.Fprintf(s.w, ": ping %d\n\n", time.Now().UnixMilli())
				if s.flusher != nil {
					s.flusher.Flush()
				}
				s.lastActivity = time.Now()
			}
			s.mu.Unlock()
		}
	}
}

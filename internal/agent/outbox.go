package agent

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"tvcagent/internal/session"
)

// Outbox 收集一个回合内产生的消息，回合结束时一次性落库。
// 按内容哈希去重，避免重试路径写入重复记录。
type Outbox struct {
	messages []session.Message
	seen     map[string]struct{}
}

func NewOutbox() *Outbox {
	return &Outbox{seen: map[string]struct{}{}}
}

func messageKey(m session.Message) string {
	h := sha256.New()
	h.Write([]byte(m.Role))
	h.Write([]byte{0})
	h.Write([]byte(m.Content))
	h.Write([]byte{0})
	h.Write([]byte(m.ToolCallID))
	for _, tc := range m.ToolCalls {
		h.Write([]byte{0})
		h.Write([]byte(tc.ID))
		h.Write([]byte(tc.Name))
		h.Write([]byte(tc.Arguments))
	}
	return hex.EncodeToString(h.Sum(nil))
}

func (o *Outbox) Add(m session.Message) {
	key := messageKey(m)
	if _, ok := o.seen[key]; ok {
		return
	}
	o.seen[key] = struct{}{}
	o.messages = append(o.messages, m)
}

func (o *Outbox) AddUser(content string) {
	o.Add(session.Message{Role: "user", Content: content})
}

func (o *Outbox) AddAssistant(content string, toolCalls []session.ToolCall) {
	o.Add(session.Message{Role: "assistant", Content: content, ToolCalls: toolCalls})
}

func (o *Outbox) AddTool(name, toolCallID, content string) {
	o.Add(session.Message{Role: "tool", Name: name, ToolCallID: toolCallID, Content: content})
}

func (o *Outbox) Messages() []session.Message {
	return o.messages
}

func (o *Outbox) Flush(ctx context.Context, store *session.Store, sessionID string) error {
	if len(o.messages) == 0 {
		return nil
	}
	return store.AppendMessages(ctx, sessionID, o.messages)
}

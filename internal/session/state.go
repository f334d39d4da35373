package session

import (
	"time"

	"tvcagent/internal/assets"
)

// State 会话状态文档，整体以 JSON 存入 sqlite。
// 时间戳用毫秒 epoch，和前端约定一致。
type State struct {
	CurrentStep   int             `json:"currentStep"`
	ProductImages []string        `json:"productImages"`
	Assets        assets.Registry `json:"assets"`
	ActiveSkill   string          `json:"activeSkill,omitempty"`
	CreatedAt     int64           `json:"createdAt"`
	UpdatedAt     int64           `json:"updatedAt"`
}

func NewState() State {
	now := time.Now().UnixMilli()
	return State{
		CurrentStep:   0,
		ProductImages: []string{},
		Assets:        assets.NewRegistry(),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Normalize 修复历史数据：越界的 currentStep、残缺的资产表
func (s State) Normalize() State {
	if s.CurrentStep < 0 {
		s.CurrentStep = 0
	}
	if s.CurrentStep > 5 {
		s.CurrentStep = 5
	}
	if s.ProductImages == nil {
		s.ProductImages = []string{}
	}
	s.Assets = s.Assets.Normalize()
	if s.CreatedAt == 0 {
		s.CreatedAt = time.Now().UnixMilli()
	}
	if s.UpdatedAt == 0 {
		s.UpdatedAt = s.CreatedAt
	}
	return s
}

func (s State) Touched() State {
	s.UpdatedAt = time.Now().UnixMilli()
	return s
}

// ToolCall 持久化的模型工具调用记录
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Message 会话消息，role 取 system/user/assistant/tool
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	Name       string     `json:"name,omitempty"`
	ToolCallID string     `json:"toolCallId,omitempty"`
	ToolCalls  []ToolCall `json:"toolCalls,omitempty"`
}

// Snapshot 某一步执行后的画布产物
type Snapshot struct {
	StepID      int    `json:"stepId"`
	StepXML     string `json:"stepXml"`
	ResponseXML string `json:"responseXml"`
}

// StoryContext 一次执行所需的会话上下文合集
type StoryContext struct {
	SessionID      string
	RecentMessages []Message
	StepsByID      map[int]Snapshot
	State          State
}

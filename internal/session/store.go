package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Store sqlite 会话存储：状态文档、分步快照、消息历史。
// 同一会话的回合通过 LockSession 串行化，避免并发写丢更新。
type Store struct {
	db *sql.DB

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db, locks: map[string]*sync.Mutex{}}
}

// LockSession 锁住整个回合，返回解锁函数
func (s *Store) LockSession(sessionID string) func() {
	s.mu.Lock()
	l, ok := s.locks[sessionID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[sessionID] = l
	}
	s.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// LoadState 不存在时返回全新状态
func (s *Store) LoadState(ctx context.Context, sessionID string) (State, error) {
	var doc string
	err := s.db.QueryRowContext(ctx,
		`SELECT doc FROM session_states WHERE session_id = ?`, sessionID).Scan(&doc)
	if err == sql.ErrNoRows {
		return NewState(), nil
	}
	if err != nil {
		return State{}, fmt.Errorf("load state: %w", err)
	}
	var st State
	if err := json.Unmarshal([]byte(doc), &st); err != nil {
		// 文档损坏按新会话处理，不让一条坏数据卡死整个会话
		return NewState(), nil
	}
	return st.Normalize(), nil
}

func (s *Store) SaveState(ctx context.Context, sessionID string, st State) error {
	doc, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO session_states (session_id, doc, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET doc = excluded.doc, updated_at = excluded.updated_at`,
		sessionID, string(doc), now)
	if err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}

func (s *Store) SaveStepSnapshot(ctx context.Context, sessionID string, snap Snapshot) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO step_snapshots (session_id, step_id, step_xml, response_xml, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		sessionID, snap.StepID, snap.StepXML, snap.ResponseXML, now)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// StepSnapshots 每步只取最新一份快照
func (s *Store) StepSnapshots(ctx context.Context, sessionID string) (map[int]Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT step_id, step_xml, response_xml FROM step_snapshots
		WHERE id IN (
			SELECT MAX(id) FROM step_snapshots WHERE session_id = ? GROUP BY step_id
		)`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load snapshots: %w", err)
	}
	defer rows.Close()

	out := map[int]Snapshot{}
	for rows.Next() {
		var snap Snapshot
		if err := rows.Scan(&snap.StepID, &snap.StepXML, &snap.ResponseXML); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		out[snap.StepID] = snap
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}
	return out, nil
}

func (s *Store) AppendMessages(ctx context.Context, sessionID string, msgs []Message) error {
	if len(msgs) == 0 {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, m := range msgs {
		payload := ""
		if m.Name != "" || m.ToolCallID != "" || len(m.ToolCalls) > 0 {
			b, err := json.Marshal(m)
			if err != nil {
				return fmt.Errorf("marshal message: %w", err)
			}
			payload = string(b)
		}
		if _, err := s.db.ExecContext(ctx, `
			INSERT INTO messages (session_id, role, content, payload, created_at)
			VALUES (?, ?, ?, ?, ?)`,
			sessionID, m.Role, m.Content, payload, now); err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
	}
	return nil
}

// RecentMessages 取末尾 limit 条，按时间正序返回
func (s *Store) RecentMessages(ctx context.Context, sessionID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT role, content, payload FROM (
			SELECT id, role, content, payload FROM messages
			WHERE session_id = ? ORDER BY id DESC LIMIT ?
		) ORDER BY id ASC`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var role, content, payload string
		if err := rows.Scan(&role, &content, &payload); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m := Message{Role: role, Content: content}
		if payload != "" {
			if err := json.Unmarshal([]byte(payload), &m); err == nil {
				m.Role, m.Content = role, content
			}
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return out, nil
}

// LoadContext 聚合一次执行需要的全部会话上下文
func (s *Store) LoadContext(ctx context.Context, sessionID string, historyWindow int) (StoryContext, error) {
	st, err := s.LoadState(ctx, sessionID)
	if err != nil {
		return StoryContext{}, err
	}
	snaps, err := s.StepSnapshots(ctx, sessionID)
	if err != nil {
		return StoryContext{}, err
	}
	msgs, err := s.RecentMessages(ctx, sessionID, historyWindow)
	if err != nil {
		return StoryContext{}, err
	}
	return StoryContext{
		SessionID:      sessionID,
		RecentMessages: msgs,
		StepsByID:      snaps,
		State:          st,
	}, nil
}

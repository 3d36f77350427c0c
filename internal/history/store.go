// 本文件用于告警历史的 SQLite 持久化存储
// 只记录告警决策 访问日志本身从不落盘

package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	_ "modernc.org/sqlite"

	"bluegreen-watch/internal/alert"
	"bluegreen-watch/internal/logger"
)

const (
	timeLayout   = "2006-01-02T15:04:05.000000000Z07:00" // 定长便于按字符串排序
	defaultLimit = 50
	maxLimit     = 500
	writeTimeout = 3 * time.Second
)

// Detail 表示告警的结构化上下文
type Detail struct {
	Reason string  `json:"reason,omitempty"`
	From   string  `json:"from,omitempty"`
	To     string  `json:"to,omitempty"`
	Rate   float64 `json:"rate,omitempty"`
	Errors int     `json:"errors,omitempty"`
	Total  int     `json:"total,omitempty"`
}

// Entry 表示一条告警历史
type Entry struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Level     string    `json:"level"`
	Status    string    `json:"status"`
	Message   string    `json:"message"`
	Detail    Detail    `json:"detail"`
	CreatedAt time.Time `json:"createdAt"`
}

// Store 告警历史存储
type Store struct {
	mu     sync.Mutex
	db     *sql.DB
	dbPath string
}

// Open 打开或创建历史库 目录不存在时自动创建
func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("告警历史路径为空")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("创建告警历史目录失败: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("打开告警历史库失败: %w", err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL;`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("设置告警历史库 WAL 失败: %w", err)
	}
	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db, dbPath: path}, nil
}

// Path 返回数据库文件路径
func (s *Store) Path() string {
	if s == nil {
		return ""
	}
	return s.dbPath
}

// Close 关闭数据库
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// RecordDecision 写入一条告警决策 失败只记录日志不影响检测
func (s *Store) RecordDecision(decision alert.Decision) {
	if s == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := s.Record(ctx, entryFromDecision(decision)); err != nil {
		logger.Error("写入告警历史失败: id=%s err=%v", decision.ID, err)
	}
}

// Record 写入一条告警历史
func (s *Store) Record(ctx context.Context, entry Entry) error {
	if s == nil || s.db == nil {
		return nil
	}
	detail, err := json.Marshal(entry.Detail)
	if err != nil {
		return fmt.Errorf("编码告警详情失败: %w", err)
	}
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO alert_history (id, kind, level, status, message, detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			detail = excluded.detail
	`,
		entry.ID,
		entry.Kind,
		entry.Level,
		entry.Status,
		entry.Message,
		string(detail),
		createdAt.UTC().Format(timeLayout),
	)
	return err
}

// Recent 按时间倒序返回最近的告警历史 limit 超出范围时取默认值或上限
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, level, status, message, detail, created_at
		FROM alert_history
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Entry, 0, limit)
	for rows.Next() {
		var (
			item      Entry
			detail    string
			createdAt string
		)
		if err := rows.Scan(&item.ID, &item.Kind, &item.Level, &item.Status, &item.Message, &detail, &createdAt); err != nil {
			return nil, err
		}
		if detail != "" {
			// 历史中损坏的详情按空处理 不影响其余字段
			_ = json.Unmarshal([]byte(detail), &item.Detail)
		}
		item.CreatedAt = parseTime(createdAt)
		out = append(out, item)
	}
	return out, rows.Err()
}

func entryFromDecision(decision alert.Decision) Entry {
	entry := Entry{
		ID:        decision.ID,
		Kind:      string(decision.Kind),
		Level:     string(decision.Level),
		Status:    string(decision.Status),
		Message:   decision.Message,
		CreatedAt: decision.At,
		Detail: Detail{
			Reason: decision.Reason,
			Rate:   decision.Rate,
			Errors: decision.Errors,
			Total:  decision.Total,
		},
	}
	if decision.Failover != nil {
		entry.Detail.From = decision.Failover.From
		entry.Detail.To = decision.Failover.To
	}
	return entry
}

func migrate(db *sql.DB) error {
	// 迁移语句保持幂等 重启时重复执行不会破坏现有数据
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS alert_history (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			level TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			message TEXT NOT NULL DEFAULT '',
			detail TEXT NOT NULL DEFAULT '{}',
			created_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_alert_history_created
			ON alert_history(created_at DESC);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("迁移告警历史库失败: %w", err)
		}
	}
	return nil
}

func parseTime(raw string) time.Time {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return time.Time{}
	}
	if t, err := time.Parse(timeLayout, trimmed); err == nil {
		return t.UTC()
	}
	return time.Time{}
}

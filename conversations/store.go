package conversations

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
)

// Store is the SQLite conversation backend. The schema lives in the
// migrations package.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore creates a store on an already migrated database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// Create inserts a conversation and its seed messages in one transaction.
func (s *Store) Create(ctx context.Context, req CreateRequest) (*Conversation, error) {
	if req.UserID == "" {
		return nil, fmt.Errorf("userId is required")
	}
	now := s.now().UTC()
	conv := &Conversation{
		ID:        uuid.NewString(),
		UserID:    req.UserID,
		Title:     req.Title,
		LastLLM:   req.LastLLM,
		CreatedAt: now,
		UpdatedAt: now,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // No-op after commit

	queryStr, args, err := sq.Insert("conversations").
		Columns("id", "user_id", "title", "last_llm", "created_at", "updated_at").
		Values(conv.ID, conv.UserID, conv.Title, conv.LastLLM, now.UnixMilli(), now.UnixMilli()).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	if _, err := tx.ExecContext(ctx, queryStr, args...); err != nil {
		return nil, fmt.Errorf("insert conversation: %w", err)
	}

	for i, msg := range req.Messages {
		if _, err := insertMessage(ctx, tx, conv.ID, i, msg, now); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return conv, nil
}

func insertMessage(ctx context.Context, db execer, conversationID string, seq int, msg NewMessage, now time.Time) (*StoredMessage, error) {
	content, err := json.Marshal(msg.Content)
	if err != nil {
		return nil, fmt.Errorf("marshal content: %w", err)
	}
	var toolResults interface{}
	if len(msg.ToolResults) > 0 {
		data, err := json.Marshal(msg.ToolResults)
		if err != nil {
			return nil, fmt.Errorf("marshal tool results: %w", err)
		}
		toolResults = string(data)
	}
	var provider interface{}
	if msg.LLMProvider != nil {
		provider = *msg.LLMProvider
	}

	stored := &StoredMessage{ID: uuid.NewString(), NewMessage: msg, CreatedAt: now}
	queryStr, args, err := sq.Insert("messages").
		Columns("id", "conversation_id", "seq", "role", "content", "llm_provider", "tool_results", "created_at").
		Values(stored.ID, conversationID, seq, msg.Role, string(content), provider, toolResults, now.UnixMilli()).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	if _, err := db.ExecContext(ctx, queryStr, args...); err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	return stored, nil
}

// AppendMessage adds a message at the end of a conversation.
func (s *Store) AppendMessage(ctx context.Context, id string, msg NewMessage) (*StoredMessage, error) {
	now := s.now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // No-op after commit

	if err := touch(ctx, tx, id, sq.Eq{}, now); err != nil {
		return nil, err
	}

	var next int
	queryStr, args, err := sq.Select("COALESCE(MAX(seq) + 1, 0)").
		From("messages").
		Where(sq.Eq{"conversation_id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	if err := tx.QueryRowContext(ctx, queryStr, args...).Scan(&next); err != nil {
		return nil, fmt.Errorf("next sequence: %w", err)
	}

	stored, err := insertMessage(ctx, tx, id, next, msg, now)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return stored, nil
}

// touch bumps updated_at and applies extra column changes, reporting
// ErrNotFound when the conversation does not exist.
func touch(ctx context.Context, db execer, id string, set sq.Eq, now time.Time) error {
	query := sq.Update("conversations").
		Set("updated_at", now.UnixMilli()).
		Where(sq.Eq{"id": id})
	for column, value := range set {
		query = query.Set(column, value)
	}
	queryStr, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	res, err := db.ExecContext(ctx, queryStr, args...)
	if err != nil {
		return fmt.Errorf("update conversation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Update patches a conversation's title and last provider.
func (s *Store) Update(ctx context.Context, id string, req UpdateRequest) (*Conversation, error) {
	set := sq.Eq{}
	if req.Title != nil {
		set["title"] = *req.Title
	}
	if req.LastLLM != nil {
		set["last_llm"] = *req.LastLLM
	}
	if err := touch(ctx, s.db, id, set, s.now().UTC()); err != nil {
		return nil, err
	}
	return s.conversation(ctx, id)
}

func (s *Store) conversation(ctx context.Context, id string) (*Conversation, error) {
	queryStr, args, err := sq.Select("id", "user_id", "title", "last_llm", "created_at", "updated_at").
		From("conversations").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var (
		conv             Conversation
		created, updated int64
	)
	err = s.db.QueryRowContext(ctx, queryStr, args...).
		Scan(&conv.ID, &conv.UserID, &conv.Title, &conv.LastLLM, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query conversation: %w", err)
	}
	conv.CreatedAt = time.UnixMilli(created).UTC()
	conv.UpdatedAt = time.UnixMilli(updated).UTC()
	return &conv, nil
}

// Get returns a conversation with its messages in insertion order.
func (s *Store) Get(ctx context.Context, id string) (*Detail, error) {
	conv, err := s.conversation(ctx, id)
	if err != nil {
		return nil, err
	}

	queryStr, args, err := sq.Select("id", "role", "content", "llm_provider", "tool_results", "created_at").
		From("messages").
		Where(sq.Eq{"conversation_id": id}).
		OrderBy("seq ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, queryStr, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close() //nolint:errcheck // No remedy for rows close errors

	detail := &Detail{Conversation: *conv, Messages: []StoredMessage{}}
	for rows.Next() {
		var (
			msg         StoredMessage
			content     string
			provider    sql.NullString
			toolResults sql.NullString
			created     int64
		)
		if err := rows.Scan(&msg.ID, &msg.Role, &content, &provider, &toolResults, &created); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if err := json.Unmarshal([]byte(content), &msg.Content); err != nil {
			return nil, fmt.Errorf("decode content of message %s: %w", msg.ID, err)
		}
		if provider.Valid {
			p := provider.String
			msg.LLMProvider = &p
		}
		if toolResults.Valid {
			if err := json.Unmarshal([]byte(toolResults.String), &msg.ToolResults); err != nil {
				return nil, fmt.Errorf("decode tool results of message %s: %w", msg.ID, err)
			}
		}
		msg.CreatedAt = time.UnixMilli(created).UTC()
		detail.Messages = append(detail.Messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return detail, nil
}

// List returns a user's conversations with message counts, most recently
// updated first.
func (s *Store) List(ctx context.Context, userID string) ([]Summary, error) {
	queryStr, args, err := sq.Select("c.id", "c.user_id", "c.title", "c.last_llm", "c.created_at", "c.updated_at", "COUNT(m.id)").
		From("conversations c").
		LeftJoin("messages m ON m.conversation_id = c.id").
		Where(sq.Eq{"c.user_id": userID}).
		GroupBy("c.id").
		OrderBy("c.updated_at DESC", "c.created_at DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, queryStr, args...)
	if err != nil {
		return nil, fmt.Errorf("query conversations: %w", err)
	}
	defer rows.Close() //nolint:errcheck // No remedy for rows close errors

	out := []Summary{}
	for rows.Next() {
		var (
			sum              Summary
			created, updated int64
		)
		if err := rows.Scan(&sum.ID, &sum.UserID, &sum.Title, &sum.LastLLM, &created, &updated, &sum.MessageCount); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		sum.CreatedAt = time.UnixMilli(created).UTC()
		sum.UpdatedAt = time.UnixMilli(updated).UTC()
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversations: %w", err)
	}
	return out, nil
}

// Delete removes a conversation and its messages.
func (s *Store) Delete(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // No-op after commit

	queryStr, args, err := sq.Delete("messages").Where(sq.Eq{"conversation_id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	if _, err := tx.ExecContext(ctx, queryStr, args...); err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}

	queryStr, args, err = sq.Delete("conversations").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	res, err := tx.ExecContext(ctx, queryStr, args...)
	if err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}

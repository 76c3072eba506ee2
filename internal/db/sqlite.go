package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/RichardoC/docchat/internal/models"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrInvalidRole          = errors.New("invalid message role")
)

// Timestamps are stored as unix nanoseconds so ordering never depends on
// string formatting. seq breaks ties in insertion order.
const schema = `
CREATE TABLE IF NOT EXISTS conversations (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT NOT NULL UNIQUE,
    owner_id TEXT NOT NULL,
    title TEXT NOT NULL,
    created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_conversations_owner
    ON conversations (owner_id, created_at);

CREATE TABLE IF NOT EXISTS messages (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT NOT NULL UNIQUE,
    conversation_id TEXT NOT NULL,
    role TEXT NOT NULL CHECK (role IN ('user', 'model')),
    content TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    FOREIGN KEY (conversation_id) REFERENCES conversations(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_messages_conversation
    ON messages (conversation_id, created_at, seq);`

type Database struct {
	db  *sql.DB
	now func() time.Time
}

func New(dbPath string) (*Database, error) {
	db, err := sql.Open("sqlite3", dsn(dbPath))
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}

	return &Database{db: db, now: time.Now}, nil
}

// dsn turns a file path into a connection string with foreign keys enforced.
// Write transactions take the lock up front so concurrent turns wait on the
// busy timeout instead of failing on lock upgrade.
func dsn(dbPath string) string {
	sep := "?"
	if strings.Contains(dbPath, "?") {
		sep = "&"
	}
	return "file:" + dbPath + sep + "_foreign_keys=on&_busy_timeout=5000&_txlock=immediate"
}

func (db *Database) Close() error {
	return db.db.Close()
}

func (db *Database) Ping(ctx context.Context) error {
	return db.db.PingContext(ctx)
}

func (db *Database) CreateConversation(ctx context.Context, ownerID, title string) (*models.Conversation, error) {
	conv := &models.Conversation{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Title:     title,
		CreatedAt: db.now().UTC(),
	}

	_, err := db.db.ExecContext(ctx, `
        INSERT INTO conversations (id, owner_id, title, created_at)
        VALUES (?, ?, ?, ?)`,
		conv.ID, conv.OwnerID, conv.Title, conv.CreatedAt.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("insert conversation: %w", err)
	}
	return conv, nil
}

// AppendMessage stores a message at the end of a conversation. The timestamp
// never goes backwards relative to messages already stored in it.
func (db *Database) AppendMessage(ctx context.Context, conversationID string, role models.Role, content string) (*models.Message, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}

	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var exists bool
	err = tx.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM conversations WHERE id = ?)", conversationID).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("lookup conversation: %w", err)
	}
	if !exists {
		return nil, ErrConversationNotFound
	}

	var last int64
	err = tx.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(created_at), 0) FROM messages WHERE conversation_id = ?", conversationID).Scan(&last)
	if err != nil {
		return nil, fmt.Errorf("lookup last message: %w", err)
	}

	ts := db.now().UTC().UnixNano()
	if ts < last {
		ts = last
	}

	msg := &models.Message{
		ID:        uuid.NewString(),
		ConvID:    conversationID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Unix(0, ts).UTC(),
	}
	_, err = tx.ExecContext(ctx, `
        INSERT INTO messages (id, conversation_id, role, content, created_at)
        VALUES (?, ?, ?, ?, ?)`,
		msg.ID, msg.ConvID, string(msg.Role), msg.Content, ts)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return msg, nil
}

// ListMessages returns a conversation's messages oldest first. An unknown
// conversation yields an empty slice.
func (db *Database) ListMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	rows, err := db.db.QueryContext(ctx, `
        SELECT id, conversation_id, role, content, created_at
        FROM messages
        WHERE conversation_id = ?
        ORDER BY created_at ASC, seq ASC`, conversationID)
	if err != nil {
		return []models.Message{}, err
	}
	defer rows.Close()

	messages := make([]models.Message, 0)
	for rows.Next() {
		var (
			msg  models.Message
			role string
			ts   int64
		)
		if err := rows.Scan(&msg.ID, &msg.ConvID, &role, &msg.Content, &ts); err != nil {
			return []models.Message{}, err
		}
		msg.Role = models.Role(role)
		msg.CreatedAt = time.Unix(0, ts).UTC()
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// ListConversations returns the owner's conversations newest first.
func (db *Database) ListConversations(ctx context.Context, ownerID string) ([]models.Conversation, error) {
	rows, err := db.db.QueryContext(ctx, `
        SELECT id, owner_id, title, created_at
        FROM conversations
        WHERE owner_id = ?
        ORDER BY created_at DESC, seq DESC`, ownerID)
	if err != nil {
		return []models.Conversation{}, err
	}
	defer rows.Close()

	conversations := make([]models.Conversation, 0)
	for rows.Next() {
		var (
			conv models.Conversation
			ts   int64
		)
		if err := rows.Scan(&conv.ID, &conv.OwnerID, &conv.Title, &ts); err != nil {
			return []models.Conversation{}, err
		}
		conv.CreatedAt = time.Unix(0, ts).UTC()
		conversations = append(conversations, conv)
	}
	return conversations, rows.Err()
}

// DeleteConversation removes a conversation and all of its messages in one
// transaction.
func (db *Database) DeleteConversation(ctx context.Context, id string) error {
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM messages WHERE conversation_id = ?", id); err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx, "DELETE FROM conversations WHERE id = ?", id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrConversationNotFound
	}

	return tx.Commit()
}

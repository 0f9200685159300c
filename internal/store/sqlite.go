package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

type SQLiteStore struct {
	db      *sql.DB
	changes *Broker
}

func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	// Writers come from HTTP handlers, pollers and voice sessions at once.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db, changes: NewBroker()}
	if err = store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Changes() *Broker {
	return s.changes
}

func (s *SQLiteStore) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS chats (
        id TEXT PRIMARY KEY,
        created_at DATETIME NOT NULL
    );

    CREATE TABLE IF NOT EXISTS messages (
        id TEXT PRIMARY KEY, -- UUID
        chat_id TEXT NOT NULL,
        role TEXT NOT NULL CHECK (role IN ('user', 'assistant')),
        content TEXT NOT NULL,
        sentiment TEXT NOT NULL DEFAULT '',
        timestamp DATETIME NOT NULL,
        FOREIGN KEY (chat_id) REFERENCES chats (id)
    );
    CREATE INDEX IF NOT EXISTS idx_messages_chat_ts ON messages (chat_id, timestamp);

    CREATE TABLE IF NOT EXISTS iot_data (
        id TEXT PRIMARY KEY, -- source entry id or UUID
        timestamp DATETIME NOT NULL,
        fields_json TEXT NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_iot_data_ts ON iot_data (timestamp);

    CREATE TABLE IF NOT EXISTS plant_images (
        id TEXT PRIMARY KEY,
        url TEXT NOT NULL,
        public_id TEXT NOT NULL DEFAULT '',
        source TEXT NOT NULL,
        created_at DATETIME NOT NULL
    );
    `
	_, err := s.db.Exec(schema)
	return err
}

// Chat methods
func (s *SQLiteStore) CreateChat(ctx context.Context, id string) (*Chat, error) {
	if id == "" {
		id = uuid.NewString()
	}
	now := time.Now().UTC()
	if _, err := s.db.ExecContext(ctx, "INSERT OR IGNORE INTO chats (id, created_at) VALUES (?, ?)", id, now); err != nil {
		return nil, fmt.Errorf("failed to execute chat insert: %w", err)
	}
	return s.GetChat(ctx, id)
}

func (s *SQLiteStore) GetChat(ctx context.Context, id string) (*Chat, error) {
	var chat Chat
	err := s.db.QueryRowContext(ctx, "SELECT id, created_at FROM chats WHERE id = ?", id).Scan(&chat.ID, &chat.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get chat: %w", err)
	}
	return &chat, nil
}

// Message methods
func (s *SQLiteStore) CreateMessage(ctx context.Context, msg *Message) error {
	msg.ID = uuid.NewString() // Ensure ID is set
	msg.Timestamp = time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO messages (id, chat_id, role, content, sentiment, timestamp) VALUES (?, ?, ?, ?, ?, ?)",
		msg.ID, msg.ChatID, msg.Role, msg.Content, msg.Sentiment, msg.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to execute message insert: %w", err)
	}
	s.changes.Publish(MessagesTopic(msg.ChatID))
	return nil
}

func (s *SQLiteStore) GetMessagesByChatID(ctx context.Context, chatID string, limit int) ([]Message, error) {
	query := `
        SELECT id, chat_id, role, content, sentiment, timestamp
        FROM messages
        WHERE chat_id = ?
        ORDER BY timestamp ASC, rowid ASC
        LIMIT ?
    `
	rows, err := s.db.QueryContext(ctx, query, chatID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	messages := []Message{}
	for rows.Next() {
		var msg Message
		if err := rows.Scan(&msg.ID, &msg.ChatID, &msg.Role, &msg.Content, &msg.Sentiment, &msg.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// Telemetry methods
func (s *SQLiteStore) InsertTelemetry(ctx context.Context, rec *TelemetryRecord) (bool, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	rec.Timestamp = rec.Timestamp.UTC()

	fieldsJSON, err := json.Marshal(rec.Fields)
	if err != nil {
		return false, fmt.Errorf("failed to marshal telemetry fields: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO iot_data (id, timestamp, fields_json) VALUES (?, ?, ?)",
		rec.ID, rec.Timestamp, string(fieldsJSON))
	if err != nil {
		return false, fmt.Errorf("failed to execute telemetry insert: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return false, nil
	}
	s.changes.Publish(TopicTelemetry)
	return true, nil
}

func (s *SQLiteStore) LatestTelemetry(ctx context.Context, n int) ([]TelemetryRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, timestamp, fields_json FROM iot_data ORDER BY timestamp DESC, rowid DESC LIMIT ?", n)
	if err != nil {
		return nil, fmt.Errorf("failed to query telemetry: %w", err)
	}
	defer rows.Close()

	records := []TelemetryRecord{}
	for rows.Next() {
		var rec TelemetryRecord
		var fieldsJSON string
		if err := rows.Scan(&rec.ID, &rec.Timestamp, &fieldsJSON); err != nil {
			return nil, fmt.Errorf("failed to scan telemetry row: %w", err)
		}
		if err := json.Unmarshal([]byte(fieldsJSON), &rec.Fields); err != nil {
			return nil, fmt.Errorf("failed to unmarshal fields of telemetry %s: %w", rec.ID, err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Plant image methods
func (s *SQLiteStore) CreatePlantImage(ctx context.Context, img *PlantImage) error {
	if img.ID == "" {
		img.ID = uuid.NewString()
	}
	img.CreatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO plant_images (id, url, public_id, source, created_at) VALUES (?, ?, ?, ?, ?)",
		img.ID, img.URL, img.PublicID, img.Source, img.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to execute plant image insert: %w", err)
	}
	return nil
}

func (s *SQLiteStore) LatestPlantImage(ctx context.Context) (*PlantImage, error) {
	var img PlantImage
	err := s.db.QueryRowContext(ctx,
		"SELECT id, url, public_id, source, created_at FROM plant_images ORDER BY created_at DESC, rowid DESC LIMIT 1").
		Scan(&img.ID, &img.URL, &img.PublicID, &img.Source, &img.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest plant image: %w", err)
	}
	return &img, nil
}

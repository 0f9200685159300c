package store

import "context"

// Store is the persistence layer shared by the SQLite and MongoDB backends.
// Lookups of a single entity return (nil, nil) when it does not exist.
type Store interface {
	// CreateChat creates the chat if it does not exist yet and returns it.
	CreateChat(ctx context.Context, id string) (*Chat, error)
	GetChat(ctx context.Context, id string) (*Chat, error)

	CreateMessage(ctx context.Context, msg *Message) error
	// GetMessagesByChatID returns up to limit messages ordered by timestamp ascending.
	GetMessagesByChatID(ctx context.Context, chatID string, limit int) ([]Message, error)

	// InsertTelemetry stores rec unless a record with the same ID exists.
	// It reports whether a new record was written.
	InsertTelemetry(ctx context.Context, rec *TelemetryRecord) (bool, error)
	// LatestTelemetry returns the n newest records, newest first.
	LatestTelemetry(ctx context.Context, n int) ([]TelemetryRecord, error)

	CreatePlantImage(ctx context.Context, img *PlantImage) error
	LatestPlantImage(ctx context.Context) (*PlantImage, error)

	// Changes exposes write notifications for the collections above.
	Changes() *Broker
	Ping(ctx context.Context) error
	Close() error
}

package store

import "time"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Chat struct {
	ID        string    `json:"id" bson:"_id"` // client token or UUID
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}

type Message struct {
	ID        string    `json:"id" bson:"_id"` // Using UUID for external ID
	ChatID    string    `json:"chat_id" bson:"chat_id"`
	Role      string    `json:"role" bson:"role"` // "user" or "assistant"
	Content   string    `json:"content" bson:"content"`
	Sentiment string    `json:"sentiment,omitempty" bson:"sentiment,omitempty"`
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
}

// TelemetryRecord is a sensor document as it was ingested. Fields keeps the
// original key spelling; normalization happens when the feed reads it.
type TelemetryRecord struct {
	ID        string                 `json:"id"`
	Timestamp time.Time              `json:"timestamp"`
	Fields    map[string]interface{} `json:"fields"`
}

type PlantImage struct {
	ID        string    `json:"id" bson:"_id"`
	URL       string    `json:"url" bson:"url"`
	PublicID  string    `json:"public_id,omitempty" bson:"public_id,omitempty"`
	Source    string    `json:"source" bson:"source"` // "cloudinary", "manual"
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}

package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	chatsCollection       = "chats"
	messagesCollection    = "messages"
	telemetryCollection   = "iot_data"
	plantImagesCollection = "plant_images"
)

// MongoStore keeps the same collections as the Firestore layout the dashboard
// was designed around: iot_data documents carry their sensor fields at the top level.
type MongoStore struct {
	client  *mongo.Client
	db      *mongo.Database
	changes *Broker

	mu     sync.Mutex
	lastTS time.Time
}

func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("unable to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("unable to ping MongoDB: %w", err)
	}

	s := &MongoStore{client: client, db: client.Database(database), changes: NewBroker()}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to create indexes: %w", err)
	}
	return s, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	_, err := s.db.Collection(messagesCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "chat_id", Value: 1}, {Key: "timestamp", Value: 1}},
	})
	if err != nil {
		return err
	}
	_, err = s.db.Collection(telemetryCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "timestamp", Value: -1}},
	})
	return err
}

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

func (s *MongoStore) Changes() *Broker {
	return s.changes
}

// now returns a strictly increasing timestamp. BSON dates have millisecond
// precision, so two messages written in the same millisecond would tie.
func (s *MongoStore) now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts := time.Now().UTC().Truncate(time.Millisecond)
	if !ts.After(s.lastTS) {
		ts = s.lastTS.Add(time.Millisecond)
	}
	s.lastTS = ts
	return ts
}

func (s *MongoStore) CreateChat(ctx context.Context, id string) (*Chat, error) {
	if id == "" {
		id = uuid.NewString()
	}
	_, err := s.db.Collection(chatsCollection).UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$setOnInsert": bson.M{"created_at": s.now()}},
		options.Update().SetUpsert(true))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert chat: %w", err)
	}
	return s.GetChat(ctx, id)
}

func (s *MongoStore) GetChat(ctx context.Context, id string) (*Chat, error) {
	var chat Chat
	err := s.db.Collection(chatsCollection).FindOne(ctx, bson.M{"_id": id}).Decode(&chat)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get chat: %w", err)
	}
	return &chat, nil
}

func (s *MongoStore) CreateMessage(ctx context.Context, msg *Message) error {
	msg.ID = uuid.NewString()
	msg.Timestamp = s.now()
	if _, err := s.db.Collection(messagesCollection).InsertOne(ctx, msg); err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}
	s.changes.Publish(MessagesTopic(msg.ChatID))
	return nil
}

func (s *MongoStore) GetMessagesByChatID(ctx context.Context, chatID string, limit int) ([]Message, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: 1}}).
		SetLimit(int64(limit))
	cur, err := s.db.Collection(messagesCollection).Find(ctx, bson.M{"chat_id": chatID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	messages := []Message{}
	if err := cur.All(ctx, &messages); err != nil {
		return nil, fmt.Errorf("failed to decode messages: %w", err)
	}
	return messages, nil
}

func (s *MongoStore) InsertTelemetry(ctx context.Context, rec *TelemetryRecord) (bool, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	rec.Timestamp = rec.Timestamp.UTC()

	_, err := s.db.Collection(telemetryCollection).InsertOne(ctx, telemetryToDocument(rec))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to insert telemetry: %w", err)
	}
	s.changes.Publish(TopicTelemetry)
	return true, nil
}

func (s *MongoStore) LatestTelemetry(ctx context.Context, n int) ([]TelemetryRecord, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}}).
		SetLimit(int64(n))
	cur, err := s.db.Collection(telemetryCollection).Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query telemetry: %w", err)
	}
	var docs []bson.M
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode telemetry: %w", err)
	}

	records := make([]TelemetryRecord, 0, len(docs))
	for _, doc := range docs {
		records = append(records, documentToTelemetry(doc))
	}
	return records, nil
}

func (s *MongoStore) CreatePlantImage(ctx context.Context, img *PlantImage) error {
	if img.ID == "" {
		img.ID = uuid.NewString()
	}
	img.CreatedAt = s.now()
	if _, err := s.db.Collection(plantImagesCollection).InsertOne(ctx, img); err != nil {
		return fmt.Errorf("failed to insert plant image: %w", err)
	}
	return nil
}

func (s *MongoStore) LatestPlantImage(ctx context.Context) (*PlantImage, error) {
	var img PlantImage
	opts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}})
	err := s.db.Collection(plantImagesCollection).FindOne(ctx, bson.M{}, opts).Decode(&img)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest plant image: %w", err)
	}
	return &img, nil
}

func telemetryToDocument(rec *TelemetryRecord) bson.M {
	doc := bson.M{}
	for k, v := range rec.Fields {
		doc[k] = v
	}
	doc["_id"] = rec.ID
	doc["timestamp"] = rec.Timestamp
	return doc
}

func documentToTelemetry(doc bson.M) TelemetryRecord {
	rec := TelemetryRecord{Fields: map[string]interface{}{}}
	for k, v := range doc {
		switch k {
		case "_id":
			rec.ID = fmt.Sprint(v)
		case "timestamp":
			switch ts := v.(type) {
			case time.Time:
				rec.Timestamp = ts.UTC()
			case interface{ Time() time.Time }: // primitive.DateTime
				rec.Timestamp = ts.Time().UTC()
			}
		default:
			rec.Fields[k] = v
		}
	}
	return rec
}

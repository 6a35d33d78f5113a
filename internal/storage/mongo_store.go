package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoConfig contains connection settings for MongoDB save store.
type MongoConfig struct {
	URI        string // e.g. mongodb://localhost:27017
	Database   string // e.g. voxel
	Collection string // e.g. saves
}

type mongoSave struct {
	Slot      string `bson:"_id"`
	Data      []byte `bson:"data"`
	UpdatedAt int64  `bson:"updated_at"`
}

// MongoStore implements SaveStore on MongoDB backend.
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// NewMongoStore establishes connection and returns the store.
func NewMongoStore(ctx context.Context, cfg MongoConfig) (*MongoStore, error) {
	if cfg.URI == "" {
		cfg.URI = "mongodb://localhost:27017"
	}
	if cfg.Database == "" {
		cfg.Database = "voxel"
	}
	if cfg.Collection == "" {
		cfg.Collection = "saves"
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	// ping
	if err := client.Ping(connectCtx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}

	return &MongoStore{
		client:     client,
		collection: client.Database(cfg.Database).Collection(cfg.Collection),
	}, nil
}

// Save upserts the slot document.
func (s *MongoStore) Save(ctx context.Context, slot string, data []byte) error {
	if err := ValidateSlot(slot); err != nil {
		return err
	}

	doc := mongoSave{Slot: slot, Data: data, UpdatedAt: time.Now().UnixMilli()}
	_, err := s.collection.ReplaceOne(ctx, bson.M{"_id": slot}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("ошибка сохранения слота %s: %w", slot, err)
	}
	return nil
}

// Load reads the slot document.
func (s *MongoStore) Load(ctx context.Context, slot string) ([]byte, error) {
	if err := ValidateSlot(slot); err != nil {
		return nil, err
	}

	var doc mongoSave
	err := s.collection.FindOne(ctx, bson.M{"_id": slot}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrSaveNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка загрузки слота %s: %w", slot, err)
	}
	return doc.Data, nil
}

// Delete removes the slot document.
func (s *MongoStore) Delete(ctx context.Context, slot string) error {
	if err := ValidateSlot(slot); err != nil {
		return err
	}
	if _, err := s.collection.DeleteOne(ctx, bson.M{"_id": slot}); err != nil {
		return fmt.Errorf("ошибка удаления слота %s: %w", slot, err)
	}
	return nil
}

// List returns slot ids sorted ascending.
func (s *MongoStore) List(ctx context.Context) ([]string, error) {
	opts := options.Find().SetProjection(bson.M{"_id": 1}).SetSort(bson.D{{Key: "_id", Value: 1}})
	cur, err := s.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("ошибка перечисления слотов: %w", err)
	}
	defer cur.Close(ctx)

	var names []string
	for cur.Next(ctx) {
		var doc struct {
			Slot string `bson:"_id"`
		}
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		names = append(names, doc.Slot)
	}
	return names, cur.Err()
}

// Close disconnects the client.
func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

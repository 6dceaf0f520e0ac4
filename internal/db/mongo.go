package db

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ernestzhang-11/StreamForge/internal/config"
	"github.com/ernestzhang-11/StreamForge/internal/logging"
	"github.com/ernestzhang-11/StreamForge/internal/models"
)

// HistoryStore records per-item ingestion outcomes in MongoDB.
type HistoryStore struct {
	client  *mongo.Client
	history *mongo.Collection
	log     logging.Logger
}

func NewHistoryStore(cfg config.DBConfig, log logging.Logger) (*HistoryStore, error) {
	if log == nil {
		log = logging.Nop()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.Connection))
	if err != nil {
		return nil, errors.Wrap(err, "connect to MongoDB")
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, errors.Wrap(err, "ping MongoDB")
	}

	s := &HistoryStore{
		client:  client,
		history: client.Database(cfg.Database).Collection(cfg.Collections.History),
		log:     log,
	}
	s.createIndexes()
	return s, nil
}

func (s *HistoryStore) createIndexes() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "source", Value: 1}, {Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "external_id", Value: 1}}},
		{Keys: bson.D{{Key: "timestamp", Value: -1}}},
	}
	if _, err := s.history.Indexes().CreateMany(ctx, indexes); err != nil {
		s.log.Warn(ctx, "history index creation failed", "err", err)
	}
}

// NewHistory fills id and timestamp for an outcome.
func NewHistory(runID, source, url, externalID, status, errMsg string, took time.Duration) *models.IngestHistory {
	return &models.IngestHistory{
		ID:           uuid.NewString(),
		RunID:        runID,
		Source:       source,
		URL:          url,
		ExternalID:   externalID,
		Status:       status,
		ErrorMessage: errMsg,
		Duration:     took.Milliseconds(),
		Timestamp:    time.Now().Unix(),
	}
}

func (s *HistoryStore) SaveHistory(ctx context.Context, h *models.IngestHistory) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := s.history.InsertOne(ctx, h)
	return errors.Wrap(err, "insert history")
}

// LastStatus returns the most recent outcome recorded for an external id, or
// nil when there is none.
func (s *HistoryStore) LastStatus(ctx context.Context, externalID string) (*models.IngestHistory, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	opts := options.FindOne().SetSort(bson.D{{Key: "timestamp", Value: -1}})
	var h models.IngestHistory
	err := s.history.FindOne(ctx, bson.M{"external_id": externalID}, opts).Decode(&h)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "find history")
	}
	return &h, nil
}

// SourceStats counts outcomes by status for one source.
func (s *HistoryStore) SourceStats(ctx context.Context, source string) (map[string]int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pipeline := mongo.Pipeline{
		bson.D{{Key: "$match", Value: bson.D{{Key: "source", Value: source}}}},
		bson.D{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$status"},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
	}

	cursor, err := s.history.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, errors.Wrap(err, "aggregate history")
	}
	defer cursor.Close(ctx)

	var rows []struct {
		Status string `bson:"_id"`
		Count  int64  `bson:"count"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, errors.Wrap(err, "decode stats")
	}

	stats := make(map[string]int64, len(rows))
	for _, r := range rows {
		stats[r.Status] = r.Count
	}
	return stats, nil
}

func (s *HistoryStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

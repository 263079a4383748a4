// Package mongo persists playback positions in MongoDB.
package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"streamcast/internal/domain"
)

type positionDoc struct {
	ID        string  `bson:"_id"`
	Title     string  `bson:"title,omitempty"`
	Position  float64 `bson:"position"`
	Duration  float64 `bson:"duration"`
	UpdatedAt int64   `bson:"updatedAt"`
}

type PositionRepository struct {
	collection *mongo.Collection
}

func NewPositionRepository(client *mongo.Client, dbName string) *PositionRepository {
	return &PositionRepository{collection: client.Database(dbName).Collection("playback_positions")}
}

func Connect(ctx context.Context, uri string, extra ...*options.ClientOptions) (*mongo.Client, error) {
	opts := append([]*options.ClientOptions{options.Client().ApplyURI(uri)}, extra...)
	client, err := mongo.Connect(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return client, nil
}

func (r *PositionRepository) EnsureIndexes(ctx context.Context) error {
	if r == nil || r.collection == nil {
		return nil
	}
	models := []mongo.IndexModel{
		{Keys: bson.D{{Key: "updatedAt", Value: -1}}},
	}
	_, err := r.collection.Indexes().CreateMany(ctx, models)
	return err
}

func (r *PositionRepository) Upsert(ctx context.Context, p domain.PlaybackPosition) error {
	update := bson.M{
		"$set": bson.M{
			"title":     p.Title,
			"position":  p.Position,
			"duration":  p.Duration,
			"updatedAt": time.Now().Unix(),
		},
	}
	_, err := r.collection.UpdateOne(
		ctx,
		bson.M{"_id": p.ContentID},
		update,
		options.Update().SetUpsert(true),
	)
	return err
}

func (r *PositionRepository) Get(ctx context.Context, contentID string) (domain.PlaybackPosition, error) {
	var doc positionDoc
	err := r.collection.FindOne(ctx, bson.M{"_id": contentID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.PlaybackPosition{}, domain.ErrNotFound
		}
		return domain.PlaybackPosition{}, err
	}
	return docToPosition(doc), nil
}

func (r *PositionRepository) ListRecent(ctx context.Context, limit int) ([]domain.PlaybackPosition, error) {
	if limit <= 0 {
		limit = 20
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "updatedAt", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []positionDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}

	positions := make([]domain.PlaybackPosition, 0, len(docs))
	for _, doc := range docs {
		positions = append(positions, docToPosition(doc))
	}
	return positions, nil
}

func (r *PositionRepository) Delete(ctx context.Context, contentID string) error {
	res, err := r.collection.DeleteOne(ctx, bson.M{"_id": contentID})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func docToPosition(doc positionDoc) domain.PlaybackPosition {
	return domain.PlaybackPosition{
		ContentID: doc.ID,
		Title:     doc.Title,
		Position:  doc.Position,
		Duration:  doc.Duration,
		UpdatedAt: time.Unix(doc.UpdatedAt, 0).UTC(),
	}
}

package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"clipboard-service/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var ErrClipboardNotFound = errors.New("clipboard not found")

type ClipboardRepository struct {
	collection *mongo.Collection
}

func NewClipboardRepository(db *mongo.Database) *ClipboardRepository {
	return &ClipboardRepository{
		collection: db.Collection("clipboards"),
	}
}

// ClipboardUpdate carries the mutable entry fields; nil means unchanged.
type ClipboardUpdate struct {
	Title    *string
	Content  *string
	Password *string
	ExpireAt *time.Time
	ReadOnly *bool
	Favorite *bool
}

func (r *ClipboardRepository) Create(ctx context.Context, clip *models.Clipboard) error {
	now := time.Now()
	clip.CreatedAt = now
	clip.UpdatedAt = now
	if clip.Files == nil {
		clip.Files = []string{}
	}

	result, err := r.collection.InsertOne(ctx, clip)
	if err != nil {
		return fmt.Errorf("failed to insert clipboard: %w", err)
	}

	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		clip.ID = oid
	}
	return nil
}

func (r *ClipboardRepository) GetByID(ctx context.Context, id string) (*models.Clipboard, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrClipboardNotFound
	}

	var clip models.Clipboard
	err = r.collection.FindOne(ctx, bson.M{"_id": oid}).Decode(&clip)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrClipboardNotFound
		}
		return nil, fmt.Errorf("failed to fetch clipboard: %w", err)
	}

	return &clip, nil
}

// List returns the entries visible to ownerID matching search, newest first,
// with the total match count for pagination.
func (r *ClipboardRepository) List(ctx context.Context, ownerID, search string, page, limit int64) ([]models.Clipboard, int64, error) {
	owner, err := primitive.ObjectIDFromHex(ownerID)
	if err != nil {
		return nil, 0, fmt.Errorf("invalid owner id: %w", err)
	}

	filter := bson.M{"owner": owner}
	if search != "" {
		filter = bson.M{
			"owner": owner,
			"$or": []bson.M{
				{"title": bson.M{"$regex": search, "$options": "i"}},
				{"content": bson.M{"$regex": search, "$options": "i"}},
			},
		}
	}

	total, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count clipboards: %w", err)
	}

	if page < 1 {
		page = 1
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "updatedAt", Value: -1}}).
		SetSkip((page - 1) * limit).
		SetLimit(limit)

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list clipboards: %w", err)
	}
	defer cursor.Close(ctx)

	var entries []models.Clipboard
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, 0, fmt.Errorf("failed to decode clipboards: %w", err)
	}

	return entries, total, nil
}

func (r *ClipboardRepository) Update(ctx context.Context, id string, update ClipboardUpdate) (*models.Clipboard, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrClipboardNotFound
	}

	set := bson.M{"updatedAt": time.Now()}
	unset := bson.M{}
	if update.Title != nil {
		set["title"] = *update.Title
	}
	if update.Content != nil {
		set["content"] = *update.Content
	}
	if update.Password != nil {
		if *update.Password == "" {
			unset["password"] = ""
		} else {
			set["password"] = *update.Password
		}
	}
	if update.ExpireAt != nil {
		set["expireAt"] = *update.ExpireAt
	}
	if update.ReadOnly != nil {
		set["readOnly"] = *update.ReadOnly
	}
	if update.Favorite != nil {
		set["favorite"] = *update.Favorite
	}

	change := bson.M{"$set": set}
	if len(unset) > 0 {
		change["$unset"] = unset
	}

	var clip models.Clipboard
	err = r.collection.FindOneAndUpdate(
		ctx,
		bson.M{"_id": oid},
		change,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&clip)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrClipboardNotFound
		}
		return nil, fmt.Errorf("failed to update clipboard: %w", err)
	}

	return &clip, nil
}

// AddFile appends a stored file URL to the entry's file list.
func (r *ClipboardRepository) AddFile(ctx context.Context, id, fileURL string) (*models.Clipboard, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrClipboardNotFound
	}

	var clip models.Clipboard
	err = r.collection.FindOneAndUpdate(
		ctx,
		bson.M{"_id": oid},
		bson.M{
			"$push": bson.M{"files": fileURL},
			"$set":  bson.M{"updatedAt": time.Now()},
		},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&clip)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrClipboardNotFound
		}
		return nil, fmt.Errorf("failed to add file: %w", err)
	}

	return &clip, nil
}

func (r *ClipboardRepository) Delete(ctx context.Context, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return ErrClipboardNotFound
	}

	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return fmt.Errorf("failed to delete clipboard: %w", err)
	}
	if result.DeletedCount == 0 {
		return ErrClipboardNotFound
	}
	return nil
}

// IncrementVisitAndFetch atomically bumps the visit counter and returns the
// updated entry. This is the only write the realtime layer performs.
func (r *ClipboardRepository) IncrementVisitAndFetch(ctx context.Context, id string) (*models.Clipboard, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrClipboardNotFound
	}

	var clip models.Clipboard
	err = r.collection.FindOneAndUpdate(
		ctx,
		bson.M{"_id": oid},
		bson.M{"$inc": bson.M{"visits": 1}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&clip)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrClipboardNotFound
		}
		return nil, fmt.Errorf("failed to increment visits: %w", err)
	}

	return &clip, nil
}

// FetchVisitCount reads the persisted visit counter.
func (r *ClipboardRepository) FetchVisitCount(ctx context.Context, id string) (int64, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return 0, ErrClipboardNotFound
	}

	var result struct {
		Visits int64 `bson:"visits"`
	}
	err = r.collection.FindOne(
		ctx,
		bson.M{"_id": oid},
		options.FindOne().SetProjection(bson.M{"visits": 1}),
	).Decode(&result)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, ErrClipboardNotFound
		}
		return 0, fmt.Errorf("failed to fetch visit count: %w", err)
	}

	return result.Visits, nil
}

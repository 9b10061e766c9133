package repository

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"wellpath/internal/model"
)

// ErrVersionConflict is returned when a write lost a race with another writer.
// The caller should reload and retry or give up.
var ErrVersionConflict = errors.New("interview was modified concurrently")

// InterviewRepo handles MongoDB operations for interviews. Every mutation is a
// compare-and-swap on Interview.Version; on success the passed interview is
// updated in place with the new version and updatedAt.
type InterviewRepo interface {
	Create(ctx context.Context, iv *model.Interview) (string, error)
	GetByID(ctx context.Context, id string) (*model.Interview, error)
	ListByOwner(ctx context.Context, owner string, limit int64) ([]*model.InterviewSummary, error)
	ListByCase(ctx context.Context, caseID string) ([]*model.InterviewSummary, error)
	SaveProgress(ctx context.Context, iv *model.Interview) error
	AppendQuestion(ctx context.Context, iv *model.Interview, q model.QuestionRecord) error
	Complete(ctx context.Context, iv *model.Interview, result *model.Conclusion) error
}

type interviewRepo struct {
	collection *mongo.Collection
}

// NewInterviewRepo creates a new interview repository
func NewInterviewRepo(db *mongo.Database) InterviewRepo {
	return &interviewRepo{
		collection: db.Collection("interviews"),
	}
}

// EnsureInterviewIndexes creates the owner and case listing indexes
func EnsureInterviewIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection("interviews").Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "owner", Value: 1}, {Key: "updatedAt", Value: -1}}},
		{Keys: bson.D{{Key: "caseId", Value: 1}, {Key: "updatedAt", Value: -1}}},
	})
	return err
}

func (r *interviewRepo) Create(ctx context.Context, iv *model.Interview) (string, error) {
	now := time.Now().UTC()
	iv.ID = ""
	iv.Version = 1
	iv.CreatedAt = now
	iv.UpdatedAt = now

	result, err := r.collection.InsertOne(ctx, iv)
	if err != nil {
		return "", err
	}

	oid, ok := result.InsertedID.(primitive.ObjectID)
	if !ok {
		return "", errors.New("unexpected inserted id type")
	}
	iv.ID = oid.Hex()
	return iv.ID, nil
}

func (r *interviewRepo) GetByID(ctx context.Context, id string) (*model.Interview, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		// Not an id we could have issued
		return nil, nil
	}

	var iv model.Interview
	err = r.collection.FindOne(ctx, bson.M{"_id": oid}).Decode(&iv)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	iv.ID = id
	return &iv, nil
}

func (r *interviewRepo) ListByOwner(ctx context.Context, owner string, limit int64) ([]*model.InterviewSummary, error) {
	return r.listSummaries(ctx, bson.M{"owner": owner}, limit)
}

func (r *interviewRepo) ListByCase(ctx context.Context, caseID string) ([]*model.InterviewSummary, error) {
	return r.listSummaries(ctx, bson.M{"caseId": caseID}, 0)
}

// listSummaries returns matching interviews newest first without their bodies
func (r *interviewRepo) listSummaries(ctx context.Context, filter bson.M, limit int64) ([]*model.InterviewSummary, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "updatedAt", Value: -1}}).
		SetProjection(bson.M{"questions": 0, "pendingQuestionSets": 0, "result": 0})
	if limit > 0 {
		opts.SetLimit(limit)
	}

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	summaries := []*model.InterviewSummary{}
	if err := cursor.All(ctx, &summaries); err != nil {
		return nil, err
	}
	return summaries, nil
}

func (r *interviewRepo) SaveProgress(ctx context.Context, iv *model.Interview) error {
	now := time.Now().UTC()
	set := bson.M{
		"questions":   iv.Questions,
		"currentPath": iv.CurrentPath,
		"updatedAt":   now,
	}
	update := bson.M{
		"$inc": bson.M{"version": 1},
	}
	if len(iv.PendingSets) == 0 {
		update["$unset"] = bson.M{"pendingQuestionSets": ""}
	} else {
		set["pendingQuestionSets"] = iv.PendingSets
	}
	update["$set"] = set

	return r.swap(ctx, iv, bson.M{"status": model.InterviewActive}, update, now)
}

func (r *interviewRepo) AppendQuestion(ctx context.Context, iv *model.Interview, q model.QuestionRecord) error {
	now := time.Now().UTC()
	update := bson.M{
		"$push": bson.M{"questions": q},
		"$set":  bson.M{"updatedAt": now},
		"$inc":  bson.M{"version": 1},
	}
	if err := r.swap(ctx, iv, bson.M{"status": model.InterviewActive}, update, now); err != nil {
		return err
	}
	iv.Questions = append(iv.Questions, q)
	return nil
}

func (r *interviewRepo) Complete(ctx context.Context, iv *model.Interview, result *model.Conclusion) error {
	now := time.Now().UTC()
	update := bson.M{
		"$set": bson.M{
			"status":    model.InterviewCompleted,
			"result":    result,
			"updatedAt": now,
		},
		"$inc": bson.M{"version": 1},
	}
	if err := r.swap(ctx, iv, bson.M{"status": model.InterviewActive}, update, now); err != nil {
		return err
	}
	iv.Status = model.InterviewCompleted
	iv.Result = result
	return nil
}

// swap applies update only if the stored version still matches iv.Version
func (r *interviewRepo) swap(ctx context.Context, iv *model.Interview, extra bson.M, update bson.M, now time.Time) error {
	oid, err := primitive.ObjectIDFromHex(iv.ID)
	if err != nil {
		return err
	}

	filter := bson.M{"_id": oid, "version": iv.Version}
	for k, v := range extra {
		filter[k] = v
	}

	res, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrVersionConflict
	}

	iv.Version++
	iv.UpdatedAt = now
	return nil
}

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

// CaseRepo handles MongoDB operations for cases
type CaseRepo interface {
	Create(ctx context.Context, c *model.Case) (string, error)
	GetByID(ctx context.Context, id string) (*model.Case, error)
	ListByOwner(ctx context.Context, owner string) ([]*model.Case, error)
	LinkInterview(ctx context.Context, caseID, interviewID string) error
	AddResult(ctx context.Context, caseID, interviewID string) error
	Update(ctx context.Context, id string, fields CaseFields) error
	SetStatus(ctx context.Context, id string, status model.CaseStatus) error
	Delete(ctx context.Context, id string) error
}

// CaseFields holds the editable case fields. Nil fields are not written.
type CaseFields struct {
	Title       *string
	Description *string
}

type caseRepo struct {
	collection *mongo.Collection
}

// NewCaseRepo creates a new case repository
func NewCaseRepo(db *mongo.Database) CaseRepo {
	return &caseRepo{
		collection: db.Collection("cases"),
	}
}

func (r *caseRepo) Create(ctx context.Context, c *model.Case) (string, error) {
	c.CreatedAt = time.Now().UTC()
	c.UpdatedAt = c.CreatedAt
	if c.Interviews == nil {
		c.Interviews = []string{}
	}
	if c.Results == nil {
		c.Results = []string{}
	}

	result, err := r.collection.InsertOne(ctx, c)
	if err != nil {
		return "", err
	}

	oid, ok := result.InsertedID.(primitive.ObjectID)
	if !ok {
		return "", errors.New("unexpected inserted id type")
	}
	c.ID = oid.Hex()
	return c.ID, nil
}

func (r *caseRepo) GetByID(ctx context.Context, id string) (*model.Case, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, nil
	}

	var c model.Case
	err = r.collection.FindOne(ctx, bson.M{"_id": oid}).Decode(&c)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c.ID = id
	return &c, nil
}

func (r *caseRepo) ListByOwner(ctx context.Context, owner string) ([]*model.Case, error) {
	opts := options.Find().SetSort(bson.D{{Key: "updatedAt", Value: -1}})

	cursor, err := r.collection.Find(ctx, bson.M{"owner": owner}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	cases := []*model.Case{}
	if err := cursor.All(ctx, &cases); err != nil {
		return nil, err
	}
	return cases, nil
}

func (r *caseRepo) LinkInterview(ctx context.Context, caseID, interviewID string) error {
	return r.addToSet(ctx, caseID, "interviews", interviewID)
}

// AddResult records a completed interview on the case
func (r *caseRepo) AddResult(ctx context.Context, caseID, interviewID string) error {
	return r.addToSet(ctx, caseID, "results", interviewID)
}

func (r *caseRepo) addToSet(ctx context.Context, caseID, field, value string) error {
	oid, err := primitive.ObjectIDFromHex(caseID)
	if err != nil {
		return err
	}

	_, err = r.collection.UpdateOne(ctx,
		bson.M{"_id": oid},
		bson.M{
			"$addToSet": bson.M{field: value},
			"$set":      bson.M{"updatedAt": time.Now().UTC()},
		},
	)
	return err
}

func (r *caseRepo) Update(ctx context.Context, id string, fields CaseFields) error {
	set := bson.M{"updatedAt": time.Now().UTC()}
	if fields.Title != nil {
		set["title"] = *fields.Title
	}
	if fields.Description != nil {
		set["description"] = *fields.Description
	}
	return r.set(ctx, id, set)
}

func (r *caseRepo) SetStatus(ctx context.Context, id string, status model.CaseStatus) error {
	return r.set(ctx, id, bson.M{"status": status, "updatedAt": time.Now().UTC()})
}

func (r *caseRepo) set(ctx context.Context, id string, set bson.M) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return err
	}

	_, err = r.collection.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{"$set": set})
	return err
}

func (r *caseRepo) Delete(ctx context.Context, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return err
	}

	_, err = r.collection.DeleteOne(ctx, bson.M{"_id": oid})
	return err
}

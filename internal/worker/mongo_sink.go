package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-quiz/internal/quizsession"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const integrityCollection = "attempt_integrity_events"

type integrityDoc struct {
	ID         string    `bson:"_id"`
	AttemptID  string    `bson:"attempt_id,omitempty"`
	QuizID     string    `bson:"quiz_id"`
	StudentID  int       `bson:"student_id"`
	Kind       string    `bson:"kind"`
	Count      int       `bson:"count"`
	Detail     string    `bson:"detail,omitempty"`
	OccurredAt time.Time `bson:"occurred_at"`
}

// MongoEventSink writes integrity events to the attempt_integrity_events collection.
type MongoEventSink struct {
	collection *mongo.Collection
}

func NewMongoEventSink(db *mongo.Database) *MongoEventSink {
	return &MongoEventSink{collection: db.Collection(integrityCollection)}
}

// InsertBatch writes the batch unordered. Documents carry a deterministic
// _id, so rows that made it in before a failure are skipped on retry.
func (s *MongoEventSink) InsertBatch(ctx context.Context, batch []*quizsession.Violation) error {
	docs := make([]interface{}, 0, len(batch))
	for _, v := range batch {
		docs = append(docs, newIntegrityDoc(v))
	}
	_, err := s.collection.InsertMany(ctx, docs, options.InsertMany().SetOrdered(false))
	return err
}

func (s *MongoEventSink) Insert(ctx context.Context, v *quizsession.Violation) error {
	_, err := s.collection.InsertOne(ctx, newIntegrityDoc(v))
	if mongo.IsDuplicateKeyError(err) {
		return nil
	}
	return err
}

// eventNamespace scopes the ids of integrity event documents.
var eventNamespace = uuid.MustParse("4f8d3a52-7c1e-4b8a-9f0e-2d6b5c1a7e93")

func newIntegrityDoc(v *quizsession.Violation) integrityDoc {
	occurredAt := eventRow(v)[6].(time.Time)
	key := fmt.Sprintf("%s|%d|%s|%d|%d", v.QuizID, v.StudentID, v.Kind, v.Count, occurredAt.UnixNano())

	doc := integrityDoc{
		ID:         uuid.NewSHA1(eventNamespace, []byte(key)).String(),
		QuizID:     v.QuizID.String(),
		StudentID:  v.StudentID,
		Kind:       string(v.Kind),
		Count:      v.Count,
		Detail:     v.Detail,
		OccurredAt: occurredAt,
	}
	if v.AttemptID != uuid.Nil {
		doc.AttemptID = v.AttemptID.String()
	}
	return doc
}

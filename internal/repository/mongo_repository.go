package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-quiz/internal/model"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Mongo collections. Documents use the string form of uuids as _id.
const (
	quizCollection     = "quizzes"
	questionCollection = "questions"
	attemptCollection  = "quiz_attempts"
)

type quizDoc struct {
	ID                 string    `bson:"_id"`
	Title              string    `bson:"title"`
	ClassID            int       `bson:"class_id"`
	QuestionIDs        []string  `bson:"question_ids"`
	DurationMinutes    int       `bson:"duration_minutes"`
	TabSwitchThreshold int       `bson:"tab_switch_threshold"`
	TotalPoints        int       `bson:"total_points"`
	Released           bool      `bson:"released"`
	AnswersReleased    bool      `bson:"answers_released"`
	CreatedAt          time.Time `bson:"created_at"`
}

type questionDoc struct {
	ID             string         `bson:"_id"`
	Type           string         `bson:"type"`
	Prompt         string         `bson:"prompt"`
	ImageURL       string         `bson:"image_url,omitempty"`
	Options        []model.Option `bson:"options"`
	CorrectIndex   int            `bson:"correct_index"`
	CorrectIndices []int          `bson:"correct_indices,omitempty"`
	ExpectedText   string         `bson:"expected_text,omitempty"`
	Difficulty     string         `bson:"difficulty"`
	Points         int            `bson:"points"`
	Subject        string         `bson:"subject"`
	AuthorID       int            `bson:"author_id"`
}

type answerDoc struct {
	Kind    string `bson:"kind"`
	Index   int    `bson:"index"`
	Indices []int  `bson:"indices,omitempty"`
	Text    string `bson:"text,omitempty"`
}

type attemptDoc struct {
	ID             string               `bson:"_id"`
	QuizID         string               `bson:"quiz_id"`
	StudentID      int                  `bson:"student_id"`
	QuestionOrder  []string             `bson:"question_order"`
	Answers        map[string]answerDoc `bson:"answers"`
	TabSwitches    int                  `bson:"tab_switches"`
	StartedAt      time.Time            `bson:"started_at"`
	EndedAt        *time.Time           `bson:"ended_at,omitempty"`
	Submitted      bool                 `bson:"submitted"`
	Score          int                  `bson:"score"`
	AchievedPoints int                  `bson:"achieved_points"`
}

// ─── Quizzes ───────────────────────────────────────────────────────────

// MongoQuizRepository reads quizzes from MongoDB.
type MongoQuizRepository struct {
	collection *mongo.Collection
}

func NewMongoQuizRepository(db *mongo.Database) *MongoQuizRepository {
	return &MongoQuizRepository{collection: db.Collection(quizCollection)}
}

func (r *MongoQuizRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Quiz, error) {
	var doc quizDoc
	err := r.collection.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, model.ErrQuizNotFound
		}
		return nil, err
	}

	ids, err := parseUUIDs(doc.QuestionIDs)
	if err != nil {
		return nil, err
	}
	return &model.Quiz{
		ID:                 id,
		Title:              doc.Title,
		ClassID:            doc.ClassID,
		QuestionIDs:        ids,
		DurationMinutes:    doc.DurationMinutes,
		TabSwitchThreshold: doc.TabSwitchThreshold,
		TotalPoints:        doc.TotalPoints,
		Released:           doc.Released,
		AnswersReleased:    doc.AnswersReleased,
		CreatedAt:          doc.CreatedAt,
	}, nil
}

// ─── Questions ─────────────────────────────────────────────────────────

// MongoQuestionRepository reads questions from MongoDB.
type MongoQuestionRepository struct {
	collection *mongo.Collection
}

func NewMongoQuestionRepository(db *mongo.Database) *MongoQuestionRepository {
	return &MongoQuestionRepository{collection: db.Collection(questionCollection)}
}

func (r *MongoQuestionRepository) ListByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Question, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	cursor, err := r.collection.Find(ctx, bson.M{"_id": bson.M{"$in": uuidStrings(ids)}})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []questionDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}

	questions := make([]model.Question, 0, len(docs))
	for _, d := range docs {
		id, err := uuid.Parse(d.ID)
		if err != nil {
			return nil, err
		}
		questions = append(questions, model.Question{
			ID:             id,
			Type:           model.QuestionType(d.Type),
			Prompt:         d.Prompt,
			ImageURL:       d.ImageURL,
			Options:        d.Options,
			CorrectIndex:   d.CorrectIndex,
			CorrectIndices: d.CorrectIndices,
			ExpectedText:   d.ExpectedText,
			Difficulty:     model.Difficulty(d.Difficulty),
			Points:         d.Points,
			Subject:        d.Subject,
			AuthorID:       d.AuthorID,
		})
	}
	return questions, nil
}

// ─── Attempts ──────────────────────────────────────────────────────────

// MongoAttemptRepository persists attempts in MongoDB. A unique index on
// (quiz_id, student_id) backs the one-attempt rule.
type MongoAttemptRepository struct {
	collection *mongo.Collection
}

func NewMongoAttemptRepository(db *mongo.Database) *MongoAttemptRepository {
	return &MongoAttemptRepository{collection: db.Collection(attemptCollection)}
}

// EnsureIndexes creates the unique (quiz_id, student_id) index.
func (r *MongoAttemptRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "quiz_id", Value: 1}, {Key: "student_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

func (r *MongoAttemptRepository) GetByQuizAndStudent(ctx context.Context, quizID uuid.UUID, studentID int) (*model.Attempt, error) {
	var doc attemptDoc
	err := r.collection.FindOne(ctx, bson.M{"quiz_id": quizID.String(), "student_id": studentID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, model.ErrAttemptNotFound
		}
		return nil, err
	}
	return doc.toModel()
}

func (r *MongoAttemptRepository) Create(ctx context.Context, a *model.Attempt) error {
	id := uuid.New()
	doc := newAttemptDoc(a)
	doc.ID = id.String()

	if _, err := r.collection.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return model.ErrAttemptExists
		}
		return err
	}
	a.ID = id
	return nil
}

func (r *MongoAttemptRepository) Update(ctx context.Context, id uuid.UUID, patch model.AttemptPatch) (*model.Attempt, error) {
	set := bson.M{}
	if patch.Answers != nil {
		set["answers"] = answerDocs(patch.Answers)
	}
	if patch.TabSwitches != nil {
		set["tab_switches"] = *patch.TabSwitches
	}
	if patch.EndedAt != nil {
		set["ended_at"] = *patch.EndedAt
	}
	if patch.Submitted != nil && *patch.Submitted {
		set["submitted"] = true
	}
	if patch.Score != nil {
		set["score"] = *patch.Score
	}
	if patch.AchievedPoints != nil {
		set["achieved_points"] = *patch.AchievedPoints
	}

	filter := bson.M{"_id": id.String(), "submitted": false}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc attemptDoc
	var err error
	if len(set) == 0 {
		err = r.collection.FindOne(ctx, filter).Decode(&doc)
	} else {
		err = r.collection.FindOneAndUpdate(ctx, filter, bson.M{"$set": set}, opts).Decode(&doc)
	}
	if err != nil {
		if !errors.Is(err, mongo.ErrNoDocuments) {
			return nil, err
		}
		n, cerr := r.collection.CountDocuments(ctx, bson.M{"_id": id.String()})
		if cerr == nil && n > 0 {
			return nil, model.ErrAttemptSubmitted
		}
		return nil, model.ErrAttemptNotFound
	}
	return doc.toModel()
}

func newAttemptDoc(a *model.Attempt) attemptDoc {
	return attemptDoc{
		ID:             a.ID.String(),
		QuizID:         a.QuizID.String(),
		StudentID:      a.StudentID,
		QuestionOrder:  uuidStrings(a.QuestionOrder),
		Answers:        answerDocs(a.Answers),
		TabSwitches:    a.TabSwitches,
		StartedAt:      a.StartedAt,
		EndedAt:        a.EndedAt,
		Submitted:      a.Submitted,
		Score:          a.Score,
		AchievedPoints: a.AchievedPoints,
	}
}

func (d *attemptDoc) toModel() (*model.Attempt, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, err
	}
	quizID, err := uuid.Parse(d.QuizID)
	if err != nil {
		return nil, err
	}
	order, err := parseUUIDs(d.QuestionOrder)
	if err != nil {
		return nil, err
	}

	answers := make(model.Answers, len(d.Answers))
	for key, ad := range d.Answers {
		qid, err := uuid.Parse(key)
		if err != nil {
			return nil, err
		}
		answers[qid] = model.Answer{
			Kind:    model.QuestionType(ad.Kind),
			Index:   ad.Index,
			Indices: ad.Indices,
			Text:    ad.Text,
		}
	}

	return &model.Attempt{
		ID:             id,
		QuizID:         quizID,
		StudentID:      d.StudentID,
		QuestionOrder:  order,
		Answers:        answers,
		TabSwitches:    d.TabSwitches,
		StartedAt:      d.StartedAt,
		EndedAt:        d.EndedAt,
		Submitted:      d.Submitted,
		Score:          d.Score,
		AchievedPoints: d.AchievedPoints,
	}, nil
}

func answerDocs(answers model.Answers) map[string]answerDoc {
	out := make(map[string]answerDoc, len(answers))
	for qid, a := range answers {
		out[qid.String()] = answerDoc{Kind: string(a.Kind), Index: a.Index, Indices: a.Indices, Text: a.Text}
	}
	return out
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

func parseUUIDs(raw []string) ([]uuid.UUID, error) {
	out := make([]uuid.UUID, len(raw))
	for i, s := range raw {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, err
		}
		out[i] = id
	}
	return out, nil
}

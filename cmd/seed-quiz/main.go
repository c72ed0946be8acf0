package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-quiz/internal/config"
	"github.com/stemsi/exstem-quiz/internal/database"
	"github.com/stemsi/exstem-quiz/internal/logger"
	"github.com/stemsi/exstem-quiz/internal/model"
)

// seed-quiz inserts a released demo quiz into PostgreSQL.
func main() {
	var (
		classID  int
		duration int
		released bool
	)
	flag.IntVar(&classID, "class", 0, "Class the quiz is assigned to (0 = any)")
	flag.IntVar(&duration, "duration", 10, "Duration in minutes")
	flag.BoolVar(&released, "answers-released", false, "Show correct answers on the result page")
	flag.Parse()

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	questions := []model.Question{
		{
			Type:   model.QuestionTypeSingleCorrect,
			Prompt: "Protokol apa yang digunakan untuk mengirim email?",
			Options: []model.Option{
				{Text: "HTTP"}, {Text: "SMTP"}, {Text: "FTP"}, {Text: "DNS"},
			},
			CorrectIndex: 1,
			Difficulty:   model.DifficultyEasy,
			Points:       2,
			Subject:      "Jaringan",
		},
		{
			Type:   model.QuestionTypeMultipleCorrect,
			Prompt: "Manakah yang termasuk alamat IP privat?",
			Options: []model.Option{
				{Text: "10.0.0.1"}, {Text: "8.8.8.8"}, {Text: "192.168.1.1"}, {Text: "1.1.1.1"},
			},
			CorrectIndices: []int{0, 2},
			Difficulty:     model.DifficultyMedium,
			Points:         3,
			Subject:        "Jaringan",
		},
		{
			Type:         model.QuestionTypeFillInBlank,
			Prompt:       "Port default untuk HTTPS adalah ___.",
			ExpectedText: "443",
			Difficulty:   model.DifficultyMedium,
			Points:       3,
			Subject:      "Jaringan",
		},
		{
			Type:   model.QuestionTypeSingleCorrect,
			Prompt: "Lapisan OSI manakah yang bertanggung jawab atas routing?",
			Options: []model.Option{
				{Text: "Data Link"}, {Text: "Transport"}, {Text: "Network"}, {Text: "Session"},
			},
			CorrectIndex: 2,
			Difficulty:   model.DifficultyHard,
			Points:       2,
			Subject:      "Jaringan",
		},
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to begin transaction")
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, len(questions))
	for _, q := range questions {
		options := q.Options
		if options == nil {
			options = []model.Option{}
		}
		correct := q.CorrectIndices
		if correct == nil {
			correct = []int{}
		}

		var id uuid.UUID
		err := tx.QueryRow(ctx,
			`INSERT INTO questions (type, prompt, options, correct_index, correct_indices,
			                        expected_text, difficulty, points, subject)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			 RETURNING id`,
			q.Type, q.Prompt, options, q.CorrectIndex, correct,
			q.ExpectedText, q.Difficulty, q.Points, q.Subject,
		).Scan(&id)
		if err != nil {
			log.Fatal().Err(err).Str("prompt", q.Prompt).Msg("Failed to insert question")
		}
		ids = append(ids, id)
	}

	var quizID uuid.UUID
	err = tx.QueryRow(ctx,
		`INSERT INTO quizzes (title, class_id, question_ids, duration_minutes, tab_switch_threshold,
		                      total_points, released, answers_released)
		 VALUES ($1, $2, $3, $4, $5, $6, TRUE, $7)
		 RETURNING id`,
		"Kuis Dasar Jaringan", classID, ids, duration, 3, model.SumPoints(questions), released,
	).Scan(&quizID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to insert quiz")
	}

	if err := tx.Commit(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to commit seed")
	}

	fmt.Printf("Seed completed! Quiz %s with %d questions.\n", quizID, len(ids))
}

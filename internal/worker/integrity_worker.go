package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-quiz/internal/config"
	"github.com/stemsi/exstem-quiz/internal/quizsession"
)

const (
	BatchSize    = 50
	BatchTimeout = 2 * time.Second
	PollTimeout  = 1 * time.Second // Must be >= 1s to satisfy Redis
)

// EventSink stores a batch of integrity events.
type EventSink interface {
	// InsertBatch stores the whole batch or nothing.
	InsertBatch(ctx context.Context, batch []*quizsession.Violation) error
	// Insert stores a single event.
	Insert(ctx context.Context, v *quizsession.Violation) error
}

// IntegrityWorker drains the integrity queue into the event sink.
type IntegrityWorker struct {
	sink EventSink
	rdb  *redis.Client
	log  zerolog.Logger

	// retryDelay is the pause after a Redis error or a requeue.
	retryDelay time.Duration
}

func NewIntegrityWorker(sink EventSink, rdb *redis.Client, log zerolog.Logger) *IntegrityWorker {
	return &IntegrityWorker{
		sink:       sink,
		rdb:        rdb,
		log:        log.With().Str("component", "integrity_worker").Logger(),
		retryDelay: 2 * time.Second,
	}
}

func (w *IntegrityWorker) Start(ctx context.Context) {
	w.log.Info().Msg("IntegrityWorker started")

	buffer := make([]*quizsession.Violation, 0, BatchSize)
	lastFlushTime := time.Now()

	for {
		// 1. Flush on size or age
		if len(buffer) > 0 {
			if len(buffer) >= BatchSize || time.Since(lastFlushTime) >= BatchTimeout {
				w.flushSafe(ctx, buffer)
				buffer = buffer[:0]
				lastFlushTime = time.Now()
			}
		}

		// 2. Graceful shutdown
		select {
		case <-ctx.Done():
			w.shutdown(buffer)
			return
		default:
		}

		// 3. Fetch from Redis
		result, err := w.rdb.BLPop(ctx, PollTimeout, config.WorkerKey.PersistIntegrityQueue).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue // queue empty, loop back to check flush timer
			}
			if ctx.Err() != nil {
				w.shutdown(buffer)
				return
			}
			w.log.Error().Err(err).Msg("Redis connection error, backing off")
			w.sleep(ctx)
			continue
		}

		// 4. Decode
		if len(result) < 2 {
			continue
		}

		var v quizsession.Violation
		if err := json.Unmarshal([]byte(result[1]), &v); err != nil {
			// Malformed payloads can never succeed.
			w.log.Error().Err(err).Str("data", result[1]).Msg("Discarding malformed JSON")
			continue
		}
		if v.QuizID == uuid.Nil || v.StudentID == 0 || v.Kind == "" {
			w.log.Error().Str("data", result[1]).Msg("Discarding incomplete integrity event")
			continue
		}

		buffer = append(buffer, &v)
	}
}

// flushSafe attempts bulk insert, then row-by-row insert, then requeue.
func (w *IntegrityWorker) flushSafe(ctx context.Context, batch []*quizsession.Violation) {
	if err := w.sink.InsertBatch(ctx, batch); err != nil {
		w.log.Warn().Err(err).Int("count", len(batch)).Msg("Bulk insert failed, attempting row-by-row recovery")
		w.fallbackInsert(ctx, batch)
	}
}

func (w *IntegrityWorker) fallbackInsert(ctx context.Context, batch []*quizsession.Violation) {
	requeueList := make([]*quizsession.Violation, 0)

	for _, v := range batch {
		if err := w.sink.Insert(ctx, v); err != nil {
			w.log.Error().Err(err).Int("student_id", v.StudentID).Msg("Insert failed, requeueing")
			requeueList = append(requeueList, v)
		}
	}

	if len(requeueList) > 0 {
		w.requeue(ctx, requeueList)
	}
}

func (w *IntegrityWorker) requeue(ctx context.Context, items []*quizsession.Violation) {
	pipe := w.rdb.Pipeline()
	for _, v := range items {
		data, _ := json.Marshal(v)
		pipe.RPush(ctx, config.WorkerKey.PersistIntegrityQueue, data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		w.log.Error().Err(err).Int("count", len(items)).Msg("CRITICAL: Failed to requeue items to Redis. Data loss occurred.")
		return
	}
	w.log.Info().Int("count", len(items)).Msg("Requeued failed items back to Redis")
	// avoid thrashing while the database is down
	w.sleep(ctx)
}

func (w *IntegrityWorker) shutdown(buffer []*quizsession.Violation) {
	w.log.Info().Msg("Worker stopping, flushing remaining buffer...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if len(buffer) > 0 {
		w.flushSafe(shutdownCtx, buffer)
	}
}

func (w *IntegrityWorker) sleep(ctx context.Context) {
	t := time.NewTimer(w.retryDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// PostgresEventSink writes integrity events to attempt_integrity_events.
type PostgresEventSink struct {
	pool *pgxpool.Pool
}

func NewPostgresEventSink(pool *pgxpool.Pool) *PostgresEventSink {
	return &PostgresEventSink{pool: pool}
}

var integrityColumns = []string{"attempt_id", "quiz_id", "student_id", "kind", "count", "detail", "occurred_at"}

func (s *PostgresEventSink) InsertBatch(ctx context.Context, batch []*quizsession.Violation) error {
	rows := make([][]interface{}, 0, len(batch))
	for _, v := range batch {
		rows = append(rows, eventRow(v))
	}

	_, err := s.pool.CopyFrom(
		ctx,
		pgx.Identifier{"attempt_integrity_events"},
		integrityColumns,
		pgx.CopyFromRows(rows),
	)
	return err
}

func (s *PostgresEventSink) Insert(ctx context.Context, v *quizsession.Violation) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO attempt_integrity_events (attempt_id, quiz_id, student_id, kind, count, detail, occurred_at)
         VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		eventRow(v)...,
	)
	return err
}

func eventRow(v *quizsession.Violation) []interface{} {
	var attemptID *uuid.UUID
	if v.AttemptID != uuid.Nil {
		id := v.AttemptID
		attemptID = &id
	}
	occurredAt := v.At
	if occurredAt.IsZero() {
		occurredAt = time.Now()
	}
	return []interface{}{attemptID, v.QuizID, v.StudentID, string(v.Kind), v.Count, v.Detail, occurredAt}
}

package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-quiz/internal/config"
	"github.com/stemsi/exstem-quiz/internal/quizsession"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSink struct {
	mu       sync.Mutex
	batchErr error
	failKind quizsession.ViolationKind
	stored   []quizsession.Violation
	batches  int
}

func (s *fakeSink) InsertBatch(_ context.Context, batch []*quizsession.Violation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.batchErr != nil {
		return s.batchErr
	}
	s.batches++
	for _, v := range batch {
		s.stored = append(s.stored, *v)
	}
	return nil
}

func (s *fakeSink) Insert(_ context.Context, v *quizsession.Violation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v.Kind == s.failKind {
		return errors.New("constraint violated")
	}
	s.stored = append(s.stored, *v)
	return nil
}

func (s *fakeSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.stored)
}

func newTestWorker(t *testing.T, sink EventSink) (*IntegrityWorker, *redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	w := NewIntegrityWorker(sink, rdb, zerolog.Nop())
	w.retryDelay = 10 * time.Millisecond
	return w, rdb, mr
}

func push(t *testing.T, rdb *redis.Client, v quizsession.Violation) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, rdb.RPush(context.Background(), config.WorkerKey.PersistIntegrityQueue, data).Err())
}

func violation(kind quizsession.ViolationKind) quizsession.Violation {
	return quizsession.Violation{
		Kind:      kind,
		StudentID: 42,
		QuizID:    uuid.New(),
		AttemptID: uuid.New(),
		Count:     1,
		At:        time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC),
	}
}

func TestIntegrityWorker_FlushesQueuedEvents(t *testing.T) {
	sink := &fakeSink{}
	w, rdb, _ := newTestWorker(t, sink)

	push(t, rdb, violation(quizsession.ViolationTabSwitch))
	push(t, rdb, violation(quizsession.ViolationClipboard))
	require.NoError(t, rdb.RPush(context.Background(), config.WorkerKey.PersistIntegrityQueue, "{not json").Err())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return sink.count() == 2 }, 5*time.Second, 20*time.Millisecond)
	cancel()
	<-done

	assert.Equal(t, quizsession.ViolationTabSwitch, sink.stored[0].Kind)
	assert.Equal(t, quizsession.ViolationClipboard, sink.stored[1].Kind)
}

func TestIntegrityWorker_ShutdownFlushesBuffer(t *testing.T) {
	sink := &fakeSink{}
	w, rdb, _ := newTestWorker(t, sink)
	push(t, rdb, violation(quizsession.ViolationContextMenu))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		n, _ := rdb.LLen(context.Background(), config.WorkerKey.PersistIntegrityQueue).Result()
		return n == 0
	}, 5*time.Second, 10*time.Millisecond)
	cancel()
	<-done

	assert.Equal(t, 1, sink.count())
}

func TestIntegrityWorker_FallbackRequeuesFailedRows(t *testing.T) {
	sink := &fakeSink{
		batchErr: errors.New("copy failed"),
		failKind: quizsession.ViolationPrintScreen,
	}
	w, rdb, _ := newTestWorker(t, sink)

	batch := []*quizsession.Violation{
		ptr(violation(quizsession.ViolationTabSwitch)),
		ptr(violation(quizsession.ViolationPrintScreen)),
	}
	w.flushSafe(context.Background(), batch)

	assert.Equal(t, 1, sink.count())

	queued, err := rdb.LRange(context.Background(), config.WorkerKey.PersistIntegrityQueue, 0, -1).Result()
	require.NoError(t, err)
	require.Len(t, queued, 1)

	var requeued quizsession.Violation
	require.NoError(t, json.Unmarshal([]byte(queued[0]), &requeued))
	assert.Equal(t, quizsession.ViolationPrintScreen, requeued.Kind)
	assert.Equal(t, batch[1].QuizID, requeued.QuizID)
}

func TestEventRow(t *testing.T) {
	v := violation(quizsession.ViolationFullScreenExit)
	v.AttemptID = uuid.Nil
	v.At = time.Time{}

	row := eventRow(&v)
	require.Len(t, row, len(integrityColumns))
	assert.Nil(t, row[0].(*uuid.UUID))
	assert.Equal(t, "full_screen_exit", row[3])
	assert.False(t, row[6].(time.Time).IsZero())
}

func ptr[T any](v T) *T { return &v }

func TestNewIntegrityDoc_StableID(t *testing.T) {
	v := violation(quizsession.ViolationClipboard)
	v.Detail = "copy"

	first := newIntegrityDoc(&v)
	again := newIntegrityDoc(&v)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, v.AttemptID.String(), first.AttemptID)
	assert.Equal(t, "clipboard", first.Kind)

	v.Count = 2
	assert.NotEqual(t, first.ID, newIntegrityDoc(&v).ID)

	v.AttemptID = uuid.Nil
	assert.Empty(t, newIntegrityDoc(&v).AttemptID)
}

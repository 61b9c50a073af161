package consumer

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/BarkinBalci/viewer-analytics-service/internal/domain"
	"github.com/BarkinBalci/viewer-analytics-service/internal/metrics"
)

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestBuffer(repo *MockEventRepository, config BufferConfig, log *zap.Logger) (*Buffer, *testClock) {
	clock := &testClock{now: testTime}
	b := NewBuffer(repo, NewJSONEventParser(), config, metrics.NewIngest(), log)
	b.now = clock.Now
	b.lastFlush = clock.Now()
	return b, clock
}

func TestBuffer_SizeTriggerFlushesFullBatch(t *testing.T) {
	mockRepo := new(MockEventRepository)
	mockRepo.On("InsertBatch", mock.Anything, batchOf(100)).Return(100, nil).Once()
	mockRepo.On("InsertBatch", mock.Anything, batchOf(50)).Return(50, nil).Once()

	b, clock := newTestBuffer(mockRepo, BufferConfig{BatchSize: 100, FlushInterval: 2 * time.Second}, zap.NewNop())
	rec := &ackRecorder{}
	ctx := context.Background()

	flushes := 0
	for i := 0; i < 150; i++ {
		msg := rec.message(fmt.Sprintf("msg-%d", i), eventBody(fmt.Sprintf("v%d", i), i, domain.EventTypeHeartbeat))
		require.NoError(t, b.Accept(ctx, msg))
		if b.Due() {
			n, err := b.Flush(ctx)
			require.NoError(t, err)
			assert.Equal(t, 100, n)
			flushes++
		}
	}

	assert.Equal(t, 1, flushes, "exactly one size-triggered flush")
	assert.Equal(t, 50, b.Len())
	assert.Len(t, rec.ackedIDs(), 100)
	assert.False(t, b.Due(), "the remainder waits for the next trigger")

	clock.Advance(2 * time.Second)
	require.True(t, b.Due())

	n, err := b.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 50, n)
	assert.Zero(t, b.Len())
	assert.Len(t, rec.ackedIDs(), 150)

	mockRepo.AssertExpectations(t)
}

func TestBuffer_TimeTrigger(t *testing.T) {
	mockRepo := new(MockEventRepository)
	b, clock := newTestBuffer(mockRepo, BufferConfig{BatchSize: 100, FlushInterval: 2 * time.Second}, zap.NewNop())
	rec := &ackRecorder{}

	assert.False(t, b.Due(), "empty buffer is never due")

	require.NoError(t, b.Accept(context.Background(), rec.message("m1", eventBody("v1", 0, domain.EventTypeViewStart))))
	assert.False(t, b.Due())

	clock.Advance(1999 * time.Millisecond)
	assert.False(t, b.Due())

	clock.Advance(time.Millisecond)
	assert.True(t, b.Due())
}

func TestBuffer_FailedFlushRetainsBuffer(t *testing.T) {
	mockRepo := new(MockEventRepository)
	mockRepo.On("InsertBatch", mock.Anything, batchOf(3)).Return(0, errors.New("connection refused")).Once()
	mockRepo.On("InsertBatch", mock.Anything, batchOf(3)).Return(3, nil).Once()

	b, clock := newTestBuffer(mockRepo, BufferConfig{BatchSize: 3, FlushInterval: 2 * time.Second}, zap.NewNop())
	rec := &ackRecorder{}
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, b.Accept(ctx, rec.message(fmt.Sprintf("m%d", i), eventBody("v1", i, domain.EventTypeHeartbeat))))
	}
	require.True(t, b.Due())

	n, err := b.Flush(ctx)
	assert.Zero(t, n)
	var writeErr *WriteError
	require.ErrorAs(t, err, &writeErr)
	assert.Equal(t, 3, writeErr.Count)

	assert.Equal(t, 3, b.Len(), "buffer kept for retry")
	assert.Empty(t, rec.ackedIDs(), "nothing acknowledged after a failed write")
	assert.Equal(t, 1, b.ConsecutiveFailures())

	// the size trigger still holds but retries wait a full interval
	assert.False(t, b.Due())
	clock.Advance(time.Second)
	assert.False(t, b.Due())
	clock.Advance(time.Second)
	require.True(t, b.Due())

	n, err = b.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []string{"m0", "m1", "m2"}, rec.ackedIDs())
	assert.Zero(t, b.ConsecutiveFailures())

	mockRepo.AssertExpectations(t)
}

func TestBuffer_PartialInsertIsAFailure(t *testing.T) {
	mockRepo := new(MockEventRepository)
	mockRepo.On("InsertBatch", mock.Anything, batchOf(2)).Return(1, nil).Once()

	b, _ := newTestBuffer(mockRepo, BufferConfig{BatchSize: 2, FlushInterval: time.Second}, zap.NewNop())
	rec := &ackRecorder{}
	ctx := context.Background()

	require.NoError(t, b.Accept(ctx, rec.message("m1", eventBody("v1", 0, domain.EventTypeViewStart))))
	require.NoError(t, b.Accept(ctx, rec.message("m2", eventBody("v2", 0, domain.EventTypeViewStart))))

	_, err := b.Flush(ctx)
	var writeErr *WriteError
	require.ErrorAs(t, err, &writeErr)
	assert.Equal(t, 2, b.Len())
	assert.Empty(t, rec.ackedIDs())
}

func TestBuffer_RepeatedFailuresEscalateToError(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	mockRepo := new(MockEventRepository)
	mockRepo.On("InsertBatch", mock.Anything, mock.Anything).Return(0, errors.New("event log down"))

	b, clock := newTestBuffer(mockRepo, BufferConfig{BatchSize: 1, FlushInterval: time.Second, FailureAlert: 3}, zap.New(core))
	rec := &ackRecorder{}
	ctx := context.Background()

	require.NoError(t, b.Accept(ctx, rec.message("m1", eventBody("v1", 0, domain.EventTypeViewStart))))

	for i := 0; i < 4; i++ {
		require.True(t, b.Due())
		_, err := b.Flush(ctx)
		require.Error(t, err)
		clock.Advance(time.Second)
	}

	entries := logs.All()
	require.Len(t, entries, 4)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, zapcore.ErrorLevel, entries[2].Level)
	assert.Equal(t, zapcore.ErrorLevel, entries[3].Level)
	assert.Equal(t, int64(1), entries[3].ContextMap()["buffered_events"])
	assert.Equal(t, 4, b.ConsecutiveFailures())
}

func TestBuffer_MalformedMessageAckedWhenEmpty(t *testing.T) {
	b, _ := newTestBuffer(new(MockEventRepository), BufferConfig{BatchSize: 10, FlushInterval: time.Second}, zap.NewNop())
	rec := &ackRecorder{}

	err := b.Accept(context.Background(), rec.message("bad-1", `{"viewer_id":`))

	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Equal(t, "bad-1", parseErr.MessageID)
	assert.Zero(t, b.Len())
	assert.Equal(t, []string{"bad-1"}, rec.ackedIDs())
}

func TestBuffer_MalformedMessageAckDeferredBehindBufferedEvents(t *testing.T) {
	mockRepo := new(MockEventRepository)
	mockRepo.On("InsertBatch", mock.Anything, batchOf(2)).Return(2, nil).Once()

	b, _ := newTestBuffer(mockRepo, BufferConfig{BatchSize: 10, FlushInterval: time.Second}, zap.NewNop())
	rec := &ackRecorder{}
	ctx := context.Background()

	require.NoError(t, b.Accept(ctx, rec.message("m1", eventBody("v1", 0, domain.EventTypeViewStart))))
	require.Error(t, b.Accept(ctx, rec.message("bad", `{"viewer_id":"v2","video_id":"x","event_type":"pause","ts":"2025-06-01T12:00:00Z"}`)))
	require.NoError(t, b.Accept(ctx, rec.message("m2", eventBody("v2", 1, domain.EventTypeViewStart))))

	assert.Equal(t, 2, b.Len())
	assert.Empty(t, rec.ackedIDs())

	_, err := b.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"m1", "bad", "m2"}, rec.ackedIDs())
}

func TestBuffer_FlushRoundTripsEvents(t *testing.T) {
	var written []*domain.Event
	mockRepo := new(MockEventRepository)
	mockRepo.On("InsertBatch", mock.Anything, batchOf(3)).
		Run(func(args mock.Arguments) {
			written = args.Get(1).([]*domain.Event)
		}).
		Return(3, nil).Once()

	b, _ := newTestBuffer(mockRepo, BufferConfig{BatchSize: 3, FlushInterval: time.Second}, zap.NewNop())
	rec := &ackRecorder{}
	ctx := context.Background()

	require.NoError(t, b.Accept(ctx, rec.message("m1", eventBody("v1", 0, domain.EventTypeViewStart))))
	require.NoError(t, b.Accept(ctx, rec.message("m2", eventBody("v1", 5, domain.EventTypeHeartbeat))))
	require.NoError(t, b.Accept(ctx, rec.message("m3", eventBody("v1", 12, domain.EventTypeViewEnd))))

	_, err := b.Flush(ctx)
	require.NoError(t, err)

	require.Len(t, written, 3)
	assert.Equal(t, domain.EventTypeViewStart, written[0].EventType)
	assert.Equal(t, testTime.Add(12*time.Second), written[2].Timestamp)
	assert.Equal(t, "DE", written[1].Country)
}

func TestBuffer_FlushEmptyIsNoop(t *testing.T) {
	mockRepo := new(MockEventRepository)
	b, _ := newTestBuffer(mockRepo, BufferConfig{BatchSize: 1, FlushInterval: time.Second}, zap.NewNop())

	n, err := b.Flush(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	mockRepo.AssertNotCalled(t, "InsertBatch", mock.Anything, mock.Anything)
}

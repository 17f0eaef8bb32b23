package producer

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockWriter struct {
	mock.Mock
	mu sync.Mutex
}

func (m *MockWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	args := m.Called(ctx, msgs)
	return args.Error(0)
}

func (m *MockWriter) Close() error {
	args := m.Called()
	return args.Error(0)
}

func newTestKafka(w messageWriter) *Kafka {
	k := NewKafka(KafkaConfig{Brokers: "localhost:9092", Topic: "orders-stream"}, discardLogger())
	k.w = w
	return k
}

func TestKafkaConfig_Brokers(t *testing.T) {
	cfg := KafkaConfig{Brokers: " k1:9092, ,k2:9092 "}
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.brokers())
}

func TestKafka_SubmitWritesKeyedMessage(t *testing.T) {
	w := &MockWriter{}
	w.On("WriteMessages", mock.Anything, []kafka.Message{{
		Topic: "orders-stream",
		Key:   []byte("key-1"),
		Value: []byte("hello"),
	}}).Return(nil).Once()
	k := newTestKafka(w)

	require.NoError(t, k.Submit("orders-stream", "key-1", []byte("hello")))

	w.AssertExpectations(t)
	assert.Equal(t, uint64(1), k.Stats().Submitted)
}

func TestKafka_SubmitUnknownTopic(t *testing.T) {
	w := &MockWriter{}
	k := newTestKafka(w)

	assert.ErrorIs(t, k.Submit("payments", "key", []byte("x")), ErrUnknownStream)
	w.AssertNotCalled(t, "WriteMessages", mock.Anything, mock.Anything)
}

func TestKafka_SubmitWriterError(t *testing.T) {
	boom := errors.New("boom")
	w := &MockWriter{}
	w.On("WriteMessages", mock.Anything, mock.Anything).Return(boom)
	k := newTestKafka(w)

	assert.ErrorIs(t, k.Submit("orders-stream", "key", []byte("x")), boom)
	assert.Equal(t, uint64(0), k.Stats().Submitted)
}

func TestKafka_CompletionErrorEmitsFailures(t *testing.T) {
	k := newTestKafka(&MockWriter{})

	k.complete([]kafka.Message{
		{Topic: "orders-stream", Key: []byte("a"), Value: []byte("1")},
		{Topic: "orders-stream", Key: []byte("b"), Value: []byte("2")},
	}, errors.New("leader not available"))

	first := <-k.Failures()
	second := <-k.Failures()
	assert.Equal(t, "a", first.PartitionKey)
	assert.Equal(t, "b", second.PartitionKey)
	assert.Equal(t, "leader not available", second.Error)
	assert.Equal(t, uint64(2), k.Stats().Failed)
}

func TestKafka_CompletionSuccessEmitsNothing(t *testing.T) {
	k := newTestKafka(&MockWriter{})

	k.complete([]kafka.Message{{Topic: "orders-stream", Key: []byte("a")}}, nil)

	assert.Equal(t, uint64(0), k.Stats().Failed)
	assert.Len(t, k.failures, 0)
}

func TestKafka_CloseIsIdempotentAndRejectsLaterSubmits(t *testing.T) {
	w := &MockWriter{}
	w.On("Close").Return(nil).Once()
	k := newTestKafka(w)

	require.NoError(t, k.Close(context.Background()))
	require.NoError(t, k.Close(context.Background()))

	w.AssertExpectations(t)
	assert.False(t, k.Stats().Open)
	assert.ErrorIs(t, k.Submit("orders-stream", "key", []byte("x")), ErrProducerClosed)
	_, open := <-k.Failures()
	assert.False(t, open)
}

func TestKafka_CloseReportsWriterError(t *testing.T) {
	w := &MockWriter{}
	w.On("Close").Return(errors.New("broker gone"))
	k := newTestKafka(w)

	err := k.Close(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker gone")
}

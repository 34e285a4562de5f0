package outbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/quickshow-booking/internal/notify"
	"github.com/iliyamo/quickshow-booking/internal/repository"
)

type mockStore struct{ mock.Mock }

func (m *mockStore) Pending(ctx context.Context, limit int) ([]repository.OutboxEvent, error) {
	args := m.Called(ctx, limit)
	evs, _ := args.Get(0).([]repository.OutboxEvent)
	return evs, args.Error(1)
}

func (m *mockStore) MarkPublished(ctx context.Context, ids ...uint64) error {
	return m.Called(ctx, ids).Error(0)
}

type mockPublisher struct{ mock.Mock }

func (m *mockPublisher) Publish(ctx context.Context, eventType string, body []byte, messageID string) error {
	return m.Called(ctx, eventType, body, messageID).Error(0)
}

func events() []repository.OutboxEvent {
	return []repository.OutboxEvent{
		{ID: 7, Type: "booking.paid", Payload: []byte(`{"booking_id":"b1"}`)},
		{ID: 8, Type: "show.added", Payload: []byte(`{"show_id":"s1"}`)},
		{ID: 9, Type: "show.reminder", Payload: []byte(`{"show_id":"s1","user_id":1}`)},
	}
}

func TestFlush_PublishesAndMarks(t *testing.T) {
	store, pub := &mockStore{}, &mockPublisher{}
	store.On("Pending", mock.Anything, 50).Return(events(), nil)
	for _, ev := range events() {
		pub.On("Publish", mock.Anything, ev.Type, ev.Payload, MessageID(ev.ID)).Return(nil).Once()
	}
	store.On("MarkPublished", mock.Anything, []uint64{7, 8, 9}).Return(nil)

	n, err := NewForwarder(store, pub, 50, time.Second).Flush(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 3, n)
	store.AssertExpectations(t)
	pub.AssertExpectations(t)
}

func TestFlush_StopsAtFirstFailure(t *testing.T) {
	store, pub := &mockStore{}, &mockPublisher{}
	store.On("Pending", mock.Anything, 50).Return(events(), nil)
	pub.On("Publish", mock.Anything, "booking.paid", mock.Anything, "outbox-7").Return(nil)
	pub.On("Publish", mock.Anything, "show.added", mock.Anything, "outbox-8").Return(errors.New("channel closed"))
	store.On("MarkPublished", mock.Anything, []uint64{7}).Return(nil)

	n, err := NewForwarder(store, pub, 0, 0).Flush(context.Background())

	assert.ErrorContains(t, err, "channel closed")
	assert.Equal(t, 1, n)
	pub.AssertNotCalled(t, "Publish", mock.Anything, "show.reminder", mock.Anything, mock.Anything)
	store.AssertExpectations(t)
}

func TestFlush_NackedEventStaysPending(t *testing.T) {
	store, pub := &mockStore{}, &mockPublisher{}
	store.On("Pending", mock.Anything, 50).Return(events(), nil)
	pub.On("Publish", mock.Anything, "booking.paid", mock.Anything, "outbox-7").Return(notify.ErrNotConfirmed)

	n, err := NewForwarder(store, pub, 50, time.Second).Flush(context.Background())

	assert.ErrorIs(t, err, notify.ErrNotConfirmed)
	assert.Zero(t, n)
	store.AssertNotCalled(t, "MarkPublished", mock.Anything, mock.Anything)
	pub.AssertNumberOfCalls(t, "Publish", 1)
}

func TestFlush_Empty(t *testing.T) {
	store, pub := &mockStore{}, &mockPublisher{}
	store.On("Pending", mock.Anything, 50).Return(nil, nil)

	n, err := NewForwarder(store, pub, 50, time.Second).Flush(context.Background())

	require.NoError(t, err)
	assert.Zero(t, n)
	store.AssertNotCalled(t, "MarkPublished", mock.Anything, mock.Anything)
}

func TestRun_ReturnsOnCancel(t *testing.T) {
	store, pub := &mockStore{}, &mockPublisher{}
	store.On("Pending", mock.Anything, 50).Return(nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewForwarder(store, pub, 50, 10*time.Millisecond).Run(ctx) }()
	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("forwarder did not stop")
	}
}

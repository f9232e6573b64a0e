package bus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = time.Second

// collect watches sub and returns a channel fed with every delivered payload.
func collect(t *testing.T, sub *Subscription) <-chan any {
	t.Helper()
	out := make(chan any, 64)
	require.NoError(t, sub.Watch(func(p any) { out <- p }))
	return out
}

func receive(t *testing.T, ch <-chan any) any {
	t.Helper()
	select {
	case p := <-ch:
		return p
	case <-time.After(waitFor):
		t.Fatal("timed out waiting for payload")
		return nil
	}
}

func assertSilent(t *testing.T, ch <-chan any) {
	t.Helper()
	select {
	case p := <-ch:
		t.Fatalf("unexpected payload %v", p)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPublish_FanOut(t *testing.T) {
	ex := NewExchange()
	a := collect(t, ex.Subscribe("log"))
	b := collect(t, ex.Subscribe("log"))
	other := collect(t, ex.Subscribe("respond"))

	ex.Publish("log", "hello")

	assert.Equal(t, "hello", receive(t, a))
	assert.Equal(t, "hello", receive(t, b))
	assertSilent(t, other)
}

func TestPublish_PreservesOrderPerSubscriber(t *testing.T) {
	ex := NewExchange()
	ch := collect(t, ex.Subscribe("sc-order"))

	for i := range 50 {
		ex.Publish("sc-order", i)
	}
	for i := range 50 {
		require.Equal(t, i, receive(t, ch))
	}
}

func TestPublish_QueuedBeforeWatch(t *testing.T) {
	ex := NewExchange()
	sub := ex.Subscribe("report")
	ex.Publish("report", 1)

	ch := collect(t, sub)
	assert.Equal(t, 1, receive(t, ch))
}

func TestPublish_NoSubscribersIsNoop(t *testing.T) {
	ex := NewExchange()
	assert.NotPanics(t, func() { ex.Publish("nobody", "x") })
	assert.Empty(t, ex.Channels())
}

func TestPublish_FullQueueDrops(t *testing.T) {
	ex := NewExchange(WithBufferSize(2))
	sub := ex.Subscribe("log")

	for i := range 5 {
		ex.Publish("log", i)
	}

	ch := collect(t, sub)
	assert.Equal(t, 0, receive(t, ch))
	assert.Equal(t, 1, receive(t, ch))
	assertSilent(t, ch)
}

func TestUnsubscribe_StopsDelivery(t *testing.T) {
	ex := NewExchange()
	sub := ex.Subscribe("log")
	ch := collect(t, sub)

	sub.Unsubscribe()
	sub.Unsubscribe()

	select {
	case <-sub.Done():
	case <-time.After(waitFor):
		t.Fatal("subscription not stopped")
	}
	ex.Publish("log", "late")
	assertSilent(t, ch)
	assert.Zero(t, ex.SubscriberCount("log"))
	assert.NotContains(t, ex.Channels(), "log")
}

func TestDestroy_PublishAfterwardsIsDropped(t *testing.T) {
	ex := NewExchange()
	a := ex.Subscribe("peer:abc")
	b := ex.Subscribe("peer:abc")
	chA := collect(t, a)

	ex.Destroy("peer:abc")

	<-a.Done()
	<-b.Done()
	assert.Zero(t, ex.SubscriberCount("peer:abc"))
	assert.NotPanics(t, func() { ex.Publish("peer:abc", "after destroy") })
	assertSilent(t, chA)

	// The name can be reused; the new subscriber sees only new payloads.
	fresh := collect(t, ex.Subscribe("peer:abc"))
	ex.Publish("peer:abc", "again")
	assert.Equal(t, "again", receive(t, fresh))
}

func TestDestroy_UnknownChannel(t *testing.T) {
	ex := NewExchange()
	assert.NotPanics(t, func() { ex.Destroy("missing") })
}

func TestWatch_Twice(t *testing.T) {
	ex := NewExchange()
	sub := ex.Subscribe("log")
	require.NoError(t, sub.Watch(func(any) {}))
	assert.ErrorIs(t, sub.Watch(func(any) {}), ErrWatchTwice)
}

func TestClose_StopsEverything(t *testing.T) {
	ex := NewExchange()
	sub := ex.Subscribe("log")
	ex.Close()
	<-sub.Done()

	late := ex.Subscribe("log")
	select {
	case <-late.Done():
	default:
		t.Fatal("subscription on closed exchange should be stopped")
	}
	assert.Empty(t, ex.Channels())
}

func TestChannels_Sorted(t *testing.T) {
	ex := NewExchange()
	ex.Subscribe("respond")
	ex.Subscribe("log")
	ex.Subscribe("log")

	assert.Equal(t, []string{"log", "respond"}, ex.Channels())
	assert.Equal(t, 2, ex.SubscriberCount("log"))
}

func TestSubscription_StoppedAfterDestroy(t *testing.T) {
	ex := NewExchange()
	defer ex.Close()

	sub := ex.Subscribe("room")
	assert.False(t, sub.Stopped())

	ex.Destroy("room")
	assert.True(t, sub.Stopped())
}

package alert

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recv(t *testing.T, sub *Subscription) Event {
	t.Helper()
	select {
	case ev, ok := <-sub.C:
		require.True(t, ok, "subscription closed")
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event received")
		return Event{}
	}
}

func TestRepeatedAlertIsTwoEvents(t *testing.T) {
	hub := NewHub(0, zerolog.Nop())
	hub.Open("s1")
	sub := hub.Subscribe("s1")
	defer sub.Cancel()

	a := model.Alert{Severity: model.SeverityError, Message: "Face not detected"}
	first := hub.Publish("s1", a)
	second := hub.Publish("s1", a)

	assert.NotEqual(t, first.Seq, second.Seq)

	ev1 := recv(t, sub)
	ev2 := recv(t, sub)
	assert.Equal(t, EventAlert, ev1.Type)
	assert.Equal(t, EventAlert, ev2.Type)
	assert.Equal(t, first.Seq, ev1.Alert.Seq)
	assert.Equal(t, second.Seq, ev2.Alert.Seq)
	assert.Equal(t, "Face not detected", ev2.Alert.Message)
}

func TestAlertAutoClears(t *testing.T) {
	hub := NewHub(30*time.Millisecond, zerolog.Nop())
	hub.Open("s1")
	sub := hub.Subscribe("s1")
	defer sub.Cancel()

	published := hub.Publish("s1", model.Alert{Severity: model.SeverityWarning, Message: "Multiple faces detected."})
	require.NotNil(t, hub.Current("s1"))

	assert.Equal(t, EventAlert, recv(t, sub).Type)
	cleared := recv(t, sub)
	assert.Equal(t, EventAlertCleared, cleared.Type)
	assert.Equal(t, published.Seq, cleared.ClearedSeq)
	assert.Nil(t, hub.Current("s1"))
}

func TestNewerAlertRestartsDisplay(t *testing.T) {
	hub := NewHub(150*time.Millisecond, zerolog.Nop())
	hub.Open("s1")

	hub.Publish("s1", model.Alert{Message: "one"})
	time.Sleep(100 * time.Millisecond)
	second := hub.Publish("s1", model.Alert{Message: "two"})
	time.Sleep(100 * time.Millisecond)

	current := hub.Current("s1")
	require.NotNil(t, current)
	assert.Equal(t, second.Seq, current.Seq)

	assert.Eventually(t, func() bool { return hub.Current("s1") == nil }, time.Second, 10*time.Millisecond)
}

func TestSubscribeReplaysCurrentScreen(t *testing.T) {
	hub := NewHub(0, zerolog.Nop())
	hub.Open("s1")
	hub.Publish("s1", model.Alert{Message: "Connection lost"})
	hub.Navigate("s1", model.Route{View: model.ViewResults})

	sub := hub.Subscribe("s1")
	defer sub.Cancel()

	assert.Equal(t, EventAlert, recv(t, sub).Type)
	nav := recv(t, sub)
	assert.Equal(t, EventNavigate, nav.Type)
	assert.Equal(t, model.ViewResults, nav.Route.View)
	assert.Equal(t, model.ViewResults, hub.Route("s1").View)
}

func TestSessionsAreIsolated(t *testing.T) {
	hub := NewHub(0, zerolog.Nop())
	hub.Open("s1")
	hub.Open("s2")
	other := hub.Subscribe("s2")
	defer other.Cancel()

	hub.Publish("s1", model.Alert{Message: "only s1"})

	select {
	case ev := <-other.C:
		t.Fatalf("unexpected event %+v", ev)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestForgetClosesSubscriptions(t *testing.T) {
	hub := NewHub(0, zerolog.Nop())
	hub.Open("s1")
	sub := hub.Subscribe("s1")

	hub.Forget("s1")
	_, ok := <-sub.C
	assert.False(t, ok)

	sub.Cancel()
	assert.Nil(t, hub.Current("s1"))
}

func TestSlowSubscriberDoesNotBlock(t *testing.T) {
	hub := NewHub(0, zerolog.Nop())
	hub.Open("s1")
	sub := hub.Subscribe("s1")
	defer sub.Cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*2; i++ {
			hub.Publish("s1", model.Alert{Message: "tick"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
	assert.Len(t, sub.C, subscriberBuffer)
}

func TestForgottenSessionStaysClosed(t *testing.T) {
	hub := NewHub(time.Minute, zerolog.Nop())
	hub.Open("s1")
	hub.Publish("s1", model.Alert{Message: "Face not detected"})
	hub.Forget("s1")

	hub.Publish("s1", model.Alert{Message: "late"})
	hub.Navigate("s1", model.Route{View: model.ViewResults})
	sub := hub.Subscribe("s1")

	select {
	case _, ok := <-sub.C:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("subscription of a forgotten session is open")
	}
	sub.Cancel()

	assert.Nil(t, hub.Current("s1"))
	assert.Nil(t, hub.Route("s1"))
	assert.Equal(t, 0, hub.Len())
}

func TestUnknownSessionSubscriptionIsClosed(t *testing.T) {
	hub := NewHub(0, zerolog.Nop())
	sub := hub.Subscribe("nope")

	_, ok := <-sub.C
	assert.False(t, ok)
	assert.Equal(t, 0, hub.Len())
}

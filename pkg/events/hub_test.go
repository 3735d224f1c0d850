package events

import (
	"context"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

func TestHubPublishSubscribe(t *testing.T) {
	h := NewEventHub()
	a := h.Subscribe()
	b := h.Subscribe()

	h.Publish(FollowerCount, FollowerCountEvent{Account: "nasa", Count: 42, Ts: 1})

	for _, ch := range []chan Event{a, b} {
		ev := <-ch
		if ev.Name != FollowerCount {
			t.Errorf("Name = %q", ev.Name)
		}
		got, err := DecodeAs[FollowerCountEvent](ev)
		if err != nil {
			t.Fatal(err)
		}
		if got.Count != 42 || got.Account != "nasa" {
			t.Errorf("payload = %+v", got)
		}
	}

	h.Unsubscribe(a)
	h.Unsubscribe(a)
	if _, ok := <-a; ok {
		t.Errorf("channel still open after Unsubscribe")
	}
	if n := h.Subscribers(); n != 1 {
		t.Errorf("Subscribers() = %d, want 1", n)
	}
}

func TestHubDropsForSlowSubscriber(t *testing.T) {
	h := NewEventHub()
	ch := h.Subscribe()

	for i := 0; i < subscriberBuffer+10; i++ {
		h.Publish(FollowerCount, FollowerCountEvent{Count: i})
	}
	if len(ch) != subscriberBuffer {
		t.Errorf("buffered = %d, want %d", len(ch), subscriberBuffer)
	}
}

func TestNilHubPublish(t *testing.T) {
	var h *EventHub
	h.Publish(FollowerCount, nil)
}

func TestDecodeAsEmpty(t *testing.T) {
	got, err := DecodeAs[PhaseChangeEvent](Event{Name: PhaseChange})
	if err != nil || got != (PhaseChangeEvent{}) {
		t.Errorf("DecodeAs() = %+v, %v", got, err)
	}
}

type doneToken struct{ err error }

func (doneToken) Wait() bool                     { return true }
func (doneToken) WaitTimeout(time.Duration) bool { return true }
func (doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t doneToken) Error() error { return t.err }

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  string
}

type fakeMQTT struct {
	mu   sync.Mutex
	msgs []published
	got  chan struct{}
}

func (f *fakeMQTT) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	f.mu.Lock()
	f.msgs = append(f.msgs, published{topic, qos, retained, string(payload.([]byte))})
	f.mu.Unlock()
	f.got <- struct{}{}
	return doneToken{}
}

func TestMQTTBridgeForwardsCounts(t *testing.T) {
	h := NewEventHub()
	fake := &fakeMQTT{got: make(chan struct{}, 4)}
	b := &MQTTBridge{client: fake, topic: "followd/count"}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		b.Run(ctx, h)
		close(done)
	}()

	// wait for the bridge to subscribe
	deadline := time.Now().Add(2 * time.Second)
	for h.Subscribers() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("bridge did not subscribe")
		}
		time.Sleep(time.Millisecond)
	}

	h.Publish(PhaseChange, PhaseChangeEvent{From: "Idle", To: "Connected"})
	h.Publish(FollowerCount, FollowerCountEvent{Account: "nasa", Count: 7, Ts: 9})

	select {
	case <-fake.got:
	case <-time.After(2 * time.Second):
		t.Fatal("nothing published")
	}
	cancel()
	<-done

	fake.mu.Lock()
	defer fake.mu.Unlock()
	if len(fake.msgs) != 1 {
		t.Fatalf("published %d messages, want 1", len(fake.msgs))
	}
	m := fake.msgs[0]
	if m.topic != "followd/count" || !m.retained || m.qos != 1 {
		t.Errorf("message = %+v", m)
	}
	if m.payload != `{"account":"nasa","count":7,"ts":9}` {
		t.Errorf("payload = %s", m.payload)
	}
	if h.Subscribers() != 0 {
		t.Errorf("bridge still subscribed after Run returned")
	}
}

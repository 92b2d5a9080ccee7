package pubsub

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aria-robotics/telemetry/envelope"
)

func TestSubscribePublishDeliversOnlyMatchingTopic(t *testing.T) {
	hub := NewHub()
	server := httptest.NewServer(http.HandlerFunc(hub.ServeHTTP))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/"

	client := NewTransport()
	if err := client.Connect(context.Background(), wsURL); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer client.Disconnect()

	if err := client.Subscribe("telemetry/state"); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	time.Sleep(100 * time.Millisecond) // let the subscribe frame land before publishing

	received := make(chan envelope.Envelope, 2)
	client.OnReceive(func(e envelope.Envelope) { received <- e })

	matched := envelope.New("robot-1", "telemetry/state", envelope.P1, 1)
	unmatched := envelope.New("robot-1", "telemetry/other", envelope.P1, 2)
	hub.Publish(unmatched)
	hub.Publish(matched)

	select {
	case got := <-received:
		if got.Topic != "telemetry/state" {
			t.Fatalf("received topic = %q, want telemetry/state", got.Topic)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("subscribed envelope never arrived")
	}

	select {
	case extra := <-received:
		t.Fatalf("received unexpected second envelope for unsubscribed topic: %+v", extra)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestClientSendReachesHub(t *testing.T) {
	hub := NewHub()
	server := httptest.NewServer(http.HandlerFunc(hub.ServeHTTP))
	defer server.Close()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/"

	client := NewTransport()
	if err := client.Connect(context.Background(), wsURL); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer client.Disconnect()

	e := envelope.New("robot-1", "cmd/ack", envelope.P0, 3)
	if err := client.Send(context.Background(), e); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case got := <-hub.receiveHub:
		if got.Topic != "cmd/ack" {
			t.Fatalf("hub received topic = %q, want cmd/ack", got.Topic)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("hub never received the envelope")
	}
}

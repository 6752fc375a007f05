package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	gws "github.com/gorilla/websocket"

	"github.com/yegors/jetstream/internal/fleet"
	"github.com/yegors/jetstream/internal/realtime"
	"github.com/yegors/jetstream/pkg/logger"
)

type recorder struct {
	mu       sync.Mutex
	messages []realtime.Message
}

func (r *recorder) HandleMessage(msg realtime.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.messages)
}

func (r *recorder) last() realtime.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.messages[len(r.messages)-1]
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func newTestHub(t *testing.T) (*Server, string) {
	t.Helper()
	hub := NewServer(Options{}, logger.NewNop())
	ts := httptest.NewServer(hub)
	t.Cleanup(func() {
		hub.Close()
		ts.Close()
	})
	return hub, "ws" + strings.TrimPrefix(ts.URL, "http")
}

func newTestClient(t *testing.T, url string) *realtime.Client {
	t.Helper()
	opts := realtime.DefaultOptions()
	opts.ConnectTimeout = 2 * time.Second
	opts.ProbeInterval = time.Hour
	client := realtime.NewClient(url, opts, logger.NewNop())
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(client.Disconnect)
	return client
}

func dialRaw(t *testing.T, url string) *gws.Conn {
	t.Helper()
	conn, _, err := gws.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	if frame := readFrame(t, conn); frame.Type != realtime.FrameReady || frame.ID == "" {
		t.Fatalf("first frame = %+v, want ready with client id", frame)
	}
	return conn
}

func readFrame(t *testing.T, conn *gws.Conn) realtime.Frame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var frame realtime.Frame
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	return frame
}

func TestPublishReachesSubscribers(t *testing.T) {
	hub, url := newTestHub(t)
	client := newTestClient(t, url)

	channel := fleet.PositionChannel("A1")
	rec := &recorder{}
	unsubscribe := client.Subscribe(channel, rec)
	waitFor(t, "subscription", func() bool { return hub.SubscriberCount(channel) == 1 })

	pos := fleet.Position{AircraftID: "A1", Latitude: 42, Longitude: -71, Altitude: 35000, GroundSpeed: 450, Heading: 270}
	if err := hub.Publish(channel, pos); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	// Nobody listens here
	if err := hub.Publish(fleet.PositionChannel("B2"), pos); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	waitFor(t, "message", func() bool { return rec.count() == 1 })
	var got fleet.Position
	if err := rec.last().Decode(&got); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.Latitude != 42 || got.AircraftID != "A1" {
		t.Errorf("received %+v", got)
	}

	unsubscribe()
	waitFor(t, "unsubscribe", func() bool { return hub.SubscriberCount(channel) == 0 })
}

func TestTrackingControl(t *testing.T) {
	hub, url := newTestHub(t)

	var mu sync.Mutex
	var commands []fleet.TrackingCommand
	hub.SetControlHandler(func(clientID string, cmd fleet.TrackingCommand) {
		mu.Lock()
		defer mu.Unlock()
		commands = append(commands, cmd)
	})

	watcher := newTestClient(t, url)
	events := &recorder{}
	watcher.Subscribe(fleet.TrackingChannel("A1"), events)
	waitFor(t, "subscription", func() bool { return hub.SubscriberCount(fleet.TrackingChannel("A1")) == 1 })

	tracker := newTestClient(t, url)
	start := fleet.TrackingCommand{Action: fleet.TrackingStart, AircraftID: "A1", UpdateIntervalMs: 2000, RetryAttempts: 3}
	if err := tracker.Publish(context.Background(), fleet.TrackingControlChannel, start); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	waitFor(t, "tracking start", func() bool { return hub.Tracking().IsTracked("A1") })
	waitFor(t, "start event", func() bool { return events.count() == 1 })

	var event fleet.TrackingCommand
	events.last().Decode(&event)
	if event.Action != fleet.TrackingStart || event.AircraftID != "A1" {
		t.Errorf("event = %+v", event)
	}

	list := hub.Tracking().List()
	if len(list) != 1 || list[0].UpdateIntervalMs != 2000 || list[0].Clients != 1 {
		t.Errorf("tracking list = %+v", list)
	}

	mu.Lock()
	if len(commands) != 1 || commands[0] != start {
		t.Errorf("control handler saw %+v", commands)
	}
	mu.Unlock()

	// Dropping the only tracking client stops tracking
	tracker.Disconnect()
	waitFor(t, "tracking stop", func() bool { return !hub.Tracking().IsTracked("A1") })
	waitFor(t, "stop event", func() bool { return events.count() == 2 })
	events.last().Decode(&event)
	if event.Action != fleet.TrackingStop {
		t.Errorf("event = %+v", event)
	}
}

func TestProtocolErrors(t *testing.T) {
	_, url := newTestHub(t)
	conn := dialRaw(t, url)

	tests := []struct {
		name    string
		frame   realtime.Frame
		wantErr string
	}{
		{"publish on data channel", realtime.Frame{Type: realtime.FramePublish, Channel: fleet.PositionChannel("A1"), ID: "1", Data: json.RawMessage(`{}`)}, "only allowed"},
		{"invalid command", realtime.Frame{Type: realtime.FramePublish, Channel: fleet.TrackingControlChannel, ID: "2", Data: json.RawMessage(`{"action":"pause","aircraft_id":"A1"}`)}, "unknown tracking action"},
		{"malformed command", realtime.Frame{Type: realtime.FramePublish, Channel: fleet.TrackingControlChannel, ID: "3", Data: json.RawMessage(`[1]`)}, "malformed"},
		{"subscribe without channel", realtime.Frame{Type: realtime.FrameSubscribe, ID: "4"}, "without channel"},
		{"unknown type", realtime.Frame{Type: "shout", ID: "5"}, "unsupported"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := conn.WriteJSON(tt.frame); err != nil {
				t.Fatalf("WriteJSON: %v", err)
			}
			frame := readFrame(t, conn)
			if frame.Type != realtime.FrameError || frame.ID != tt.frame.ID || !strings.Contains(frame.Error, tt.wantErr) {
				t.Errorf("reply = %+v, want error containing %q", frame, tt.wantErr)
			}
		})
	}
}

func TestPingPong(t *testing.T) {
	_, url := newTestHub(t)
	conn := dialRaw(t, url)

	if err := conn.WriteJSON(realtime.Frame{Type: realtime.FramePing, ID: "probe-1"}); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	if frame := readFrame(t, conn); frame.Type != realtime.FramePong || frame.ID != "probe-1" {
		t.Errorf("reply = %+v", frame)
	}
}

func TestClose(t *testing.T) {
	hub, url := newTestHub(t)
	dialRaw(t, url)
	waitFor(t, "client", func() bool { return hub.ClientCount() == 1 })

	if err := hub.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	waitFor(t, "clients gone", func() bool { return hub.ClientCount() == 0 })

	if err := hub.Publish("any", 1); !errors.Is(err, ErrClosed) {
		t.Errorf("Publish after Close = %v, want ErrClosed", err)
	}
	if _, _, err := gws.DefaultDialer.Dial(url, nil); err == nil {
		t.Error("Dial after Close succeeded")
	}
}

func TestTrackingRegistry(t *testing.T) {
	r := NewTrackingRegistry()
	start := func(id string) fleet.TrackingCommand {
		return fleet.TrackingCommand{Action: fleet.TrackingStart, AircraftID: id}
	}

	steps := []struct {
		name string
		do   func() bool
		want bool
	}{
		{"first start", func() bool { return r.Start("c1", start("A1")) }, true},
		{"repeated start", func() bool { return r.Start("c1", start("A1")) }, false},
		{"second client", func() bool { return r.Start("c2", start("A1")) }, false},
		{"stop unknown client", func() bool { return r.Stop("c3", "A1") }, false},
		{"stop one of two", func() bool { return r.Stop("c1", "A1") }, false},
		{"stop last", func() bool { return r.Stop("c2", "A1") }, true},
		{"stop untracked", func() bool { return r.Stop("c2", "A1") }, false},
	}
	for _, step := range steps {
		if got := step.do(); got != step.want {
			t.Errorf("%s = %v, want %v", step.name, got, step.want)
		}
	}

	r.Start("c1", start("B2"))
	r.Start("c1", start("A1"))
	r.Start("c2", start("A1"))
	untracked := r.RemoveClient("c1")
	if len(untracked) != 1 || untracked[0] != "B2" {
		t.Errorf("RemoveClient = %v, want [B2]", untracked)
	}
	if !r.IsTracked("A1") || r.IsTracked("B2") {
		t.Errorf("tracked = %+v", r.List())
	}
}

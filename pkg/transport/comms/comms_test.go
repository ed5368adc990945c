package comms

import (
	"context"
	"errors"
	"testing"
	"time"

	commsserver "github.com/nats-io/nats-server/v2/server"
	comms "github.com/nats-io/nats.go"

	"github.com/MeteorMsg/Meteor/pkg/transport"
)

const commsTestPrefix = "comms:comms_test"

// startTestServer starts an in-process NATS server for testing.
func startTestServer(t *testing.T, port int) (*commsserver.Server, *comms.Conn) {
	t.Helper()

	opts := &commsserver.Options{
		Host:   "127.0.0.1",
		Port:   port,
		NoLog:  true,
		NoSigs: true,
	}

	ns, err := commsserver.NewServer(opts)
	if err != nil {
		t.Fatalf("%s - failed to create server: %v", commsTestPrefix, err)
	}

	go ns.Start()
	if !ns.ReadyForConnections(10 * time.Second) {
		t.Fatalf("%s - server failed to start", commsTestPrefix)
	}

	nc, err := comms.Connect(ns.ClientURL(), comms.Timeout(5*time.Second))
	if err != nil {
		ns.Shutdown()
		t.Fatalf("%s - failed to connect: %v", commsTestPrefix, err)
	}

	t.Cleanup(func() {
		nc.Close()
		ns.Shutdown()
		ns.WaitForShutdown()
	})
	return ns, nc
}

func TestNew_Subjects(t *testing.T) {
	tests := []struct {
		name     string
		opts     *Opts
		wantImpl string
		wantCall string
	}{
		{"defaults", nil, "meteor_towardimplementation", "meteor_towardcaller"},
		{"custom channel", &Opts{Channel: "math"}, "math_towardimplementation", "math_towardcaller"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := New(nil, tt.opts)
			if got := tr.Subject(transport.ToImplementation); got != tt.wantImpl {
				t.Errorf("%s - implementation subject = %q, want %q", commsTestPrefix, got, tt.wantImpl)
			}
			if got := tr.Subject(transport.ToCaller); got != tt.wantCall {
				t.Errorf("%s - caller subject = %q, want %q", commsTestPrefix, got, tt.wantCall)
			}
		})
	}
}

func TestTransport_SendSubscribe(t *testing.T) {
	_, nc := startTestServer(t, 14250)
	tr := New(nc, &Opts{Channel: "test"})
	defer tr.Close()

	received := make(chan []byte, 1)
	if err := tr.Subscribe(transport.ToImplementation, func(p []byte) { received <- p }); err != nil {
		t.Fatalf("%s - Subscribe: %v", commsTestPrefix, err)
	}

	if err := tr.Send(context.Background(), transport.ToImplementation, []byte(`{"id":"1"}`)); err != nil {
		t.Fatalf("%s - Send: %v", commsTestPrefix, err)
	}
	nc.Flush()

	select {
	case got := <-received:
		if string(got) != `{"id":"1"}` {
			t.Errorf("%s - payload = %s", commsTestPrefix, got)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("%s - timed out waiting for message", commsTestPrefix)
	}
}

func TestTransport_DirectionsAreSeparate(t *testing.T) {
	_, nc := startTestServer(t, 14251)
	tr := New(nc, nil)
	defer tr.Close()

	toCaller := make(chan []byte, 1)
	_ = tr.Subscribe(transport.ToCaller, func(p []byte) { toCaller <- p })

	// A raw subscriber on the implementation subject proves the wire subject name.
	raw := make(chan *comms.Msg, 1)
	sub, err := nc.Subscribe("meteor_towardimplementation", func(msg *comms.Msg) { raw <- msg })
	if err != nil {
		t.Fatalf("%s - raw subscribe: %v", commsTestPrefix, err)
	}
	defer sub.Unsubscribe()

	_ = tr.Send(context.Background(), transport.ToImplementation, []byte("descriptor"))
	nc.Flush()

	select {
	case msg := <-raw:
		if string(msg.Data) != "descriptor" {
			t.Errorf("%s - raw payload = %s", commsTestPrefix, msg.Data)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("%s - implementation subject never received the message", commsTestPrefix)
	}

	select {
	case p := <-toCaller:
		t.Errorf("%s - caller subject received %q", commsTestPrefix, p)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestTransport_TwoConnectionsShareChannel(t *testing.T) {
	ns, nc := startTestServer(t, 14252)

	other, err := Dial(ns.ClientURL(), "impl-side", "shared")
	if err != nil {
		t.Fatalf("%s - Dial: %v", commsTestPrefix, err)
	}
	defer other.Close()

	received := make(chan []byte, 1)
	if err := other.Subscribe(transport.ToImplementation, func(p []byte) { received <- p }); err != nil {
		t.Fatalf("%s - Subscribe: %v", commsTestPrefix, err)
	}

	caller := New(nc, &Opts{Channel: "shared"})
	defer caller.Close()
	_ = caller.Send(context.Background(), transport.ToImplementation, []byte("ping"))
	nc.Flush()

	select {
	case got := <-received:
		if string(got) != "ping" {
			t.Errorf("%s - payload = %s", commsTestPrefix, got)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("%s - message not delivered across connections", commsTestPrefix)
	}
}

func TestTransport_Closed(t *testing.T) {
	_, nc := startTestServer(t, 14253)
	tr := New(nc, nil)

	got := make(chan []byte, 1)
	_ = tr.Subscribe(transport.ToCaller, func(p []byte) { got <- p })

	if err := tr.Close(); err != nil {
		t.Fatalf("%s - Close: %v", commsTestPrefix, err)
	}
	if err := tr.Close(); err != nil {
		t.Errorf("%s - second Close: %v", commsTestPrefix, err)
	}
	if err := tr.Send(context.Background(), transport.ToCaller, []byte("x")); !errors.Is(err, transport.ErrClosed) {
		t.Errorf("%s - expected ErrClosed, got %v", commsTestPrefix, err)
	}
	if err := tr.Subscribe(transport.ToCaller, func([]byte) {}); !errors.Is(err, transport.ErrClosed) {
		t.Errorf("%s - expected ErrClosed, got %v", commsTestPrefix, err)
	}

	// Borrowed connection stays usable and the old subscription is gone.
	if err := nc.Publish("meteor_towardcaller", []byte("late")); err != nil {
		t.Fatalf("%s - borrowed connection closed by transport: %v", commsTestPrefix, err)
	}
	nc.Flush()
	select {
	case p := <-got:
		t.Errorf("%s - unsubscribed handler received %q", commsTestPrefix, p)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestTransport_Ping(t *testing.T) {
	_, nc := startTestServer(t, 14254)
	tr := New(nc, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := tr.Ping(ctx); err != nil {
		t.Errorf("%s - Ping on live connection: %v", commsTestPrefix, err)
	}

	nc.Close()
	if err := tr.Ping(ctx); err == nil {
		t.Errorf("%s - expected Ping to fail on closed connection", commsTestPrefix)
	}
}

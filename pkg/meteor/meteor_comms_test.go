package meteor

import (
	"context"
	"errors"
	"testing"
	"time"

	commsserver "github.com/nats-io/nats-server/v2/server"

	"github.com/MeteorMsg/Meteor/internal/mathfunctions"
	"github.com/MeteorMsg/Meteor/pkg/invocation"
	"github.com/MeteorMsg/Meteor/pkg/serializer"
	"github.com/MeteorMsg/Meteor/pkg/transport/comms"
)

const meteorCommsTestPrefix = "meteor:meteor_comms_test"

func startCommsServer(t *testing.T, port int) string {
	t.Helper()

	ns, err := commsserver.NewServer(&commsserver.Options{
		Host:   "127.0.0.1",
		Port:   port,
		NoLog:  true,
		NoSigs: true,
	})
	if err != nil {
		t.Fatalf("%s - failed to create server: %v", meteorCommsTestPrefix, err)
	}
	go ns.Start()
	if !ns.ReadyForConnections(10 * time.Second) {
		t.Fatalf("%s - server failed to start", meteorCommsTestPrefix)
	}
	t.Cleanup(func() {
		ns.Shutdown()
		ns.WaitForShutdown()
	})
	return ns.ClientURL()
}

func dialMeteor(t *testing.T, url, name string, opts ...Option) *Meteor {
	t.Helper()
	tr, err := comms.Dial(url, name, "e2e")
	if err != nil {
		t.Fatalf("%s - Dial %s: %v", meteorCommsTestPrefix, name, err)
	}
	m, err := New(tr, opts...)
	if err != nil {
		t.Fatalf("%s - New %s: %v", meteorCommsTestPrefix, name, err)
	}
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestComms_EndToEnd(t *testing.T) {
	url := startCommsServer(t, 14260)

	for _, s := range []serializer.Serializer{serializer.JSON{}, serializer.Msgpack{}} {
		t.Run(s.Name(), func(t *testing.T) {
			server := dialMeteor(t, url, "math-server",
				WithSerializer(s),
				WithServices(mathfunctions.ServiceDesc),
				WithIgnoreUnknownProcedures(),
			)
			if _, err := server.RegisterImplementation(mathfunctions.Impl{}, ""); err != nil {
				t.Fatalf("%s - RegisterImplementation: %v", meteorCommsTestPrefix, err)
			}
			if _, err := server.RegisterImplementation(failingImpl{}, mathfunctions.NamespaceCooler); err != nil {
				t.Fatalf("%s - RegisterImplementation: %v", meteorCommsTestPrefix, err)
			}

			client := dialMeteor(t, url, "math-client",
				WithSerializer(s),
				WithTimeout(5*time.Second),
				WithIgnoreUnknownProcedures(),
			)
			math := mathClient(t, client, "")
			cooler := mathClient(t, client, mathfunctions.NamespaceCooler)
			ctx := context.Background()

			if got, err := math.Add(ctx, 1, 2, 3, 4, 5); err != nil || got != 15 {
				t.Errorf("%s - Add = %d, %v; want 15", meteorCommsTestPrefix, got, err)
			}
			if got, err := math.Substract(ctx, 5); err != nil || got != 5 {
				t.Errorf("%s - Substract = %d, %v; want 5", meteorCommsTestPrefix, got, err)
			}

			_, err := cooler.Multiply(ctx, 2, 3)
			var remote *invocation.RemoteInvocationError
			if !errors.As(err, &remote) || remote.Message != "multiply is broken" {
				t.Errorf("%s - expected remote error from cooler namespace, got %v", meteorCommsTestPrefix, err)
			}
		})
	}
}

func TestComms_ConcurrentCallers(t *testing.T) {
	url := startCommsServer(t, 14261)

	server := dialMeteor(t, url, "math-server", WithServices(mathfunctions.ServiceDesc))
	if _, err := server.RegisterImplementation(mathfunctions.Impl{}, ""); err != nil {
		t.Fatalf("%s - RegisterImplementation: %v", meteorCommsTestPrefix, err)
	}
	client := dialMeteor(t, url, "math-client", WithTimeout(5*time.Second), WithIgnoreUnknownProcedures())
	math := mathClient(t, client, "")

	const calls = 50
	errs := make(chan error, calls)
	for i := 0; i < calls; i++ {
		go func(i int) {
			got, err := math.Multiply(context.Background(), i, 2)
			if err == nil && got != i*2 {
				err = errors.New("result routed to the wrong caller")
			}
			errs <- err
		}(i)
	}
	for i := 0; i < calls; i++ {
		if err := <-errs; err != nil {
			t.Errorf("%s - %v", meteorCommsTestPrefix, err)
		}
	}
	if pending := client.Health().Checks.Pending; pending != 0 {
		t.Errorf("%s - %d invocations left pending", meteorCommsTestPrefix, pending)
	}
}

// Package mqtt carries invocations over an MQTT broker at QoS 0, which
// matches the at-most-once contract of the invocation engine.
package mqtt

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/MeteorMsg/Meteor/pkg/commsutil"
	"github.com/MeteorMsg/Meteor/pkg/transport"
)

const logPrefix = "mqtt:mqtt"

const (
	qos            byte = 0
	publishTimeout      = 2 * time.Second
	subscribeWait       = 5 * time.Second
	connectWait         = 5 * time.Second
	quiesceMillis  uint = 250
)

// Opts configures a Transport. Nil or zero values use defaults.
type Opts struct {
	Channel       string
	OwnsClient    bool
	PublishWait   time.Duration
	SubscribeWait time.Duration
}

// Transport publishes and subscribes on two MQTT topics.
type Transport struct {
	client        mqtt.Client
	topics        map[transport.Direction]string
	ownsClient    bool
	publishWait   time.Duration
	subscribeWait time.Duration

	mu         sync.Mutex
	subscribed []string
	closed     bool
}

// New creates a Transport over a connected client. Pass nil for opts to use defaults.
func New(client mqtt.Client, opts *Opts) *Transport {
	t := &Transport{
		client:        client,
		topics:        commsutil.BuildTopics(commsutil.DefaultChannel),
		publishWait:   publishTimeout,
		subscribeWait: subscribeWait,
	}
	if opts != nil {
		if opts.Channel != "" {
			t.topics = commsutil.BuildTopics(opts.Channel)
		}
		if opts.PublishWait > 0 {
			t.publishWait = opts.PublishWait
		}
		if opts.SubscribeWait > 0 {
			t.subscribeWait = opts.SubscribeWait
		}
		t.ownsClient = opts.OwnsClient
	}
	return t
}

// Dial connects to broker (host:port or a full URL) and returns a Transport
// that owns the client.
func Dial(broker, clientID, channel string) (*Transport, error) {
	opts := clientOptions(broker, clientID)
	client := mqtt.NewClient(opts)
	slog.Info(fmt.Sprintf("%s - Connecting to MQTT broker %s", logPrefix, broker))
	token := client.Connect()
	if !token.WaitTimeout(connectWait) {
		return nil, fmt.Errorf("%s - MQTT connection to %s timed out", logPrefix, broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%s - MQTT connection failed: %w", logPrefix, err)
	}
	return New(client, &Opts{Channel: channel, OwnsClient: true}), nil
}

// clientOptions reconnects after a lost connection; the first connect is not retried.
func clientOptions(broker, clientID string) *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(brokerURL(broker))
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.SetCleanSession(false)
	opts.SetResumeSubs(true)

	opts.OnConnect = func(mqtt.Client) {
		slog.Info(fmt.Sprintf("%s - MQTT connection established broker=%s client_id=%s", logPrefix, broker, clientID))
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		slog.Warn(fmt.Sprintf("%s - MQTT connection lost, in-flight invocations may time out: %v", logPrefix, err))
	}
	return opts
}

func brokerURL(broker string) string {
	if strings.Contains(broker, "://") {
		return broker
	}
	return "tcp://" + broker
}

// Topic returns the topic used for dir.
func (t *Transport) Topic(dir transport.Direction) string {
	return t.topics[dir]
}

func (t *Transport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func waitToken(ctx context.Context, token mqtt.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("timed out after %s", timeout)
	}
}

// Send publishes payload on the topic for dir.
func (t *Transport) Send(ctx context.Context, dir transport.Direction, payload []byte) error {
	if t.isClosed() {
		return transport.ErrClosed
	}
	topic := t.topics[dir]
	if err := waitToken(ctx, t.client.Publish(topic, qos, false, payload), t.publishWait); err != nil {
		return fmt.Errorf("%s - failed to publish to %s: %w", logPrefix, topic, err)
	}
	return nil
}

// Subscribe delivers every message on the topic for dir to handler.
func (t *Transport) Subscribe(dir transport.Direction, handler transport.Handler) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return transport.ErrClosed
	}

	topic := t.topics[dir]
	token := t.client.Subscribe(topic, qos, func(_ mqtt.Client, msg mqtt.Message) {
		handler(msg.Payload())
	})
	if err := waitToken(context.Background(), token, t.subscribeWait); err != nil {
		return fmt.Errorf("%s - failed to subscribe to %s: %w", logPrefix, topic, err)
	}
	t.subscribed = append(t.subscribed, topic)
	slog.Info(fmt.Sprintf("%s - Subscribed to %s", logPrefix, topic))
	return nil
}

// Ping reports whether the client holds a live broker connection.
func (t *Transport) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !t.client.IsConnectionOpen() {
		return fmt.Errorf("%s - not connected to broker", logPrefix)
	}
	return nil
}

// Close unsubscribes and, when the transport owns the client, disconnects it.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	topics := t.subscribed
	t.subscribed = nil
	t.mu.Unlock()

	if len(topics) > 0 && t.client.IsConnected() {
		if err := waitToken(context.Background(), t.client.Unsubscribe(topics...), t.subscribeWait); err != nil {
			slog.Warn(fmt.Sprintf("%s - failed to unsubscribe: %v", logPrefix, err))
		}
	}
	if t.ownsClient {
		t.client.Disconnect(quiesceMillis)
		slog.Info(fmt.Sprintf("%s - MQTT disconnected", logPrefix))
	}
	return nil
}

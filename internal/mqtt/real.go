package mqtt

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/sony/gobreaker"

	"github.com/sweeney/plant-waterer/internal/logic"
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
	connectRetries = 4
	bufferCapacity = 100
)

var errPublishTimeout = errors.New("publish timeout")

// client is the subset of paho.Client the publisher uses.
type client interface {
	IsConnected() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Disconnect(quiesce uint)
}

// RealPublisher publishes to an actual MQTT broker. Messages that cannot be
// delivered (disconnected, broker slow, breaker open) are kept in a ring
// buffer and replayed on the next connect.
type RealPublisher struct {
	client  client
	breaker *gobreaker.CircuitBreaker
	bootID  string
	timeout time.Duration

	mu        sync.Mutex
	buffer    *ringBuffer
	connected bool // set after the first successful connect
}

// NewRealPublisher connects to broker, retrying with exponential backoff.
// A retained OFFLINE will is registered on TopicSystem.
func NewRealPublisher(broker, clientID, bootID string) (*RealPublisher, error) {
	p := newPublisher(nil, bootID)

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetMaxReconnectInterval(time.Minute).
		SetBinaryWill(TopicSystem, WillPayload(bootID), 1, true).
		SetOnConnectHandler(func(paho.Client) { p.onConnect() }).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Printf("mqtt: connection lost: %v", err)
		})

	c := paho.NewClient(opts)
	p.client = c

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 30 * time.Second
	err := backoff.Retry(func() error {
		token := c.Connect()
		if !token.WaitTimeout(connectTimeout) {
			log.Printf("mqtt: connect to %s timed out", broker)
			return errors.New("connection timeout")
		}
		if err := token.Error(); err != nil {
			log.Printf("mqtt: connect to %s failed: %v", broker, err)
			return err
		}
		return nil
	}, backoff.WithMaxRetries(bo, connectRetries))
	if err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	return p, nil
}

func newPublisher(c client, bootID string) *RealPublisher {
	return &RealPublisher{
		client:  c,
		bootID:  bootID,
		timeout: publishTimeout,
		buffer:  newRingBuffer(bufferCapacity),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "mqtt-publish",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= 3
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Printf("mqtt: breaker %s %s -> %s", name, from, to)
			},
		}),
	}
}

// Publish sends a policy event to the MQTT broker.
func (p *RealPublisher) Publish(event logic.Event) error {
	payload, err := FormatPayload(event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	// QoS 0 (at-most-once), not retained
	return p.send(bufferedMsg{topic: Topic, payload: payload})
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	// QoS 1 (at-least-once) for lifecycle events
	return p.send(bufferedMsg{topic: TopicSystem, payload: payload, qos: 1, retained: event.Retained})
}

// IsConnected reports whether the client currently holds a broker connection.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnected()
}

// Buffered returns the number of messages waiting for replay.
func (p *RealPublisher) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buffer.len()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second quiesce
	return nil
}

func (p *RealPublisher) send(msg bufferedMsg) error {
	if !p.client.IsConnected() {
		p.hold(msg)
		return nil
	}

	_, err := p.breaker.Execute(func() (interface{}, error) {
		return nil, p.publish(msg)
	})
	if err != nil {
		p.hold(msg)
		return fmt.Errorf("publish %s: %w", msg.topic, err)
	}
	return nil
}

func (p *RealPublisher) publish(msg bufferedMsg) error {
	token := p.client.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
	if !token.WaitTimeout(p.timeout) {
		return errPublishTimeout
	}
	return token.Error()
}

func (p *RealPublisher) hold(msg bufferedMsg) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.buffer.push(msg)
}

// onConnect replays buffered messages. On reconnects it also announces
// RECONNECTED so subscribers can discard the stale retained will.
func (p *RealPublisher) onConnect() {
	p.mu.Lock()
	msgs, dropped := p.buffer.drainAll()
	reconnect := p.connected
	p.connected = true
	p.mu.Unlock()

	if reconnect {
		log.Printf("mqtt: reconnected")
		payload, _ := FormatSystemPayload(SystemEvent{
			Timestamp: time.Now(),
			Event:     "RECONNECTED",
			BootID:    p.bootID,
		})
		msgs = append(msgs, bufferedMsg{topic: TopicSystem, payload: payload, qos: 1})
	}

	if dropped > 0 {
		log.Printf("mqtt: buffer overflowed, %d messages dropped", dropped)
	}

	replayed := 0
	for i, msg := range msgs {
		if err := p.publish(msg); err != nil {
			log.Printf("mqtt: replay failed: %v", err)
			p.mu.Lock()
			for _, rest := range msgs[i:] {
				p.buffer.push(rest)
			}
			p.mu.Unlock()
			break
		}
		replayed++
	}
	if replayed > 0 {
		log.Printf("mqtt: replayed %d messages", replayed)
	}
}

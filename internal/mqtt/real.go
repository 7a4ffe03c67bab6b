package mqtt

import (
	"fmt"
	"log"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// BufferSize is the number of messages held while the broker is unreachable.
const BufferSize = 256

// DefaultClientID is used when no client id is configured.
const DefaultClientID = "firefinder"

const publishTimeout = 5 * time.Second

// RealPublisher publishes to an actual MQTT broker. Messages published while
// disconnected are buffered and replayed, oldest first, on reconnect.
type RealPublisher struct {
	client paho.Client
	now    func() time.Time

	mu        sync.Mutex
	connected bool
	wasLost   bool
	buf       *ringBuffer
}

// NewRealPublisher starts connecting to broker in the background and
// returns immediately. The broker receives a retained SHUTDOWN will if the
// connection drops uncleanly.
func NewRealPublisher(broker, clientID string) *RealPublisher {
	if clientID == "" {
		clientID = DefaultClientID
	}
	p := newPublisher(nil)

	will, _ := FormatSystemPayload(SystemEvent{
		Timestamp: p.now(),
		Event:     "SHUTDOWN",
		Reason:    "MQTT_DISCONNECT",
	})
	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetBinaryWill(TopicSystem, will, 1, true).
		SetOnConnectHandler(func(paho.Client) { p.onConnect() }).
		SetConnectionLostHandler(func(_ paho.Client, err error) { p.onConnectionLost(err) })

	p.client = paho.NewClient(opts)
	p.client.Connect()
	return p
}

func newPublisher(client paho.Client) *RealPublisher {
	return &RealPublisher{
		client: client,
		now:    time.Now,
		buf:    newRingBuffer(BufferSize),
	}
}

// Publish sends a fire event to the broker.
func (p *RealPublisher) Publish(event Event) error {
	payload, err := FormatPayload(event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	// QoS 1: fire events are rare and should not be lost.
	return p.send(bufferedMsg{topic: Topic, payload: payload, qos: 1})
}

// PublishSystem sends a system event to the broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	return p.send(bufferedMsg{topic: TopicSystem, payload: payload, qos: 1, retained: event.Retained})
}

// IsConnected reports whether the client currently holds a broker session.
func (p *RealPublisher) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

// Buffered returns the number of messages waiting for a connection.
func (p *RealPublisher) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf.len()
}

// Close disconnects from the broker. Buffered messages are discarded.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second grace
	return nil
}

func (p *RealPublisher) send(msg bufferedMsg) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.connected {
		p.buf.push(msg)
		return nil
	}
	return p.write(msg)
}

// write must be called with mu held.
func (p *RealPublisher) write(msg bufferedMsg) error {
	token := p.client.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish %s: timeout", msg.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", msg.topic, err)
	}
	return nil
}

func (p *RealPublisher) onConnect() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connected = true

	pending := p.buf.drainAll()
	if len(pending) > 0 {
		log.Printf("mqtt: connected, replaying %d buffered messages", len(pending))
	}
	for i, msg := range pending {
		if err := p.write(msg); err != nil {
			log.Printf("mqtt: replay failed: %v", err)
			for _, rest := range pending[i:] {
				p.buf.push(rest)
			}
			return
		}
	}

	if p.wasLost {
		p.wasLost = false
		payload, _ := FormatSystemPayload(SystemEvent{Timestamp: p.now(), Event: "RECONNECTED"})
		if err := p.write(bufferedMsg{topic: TopicSystem, payload: payload, qos: 1}); err != nil {
			log.Printf("mqtt: publish reconnected event: %v", err)
		}
	}
}

func (p *RealPublisher) onConnectionLost(err error) {
	log.Printf("mqtt: connection lost: %v", err)
	p.mu.Lock()
	p.connected = false
	p.wasLost = true
	p.mu.Unlock()
}

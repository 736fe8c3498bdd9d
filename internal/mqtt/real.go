package mqtt

import (
	"fmt"
	"log"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/sweeney/study-station/internal/logic"
)

// bufferCapacity is the number of messages kept while disconnected.
const bufferCapacity = 100

// RealPublisher publishes to an actual MQTT broker.
// Messages published while the connection is down are buffered and
// replayed in order once it comes back.
type RealPublisher struct {
	client   paho.Client
	deviceID string

	mu        sync.Mutex
	buffer    *ringBuffer
	connected bool
	everUp    bool
}

// NewRealPublisher creates a publisher connected to the given broker.
func NewRealPublisher(broker, clientID, deviceID string) (*RealPublisher, error) {
	p := &RealPublisher{
		deviceID: deviceID,
		buffer:   newRingBuffer(bufferCapacity),
	}

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetWill(TopicSystem(deviceID), string(WillPayload()), 1, true).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(p.onConnectionLost)

	p.client = paho.NewClient(opts)
	token := p.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		// paho keeps retrying in the background; messages are buffered
		// until onConnect fires.
		log.Printf("mqtt: broker %s not reachable yet, buffering", broker)
		return p, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	return p, nil
}

func (p *RealPublisher) onConnect(c paho.Client) {
	p.mu.Lock()
	p.connected = true
	reconnect := p.everUp
	p.everUp = true
	pending := p.buffer.drainAll()
	p.mu.Unlock()

	if reconnect {
		log.Printf("mqtt: reconnected, replaying %d buffered messages", len(pending))
		if payload, err := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "RECONNECTED"}); err == nil {
			pending = append(pending, bufferedMsg{topic: TopicSystem(p.deviceID), payload: payload, qos: 1})
		}
	}
	for _, m := range pending {
		// Fire and forget; the handler runs on paho's connection goroutine.
		c.Publish(m.topic, m.qos, m.retained, m.payload)
	}
}

func (p *RealPublisher) onConnectionLost(_ paho.Client, err error) {
	p.mu.Lock()
	p.connected = false
	p.mu.Unlock()
	log.Printf("mqtt: connection lost: %v", err)
}

// Publish sends a notification to the MQTT broker.
func (p *RealPublisher) Publish(n logic.Notification) error {
	payload, err := FormatPayload(p.deviceID, n)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	// QoS 0 (at-most-once), not retained
	return p.send(bufferedMsg{topic: TopicEvents(p.deviceID), payload: payload})
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	// QoS 1 (at-least-once) for lifecycle events
	return p.send(bufferedMsg{topic: TopicSystem(p.deviceID), payload: payload, qos: 1, retained: event.Retained})
}

func (p *RealPublisher) send(m bufferedMsg) error {
	p.mu.Lock()
	if !p.connected {
		p.buffer.push(m)
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	token := p.client.Publish(m.topic, m.qos, m.retained, m.payload)
	if !token.WaitTimeout(5 * time.Second) {
		p.requeue(m)
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		p.requeue(m)
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

func (p *RealPublisher) requeue(m bufferedMsg) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.buffer.push(m)
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

// Buffered returns the number of messages waiting for a connection.
func (p *RealPublisher) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buffer.len()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}

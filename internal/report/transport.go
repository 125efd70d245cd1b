package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/wesleywu/lte-failover/internal/config"
)

// Transport delivers an encoded report to a topic.
type Transport interface {
	Publish(topic string, payload []byte) error
	Close() error
}

const mqttTimeout = 5 * time.Second

// MQTTTransport publishes to an MQTT broker. The connection is established
// lazily and kept open by the client's auto-reconnect.
type MQTTTransport struct {
	client mqtt.Client
}

func NewMQTTTransport(broker, clientID string) *MQTTTransport {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(mqttTimeout).
		SetWriteTimeout(mqttTimeout)
	return &MQTTTransport{client: mqtt.NewClient(opts)}
}

func (t *MQTTTransport) Publish(topic string, payload []byte) error {
	if !t.client.IsConnected() {
		tok := t.client.Connect()
		if !tok.WaitTimeout(mqttTimeout) {
			return errors.New("mqtt connect timed out")
		}
		if err := tok.Error(); err != nil {
			return fmt.Errorf("failed to connect to broker: %w", err)
		}
	}

	tok := t.client.Publish(topic, 0, false, payload)
	if !tok.WaitTimeout(mqttTimeout) {
		return fmt.Errorf("publish to %s timed out", topic)
	}
	if err := tok.Error(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	return nil
}

func (t *MQTTTransport) Close() error {
	if t.client.IsConnected() {
		t.client.Disconnect(250)
	}
	return nil
}

// FileTransport appends one JSON line per report. It is used when no
// broker is configured.
type FileTransport struct {
	mu sync.Mutex
	f  *os.File
}

type fileRecord struct {
	Topic   string          `json:"topic"`
	Payload json.RawMessage `json:"payload"`
}

func NewFileTransport(path string) (*FileTransport, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create telemetry directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open telemetry file: %w", err)
	}
	return &FileTransport{f: f}, nil
}

func (t *FileTransport) Publish(topic string, payload []byte) error {
	line, err := json.Marshal(fileRecord{Topic: topic, Payload: payload})
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}
	line = append(line, '\n')

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, err := t.f.Write(line); err != nil {
		return fmt.Errorf("failed to write telemetry: %w", err)
	}
	return nil
}

func (t *FileTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.f.Close()
}

// NewTransport picks MQTT when a broker is configured, the telemetry file
// otherwise. It returns nil when neither is set.
func NewTransport(cfg *config.Config) (Transport, error) {
	switch {
	case cfg.MQTTBroker != "":
		return NewMQTTTransport(cfg.MQTTBroker, cfg.MQTTClientID), nil
	case cfg.TelemetryFile != "":
		t, err := NewFileTransport(cfg.TelemetryFile)
		if err != nil {
			return nil, err
		}
		return t, nil
	default:
		return nil, nil
	}
}

package telemetry

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

type MQTTConfig struct {
	Broker   string
	Topic    string
	ClientID string
	Username string
	Password string
}

// MQTTSink publishes frames to a broker topic with the same best-effort
// discipline as the HTTP push.
type MQTTSink struct {
	client mqtt.Client
	topic  string
}

func NewMQTTSink(cfg MQTTConfig) (*MQTTSink, error) {
	if cfg.Broker == "" {
		return nil, fmt.Errorf("telemetry: mqtt broker is required")
	}
	if cfg.Topic == "" {
		cfg.Topic = "rover/telemetry"
	}
	if cfg.ClientID == "" {
		cfg.ClientID = fmt.Sprintf("rover-ng-%d", time.Now().Unix())
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(5 * time.Second)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(5*time.Second) || token.Error() != nil {
		return nil, fmt.Errorf("telemetry: mqtt connect: %v", token.Error())
	}

	return &MQTTSink{client: client, topic: cfg.Topic}, nil
}

func (s *MQTTSink) Push(f Frame) error {
	b, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	token := s.client.Publish(s.topic, 0, false, b)
	if !token.WaitTimeout(2 * time.Second) {
		return fmt.Errorf("publish timed out")
	}
	return token.Error()
}

func (s *MQTTSink) Close() {
	s.client.Disconnect(250)
}

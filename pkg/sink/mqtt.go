package sink

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/nimdanitro/sensortag-go/pkg/sensortag"
	"go.uber.org/zap"
)

const publishTimeout = 5 * time.Second

type MQTTConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
	Prefix   string
	QoS      byte
	Retained bool
}

// MQTT publishes every event as JSON to <prefix>/<sensorId>/<kind>.
type MQTT struct {
	client   mqtt.Client
	prefix   string
	qos      byte
	retained bool
	log      *zap.Logger
}

// DialMQTT connects to the configured broker.
func DialMQTT(cfg MQTTConfig, log *zap.Logger) (*MQTT, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warn("mqtt connection lost", zap.Error(err))
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}
	return NewMQTT(client, cfg, log), nil
}

// NewMQTT wraps an already connected client.
func NewMQTT(client mqtt.Client, cfg MQTTConfig, log *zap.Logger) *MQTT {
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "sensortag"
	}
	return &MQTT{
		client:   client,
		prefix:   prefix,
		qos:      cfg.QoS,
		retained: cfg.Retained,
		log:      log,
	}
}

func (m *MQTT) Topic(e sensortag.Event) string {
	return fmt.Sprintf("%s/%s/%s", m.prefix, e.SensorID, Name(e.Kind))
}

func (m *MQTT) Handle(e sensortag.Event) {
	if err := m.publish(e); err != nil {
		m.log.Error("cannot publish event", zap.String("sensorId", e.SensorID), zap.String("kind", string(e.Kind)), zap.Error(err))
	}
}

func (m *MQTT) publish(e sensortag.Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("cannot encode event: %w", err)
	}
	topic := m.Topic(e)
	token := m.client.Publish(topic, m.qos, m.retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("timed out publishing to topic %s", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish to topic %s: %w", topic, err)
	}
	return nil
}

func (m *MQTT) Close() error {
	m.client.Disconnect(250)
	return nil
}

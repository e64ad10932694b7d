package mqtt

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/berfenger/alarm2mqtt/internal/config"
	"github.com/berfenger/alarm2mqtt/internal/core/domain"
	"github.com/berfenger/alarm2mqtt/internal/core/port"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	MQTT_QOS = 0

	publishTimeout    = 2 * time.Second
	offlineTimeout    = 5 * time.Second
	disconnectQuiesce = 500 * time.Millisecond
)

func OptsFromConfig(cfg *config.Config) *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(brokerURL(cfg.MQTT))
	opts.SetClientID(fmt.Sprintf("alarm2mqtt_%s", uuid.NewString()))
	if cfg.MQTT.Username != "" && cfg.MQTT.Password != "" {
		opts.SetUsername(cfg.MQTT.Username)
		opts.SetPassword(cfg.MQTT.Password)
	}
	opts.SetKeepAlive(cfg.MQTT.KeepAlive())
	opts.SetAutoReconnect(true)
	opts.WillEnabled = true
	opts.WillPayload = []byte(domain.PAYLOAD_OFFLINE)
	opts.WillRetained = true
	opts.WillTopic = bridgeStateTopic(cfg.MQTT.Channel)
	opts.WillQos = MQTT_QOS

	return opts
}

func CreateMQTTClient(cfg *config.Config, opts *mqtt.ClientOptions, logger *zap.Logger) *MQTTClient {
	c := &MQTTClient{
		cfg:    cfg.MQTT,
		broker: brokerURL(cfg.MQTT),
		logger: logger.With(zap.String("component", "mqtt")),
	}
	opts.OnConnect = func(client mqtt.Client) {
		c.logger.Info("mqtt: connected", zap.String("broker", c.broker))
		client.Publish(c.BridgeStateTopic(), MQTT_QOS, true, domain.PAYLOAD_ONLINE)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		c.logger.Warn("mqtt: connection lost", zap.Error(err))
	}
	opts.OnReconnecting = func(mqtt.Client, *mqtt.ClientOptions) {
		c.logger.Info("mqtt: reconnecting")
	}
	c.client = mqtt.NewClient(opts)
	return c
}

type MQTTClient struct {
	client         mqtt.Client
	cfg            config.MQTTConfig
	broker         string
	logger         *zap.Logger
	disconnectOnce sync.Once
}

func (c *MQTTClient) channel() string {
	return c.cfg.Channel
}

func (c *MQTTClient) BridgeStateTopic() string {
	return bridgeStateTopic(c.channel())
}

// SensorTopic is the channel prefix concatenated with the sensor name, with
// no separator added.
func (c *MQTTClient) SensorTopic(sensorName string) string {
	return c.channel() + sensorName
}

// Connect blocks until the broker accepts the connection. paho keeps its
// network goroutines running until Disconnect.
func (c *MQTTClient) Connect() error {
	token := c.client.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return &domain.ConnectionError{Broker: c.broker, Err: err}
	}
	return nil
}

func (c *MQTTClient) Publish(topic string, payload any, qos byte, retain bool, continuation func(error), timeout time.Duration) {
	token := c.client.Publish(topic, qos, retain, payload)
	go func() {
		didTO := token.WaitTimeout(timeout)
		if !didTO {
			continuation(errors.New("MQTT publish timed out"))
		} else {
			continuation(token.Error())
		}
	}()
}

// PublishRetained does not report failures to the caller, they are only
// logged.
func (c *MQTTClient) PublishRetained(topic, payload string) {
	c.logger.Sugar().Debugf("mqtt@publish: %s => %s", topic, payload)
	c.Publish(topic, payload, MQTT_QOS, true, func(err error) {
		if err != nil {
			c.logger.Debug("mqtt@publish: failed", zap.String("topic", topic), zap.Error(err))
		}
	}, publishTimeout)
}

func (c *MQTTClient) PublishSensorState(sensorName, payload string) {
	c.PublishRetained(c.SensorTopic(sensorName), payload)
}

// PublishAllOffline marks every sensor offline and waits, bounded, until the
// messages have been handed to the network so a following Disconnect does
// not drop them.
func (c *MQTTClient) PublishAllOffline(sensors []domain.Sensor) {
	tokens := make([]mqtt.Token, 0, len(sensors))
	for _, s := range sensors {
		topic := c.SensorTopic(s.Name)
		c.logger.Sugar().Debugf("mqtt@publish: %s => %s", topic, domain.PAYLOAD_OFFLINE)
		tokens = append(tokens, c.client.Publish(topic, MQTT_QOS, true, domain.PAYLOAD_OFFLINE))
	}
	deadline := time.Now().Add(offlineTimeout)
	for _, token := range tokens {
		remaining := time.Until(deadline)
		if remaining <= 0 || !token.WaitTimeout(remaining) {
			c.logger.Warn("mqtt: timed out publishing offline state")
			return
		}
	}
}

func (c *MQTTClient) Disconnect() {
	c.disconnectOnce.Do(func() {
		c.logger.Debug("mqtt: disconnect")
		if c.client.IsConnected() {
			token := c.client.Publish(c.BridgeStateTopic(), MQTT_QOS, true, domain.PAYLOAD_OFFLINE)
			token.WaitTimeout(disconnectQuiesce)
		}
		c.client.Disconnect(uint(disconnectQuiesce.Milliseconds()))
	})
}

func brokerURL(cfg config.MQTTConfig) string {
	return fmt.Sprintf("tcp://%s:%d", cfg.Host, cfg.Port)
}

func bridgeStateTopic(channel string) string {
	return fmt.Sprintf("%sbridge/state", channel)
}

// ensure interface compliance
var _ port.SensorPublisher = (*MQTTClient)(nil)

// Package publish sends collected device readings to an MQTT broker, one
// JSON message per device.
package publish

import (
	"errors"
	"fmt"
	"sort"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/robertof/go-restclient-exporter/device"
	"github.com/robertof/go-restclient-exporter/param"
)

const (
	defaultConnectTimeout    = 10 * time.Second
	defaultPublishTimeout    = 5 * time.Second
	defaultDisconnectQuiesce = 1000 // milliseconds
	defaultKeepAlive         = 60 * time.Second
	defaultTopicPrefix       = "restclient"
	maxQoS                   = 2
)

var (
	ErrConnectionFailed = errors.New("mqtt connection failed")
	ErrPublishFailed    = errors.New("mqtt publish failed")
	ErrInvalidQoS       = errors.New("invalid mqtt qos")
	ErrNoBroker         = errors.New("no mqtt broker configured")
)

type Config struct {
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Prefix   string `yaml:"prefix"`
	QoS      byte   `yaml:"qos"`
	Retained bool   `yaml:"retained"`
}

// Enabled reports whether a broker has been configured.
func (c Config) Enabled() bool {
	return c.Broker != ""
}

// client is the subset of the paho client used here.
type client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token
	Disconnect(quiesce uint)
	IsConnected() bool
}

type Publisher struct {
	client client
	cfg    Config
}

func buildClientOptions(cfg Config) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()

	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectTimeout(defaultConnectTimeout)
	opts.SetKeepAlive(defaultKeepAlive)

	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		log.Warn().Err(err).Str("Broker", cfg.Broker).Msg("publish: connection to broker lost")
	})

	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		log.Debug().Str("Broker", cfg.Broker).Msg("publish: connected to broker")
	})

	return opts
}

func (c Config) withDefaults() (Config, error) {
	if !c.Enabled() {
		return c, ErrNoBroker
	}

	if c.QoS > maxQoS {
		return c, fmt.Errorf("%w: %d", ErrInvalidQoS, c.QoS)
	}

	if c.Prefix == "" {
		c.Prefix = defaultTopicPrefix
	}

	if c.ClientID == "" {
		c.ClientID = defaultTopicPrefix + "-exporter"
	}

	return c, nil
}

func Connect(cfg Config) (*Publisher, error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}

	c := pahomqtt.NewClient(buildClientOptions(cfg))

	token := c.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, defaultConnectTimeout)
	}

	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	log.Info().Str("Broker", cfg.Broker).Str("Prefix", cfg.Prefix).Msg("Publishing readings to MQTT")

	return &Publisher{client: c, cfg: cfg}, nil
}

func (p *Publisher) Topic(dev device.Device) string {
	return p.cfg.Prefix + "/" + dev.Name()
}

// Publish sends one message per device. Failures are collected and returned
// together so one unreachable topic does not hide the others.
func (p *Publisher) Publish(readings map[device.Device]device.Reading, ts time.Time) error {
	devices := make([]device.Device, 0, len(readings))
	for dev := range readings {
		devices = append(devices, dev)
	}

	sort.Slice(devices, func(i, j int) bool { return devices[i].Name() < devices[j].Name() })

	var errs []error

	for _, dev := range devices {
		payload, err := Payload(dev, readings[dev], ts)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		if err := p.publish(p.Topic(dev), payload); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", dev.Name(), err))
		}
	}

	return errors.Join(errs...)
}

func (p *Publisher) publish(topic string, payload []byte) error {
	token := p.client.Publish(topic, p.cfg.QoS, p.cfg.Retained, payload)

	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, defaultPublishTimeout)
	}

	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}

	log.Trace().Str("Topic", topic).Int("Bytes", len(payload)).Msg("publish: sent reading")

	return nil
}

func (p *Publisher) Close() {
	p.client.Disconnect(defaultDisconnectQuiesce)
}

type message struct {
	Device       string         `json:"device"`
	Time         time.Time      `json:"time"`
	Params       map[string]any `json:"params"`
	Disconnected []string       `json:"disconnected,omitempty"`
}

// Payload encodes a reading. Array parameters become JSON arrays ordered by
// element address.
func Payload(dev device.Device, r device.Reading, ts time.Time) ([]byte, error) {
	msg := message{
		Device: dev.Name(),
		Time:   ts.UTC(),
		Params: make(map[string]any),
	}

	arrays := make(map[string][]any)

	for _, v := range r.Values {
		var value any

		switch v.Kind {
		case param.KindInt:
			value = v.Int
		case param.KindFloat:
			value = v.Float
		case param.KindString:
			value = v.String
		default:
			continue
		}

		if !v.Connected {
			msg.Disconnected = append(msg.Disconnected, fmt.Sprintf("%s[%d]", v.Name, v.Address))
		}

		if _, seen := msg.Params[v.Name]; seen || v.Address > 0 {
			if !seen {
				return nil, fmt.Errorf("param %q: element %d without element 0", v.Name, v.Address)
			}

			if _, ok := arrays[v.Name]; !ok {
				arrays[v.Name] = []any{msg.Params[v.Name]}
			}

			arrays[v.Name] = append(arrays[v.Name], value)
			continue
		}

		msg.Params[v.Name] = value
	}

	for name, values := range arrays {
		msg.Params[name] = values
	}

	return json.Marshal(msg)
}

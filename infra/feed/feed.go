package feed

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"os"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/quayside/berthd/core/reopt"
	"github.com/quayside/berthd/infra/logger"
)

// Config defines the connection parameters for the Paho MQTT subscriber that
// receives arrival updates and disruption notices from the port feed.
type Config struct {
	Broker          string      `json:"broker"`
	ClientID        string      `json:"client_id"`
	Username        string      `json:"username"`
	Password        string      `json:"password"`
	ETATopic        string      `json:"eta_topic"`
	DisruptionTopic string      `json:"disruption_topic"`
	QoS             byte        `json:"qos"`
	UseTLS          bool        `json:"use_tls"`
	ClientCert      string      `json:"client_cert"`
	ClientKey       string      `json:"client_key"`
	CABundle        string      `json:"ca_bundle"`
	TLSConfig       *tls.Config `json:"-"`
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.ETATopic == "" {
		c.ETATopic = "port/vessel/+/eta"
	}
	if c.DisruptionTopic == "" {
		c.DisruptionTopic = "port/disruption"
	}
	if c.ClientID == "" {
		c.ClientID = "berthd-feed"
	}
}

// Validate checks mandatory fields.
func (c Config) Validate() error {
	if c.Broker == "" {
		return fmt.Errorf("feed: broker is required")
	}
	return nil
}

// LoadTLSConfig loads the TLS configuration from the file paths in the config.
func (c Config) LoadTLSConfig() (*tls.Config, error) {
	if c.TLSConfig != nil {
		return c.TLSConfig, nil
	}
	if c.ClientCert == "" || c.ClientKey == "" || c.CABundle == "" {
		return nil, fmt.Errorf("tls config requires client_cert, client_key and ca_bundle")
	}
	cert, err := tls.LoadX509KeyPair(c.ClientCert, c.ClientKey)
	if err != nil {
		return nil, fmt.Errorf("load cert: %w", err)
	}
	caBytes, err := os.ReadFile(c.CABundle)
	if err != nil {
		return nil, fmt.Errorf("read ca: %w", err)
	}
	pool := x509.NewCertPool()
	pool.AppendCertsFromPEM(caBytes)
	return &tls.Config{Certificates: []tls.Certificate{cert}, RootCAs: pool, MinVersion: tls.VersionTLS12}, nil
}

// Sink accepts decoded triggers. *engine.Engine satisfies it.
type Sink interface {
	Enqueue(t reopt.Trigger)
}

type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
}

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// Subscriber bridges the external MQTT feed to the reoptimization queue.
// Malformed payloads are logged and dropped; the feed is at-least-once and
// triggers are coalesced downstream, so duplicates are harmless.
type Subscriber struct {
	cli  pahoClient
	cfg  Config
	sink Sink
	log  logger.Logger
	now  func() time.Time
}

// NewSubscriber connects to the broker and subscribes to the ETA and
// disruption topics.
func NewSubscriber(cfg Config, sink Sink) (*Subscriber, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}

	s := &Subscriber{cfg: cfg, sink: sink, log: logger.New("feed"), now: time.Now}

	opts.OnConnect = func(c paho.Client) {
		s.log.Infof("feed connected to %s", cfg.Broker)
		if token := c.Subscribe(cfg.ETATopic, cfg.QoS, s.onETA); token.Wait() && token.Error() != nil {
			s.log.Errorf("subscribe %s: %v", cfg.ETATopic, token.Error())
		}
		if token := c.Subscribe(cfg.DisruptionTopic, cfg.QoS, s.onDisruption); token.Wait() && token.Error() != nil {
			s.log.Errorf("subscribe %s: %v", cfg.DisruptionTopic, token.Error())
		}
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		s.log.Errorf("feed connection lost: %v", err)
	}
	opts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) {
		s.log.Warnf("reconnecting to feed broker")
	}

	c := newMQTTClient(opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	s.cli = c
	return s, nil
}

// NewClientOptions builds mqtt client options from Config.
func NewClientOptions(cfg Config) (*paho.ClientOptions, error) {
	opts := paho.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.ClientID)
	opts.AutoReconnect = true
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	if cfg.UseTLS {
		tlsCfg, err := cfg.LoadTLSConfig()
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}
	return opts, nil
}

type etaMessage struct {
	VesselID string    `json:"vessel_id"`
	ETA      time.Time `json:"eta"`
}

type disruptionMessage struct {
	Kind       string `json:"kind"`
	VesselID   string `json:"vessel_id"`
	ResourceID string `json:"resource_id"`
}

func (s *Subscriber) onETA(_ paho.Client, msg paho.Message) {
	var m etaMessage
	if err := json.Unmarshal(msg.Payload(), &m); err != nil {
		s.log.Errorf("failed to decode eta update: %v", err)
		return
	}
	if m.VesselID == "" || m.ETA.IsZero() {
		s.log.Warnf("dropping eta update with missing fields on %s", msg.Topic())
		return
	}
	s.sink.Enqueue(reopt.Trigger{
		VesselID: m.VesselID,
		Kind:     reopt.TriggerETAChange,
		NewETA:   m.ETA,
		At:       s.now(),
	})
}

func (s *Subscriber) onDisruption(_ paho.Client, msg paho.Message) {
	var m disruptionMessage
	if err := json.Unmarshal(msg.Payload(), &m); err != nil {
		s.log.Errorf("failed to decode disruption: %v", err)
		return
	}
	switch m.Kind {
	case string(reopt.TriggerCancellation):
		if m.VesselID == "" {
			s.log.Warnf("dropping cancellation with no vessel id")
			return
		}
		s.sink.Enqueue(reopt.Trigger{VesselID: m.VesselID, Kind: reopt.TriggerCancellation, At: s.now()})
	case string(reopt.TriggerResourceLoss):
		if m.ResourceID == "" {
			s.log.Warnf("dropping resource loss with no resource id")
			return
		}
		s.sink.Enqueue(reopt.Trigger{ResourceID: m.ResourceID, Kind: reopt.TriggerResourceLoss, At: s.now()})
	default:
		s.log.Warnf("dropping disruption of unknown kind %q", m.Kind)
	}
}

// Disconnect gracefully closes the MQTT connection.
func (s *Subscriber) Disconnect() {
	if s.cli != nil && s.cli.IsConnected() {
		s.cli.Disconnect(250)
	}
}

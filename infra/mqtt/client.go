package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/kilianp07/geodispatch/core/monitoring"
	"github.com/kilianp07/geodispatch/infra/logger"
)

// Config defines the connection parameters for the Paho MQTT client and the
// topic layout used by the event publisher and the location source.
type Config struct {
	Broker     string          `json:"broker"`
	ClientID   string          `json:"client_id"`
	Username   string          `json:"username"`
	Password   string          `json:"password"`
	UseTLS     bool            `json:"use_tls"`
	ClientCert string          `json:"client_cert"`
	ClientKey  string          `json:"client_key"`
	CABundle   string          `json:"ca_bundle"`
	AuthMethod string          `json:"auth_method"`
	QoS        map[string]byte `json:"qos"`
	LWTTopic   string          `json:"lwt_topic"`
	LWTPayload string          `json:"lwt_payload"`
	LWTQoS     byte            `json:"lwt_qos"`
	LWTRetain  bool            `json:"lwt_retain"`
	MaxRetries int             `json:"max_retries"`
	BackoffMS  int             `json:"backoff_ms"`

	// EventPrefix is prepended to event topics; "delivery.assigned" is
	// published on "<prefix>/delivery/assigned".
	EventPrefix string `json:"event_prefix"`
	// LocationPrefix is where driver apps push fixes, one topic per subject:
	// "<prefix>/<subject_id>".
	LocationPrefix string `json:"location_prefix"`
	// RequestPrefix receives on-demand locate requests in pull and hybrid mode.
	RequestPrefix string `json:"request_prefix"`
	// Mode is push, pull or hybrid. Empty means push.
	Mode string `json:"mode"`
	// HighAccuracyM is the worst accuracy accepted by a high accuracy attempt.
	HighAccuracyM float64 `json:"high_accuracy_m"`

	TLSConfig *tls.Config `json:"-"`
}

// SetDefaults fills the topic layout and retry policy.
func (c *Config) SetDefaults() {
	if c.EventPrefix == "" {
		c.EventPrefix = "geodispatch/events"
	}
	if c.LocationPrefix == "" {
		c.LocationPrefix = "geodispatch/location"
	}
	if c.RequestPrefix == "" {
		c.RequestPrefix = "geodispatch/locate"
	}
	if c.Mode == "" {
		c.Mode = "push"
	}
	if c.HighAccuracyM <= 0 {
		c.HighAccuracyM = 100
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.BackoffMS <= 0 {
		c.BackoffMS = 100
	}
}

// Validate checks the settings required to connect.
func (c Config) Validate() error {
	if c.Broker == "" {
		return fmt.Errorf("mqtt broker is required")
	}
	switch c.Mode {
	case "", "push", "pull", "hybrid":
	default:
		return fmt.Errorf("mqtt mode %q must be push, pull or hybrid", c.Mode)
	}
	return nil
}

func (c Config) qos(kind string) byte {
	if q, ok := c.QoS[kind]; ok {
		return q
	}
	return 0
}

type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
}

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

type subscription struct {
	qos     byte
	handler paho.MessageHandler
}

// Client is a shared broker connection. Subscriptions are replayed after
// every reconnect.
type Client struct {
	cli     pahoClient
	log     logger.Logger
	retries int
	backoff time.Duration

	mu   sync.Mutex
	subs map[string]subscription
}

// Dial connects to the broker described by cfg.
func Dial(cfg Config) (*Client, error) {
	cfg.SetDefaults()
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}
	log := logger.New("mqtt_client")
	c := &Client{
		log:     log,
		retries: cfg.MaxRetries,
		backoff: time.Duration(cfg.BackoffMS) * time.Millisecond,
		subs:    make(map[string]subscription),
	}
	opts.OnConnect = func(pc paho.Client) {
		log.Infof("MQTT connected")
		c.resubscribe(pc)
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Errorf("connection lost: %v", err)
	}
	opts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) {
		log.Warnf("reconnecting to MQTT broker")
	}
	cli := newMQTTClient(opts)
	c.cli = cli
	if token := cli.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	return c, nil
}

func (c *Client) resubscribe(pc paho.Client) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for topic, s := range c.subs {
		if token := pc.Subscribe(topic, s.qos, s.handler); token.Wait() && token.Error() != nil {
			c.log.Errorf("resubscribe %s: %v", topic, token.Error())
		}
	}
}

// NewClientOptions builds mqtt client options from Config.
func NewClientOptions(cfg Config) (*paho.ClientOptions, error) {
	opts := paho.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.ClientID)
	opts.AutoReconnect = true
	if cfg.AuthMethod == "username_password" || cfg.AuthMethod == "both" || cfg.AuthMethod == "" {
		if cfg.Username != "" {
			opts.SetUsername(cfg.Username)
		}
		if cfg.Password != "" {
			opts.SetPassword(cfg.Password)
		}
	}
	if cfg.UseTLS {
		tlsCfg, err := cfg.LoadTLSConfig()
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}
	if cfg.LWTTopic != "" {
		opts.SetWill(cfg.LWTTopic, cfg.LWTPayload, cfg.LWTQoS, cfg.LWTRetain)
	}
	return opts, nil
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

// Publish sends payload with exponential backoff between attempts. The last
// error is reported to the monitor.
func (c *Client) Publish(topic string, qos byte, payload []byte) error {
	var err error
	for attempt := 0; attempt <= c.retries; attempt++ {
		token := c.cli.Publish(topic, qos, false, payload)
		token.Wait()
		if err = token.Error(); err == nil {
			return nil
		}
		c.log.Errorf("publish attempt %d on %s failed: %v", attempt+1, topic, err)
		if attempt < c.retries {
			time.Sleep(c.backoff * time.Duration(1<<attempt))
		}
	}
	monitoring.CaptureException(err, map[string]string{"module": "mqtt", "topic": topic})
	return err
}

// Subscribe registers handler for topic and keeps it across reconnects.
func (c *Client) Subscribe(topic string, qos byte, handler paho.MessageHandler) error {
	c.mu.Lock()
	c.subs[topic] = subscription{qos: qos, handler: handler}
	c.mu.Unlock()
	if token := c.cli.Subscribe(topic, qos, handler); token.Wait() && token.Error() != nil {
		return fmt.Errorf("subscribe %s: %w", topic, token.Error())
	}
	return nil
}

// Connected reports whether the broker connection is up.
func (c *Client) Connected() bool { return c.cli != nil && c.cli.IsConnected() }

// Disconnect gracefully closes the MQTT connection.
func (c *Client) Disconnect() {
	if c.cli != nil && c.cli.IsConnected() {
		c.cli.Disconnect(250)
	}
}

package mqtt

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/geodispatch/core/events"
)

// writeBrokerCerts writes a self-signed pair that doubles as its own CA.
func writeBrokerCerts(t *testing.T) Config {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	tmpl := x509.Certificate{
		SerialNumber: big.NewInt(42),
		Subject:      pkix.Name{CommonName: "dispatch-broker"},
		NotBefore:    time.Now().Add(-time.Minute),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	keyDER, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)

	dir := t.TempDir()
	write := func(name, typ string, b []byte) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(&pem.Block{Type: typ, Bytes: b}), 0o600))
		return path
	}
	cert := write("client.pem", "CERTIFICATE", der)
	return Config{
		Broker:     "ssl://localhost:8883",
		ClientID:   "dispatch",
		UseTLS:     true,
		ClientCert: cert,
		ClientKey:  write("client.key", "EC PRIVATE KEY", keyDER),
		CABundle:   cert,
	}
}

func TestLoadTLSConfig(t *testing.T) {
	cfg := writeBrokerCerts(t)
	tlsCfg, err := cfg.LoadTLSConfig()
	require.NoError(t, err)
	assert.Len(t, tlsCfg.Certificates, 1)
	assert.NotNil(t, tlsCfg.RootCAs)
	assert.Equal(t, uint16(tls.VersionTLS12), tlsCfg.MinVersion)

	opts, err := NewClientOptions(cfg)
	require.NoError(t, err)
	assert.NotNil(t, opts.TLSConfig)
}

func TestLoadTLSConfigMissingFiles(t *testing.T) {
	_, err := Config{UseTLS: true, ClientCert: "c.pem"}.LoadTLSConfig()
	require.Error(t, err)

	cfg := writeBrokerCerts(t)
	cfg.CABundle = filepath.Join(t.TempDir(), "absent.pem")
	_, err = cfg.LoadTLSConfig()
	require.Error(t, err)
}

func TestNewClientOptionsAuth(t *testing.T) {
	opts, err := NewClientOptions(Config{Broker: "tcp://localhost:1883", ClientID: "id", Username: "courier", Password: "secret"})
	require.NoError(t, err)
	assert.Equal(t, "courier", opts.Username)
	assert.Equal(t, "secret", opts.Password)
}

func withMockClient(t *testing.T, mc *mockClient) {
	t.Helper()
	newMQTTClient = func(o *paho.ClientOptions) pahoClient { mc.opts = o; return mc }
	t.Cleanup(func() { newMQTTClient = func(opts *paho.ClientOptions) pahoClient { return paho.NewClient(opts) } })
}

func TestQoSSettings(t *testing.T) {
	mc := &mockClient{}
	withMockClient(t, mc)
	cfg := Config{Broker: "tcp://localhost:1883", ClientID: "id", QoS: map[string]byte{"events": 2, "location": 1}}
	cli, err := Dial(cfg)
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	if _, err := NewLocationSource(cli, cfg); err != nil {
		t.Fatalf("location source: %v", err)
	}
	if len(mc.subscribed) == 0 || mc.subscribed[0].qos != 1 || mc.subscribed[0].topic != "geodispatch/location/+" {
		t.Fatalf("subscribe qos not applied: %+v", mc.subscribed)
	}
	pub := NewPublisherWithClient(cli, cfg)
	env := events.Envelope{ID: "1", Topic: events.TopicDeliveryAssigned, Time: time.Now()}
	if err := pub.Send(context.Background(), env); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(mc.published) == 0 || mc.published[0].qos != 2 {
		t.Fatalf("publish qos not applied")
	}
	if mc.published[0].topic != "geodispatch/events/delivery/assigned" {
		t.Fatalf("unexpected topic %s", mc.published[0].topic)
	}
}

func TestResubscribeOnReconnect(t *testing.T) {
	mc := &mockClient{}
	withMockClient(t, mc)
	cli, err := Dial(Config{Broker: "tcp://localhost:1883", ClientID: "id"})
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	if err := cli.Subscribe("a/+", 0, func(paho.Client, paho.Message) {}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	mc.opts.OnConnect(mc)
	if len(mc.subscribed) != 2 || mc.subscribed[1].topic != "a/+" {
		t.Fatalf("subscription not replayed: %+v", mc.subscribed)
	}
}

func TestLWTConfigured(t *testing.T) {
	mc := &mockClient{}
	withMockClient(t, mc)
	cfg := Config{Broker: "tcp://localhost:1883", ClientID: "id", LWTTopic: "lwt", LWTPayload: "bye", LWTQoS: 1}
	cli, err := Dial(cfg)
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	if !mc.opts.WillEnabled {
		t.Fatalf("will not enabled")
	}
	if mc.opts.WillTopic != "lwt" || string(mc.opts.WillPayload) != "bye" {
		t.Fatalf("will options incorrect")
	}
	cli.Disconnect()
	if len(mc.published) != 0 {
		t.Fatalf("unexpected publish on disconnect")
	}
}

func TestRetryLogic(t *testing.T) {
	mc := &mockClient{publishErrs: []error{fmt.Errorf("net fail"), nil}}
	withMockClient(t, mc)
	cfg := Config{Broker: "tcp://localhost:1883", ClientID: "id", MaxRetries: 1, BackoffMS: 1}
	pub, err := NewPublisher(cfg)
	if err != nil {
		t.Fatalf("publisher: %v", err)
	}
	if err := pub.Send(context.Background(), events.Envelope{Topic: events.TopicGeofenceEntered}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(mc.published) != 2 {
		t.Fatalf("expected retries")
	}
	_ = pub.Close()
}

func TestConfigValidate(t *testing.T) {
	if err := (Config{}).Validate(); err == nil {
		t.Fatalf("missing broker must fail")
	}
	if err := (Config{Broker: "tcp://x:1883", Mode: "stream"}).Validate(); err == nil {
		t.Fatalf("unknown mode must fail")
	}
	cfg := Config{Broker: "tcp://x:1883"}
	cfg.SetDefaults()
	if cfg.Mode != "push" || cfg.MaxRetries != 3 || cfg.HighAccuracyM != 100 {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
}

// mockClient implements pahoClient for tests
type mockClient struct {
	opts       *paho.ClientOptions
	subscribed []struct {
		topic string
		qos   byte
	}
	published []struct {
		topic string
		qos   byte
	}
	payloads    [][]byte
	publishErrs []error
}

func (m *mockClient) IsConnected() bool { return true }
func (m *mockClient) Connect() paho.Token {
	if m.opts != nil && m.opts.OnConnect != nil {
		m.opts.OnConnect(m)
	}
	return &dummyToken{}
}
func (m *mockClient) Disconnect(uint) {}
func (m *mockClient) Publish(topic string, qos byte, _ bool, payload interface{}) paho.Token {
	if b, ok := payload.([]byte); ok {
		m.payloads = append(m.payloads, b)
	}
	m.published = append(m.published, struct {
		topic string
		qos   byte
	}{topic, qos})
	if len(m.publishErrs) > 0 {
		err := m.publishErrs[0]
		m.publishErrs = m.publishErrs[1:]
		return &dummyToken{err: err}
	}
	return &dummyToken{}
}
func (m *mockClient) Subscribe(topic string, qos byte, _ paho.MessageHandler) paho.Token {
	m.subscribed = append(m.subscribed, struct {
		topic string
		qos   byte
	}{topic, qos})
	return &dummyToken{}
}
func (m *mockClient) SubscribeMultiple(map[string]byte, paho.MessageHandler) paho.Token {
	return &dummyToken{}
}
func (m *mockClient) Unsubscribe(...string) paho.Token        { return &dummyToken{} }
func (m *mockClient) AddRoute(string, paho.MessageHandler)    {}
func (m *mockClient) OptionsReader() paho.ClientOptionsReader { return paho.ClientOptionsReader{} }
func (m *mockClient) IsConnectionOpen() bool                  { return true }

type dummyToken struct{ err error }

func (d dummyToken) Wait() bool                     { return true }
func (d dummyToken) WaitTimeout(time.Duration) bool { return true }
func (d dummyToken) Done() <-chan struct{}          { ch := make(chan struct{}); close(ch); return ch }
func (d dummyToken) Error() error                   { return d.err }

type mockMessage struct {
	topic string
	p     []byte
}

func (m mockMessage) Duplicate() bool   { return false }
func (m mockMessage) Qos() byte         { return 0 }
func (m mockMessage) Retained() bool    { return false }
func (m mockMessage) Topic() string     { return m.topic }
func (m mockMessage) MessageID() uint16 { return 0 }
func (m mockMessage) Payload() []byte   { return m.p }
func (m mockMessage) Ack()              {}

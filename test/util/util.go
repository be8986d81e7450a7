// Package util holds helpers for the container backed tests under test/.
// Those tests only run when GEODISPATCH_E2E is set since they need Docker.
package util

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	BrokerReadyTimeout = 5 * time.Second
	MetricTimeout      = 15 * time.Second

	pollInterval = 50 * time.Millisecond
	mosquittoImg = "eclipse-mosquitto:2.0"
)

const mosquittoConf = `listener 1883
allow_anonymous true
persistence false
log_dest stdout
log_type error
log_type warning
`

// RequireE2E skips the test unless GEODISPATCH_E2E is set.
func RequireE2E(t *testing.T) {
	t.Helper()
	if os.Getenv("GEODISPATCH_E2E") == "" {
		t.Skip("set GEODISPATCH_E2E=1 to run container tests")
	}
}

// RequireMetric fails the test when substr does not show up on the scrape
// endpoint within MetricTimeout.
func RequireMetric(t *testing.T, metricsURL, substr string) {
	t.Helper()
	var last string
	ok := poll(MetricTimeout, func() bool {
		body, err := scrape(metricsURL)
		if err != nil {
			return false
		}
		last = body
		return strings.Contains(body, substr)
	})
	require.Truef(t, ok, "metric %q not exposed on %s; last scrape:\n%s", substr, metricsURL, last)
}

func scrape(url string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	return string(b), err
}

func poll(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for {
		if cond() {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(pollInterval)
	}
}

// StartMosquitto runs a throwaway broker for the lifetime of the test and
// returns its tcp:// URL once it accepts connections.
func StartMosquitto(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	conf := filepath.Join(t.TempDir(), "mosquitto.conf")
	require.NoError(t, os.WriteFile(conf, []byte(mosquittoConf), 0o644))

	cont, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: tc.ContainerRequest{
			Image:        mosquittoImg,
			ExposedPorts: []string{"1883/tcp"},
			WaitingFor:   wait.ForListeningPort("1883/tcp"),
			Files: []tc.ContainerFile{{
				HostFilePath:      conf,
				ContainerFilePath: "/mosquitto/config/mosquitto.conf",
				FileMode:          0o644,
			}},
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = cont.Terminate(context.Background()) })

	host, err := cont.Host(ctx)
	require.NoError(t, err)
	port, err := cont.MappedPort(ctx, "1883")
	require.NoError(t, err)
	broker := fmt.Sprintf("tcp://%s:%s", host, port.Port())

	ready := poll(BrokerReadyTimeout, func() bool { return brokerUp(broker) })
	require.Truef(t, ready, "broker %s never accepted a connection", broker)
	return broker
}

func brokerUp(broker string) bool {
	cli := paho.NewClient(paho.NewClientOptions().AddBroker(broker).SetClientID("geodispatch-ready"))
	tok := cli.Connect()
	if !tok.WaitTimeout(time.Second) || tok.Error() != nil {
		return false
	}
	cli.Disconnect(100)
	return true
}

package app

import (
	"errors"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/eink_station/internal/config"
)

type doneToken struct {
	err     error
	expired bool
}

func (t doneToken) Wait() bool                     { return !t.expired }
func (t doneToken) WaitTimeout(time.Duration) bool { return !t.expired }
func (t doneToken) Done() <-chan struct{} {
	c := make(chan struct{})
	if !t.expired {
		close(c)
	}
	return c
}
func (t doneToken) Error() error { return t.err }

type published struct {
	topic   string
	payload string
}

type brokerClient struct {
	mqtt.Client
	connected  bool
	connects   int
	connectErr error
	stall      bool
	sent       []published
}

func (c *brokerClient) IsConnected() bool { return c.connected }

func (c *brokerClient) Connect() mqtt.Token {
	c.connects++
	if c.stall {
		return doneToken{expired: true}
	}
	if c.connectErr == nil {
		c.connected = true
	}
	return doneToken{err: c.connectErr}
}

func (c *brokerClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.sent = append(c.sent, published{topic, payload.(string)})
	return doneToken{}
}

func TestFeedPublisherTopics(t *testing.T) {
	client := &brokerClient{}
	p := &FeedPublisher{Client: client, Username: "alice", Prefix: "office"}

	require.NoError(t, p.Publish(reading(46, 21.456)))
	require.NoError(t, p.Publish(reading(47, 22)))

	assert.Equal(t, 1, client.connects, "connects once")
	require.Len(t, client.sent, 6)
	assert.Equal(t, []published{
		{"alice/feeds/office.temperature", "21.46"},
		{"alice/feeds/office.humidity", "45.00"},
		{"alice/feeds/office.pressure", "1005.00"},
	}, client.sent[:3])
}

func TestFeedPublisherConnectErrors(t *testing.T) {
	broken := &brokerClient{connectErr: errors.New("not authorized")}
	p := &FeedPublisher{Client: broken, Username: "alice", Prefix: "office"}
	err := p.Publish(reading(46, 21))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not authorized")
	assert.Empty(t, broken.sent)

	stalled := &brokerClient{stall: true}
	p = &FeedPublisher{Client: stalled, Username: "alice", Prefix: "office"}
	err = p.Publish(reading(46, 21))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timeout")
}

func TestNewMQTTClientOptions(t *testing.T) {
	cfg := config.Default()
	cfg.MQTTBroker = "tcp://broker.local:1883"
	cfg.MQTTUsername = "alice"
	cfg.MQTTKey = "secret"

	client := NewMQTTClient(cfg)
	require.NotNil(t, client)
	assert.False(t, client.IsConnected())

	r := client.OptionsReader()
	require.Len(t, r.Servers(), 1)
	assert.Equal(t, "broker.local:1883", r.Servers()[0].Host)
	assert.Equal(t, cfg.MQTTClientID, r.ClientID())
	assert.Equal(t, "alice", r.Username())
	assert.False(t, r.AutoReconnect())
}

package app

import (
	"fmt"
	"log"
	"strconv"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/eink_station/internal/config"
	"github.com/relabs-tech/eink_station/internal/domain"
)

const publishTimeout = 5 * time.Second

// NewMQTTClient builds a paho client for the configured broker. It does not
// connect.
func NewMQTTClient(cfg *config.Config) mqtt.Client {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientID).
		SetConnectTimeout(time.Duration(cfg.HTTPTimeout) * time.Second).
		SetAutoReconnect(false)
	if cfg.MQTTUsername != "" {
		opts.SetUsername(cfg.MQTTUsername)
		opts.SetPassword(cfg.MQTTKey)
	}
	return mqtt.NewClient(opts)
}

// FeedPublisher publishes each quantity of a reading to its own Adafruit IO
// feed: <user>/feeds/<prefix>.temperature and so on.
type FeedPublisher struct {
	Client   mqtt.Client
	Username string
	Prefix   string
}

func (p *FeedPublisher) topic(feed string) string {
	return fmt.Sprintf("%s/feeds/%s.%s", p.Username, p.Prefix, feed)
}

func (p *FeedPublisher) Publish(r domain.Reading) error {
	if !p.Client.IsConnected() {
		token := p.Client.Connect()
		if !token.WaitTimeout(publishTimeout) {
			return fmt.Errorf("mqtt connect: timeout")
		}
		if token.Error() != nil {
			return fmt.Errorf("mqtt connect: %w", token.Error())
		}
		log.Println("mqtt: connected to broker")
	}

	values := []struct {
		feed  string
		value float64
	}{
		{"temperature", r.Celsius()},
		{"humidity", r.Percent()},
		{"pressure", r.HPa()},
	}
	for _, v := range values {
		payload := strconv.FormatFloat(v.value, 'f', 2, 64)
		token := p.Client.Publish(p.topic(v.feed), 0, false, payload)
		if !token.WaitTimeout(publishTimeout) {
			return fmt.Errorf("mqtt publish %s: timeout", p.topic(v.feed))
		}
		if token.Error() != nil {
			return fmt.Errorf("mqtt publish %s: %w", p.topic(v.feed), token.Error())
		}
	}
	return nil
}

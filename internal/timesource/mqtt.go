package timesource

import (
	"context"
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// TopicSeconds is the Adafruit IO broker topic carrying unix seconds.
const TopicSeconds = "time/seconds"

// AdafruitMQTT takes the first message published on Topic. The client is
// connected on demand and left connected for the caller to reuse.
type AdafruitMQTT struct {
	Client mqtt.Client
	Topic  string
	Offset int32
}

func (a *AdafruitMQTT) FetchCurrentTime(ctx context.Context) (time.Time, int32, error) {
	topic := a.Topic
	if topic == "" {
		topic = TopicSeconds
	}
	if !a.Client.IsConnected() {
		if err := wait(ctx, a.Client.Connect()); err != nil {
			return time.Time{}, 0, fmt.Errorf("mqtt time: connect: %w", err)
		}
	}

	first := make(chan []byte, 1)
	tok := a.Client.Subscribe(topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		select {
		case first <- msg.Payload():
		default:
		}
	})
	if err := wait(ctx, tok); err != nil {
		return time.Time{}, 0, fmt.Errorf("mqtt time: subscribe %s: %w", topic, err)
	}
	defer func() {
		if err := wait(context.Background(), a.Client.Unsubscribe(topic)); err != nil {
			log.Printf("timesource: Warning: unsubscribe %s: %v", topic, err)
		}
	}()

	select {
	case <-ctx.Done():
		return time.Time{}, 0, fmt.Errorf("mqtt time: %w", ctx.Err())
	case b := <-first:
		utc, err := parseSeconds(b)
		if err != nil {
			return time.Time{}, 0, fmt.Errorf("mqtt time: %w", err)
		}
		return utc, a.Offset, nil
	}
}

// wait blocks on a paho token until it completes or ctx ends.
func wait(ctx context.Context, t mqtt.Token) error {
	select {
	case <-t.Done():
		return t.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

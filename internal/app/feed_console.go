// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"fmt"
	"io"
	"log"
	"strconv"
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

var feedLabels = []struct {
	feed, tag, unit string
}{
	{"temperature", "TEMP", "C"},
	{"humidity", "HUM ", "%"},
	{"pressure", "PRES", "hPa"},
}

// RunFeedConsole prints every value published to the station feeds until
// ctx ends. It is the receiving end of FeedPublisher.
func RunFeedConsole(ctx context.Context, client mqtt.Client, username, prefix string, w io.Writer) error {
	if !client.IsConnected() {
		if token := client.Connect(); token.Wait() && token.Error() != nil {
			return fmt.Errorf("mqtt connect: %w", token.Error())
		}
		log.Println("console: connected to MQTT broker")
	}
	defer client.Disconnect(250)

	pub := &FeedPublisher{Username: username, Prefix: prefix}
	var mu sync.Mutex
	for _, l := range feedLabels {
		l := l
		topic := pub.topic(l.feed)
		token := client.Subscribe(topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
			v, err := strconv.ParseFloat(string(msg.Payload()), 64)
			if err != nil {
				log.Printf("console: %s: bad payload %q", topic, msg.Payload())
				return
			}
			mu.Lock()
			defer mu.Unlock()
			fmt.Fprintf(w, "[%s] %8.2f %s\n", l.tag, v, l.unit)
		})
		token.Wait()
		if token.Error() != nil {
			return fmt.Errorf("mqtt subscribe %s: %w", topic, token.Error())
		}
		log.Printf("console: subscribed to %s", topic)
	}

	<-ctx.Done()
	log.Println("console: shutting down")
	return nil
}

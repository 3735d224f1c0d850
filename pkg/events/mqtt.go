package events

import (
	"context"
	"fmt"
	"os"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	mqttConnectTimeout = 10 * time.Second
	mqttPublishTimeout = 5 * time.Second
)

// mqttPublisher is the subset of mqtt.Client the bridge needs.
type mqttPublisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTBridge republishes follower.count events as retained messages so a
// late subscriber sees the latest count immediately.
type MQTTBridge struct {
	client mqttPublisher
	topic  string
	close  func()
}

// DialMQTT connects to broker, e.g. tcp://localhost:1883.
func DialMQTT(broker, topic string) (*MQTTBridge, error) {
	host, _ := os.Hostname()
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(fmt.Sprintf("followd-%s-%d", host, os.Getpid())).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectTimeout(mqttConnectTimeout)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(mqttConnectTimeout) {
		// keeps retrying in the background
		logrus.WithField("broker", broker).Warn("mqtt broker not reachable yet")
	} else if err := token.Error(); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to connect to mqtt broker %s", broker)
	}

	return &MQTTBridge{
		client: client,
		topic:  topic,
		close:  func() { client.Disconnect(250) },
	}, nil
}

// Run forwards events from hub until ctx is done.
func (b *MQTTBridge) Run(ctx context.Context, hub *EventHub) {
	ch := hub.Subscribe()
	defer hub.Unsubscribe(ch)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if ev.Name != FollowerCount {
				continue
			}
			if err := b.publish(ev.Data); err != nil {
				logrus.Errorf("failed to publish follower count: %v", err)
			}
		}
	}
}

func (b *MQTTBridge) publish(payload []byte) error {
	token := b.client.Publish(b.topic, 1, true, payload)
	if !token.WaitTimeout(mqttPublishTimeout) {
		return pkgerrors.Errorf("timed out publishing to %s", b.topic)
	}
	return token.Error()
}

func (b *MQTTBridge) Close() {
	if b.close != nil {
		b.close()
	}
}

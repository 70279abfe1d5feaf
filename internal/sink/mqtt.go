// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sink

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Thermoquad/bmsbridge/pkg/pace"
)

const mqttTimeout = 5 * time.Second

// mqttClient is the subset of mqtt.Client used by MQTT
type mqttClient interface {
	Connect() mqtt.Token
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTTOptions configures the broker connection
type MQTTOptions struct {
	Host      string
	Port      int
	User      string
	Password  string
	BaseTopic string
	Logger    *zap.Logger
}

// MQTT publishes readings as retained messages under a base topic:
// <base>/pack_<n>/<key> for pack values, <base>/<key> for BMS-wide values
// and <base>/availability for the link state. The broker is told to set
// availability to offline if the bridge disappears.
type MQTT struct {
	client mqttClient
	base   string
	logger *zap.Logger
}

// NewMQTT creates the MQTT sink. The broker connection is made by Connect.
func NewMQTT(opts MQTTOptions) *MQTT {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	base := strings.TrimSuffix(opts.BaseTopic, "/")

	co := mqtt.NewClientOptions()
	co.AddBroker("tcp://" + net.JoinHostPort(opts.Host, strconv.Itoa(opts.Port)))
	co.SetClientID("bmsbridge-" + uuid.NewString())
	if opts.User != "" {
		co.SetUsername(opts.User)
		co.SetPassword(opts.Password)
	}
	co.SetWill(base+"/availability", Offline, 1, true)
	co.SetAutoReconnect(true)
	co.SetConnectTimeout(mqttTimeout)
	co.SetOnConnectHandler(func(mqtt.Client) {
		logger.Info("connected to MQTT broker", zap.String("host", opts.Host))
	})
	co.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn("MQTT connection lost", zap.Error(err))
	})

	return &MQTT{client: mqtt.NewClient(co), base: base, logger: logger}
}

// Connect connects to the broker
func (m *MQTT) Connect(ctx context.Context) error {
	if err := wait(ctx, m.client.Connect()); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	return nil
}

// Close publishes offline and disconnects
func (m *MQTT) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), mqttTimeout)
	defer cancel()
	err := m.PublishAvailability(ctx, false)
	m.client.Disconnect(250)
	return err
}

// Topic returns the topic for a reading
func (m *MQTT) Topic(pack int, key string) string {
	if pack <= 0 {
		return m.base + "/" + key
	}
	return fmt.Sprintf("%s/pack_%d/%s", m.base, pack, key)
}

// PublishReading implements TelemetrySink
func (m *MQTT) PublishReading(ctx context.Context, r pace.Reading) error {
	return m.publish(ctx, m.Topic(r.Pack, r.Key), r.String())
}

// PublishAvailability implements TelemetrySink
func (m *MQTT) PublishAvailability(ctx context.Context, online bool) error {
	return m.publish(ctx, m.base+"/availability", AvailabilityText(online))
}

// PublishIdentity implements TelemetrySink
func (m *MQTT) PublishIdentity(ctx context.Context, id pace.Identity) error {
	for _, r := range id.Readings() {
		if err := m.PublishReading(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

func (m *MQTT) publish(ctx context.Context, topic, payload string) error {
	if err := wait(ctx, m.client.Publish(topic, 0, true, payload)); err != nil {
		return fmt.Errorf("mqtt publish %s: %w", topic, err)
	}
	return nil
}

// wait blocks until the token completes, ctx ends or mqttTimeout passes
func wait(ctx context.Context, tok mqtt.Token) error {
	timer := time.NewTimer(mqttTimeout)
	defer timer.Stop()
	select {
	case <-tok.Done():
		return tok.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("timed out after %s", mqttTimeout)
	}
}

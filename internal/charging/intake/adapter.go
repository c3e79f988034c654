// Copyright 2026 Esteban Alvarez. All Rights Reserved.
//
// Created: June 2026
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package intake bridges the MQTT broker into the durable queues. Acks are
// manual: an invalid payload is acked and dropped so it never returns, a
// sample the queue refuses is left unacked so the broker redelivers it.
package intake

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"

	"evtel/internal/charging/core"
	"evtel/internal/charging/telemetry/ingestmetrics"
	"evtel/pkg/wire"
)

const (
	// DefaultConnectTimeout bounds the initial broker handshake.
	DefaultConnectTimeout = 10 * time.Second
	// DefaultEnqueueTimeout bounds a single queue write per message.
	DefaultEnqueueTimeout = 5 * time.Second

	// subscribeQos is at-least-once; the queue layer dedups nothing, the
	// writer's batch dedup absorbs redeliveries.
	subscribeQos = 1

	disconnectQuiesceMs = 250
)

// AdapterConfig configures the broker bridge.
type AdapterConfig struct {
	BrokerURL      string
	ClientID       string
	ConnectTimeout time.Duration
	EnqueueTimeout time.Duration
}

func (c AdapterConfig) applyDefaults() AdapterConfig {
	if c.ClientID == "" {
		c.ClientID = "evtel-intake"
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.EnqueueTimeout <= 0 {
		c.EnqueueTimeout = DefaultEnqueueTimeout
	}
	return c
}

// Adapter subscribes to both telemetry topic families and feeds the two
// stream queues.
type Adapter struct {
	cfg      AdapterConfig
	client   mqtt.Client
	meters   core.Queue
	vehicles core.Queue
	log      *logrus.Entry
	stopped  uint32
}

// NewAdapter wires the queues but does not touch the network until Start.
func NewAdapter(cfg AdapterConfig, meters, vehicles core.Queue) *Adapter {
	a := &Adapter{
		cfg:      cfg.applyDefaults(),
		meters:   meters,
		vehicles: vehicles,
		log:      logrus.WithField("component", "intake"),
	}

	opts := mqtt.NewClientOptions().
		AddBroker(a.cfg.BrokerURL).
		SetClientID(a.cfg.ClientID).
		SetCleanSession(false).
		SetAutoAckDisabled(true).
		SetOrderMatters(false).
		SetAutoReconnect(true)
	// Subscriptions live in OnConnect so they are re-established after
	// every reconnect.
	opts.SetOnConnectHandler(a.subscribeAll)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		a.log.WithError(err).Warn("broker connection lost")
	})
	a.client = mqtt.NewClient(opts)
	return a
}

// Start connects to the broker; subscriptions follow via OnConnect.
func (a *Adapter) Start() error {
	token := a.client.Connect()
	if !token.WaitTimeout(a.cfg.ConnectTimeout) {
		return fmt.Errorf("connect to broker %s: timeout after %s", a.cfg.BrokerURL, a.cfg.ConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("connect to broker %s: %w", a.cfg.BrokerURL, err)
	}
	a.log.WithField("broker", a.cfg.BrokerURL).Info("intake connected")
	return nil
}

// Stop disconnects from the broker. In-flight unacked messages stay in the
// broker session and are redelivered on the next start. Safe to call more
// than once.
func (a *Adapter) Stop() {
	if !atomic.CompareAndSwapUint32(&a.stopped, 0, 1) {
		return
	}
	a.client.Disconnect(disconnectQuiesceMs)
	a.log.Info("intake stopped")
}

func (a *Adapter) subscribeAll(client mqtt.Client) {
	subs := []struct {
		filter  string
		handler mqtt.MessageHandler
	}{
		{wire.MeterTopicFilter, a.handleMeter},
		{wire.VehicleTopicFilter, a.handleVehicle},
	}
	for _, sub := range subs {
		token := client.Subscribe(sub.filter, subscribeQos, sub.handler)
		if !token.WaitTimeout(a.cfg.ConnectTimeout) || token.Error() != nil {
			a.log.WithError(token.Error()).WithField("filter", sub.filter).
				Error("subscribe failed; broker will retry on reconnect")
			continue
		}
		a.log.WithField("filter", sub.filter).Info("subscribed")
	}
}

func (a *Adapter) handleMeter(_ mqtt.Client, msg mqtt.Message) {
	receivedAt := time.Now().UTC()

	reading, err := wire.ParseMeterReading(msg.Payload())
	if err != nil {
		ingestmetrics.RecordDropped(core.StreamMeter, "invalid")
		a.log.WithError(err).WithField("topic", msg.Topic()).Debug("dropping invalid meter reading")
		msg.Ack()
		return
	}

	payload, err := core.EncodeMeterSample(core.MeterSampleFromReading(reading, receivedAt))
	if err != nil {
		ingestmetrics.RecordDropped(core.StreamMeter, "invalid")
		a.log.WithError(err).Error("encode meter sample")
		msg.Ack()
		return
	}
	if !a.enqueue(a.meters, core.StreamMeter, payload) {
		return
	}
	ingestmetrics.RecordAccepted(core.StreamMeter)
	msg.Ack()
}

func (a *Adapter) handleVehicle(_ mqtt.Client, msg mqtt.Message) {
	receivedAt := time.Now().UTC()

	reading, err := wire.ParseVehicleReading(msg.Payload())
	if err != nil {
		ingestmetrics.RecordDropped(core.StreamVehicle, "invalid")
		a.log.WithError(err).WithField("topic", msg.Topic()).Debug("dropping invalid vehicle reading")
		msg.Ack()
		return
	}

	payload, err := core.EncodeVehicleSample(core.VehicleSampleFromReading(reading, receivedAt))
	if err != nil {
		ingestmetrics.RecordDropped(core.StreamVehicle, "invalid")
		a.log.WithError(err).Error("encode vehicle sample")
		msg.Ack()
		return
	}
	if !a.enqueue(a.vehicles, core.StreamVehicle, payload) {
		return
	}
	ingestmetrics.RecordAccepted(core.StreamVehicle)
	msg.Ack()
}

// enqueue reports false when the queue rejected the payload; the caller
// must then leave the message unacked.
func (a *Adapter) enqueue(q core.Queue, stream string, payload []byte) bool {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.EnqueueTimeout)
	defer cancel()
	if err := q.Enqueue(ctx, payload); err != nil {
		ingestmetrics.RecordEnqueueFailure(stream)
		a.log.WithError(err).WithField("stream", stream).Error("enqueue failed; leaving message for redelivery")
		return false
	}
	return true
}

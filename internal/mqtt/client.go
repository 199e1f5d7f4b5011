// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package mqtt

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/ghg_sampler/internal/config"
)

const tokenTimeout = 5 * time.Second

// Client wraps the paho client with connection state tracking and
// automatic resubscription after a broker reconnect.
type Client struct {
	client mqtt.Client

	mu        sync.RWMutex
	connected bool
	subs      map[string]mqtt.MessageHandler

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewClient builds a client for the configured broker. clientID
// overrides the configured ID so several processes can share a broker,
// pass "" to use the configured one.
func NewClient(cfg *config.Config, clientID string) *Client {
	if clientID == "" {
		clientID = cfg.MQTTClientID
	}

	c := &Client{
		subs:   make(map[string]mqtt.MessageHandler),
		stopCh: make(chan struct{}),
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.MQTTBroker, cfg.MQTTPort))
	opts.SetClientID(clientID)

	opts.SetCleanSession(true)

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)

	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	// Callbacks keep internal state accurate
	opts.SetOnConnectHandler(func(cl mqtt.Client) {
		c.setConnected(true)
		slog.Info("mqtt connected", "broker", cfg.MQTTBroker, "port", cfg.MQTTPort, "client_id", clientID)
		c.resubscribe(cl)
	})

	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		c.setConnected(false)
		slog.Warn("mqtt connection lost", "error", err)
	})

	c.client = mqtt.NewClient(opts)
	return c
}

// Connect establishes the connection to the broker. It waits for the
// initial connection and respects ctx and Disconnect().
func (c *Client) Connect(ctx context.Context) error {
	// Fail fast if already stopped.
	select {
	case <-c.stopCh:
		return fmt.Errorf("client stopped")
	default:
	}

	if c.IsConnected() {
		return nil
	}

	// With ConnectRetry(true) the token may keep retrying internally.
	token := c.client.Connect()

	const poll = 200 * time.Millisecond
	for {
		if token.WaitTimeout(poll) {
			if err := token.Error(); err != nil {
				return fmt.Errorf("mqtt connect: %w", err)
			}
			// OnConnectHandler sets connected=true.
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.stopCh:
			return fmt.Errorf("client stopped")
		default:
		}
	}
}

// Publish sends payload at QoS 0. Samples are periodic, a lost one is
// superseded by the next cycle anyway.
func (c *Client) Publish(topic string, retained bool, payload []byte) error {
	if !c.IsConnected() {
		return fmt.Errorf("mqtt client not connected")
	}

	token := c.client.Publish(topic, 0, retained, payload)
	if !token.WaitTimeout(tokenTimeout) {
		return fmt.Errorf("publish timeout for topic %s", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Subscribe registers handler for topic. The subscription survives
// broker reconnects.
func (c *Client) Subscribe(topic string, handler func(payload []byte)) error {
	h := func(_ mqtt.Client, msg mqtt.Message) { handler(msg.Payload()) }

	c.mu.Lock()
	c.subs[topic] = h
	c.mu.Unlock()

	token := c.client.Subscribe(topic, 0, h)
	if !token.WaitTimeout(tokenTimeout) {
		return fmt.Errorf("subscribe timeout for topic %s", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	return nil
}

// IsConnected returns whether the client is connected.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	connected := c.connected
	c.mu.RUnlock()
	return connected && c.client.IsConnected()
}

// Disconnect stops the client and closes the connection. Idempotent.
// After Disconnect, Connect() returns "client stopped".
func (c *Client) Disconnect() {
	// Signal shutdown once (unblocks any Connect loops).
	c.stopOnce.Do(func() { close(c.stopCh) })

	if c.client != nil {
		// Safe even when already disconnected. Paho quiesces
		// in-flight work for the given number of milliseconds.
		c.client.Disconnect(250)
	}

	c.setConnected(false)
	slog.Info("mqtt disconnected")
}

func (c *Client) setConnected(v bool) {
	c.mu.Lock()
	c.connected = v
	c.mu.Unlock()
}

func (c *Client) resubscribe(cl mqtt.Client) {
	c.mu.RLock()
	subs := make(map[string]mqtt.MessageHandler, len(c.subs))
	for topic, h := range c.subs {
		subs[topic] = h
	}
	c.mu.RUnlock()

	for topic, h := range subs {
		token := cl.Subscribe(topic, 0, h)
		if !token.WaitTimeout(tokenTimeout) || token.Error() != nil {
			slog.Warn("mqtt resubscribe failed", "topic", topic, "error", token.Error())
		}
	}
}

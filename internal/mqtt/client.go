package mqtt

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Client manages the MQTT connection (low-level connection management only)
// For subscribing and publishing, use Subscriber and Publisher respectively
type Client struct {
	client mqtt.Client
	config ClientConfig
	logger *slog.Logger

	mu        sync.Mutex
	onConnect []func(mqtt.Client)
}

// ClientConfig holds MQTT client configuration
type ClientConfig struct {
	Broker   string // e.g. tcp://broker.emqx.io:1883
	ClientID string
	Username string
	Password string

	// ConnectTimeout bounds how long NewClient waits for the first connection.
	// The client keeps retrying in the background after it elapses.
	ConnectTimeout time.Duration
}

// NewClient creates a new MQTT client and starts connecting.
// It returns an error only if the first connection attempt fails outright.
func NewClient(config ClientConfig, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = 10 * time.Second
	}

	c := &Client{
		config: config,
		logger: logger.With("component", "mqtt"),
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(config.Broker)
	opts.SetClientID(config.ClientID)
	opts.SetUsername(config.Username)
	opts.SetPassword(config.Password)
	opts.SetDefaultPublishHandler(c.messagePubHandler)
	opts.SetOnConnectHandler(c.connectHandler)
	opts.SetConnectionLostHandler(c.connectLostHandler)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetOrderMatters(true)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	c.client = mqtt.NewClient(opts)

	token := c.client.Connect()
	if !token.WaitTimeout(config.ConnectTimeout) {
		c.logger.Warn("broker not reachable yet, retrying in background", "broker", config.Broker)
		return c, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", err)
	}

	c.logger.Info("connected to broker", "broker", config.Broker, "client_id", config.ClientID)
	return c, nil
}

// OnConnect registers fn to run on every (re)connection. If the client is
// already connected fn also runs immediately.
func (c *Client) OnConnect(fn func(mqtt.Client)) {
	c.mu.Lock()
	c.onConnect = append(c.onConnect, fn)
	c.mu.Unlock()

	if c.client.IsConnectionOpen() {
		fn(c.client)
	}
}

// GetNativeClient returns the underlying paho MQTT client
// This is used by Subscriber and Publisher
func (c *Client) GetNativeClient() mqtt.Client {
	return c.client
}

// IsConnected returns whether the client is currently connected
func (c *Client) IsConnected() bool {
	return c.client.IsConnectionOpen()
}

// Close closes the MQTT client connection
func (c *Client) Close() {
	c.client.Disconnect(250)
	c.logger.Info("disconnected")
}

// Connection event handlers
func (c *Client) messagePubHandler(_ mqtt.Client, msg mqtt.Message) {
	c.logger.Debug("unhandled message", "topic", msg.Topic())
}

func (c *Client) connectHandler(client mqtt.Client) {
	c.logger.Info("connection established")

	c.mu.Lock()
	hooks := append([]func(mqtt.Client){}, c.onConnect...)
	c.mu.Unlock()

	for _, fn := range hooks {
		fn(client)
	}
}

func (c *Client) connectLostHandler(_ mqtt.Client, err error) {
	c.logger.Warn("connection lost, ingestion paused until reconnect", "error", err)
}

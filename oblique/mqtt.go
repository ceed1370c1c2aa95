package oblique

import (
	"log"
	"os"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	defaultMQTTClientID = "obliqueplan"
	connectTimeout      = 10 * time.Second
	subscribeTimeout    = 5 * time.Second
	maxConnectDelay     = 60 * time.Second
)

// ProjectHandler is called when a project is received on the input topic.
// err is set when the payload could not be parsed.
type ProjectHandler func(p *Project, err error)

// MQTTClient manages the broker connection and the project input topic
type MQTTClient struct {
	client    mqtt.Client
	prefix    string
	onProject ProjectHandler

	mu        sync.RWMutex
	connected bool

	stop     chan struct{}
	stopOnce sync.Once
}

// ProjectTopic returns the topic on which new projects are received
func ProjectTopic(prefix string) string {
	if prefix == "" {
		prefix = DefaultPublishPrefix
	}
	return prefix + "/project/set"
}

// resolveMQTTSettings merges the MQTT_* environment over the config file.
// An empty Broker means MQTT is off.
func resolveMQTTSettings(cfg *Config) MQTTConfig {
	var s MQTTConfig
	if cfg != nil {
		s = cfg.MQTT
	}
	override := func(dst *string, env string) {
		if v := os.Getenv(env); v != "" {
			*dst = v
		}
	}
	override(&s.Broker, "MQTT_BROKER")
	override(&s.ClientID, "MQTT_CLIENT_ID")
	override(&s.Username, "MQTT_USERNAME")
	override(&s.Password, "MQTT_PASSWORD")
	if s.ClientID == "" {
		s.ClientID = defaultMQTTClientID
	}
	if s.PublishPrefix == "" {
		s.PublishPrefix = DefaultPublishPrefix
	}
	return s
}

// clientOptions builds paho options for s with c's lifecycle callbacks
func (c *MQTTClient) clientOptions(s MQTTConfig) *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions().
		AddBroker(s.Broker).
		SetClientID(s.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetMaxReconnectInterval(maxConnectDelay).
		SetKeepAlive(60 * time.Second).
		SetPingTimeout(10 * time.Second).
		SetCleanSession(false).
		// projects are planned in arrival order
		SetOrderMatters(true).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(c.onConnectionLost).
		SetReconnectingHandler(func(mqtt.Client, *mqtt.ClientOptions) {
			log.Println("[MQTT] reconnecting...")
		})
	if s.Username != "" {
		opts.SetUsername(s.Username)
		opts.SetPassword(s.Password)
	}
	return opts
}

// InitMQTT creates a client for the configured broker and starts connecting
// in the background. It returns nil, nil when no broker is configured.
func InitMQTT(config *Config, handler ProjectHandler) (*MQTTClient, error) {
	s := resolveMQTTSettings(config)
	if s.Broker == "" {
		log.Println("[MQTT] disabled: no broker in MQTT_BROKER or config")
		return nil, nil
	}

	c := &MQTTClient{
		prefix:    s.PublishPrefix,
		onProject: handler,
		stop:      make(chan struct{}),
	}
	c.client = mqtt.NewClient(c.clientOptions(s))
	log.Printf("[MQTT] broker %s, client id %s", s.Broker, s.ClientID)

	go c.connectLoop()
	return c, nil
}

// connectLoop retries the initial connection with doubling delays until it
// succeeds or Disconnect is called
func (c *MQTTClient) connectLoop() {
	for attempt := 0; ; attempt++ {
		if wait := min(retryDelay(time.Second, attempt), maxConnectDelay); wait > 0 {
			log.Printf("[MQTT] retrying connection in %v...", wait)
			select {
			case <-c.stop:
				return
			case <-time.After(wait):
			}
		}

		token := c.client.Connect()
		switch {
		case !token.WaitTimeout(connectTimeout):
			log.Println("[MQTT] connection timeout")
		case token.Error() != nil:
			log.Printf("[MQTT] connection failed: %v", token.Error())
		default:
			log.Println("[MQTT] connected to broker")
			c.setConnected(true)
			return
		}
	}
}

// onConnect marks the client connected and subscribes to the project topic
func (c *MQTTClient) onConnect(client mqtt.Client) {
	c.setConnected(true)
	if c.onProject == nil {
		return
	}

	topic := ProjectTopic(c.prefix)
	log.Printf("[MQTT] subscribing to %s", topic)
	token := client.Subscribe(topic, 1, c.handleProjectMessage)
	if token.WaitTimeout(subscribeTimeout) && token.Error() != nil {
		log.Printf("[MQTT] error subscribing to %s: %v", topic, token.Error())
	}
}

func (c *MQTTClient) onConnectionLost(_ mqtt.Client, err error) {
	log.Printf("[MQTT] connection lost (%v), waiting for auto-reconnect", err)
	c.setConnected(false)
}

// handleProjectMessage decodes a project payload for the handler
func (c *MQTTClient) handleProjectMessage(_ mqtt.Client, msg mqtt.Message) {
	payload := msg.Payload()
	log.Printf("[MQTT] project on %s (%d bytes)", msg.Topic(), len(payload))

	p, err := ParseProjectJSON(payload)
	if err != nil {
		log.Printf("[MQTT] error decoding project: %v", err)
	}
	if c.onProject != nil {
		c.onProject(p, err)
	}
}

// IsConnected reports whether the broker connection is up
func (c *MQTTClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

func (c *MQTTClient) setConnected(connected bool) {
	c.mu.Lock()
	c.connected = connected
	c.mu.Unlock()
}

// Disconnect stops any pending connection attempt and closes the connection
func (c *MQTTClient) Disconnect() {
	c.stopOnce.Do(func() { close(c.stop) })
	if c.client != nil && c.client.IsConnected() {
		log.Println("[MQTT] disconnecting from broker...")
		c.client.Disconnect(250)
	}
	c.setConnected(false)
}

// GetClient returns the paho client used for publishing
func (c *MQTTClient) GetClient() mqtt.Client {
	return c.client
}

// newMQTTClientWithMock wraps an existing client, typically a MockClient
func newMQTTClientWithMock(client mqtt.Client, config *Config, handler ProjectHandler) *MQTTClient {
	return &MQTTClient{
		client:    client,
		prefix:    resolveMQTTSettings(config).PublishPrefix,
		onProject: handler,
		stop:      make(chan struct{}),
	}
}

package fleet

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// PositionUpdate is the decoded telemetry payload published by a robot on
// its position topic.
type PositionUpdate struct {
	Coordinates Coordinate
	Timestamp   time.Time
}

// PositionHandler is called when a position message is received.
// Parameters: robotID, rawPayload, decoded update, error.
// rawPayload is provided so callers can log or archive undecodable frames.
type PositionHandler func(robotID string, rawPayload []byte, update *PositionUpdate, err error)

// StatusHandler is called when a robot publishes a status string
// (e.g. "idle", "working", "charging") on its status topic.
type StatusHandler func(robotID, status string)

// MQTTClient manages the MQTT connection and subscriptions for robot telemetry
type MQTTClient struct {
	client          mqtt.Client
	config          *Config
	positionHandler PositionHandler
	statusHandler   StatusHandler
	isConnected     bool
	mu              sync.RWMutex
}

var (
	globalClient *MQTTClient
	clientMu     sync.Mutex
)

// InitMQTT initializes the global MQTT client with the provided configuration.
// If neither the MQTT_BROKER env var nor the config broker is set, MQTT is
// disabled and this returns nil.
func InitMQTT(config *Config, handler PositionHandler) (*MQTTClient, error) {
	clientMu.Lock()
	defer clientMu.Unlock()

	broker := os.Getenv("MQTT_BROKER")
	if broker == "" && config != nil && config.MQTT.Broker != "" {
		broker = config.MQTT.Broker
	}

	if broker == "" {
		log.Println("MQTT disabled: MQTT_BROKER not set")
		return nil, nil
	}

	if config == nil || len(config.Robots) == 0 {
		return nil, fmt.Errorf("MQTT enabled but no robot configuration provided")
	}

	client := &MQTTClient{
		config:          config,
		positionHandler: handler,
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)

	clientID := os.Getenv("MQTT_CLIENT_ID")
	if clientID == "" && config.MQTT.ClientID != "" {
		clientID = config.MQTT.ClientID
	}
	if clientID == "" {
		clientID = "fleetwatch"
	}
	opts.SetClientID(clientID)

	username := os.Getenv("MQTT_USERNAME")
	if username == "" && config.MQTT.Username != "" {
		username = config.MQTT.Username
	}
	if username != "" {
		opts.SetUsername(username)
		password := os.Getenv("MQTT_PASSWORD")
		if password == "" && config.MQTT.Password != "" {
			password = config.MQTT.Password
		}
		opts.SetPassword(password)
	}

	// Connection settings
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetCleanSession(false) // Preserve subscriptions on reconnect
	opts.SetOrderMatters(false) // Allow concurrent processing

	// Callbacks
	opts.SetOnConnectHandler(client.onConnect)
	opts.SetConnectionLostHandler(client.onConnectionLost)
	opts.SetReconnectingHandler(client.onReconnecting)

	client.client = mqtt.NewClient(opts)

	// Connect asynchronously with retry
	go client.connectWithRetry()

	globalClient = client
	return client, nil
}

// GetMQTTClient returns the global MQTT client instance
func GetMQTTClient() *MQTTClient {
	clientMu.Lock()
	defer clientMu.Unlock()
	return globalClient
}

// connectWithRetry attempts to connect to the MQTT broker with exponential backoff
func (c *MQTTClient) connectWithRetry() {
	retryDelay := 1 * time.Second
	maxRetryDelay := 60 * time.Second

	for {
		log.Println("Connecting to MQTT broker...")

		token := c.client.Connect()
		if token.WaitTimeout(10 * time.Second) {
			if token.Error() == nil {
				log.Println("Successfully connected to MQTT broker")
				c.setConnected(true)
				return
			}
			log.Printf("MQTT connection failed: %v", token.Error())
		} else {
			log.Println("MQTT connection timeout")
		}

		log.Printf("Retrying MQTT connection in %v...", retryDelay)
		time.Sleep(retryDelay)
		retryDelay *= 2
		if retryDelay > maxRetryDelay {
			retryDelay = maxRetryDelay
		}
	}
}

// onConnect is called when the MQTT connection is established
func (c *MQTTClient) onConnect(client mqtt.Client) {
	log.Println("MQTT connected, subscribing to robot topics...")
	c.setConnected(true)

	for _, robot := range c.config.Robots {
		if robot.Topic == "" {
			log.Printf("Warning: robot %s has no topic configured", robot.ID)
			continue
		}

		log.Printf("Subscribing to %s for robot %s", robot.Topic, robot.ID)
		token := client.Subscribe(robot.Topic, 0, c.createPositionHandler(robot.ID))

		if token.WaitTimeout(5*time.Second) && token.Error() != nil {
			log.Printf("Error subscribing to %s: %v", robot.Topic, token.Error())
		}

		if statusTopic, ok := deriveStatusTopic(robot.Topic); ok {
			log.Printf("Subscribing to %s for robot %s status", statusTopic, robot.ID)
			statusToken := client.Subscribe(statusTopic, 0, c.createStatusHandler(robot.ID))

			if statusToken.WaitTimeout(5*time.Second) && statusToken.Error() != nil {
				log.Printf("Error subscribing to %s: %v", statusTopic, statusToken.Error())
			}
		}
	}
}

// onConnectionLost is called when the MQTT connection is lost.
// Auto-reconnect is enabled, so this is typically a transient event.
func (c *MQTTClient) onConnectionLost(client mqtt.Client, err error) {
	log.Printf("MQTT connection interrupted (%v), auto-reconnect will retry", err)
	c.setConnected(false)
}

// onReconnecting is called when the client attempts to reconnect
func (c *MQTTClient) onReconnecting(client mqtt.Client, opts *mqtt.ClientOptions) {
	log.Println("MQTT reconnecting...")
}

// positionPayload is the wire format of a position message. Latitude and
// longitude are pointers so missing fields are distinguishable from zero
// values (0,0 is a real place).
type positionPayload struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Altitude  *float64 `json:"altitude,omitempty"`
	Timestamp int64    `json:"timestamp,omitempty"` // unix milliseconds
}

// DecodePosition parses a position topic payload. A missing timestamp is
// stamped with the receive time.
func DecodePosition(payload []byte) (*PositionUpdate, error) {
	var p positionPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("parsing position payload: %w", err)
	}
	if p.Latitude == nil || p.Longitude == nil {
		return nil, fmt.Errorf("position payload missing latitude/longitude")
	}
	if *p.Latitude < -90 || *p.Latitude > 90 || *p.Longitude < -180 || *p.Longitude > 180 {
		return nil, fmt.Errorf("position out of range: lat=%v lon=%v", *p.Latitude, *p.Longitude)
	}

	ts := time.Now()
	if p.Timestamp > 0 {
		ts = time.UnixMilli(p.Timestamp)
	}

	return &PositionUpdate{
		Coordinates: Coordinate{
			Latitude:  *p.Latitude,
			Longitude: *p.Longitude,
			Altitude:  p.Altitude,
		},
		Timestamp: ts,
	}, nil
}

// createPositionHandler creates a handler function for a specific robot's topic
func (c *MQTTClient) createPositionHandler(robotID string) mqtt.MessageHandler {
	return func(client mqtt.Client, msg mqtt.Message) {
		payload := msg.Payload()

		update, err := DecodePosition(payload)
		if err != nil {
			log.Printf("Error decoding position for %s: %v", robotID, err)
			if c.positionHandler != nil {
				c.positionHandler(robotID, payload, nil, err)
			}
			return
		}

		if c.positionHandler != nil {
			c.positionHandler(robotID, payload, update, nil)
		}
	}
}

// SetStatusHandler registers a callback that is invoked when a robot
// publishes a status update
func (c *MQTTClient) SetStatusHandler(handler StatusHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statusHandler = handler
}

// getStatusHandler returns the current status handler in a thread-safe manner
func (c *MQTTClient) getStatusHandler() StatusHandler {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.statusHandler
}

// deriveStatusTopic converts a position topic to a status topic.
// Example: "fleet/rover-7/position" -> "fleet/rover-7/status".
// Returns the derived topic and true if the conversion succeeded.
func deriveStatusTopic(positionTopic string) (string, bool) {
	parts := strings.Split(positionTopic, "/")
	if len(parts) < 2 {
		return "", false
	}
	parts[len(parts)-1] = "status"
	return strings.Join(parts, "/"), true
}

// statusPayload represents the JSON structure of a status message
type statusPayload struct {
	Value string `json:"value"`
}

// createStatusHandler creates a handler for status topic messages
func (c *MQTTClient) createStatusHandler(robotID string) mqtt.MessageHandler {
	return func(client mqtt.Client, msg mqtt.Message) {
		payload := msg.Payload()

		var statusValue string

		// Try parsing as JSON object {"value": "..."}
		var status statusPayload
		if err := json.Unmarshal(payload, &status); err == nil && status.Value != "" {
			statusValue = status.Value
		} else {
			// Try parsing as JSON string, then fall back to the raw bytes.
			var plain string
			if err2 := json.Unmarshal(payload, &plain); err2 == nil {
				statusValue = plain
			} else {
				statusValue = strings.TrimSpace(string(payload))
			}
			if statusValue == "" {
				log.Printf("Empty status payload for %s, skipping", robotID)
				return
			}
		}

		log.Printf("Robot %s status: %s", robotID, statusValue)

		if handler := c.getStatusHandler(); handler != nil {
			handler(robotID, statusValue)
		}
	}
}

// IsConnected returns true if the MQTT client is connected
func (c *MQTTClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isConnected
}

// setConnected updates the connection status
func (c *MQTTClient) setConnected(connected bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.isConnected = connected
}

// Disconnect gracefully closes the MQTT connection
func (c *MQTTClient) Disconnect() {
	if c.client != nil && c.client.IsConnected() {
		log.Println("Disconnecting from MQTT broker...")
		c.client.Disconnect(250) // 250ms quiesce time
		c.setConnected(false)
	}
}

// GetRobotByTopic returns the robot ID for a given position topic
func (c *MQTTClient) GetRobotByTopic(topic string) (string, bool) {
	for _, robot := range c.config.Robots {
		if robot.Topic == topic {
			return robot.ID, true
		}
	}
	return "", false
}

// GetClient returns the underlying MQTT client for publishing
func (c *MQTTClient) GetClient() mqtt.Client {
	return c.client
}

// newMQTTClientWithMock creates an MQTTClient with a provided mqtt.Client.
// This is used for testing with mock clients.
func newMQTTClientWithMock(client mqtt.Client, config *Config, handler PositionHandler) *MQTTClient {
	return &MQTTClient{
		client:          client,
		config:          config,
		positionHandler: handler,
	}
}

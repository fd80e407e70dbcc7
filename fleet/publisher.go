package fleet

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// AlertPublisher publishes fired geofence violations to MQTT so downstream
// consumers (dashboards, pagers) can react without polling the HTTP API.
type AlertPublisher struct {
	client        mqtt.Client
	publishPrefix string
	qos           byte
	retain        bool
	lastAlerts    map[string]*GeofenceViolation // robotID -> most recent violation
	mu            sync.RWMutex
}

// NewAlertPublisher creates a new violation publisher.
// If client is nil, publishing is disabled (for testing).
func NewAlertPublisher(client mqtt.Client, config *Config) *AlertPublisher {
	prefix := os.Getenv("MQTT_PUBLISH_PREFIX")
	if prefix == "" && config != nil && config.MQTT.PublishPrefix != "" {
		prefix = config.MQTT.PublishPrefix
	}
	if prefix == "" {
		prefix = "fleetwatch"
	}

	return &AlertPublisher{
		client:        client,
		publishPrefix: prefix,
		qos:           1,    // QoS 1 so alerts survive flaky links
		retain:        true, // Retain for latest alert per robot
		lastAlerts:    make(map[string]*GeofenceViolation),
	}
}

// PublishViolation publishes a single violation to the robot's alert topic
// and refreshes the combined alerts topic.
func (p *AlertPublisher) PublishViolation(v GeofenceViolation) error {
	if p.client == nil || !p.client.IsConnected() {
		return fmt.Errorf("MQTT client not connected")
	}

	p.mu.Lock()
	alert := v
	p.lastAlerts[v.RobotID] = &alert
	p.mu.Unlock()

	// Publish to individual topic: fleetwatch/alerts/{robotID}
	if err := p.publishIndividual(&v); err != nil {
		log.Printf("Error publishing alert for %s: %v", v.RobotID, err)
		return err
	}

	// Publish to combined topic: fleetwatch/alerts
	if err := p.publishCombined(); err != nil {
		log.Printf("Error publishing combined alerts: %v", err)
		return err
	}

	return nil
}

// publishIndividual publishes one violation to its robot's alert topic
func (p *AlertPublisher) publishIndividual(v *GeofenceViolation) error {
	topic := fmt.Sprintf("%s/alerts/%s", p.publishPrefix, v.RobotID)

	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling violation: %w", err)
	}

	token := p.client.Publish(topic, p.qos, p.retain, payload)
	if token.WaitTimeout(2*time.Second) && token.Error() != nil {
		return fmt.Errorf("publishing to %s: %w", topic, token.Error())
	}

	log.Printf("Published %s alert for %s: fence=%s severity=%s",
		v.Type, v.RobotID, v.GeofenceID, v.Severity)
	return nil
}

// publishCombined publishes the latest alert of every robot to the combined topic
func (p *AlertPublisher) publishCombined() error {
	p.mu.RLock()
	alerts := make([]*GeofenceViolation, 0, len(p.lastAlerts))
	for _, v := range p.lastAlerts {
		alerts = append(alerts, v)
	}
	p.mu.RUnlock()

	if len(alerts) == 0 {
		return nil
	}

	topic := fmt.Sprintf("%s/alerts", p.publishPrefix)

	message := map[string]interface{}{
		"alerts":    alerts,
		"timestamp": time.Now().Unix(),
	}

	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("marshaling combined alerts: %w", err)
	}

	token := p.client.Publish(topic, p.qos, p.retain, payload)
	if token.WaitTimeout(2*time.Second) && token.Error() != nil {
		return fmt.Errorf("publishing to %s: %w", topic, token.Error())
	}

	return nil
}

// GetLastAlert returns the most recently published violation for a robot
func (p *AlertPublisher) GetLastAlert(robotID string) (*GeofenceViolation, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := p.lastAlerts[robotID]
	return v, ok
}

// GetAllAlerts returns the latest published violation per robot
func (p *AlertPublisher) GetAllAlerts() map[string]*GeofenceViolation {
	p.mu.RLock()
	defer p.mu.RUnlock()

	alerts := make(map[string]*GeofenceViolation, len(p.lastAlerts))
	for id, v := range p.lastAlerts {
		alertCopy := *v
		alerts[id] = &alertCopy
	}
	return alerts
}

// ClearAlert removes a robot's retained alert (e.g. after acknowledgement)
func (p *AlertPublisher) ClearAlert(robotID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.lastAlerts, robotID)
}

// SetQoS sets the Quality of Service level for publishing (0, 1, or 2)
func (p *AlertPublisher) SetQoS(qos byte) {
	if qos <= 2 {
		p.qos = qos
	}
}

// SetRetain sets whether published messages should be retained by the broker
func (p *AlertPublisher) SetRetain(retain bool) {
	p.retain = retain
}

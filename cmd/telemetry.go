package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"

	"github.com/statetune/statetune/ctl/trace"
)

// telemetryPublisher mirrors iteration records to an MQTT topic as JSON,
// one message per iteration.
type telemetryPublisher struct {
	client mqtt.Client
	topic  string
}

// newTelemetryPublisher connects to the broker and returns a ready publisher.
func newTelemetryPublisher(broker, topic, clientID string) (*telemetryPublisher, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		logrus.Warnf("MQTT connection lost: %v", err)
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connect to MQTT broker %s: %w", broker, token.Error())
	}
	logrus.Infof("Connected to MQTT broker at %s", broker)
	return &telemetryPublisher{client: client, topic: topic}, nil
}

// Publish sends one record. Delivery failures are logged and dropped;
// telemetry never stalls the control loop.
func (p *telemetryPublisher) Publish(r trace.Record) {
	payload, err := json.Marshal(map[string]any{
		"iteration_id":    r.IterationID,
		"performance":     r.Performance,
		"power":           r.Power,
		"idle_ns":         r.IdleNs,
		"chosen_state_id": r.ChosenStateID,
	})
	if err != nil {
		logrus.Warnf("marshal telemetry record: %v", err)
		return
	}
	if token := p.client.Publish(p.topic, 1, false, payload); token.Wait() && token.Error() != nil {
		logrus.Warnf("publish telemetry record: %v", token.Error())
	}
}

// Close disconnects from the broker.
func (p *telemetryPublisher) Close() {
	p.client.Disconnect(250)
}

package notify

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/swdiag/core/types"
)

// MQTTSink publishes events to a broker topic, letting a remote
// collaborator (§1 "RPC transport to remote slaves") observe
// result/health changes without the core speaking a bespoke RPC
// protocol itself (SPEC_FULL.md domain-stack entry for
// eclipse/paho.mqtt.golang).
type MQTTSink struct {
	client mqtt.Client
	topic  string
	qos    byte
	logger types.Logger
}

func NewMQTTSink(broker, topic string, logger types.Logger) (*MQTTSink, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(fmt.Sprintf("swdiag-core-%d", time.Now().UnixNano())).
		SetAutoReconnect(true)
	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	return &MQTTSink{client: client, topic: topic, qos: 0, logger: logger}, nil
}

func (m *MQTTSink) Publish(ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		m.logger.Errorf("notify: failed to marshal event for mqtt: %v", err)
		return
	}
	token := m.client.Publish(m.topic, m.qos, false, payload)
	token.WaitTimeout(2 * time.Second)
}

func (m *MQTTSink) Close() {
	m.client.Disconnect(250)
}

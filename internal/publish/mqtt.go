package publish

import (
	"github.com/charmbracelet/log"
	mqtt "github.com/eclipse/paho.mqtt.golang"

	"gnssrover/internal/gnss"
)

// MQTT publishes fixes to one broker topic, QoS 0 retained, best effort: a
// consumer can always read the latest fix without replaying a stream.
type MQTT struct {
	client mqtt.Client
	topic  string
}

func NewMQTT(broker, clientID, topic string) (*MQTT, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	log.Info("mqtt publisher connected", "broker", broker, "topic", topic)
	return &MQTT{client: client, topic: topic}, nil
}

// Publish is fire-and-forget; a lost fix publication is not worth stalling
// the decoding pipeline for.
func (m *MQTT) Publish(p gnss.Position) {
	b, err := Encode(p)
	if err != nil {
		log.Warn("fix encode failed", "err", err)
		return
	}
	m.client.Publish(m.topic, 0, true, b)
}

func (m *MQTT) Close() {
	m.client.Disconnect(250)
}

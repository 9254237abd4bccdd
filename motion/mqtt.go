package pogo

import (
	"context"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	Mp "github.com/maroda/pogo/plugin"
	Pt "github.com/maroda/pogo/types"
)

const mqttQuiesce = 250 // ms allowed for in-flight work on disconnect

// MQTTSource subscribes to a topic where a sensor publishes samples
type MQTTSource struct {
	SourceID string
	Broker   string
	Topic    string
	ClientID string
	Decoder  Mp.SampleDecoder
}

func NewMQTTSource(id, broker, topic string, dec Mp.SampleDecoder) *MQTTSource {
	return &MQTTSource{
		SourceID: id,
		Broker:   broker,
		Topic:    topic,
		ClientID: "pogo-" + id,
		Decoder:  dec,
	}
}

func (ms *MQTTSource) ID() string { return ms.SourceID }

func (ms *MQTTSource) Run(ctx context.Context, out chan<- Pt.Sample) error {
	opts := mqtt.NewClientOptions().
		AddBroker(ms.Broker).
		SetClientID(ms.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(2 * time.Second)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		slog.Error("Could not connect to MQTT broker",
			slog.String("broker", ms.Broker),
			slog.Any("Error", token.Error()))
		return token.Error()
	}
	slog.Info("Connected to MQTT broker", slog.String("broker", ms.Broker))

	token := client.Subscribe(ms.Topic, 0, ms.Handler(ctx, out))
	token.Wait()
	if token.Error() != nil {
		slog.Error("Could not subscribe", slog.String("topic", ms.Topic), slog.Any("Error", token.Error()))
		client.Disconnect(mqttQuiesce)
		return token.Error()
	}
	slog.Info("Subscribed", slog.String("topic", ms.Topic))

	<-ctx.Done()
	client.Unsubscribe(ms.Topic).Wait()
	client.Disconnect(mqttQuiesce)
	slog.Info("MQTT source stopped", slog.String("source", ms.SourceID))
	return nil
}

// Handler decodes each message and forwards it to out
func (ms *MQTTSource) Handler(ctx context.Context, out chan<- Pt.Sample) mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		samples, err := ms.Decoder.Decode(msg.Payload(), time.Now())
		if err != nil {
			slog.Warn("Could not decode MQTT payload",
				slog.String("topic", msg.Topic()),
				slog.Any("Error", err))
			return
		}
		if err := deliver(ctx, out, samples); err != nil {
			slog.Debug("MQTT delivery stopped", slog.Any("Error", err))
		}
	}
}

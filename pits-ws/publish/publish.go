// Package publish delivers camera invocation events to devices over the AWS
// IoT data plane.
package publish

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/iotdataplane"
	"github.com/aws/aws-sdk-go/service/iotdataplane/iotdataplaneiface"
)

// Event is a device invocation event. Context is free-form and forwarded to
// the device as-is, augmented with the session flags and the originating
// connection details.
type Event struct {
	Name    string                 `json:"name" dynamodbav:"name"`
	Context map[string]interface{} `json:"context,omitempty" dynamodbav:"context,omitempty"`
	Session *SessionFlags          `json:"session,omitempty" dynamodbav:"session,omitempty"`
}

// SessionFlags bracket a long-lived device interaction.
type SessionFlags struct {
	Start bool `json:"start" dynamodbav:"start"`
	Stop  bool `json:"stop" dynamodbav:"stop"`
}

// Source identifies the connection an event originated from, so the device
// can correlate its reply.
type Source struct {
	ConnectionID string
	ManagerID    string
	InvokeID     string
}

// Publisher publishes events to a device's input topic.
type Publisher struct {
	client      iotdataplaneiface.IoTDataPlaneAPI
	topicPrefix string
}

// New creates a new Publisher. The topic prefix defaults to "pinthesky".
func New(client iotdataplaneiface.IoTDataPlaneAPI, topicPrefix string) *Publisher {
	if topicPrefix == "" {
		topicPrefix = "pinthesky"
	}
	return &Publisher{
		client:      client,
		topicPrefix: topicPrefix,
	}
}

// Build creates a new Publisher against the given IoT data endpoint.
func Build(dataEndpoint, topicPrefix string) *Publisher {
	sess := session.Must(session.NewSession(aws.NewConfig().WithEndpoint(dataEndpoint)))
	return New(iotdataplane.New(sess), topicPrefix)
}

// Topic returns the input topic for a device.
func (p *Publisher) Topic(deviceID string) string {
	return fmt.Sprintf("%s/events/%s/input", p.topicPrefix, deviceID)
}

// Publish sends the event to the device's input topic. The session flags and
// the source connection are merged into the event context.
func (p *Publisher) Publish(ctx context.Context, deviceID string, event Event, source Source) error {
	data, err := json.Marshal(payload(event, source))
	if err != nil {
		return fmt.Errorf("marshalling event payload: %w", err)
	}

	_, err = p.client.PublishWithContext(ctx, &iotdataplane.PublishInput{
		Topic:   aws.String(p.Topic(deviceID)),
		Payload: data,
	})
	if err != nil {
		return fmt.Errorf("publishing to device %v: %w", deviceID, err)
	}
	return nil
}

func payload(event Event, source Source) map[string]interface{} {
	context := map[string]interface{}{}
	for k, v := range event.Context {
		context[k] = v
	}
	if event.Session != nil {
		context["start"] = event.Session.Start
		context["stop"] = event.Session.Stop
	}
	connection := map[string]interface{}{
		"id":        source.ConnectionID,
		"invoke_id": source.InvokeID,
	}
	if source.ManagerID != "" {
		connection["manager_id"] = source.ManagerID
	}
	context["connection"] = connection
	return map[string]interface{}{
		"name":    event.Name,
		"context": context,
	}
}

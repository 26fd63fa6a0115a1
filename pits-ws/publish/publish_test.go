package publish

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/iotdataplane"
	"github.com/aws/aws-sdk-go/service/iotdataplane/iotdataplaneiface"
	"github.com/tj/assert"
)

type fakeDataPlane struct {
	iotdataplaneiface.IoTDataPlaneAPI
	inputs []*iotdataplane.PublishInput
	err    error
}

func (f *fakeDataPlane) PublishWithContext(ctx aws.Context, input *iotdataplane.PublishInput, opts ...request.Option) (*iotdataplane.PublishOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.inputs = append(f.inputs, input)
	return &iotdataplane.PublishOutput{}, nil
}

func TestTopic(t *testing.T) {
	t.Run("default prefix", func(t *testing.T) {
		p := New(&fakeDataPlane{}, "")
		assert.Equal(t, "pinthesky/events/cam-1/input", p.Topic("cam-1"))
	})

	t.Run("custom prefix", func(t *testing.T) {
		p := New(&fakeDataPlane{}, "staging")
		assert.Equal(t, "staging/events/cam-1/input", p.Topic("cam-1"))
	})
}

func TestPublish(t *testing.T) {
	ctx := context.Background()

	t.Run("payload shape", func(t *testing.T) {
		client := &fakeDataPlane{}
		p := New(client, "")

		err := p.Publish(ctx, "cam-1", Event{
			Name:    "record",
			Context: map[string]interface{}{"quality": "high"},
			Session: &SessionFlags{Start: true},
		}, Source{
			ConnectionID: "conn-1",
			ManagerID:    "mgr-1",
			InvokeID:     "inv-1",
		})
		assert.NoError(t, err)
		assert.Len(t, client.inputs, 1)
		assert.Equal(t, "pinthesky/events/cam-1/input", *client.inputs[0].Topic)

		var payload struct {
			Name    string `json:"name"`
			Context struct {
				Quality    string `json:"quality"`
				Start      bool   `json:"start"`
				Stop       bool   `json:"stop"`
				Connection struct {
					ID        string `json:"id"`
					InvokeID  string `json:"invoke_id"`
					ManagerID string `json:"manager_id"`
				} `json:"connection"`
			} `json:"context"`
		}
		assert.NoError(t, json.Unmarshal(client.inputs[0].Payload, &payload))
		assert.Equal(t, "record", payload.Name)
		assert.Equal(t, "high", payload.Context.Quality)
		assert.True(t, payload.Context.Start)
		assert.False(t, payload.Context.Stop)
		assert.Equal(t, "conn-1", payload.Context.Connection.ID)
		assert.Equal(t, "inv-1", payload.Context.Connection.InvokeID)
		assert.Equal(t, "mgr-1", payload.Context.Connection.ManagerID)
	})

	t.Run("manager id omitted when empty", func(t *testing.T) {
		client := &fakeDataPlane{}
		p := New(client, "")

		err := p.Publish(ctx, "cam-1", Event{Name: "snapshot"}, Source{
			ConnectionID: "conn-1",
			InvokeID:     "inv-1",
		})
		assert.NoError(t, err)

		var payload map[string]interface{}
		assert.NoError(t, json.Unmarshal(client.inputs[0].Payload, &payload))
		connection := payload["context"].(map[string]interface{})["connection"].(map[string]interface{})
		_, ok := connection["manager_id"]
		assert.False(t, ok)
	})

	t.Run("source does not mutate the event context", func(t *testing.T) {
		client := &fakeDataPlane{}
		p := New(client, "")

		event := Event{Name: "record", Context: map[string]interface{}{"quality": "high"}}
		err := p.Publish(ctx, "cam-1", event, Source{ConnectionID: "conn-1"})
		assert.NoError(t, err)
		_, ok := event.Context["connection"]
		assert.False(t, ok)
	})

	t.Run("propagates publish failures", func(t *testing.T) {
		client := &fakeDataPlane{err: errors.New("throttled")}
		p := New(client, "")

		err := p.Publish(ctx, "cam-1", Event{Name: "record"}, Source{ConnectionID: "conn-1"})
		assert.Error(t, err)
	})
}

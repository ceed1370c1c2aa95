package main

import (
	"encoding/json"
	"errors"
	"testing"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kwv/obliqueplan/oblique"
)

func connectedPublisher(t *testing.T) (*oblique.Publisher, *oblique.MockClient) {
	t.Helper()
	t.Setenv("MQTT_PUBLISH_PREFIX", "")
	mock := oblique.NewMockClient()
	mock.SetConnected(true)
	pub := oblique.NewPublisher(mock)
	pub.SetPrefix("survey")
	return pub, mock
}

func TestPublishPlan(t *testing.T) {
	pub, mock := connectedPublisher(t)
	pl := plannedState(t, true).Plan()

	require.NoError(t, publishPlan(pub, pl))

	for _, label := range []string{"survey_BLOCK0", "survey_BLOCK1"} {
		msgs := mock.PublishedOn("survey/blocks/" + label)
		require.Len(t, msgs, 1, label)
		var m oblique.BlockManifest
		require.NoError(t, json.Unmarshal(msgs[0].Payload, &m))
		assert.Len(t, m.Pairs, 1)
		assert.Len(t, mock.PublishedOn("survey/stages/"+label), 1)
	}

	summary := mock.PublishedOn("survey/plan")
	require.Len(t, summary, 1)
	var s oblique.PlanSummary
	require.NoError(t, json.Unmarshal(summary[0].Payload, &s))
	assert.Equal(t, []string{"survey_BLOCK0", "survey_BLOCK1"}, s.Blocks)
	assert.Equal(t, 6, s.Outside)
	assert.Equal(t, 9, s.Groups["Nadir"])
}

func TestPublishPlan_Errors(t *testing.T) {
	pub, mock := connectedPublisher(t)
	mock.SetPublishError(errors.New("broker full"))

	err := publishPlan(pub, plannedState(t, true).Plan())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker full")
	assert.Empty(t, mock.Published())

	assert.NoError(t, publishPlan(nil, plannedState(t, false).Plan()), "no publisher is a no-op")
}

func TestHandleProject(t *testing.T) {
	pub, mock := connectedPublisher(t)
	app := NewApp()
	app.Config = flatConfig()
	app.Publisher = pub

	app.handleProject(surveyProject("received"), nil)

	require.True(t, app.State.HasPlan())
	assert.Equal(t, "received", app.State.Plan().Source.Label)
	assert.Len(t, mock.PublishedOn("survey/blocks/received_INSIDE"), 1)
	assert.Len(t, mock.PublishedOn("survey/plan"), 1)
}

func TestHandleProject_Errors(t *testing.T) {
	app := NewApp()
	app.Config = flatConfig()

	app.handleProject(nil, errors.New("bad payload"))
	assert.False(t, app.State.HasPlan())

	app.handleProject(&oblique.Project{Label: "empty"}, nil)
	assert.False(t, app.State.HasPlan(), "a project that cannot be planned leaves the state alone")
}

func TestHandleProject_ViaMQTTMessage(t *testing.T) {
	pub, mock := connectedPublisher(t)
	app := NewApp()
	app.Config = flatConfig()
	app.Publisher = pub

	// route the project topic straight into the handler, as the client's
	// subscription does
	topic := oblique.ProjectTopic("survey")
	require.NoError(t, mock.Subscribe(topic, 1, func(_ mqtt.Client, msg mqtt.Message) {
		p, err := oblique.ParseProjectJSON(msg.Payload())
		app.handleProject(p, err)
	}).Error())

	payload, err := json.Marshal(surveyProject("over-the-wire"))
	require.NoError(t, err)
	mock.SimulateMessage(topic, payload)

	require.True(t, app.State.HasPlan())
	assert.Equal(t, "over-the-wire", app.State.Plan().Source.Label)
}

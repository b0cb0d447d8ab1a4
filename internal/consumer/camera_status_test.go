package consumer

import (
	"sync"
	"testing"

	"wisefido-vision/internal/config"
	"wisefido-vision/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeBroadcaster struct {
	mu     sync.Mutex
	events []interface{}
}

func (f *fakeBroadcaster) PublishToAll(event interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
}

func (f *fakeBroadcaster) published() []interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]interface{}(nil), f.events...)
}

type fakeSubscriber struct {
	topics []string
}

func (f *fakeSubscriber) Subscribe(topic string, qos byte, handler MessageHandler) error {
	f.topics = append(f.topics, topic)
	return nil
}

func (f *fakeSubscriber) Unsubscribe(topics ...string) error {
	return nil
}

func newTestConsumer() (*CameraStatusConsumer, *fakeBroadcaster) {
	cfg := &config.Config{}
	cfg.MQTT.StatusTopic = "cameras/+/status"
	cfg.MQTT.QoS = 1

	broadcaster := &fakeBroadcaster{}
	consumer := NewCameraStatusConsumer(cfg, &fakeSubscriber{}, broadcaster, zap.NewNop())
	return consumer, broadcaster
}

func TestHandleMessage_BroadcastsStatus(t *testing.T) {
	consumer, broadcaster := newTestConsumer()

	err := consumer.handleMessage("cameras/cam-1/status", []byte(`{"status":"online"}`))

	require.NoError(t, err)
	events := broadcaster.published()
	require.Len(t, events, 1)
	event, ok := events[0].(models.CameraStatusEvent)
	require.True(t, ok)
	assert.Equal(t, models.EventTypeCameraStatus, event.Type)
	assert.Equal(t, "cam-1", event.CameraID)
	assert.Equal(t, "online", event.Status)
}

func TestHandleMessage_Offline(t *testing.T) {
	consumer, broadcaster := newTestConsumer()

	err := consumer.handleMessage("cameras/cam-2/status", []byte(`{"status":"offline"}`))

	require.NoError(t, err)
	events := broadcaster.published()
	require.Len(t, events, 1)
	assert.Equal(t, "offline", events[0].(models.CameraStatusEvent).Status)
}

func TestHandleMessage_InvalidTopic(t *testing.T) {
	consumer, broadcaster := newTestConsumer()

	err := consumer.handleMessage("cameras", []byte(`{"status":"online"}`))

	assert.Error(t, err)
	assert.Empty(t, broadcaster.published())
}

func TestHandleMessage_InvalidPayload(t *testing.T) {
	consumer, broadcaster := newTestConsumer()

	err := consumer.handleMessage("cameras/cam-1/status", []byte(`not-json`))

	assert.Error(t, err)
	assert.Empty(t, broadcaster.published())
}

func TestHandleMessage_UnknownStatus(t *testing.T) {
	consumer, broadcaster := newTestConsumer()

	err := consumer.handleMessage("cameras/cam-1/status", []byte(`{"status":"rebooting"}`))

	assert.Error(t, err)
	assert.Empty(t, broadcaster.published())
}

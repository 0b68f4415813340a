package sink

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/nimdanitro/sensortag-go/pkg/sensortag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

var ts = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func accelEvent() sensortag.Event {
	return sensortag.Event{
		Kind:     sensortag.KindAccelerometer,
		SensorID: "b0b448c9-7f05-4c3e-9d1a-24718ab51a42",
		Time:     ts,
		X:        "0.01",
		Y:        "-0.02",
		Z:        "1.00",
	}
}

func TestName(t *testing.T) {
	assert.Equal(t, "accelerometer_change", Name(sensortag.KindAccelerometer))
	assert.Equal(t, "magnetometer_change", Name(sensortag.KindMagnetometer))
	assert.Equal(t, "luxometer_change", Name(sensortag.KindLuxometer))
	assert.Equal(t, "button_press", Name(sensortag.KindButtonPress))
}

type fakeToken struct {
	err error
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t *fakeToken) Error() error { return t.err }

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

// fakeClient only implements Publish; other methods panic through the nil
// embedded interface.
type fakeClient struct {
	mqtt.Client
	mu   sync.Mutex
	msgs []published
	err  error
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, published{topic, qos, retained, payload.([]byte)})
	return &fakeToken{err: c.err}
}

func TestMQTTPublish(t *testing.T) {
	c := &fakeClient{}
	m := NewMQTT(c, MQTTConfig{Prefix: "lab", QoS: 1}, zap.NewNop())

	m.Handle(accelEvent())
	m.Handle(sensortag.Event{Kind: sensortag.KindButtonPress, SensorID: "abc", Time: ts})

	require.Len(t, c.msgs, 2)
	assert.Equal(t, "lab/b0b448c9-7f05-4c3e-9d1a-24718ab51a42/accelerometer_change", c.msgs[0].topic)
	assert.Equal(t, byte(1), c.msgs[0].qos)
	assert.False(t, c.msgs[0].retained)
	assert.JSONEq(t, `{"kind":"accelerometerChange","sensorId":"b0b448c9-7f05-4c3e-9d1a-24718ab51a42","timestamp":"2024-03-01T12:00:00Z","x":"0.01","y":"-0.02","z":"1.00"}`, string(c.msgs[0].payload))

	assert.Equal(t, "lab/abc/button_press", c.msgs[1].topic)
	assert.JSONEq(t, `{"kind":"buttonPress","sensorId":"abc","timestamp":"2024-03-01T12:00:00Z"}`, string(c.msgs[1].payload))
}

func TestMQTTDefaultPrefix(t *testing.T) {
	m := NewMQTT(&fakeClient{}, MQTTConfig{}, zap.NewNop())
	assert.Equal(t, "sensortag/abc/luxometer_change", m.Topic(sensortag.Event{Kind: sensortag.KindLuxometer, SensorID: "abc"}))
}

func TestMQTTPublishErrorIsLogged(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	c := &fakeClient{err: errors.New("not connected")}
	m := NewMQTT(c, MQTTConfig{}, zap.New(core))

	m.Handle(accelEvent())
	entries := logs.FilterMessage("cannot publish event").All()
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].ContextMap()["error"], "not connected")
}

func TestInfluxPoint(t *testing.T) {
	p := Point(accelEvent())
	assert.Equal(t, "accelerometer_change", p.Name())
	assert.Equal(t, ts, p.Time())

	require.Len(t, p.TagList(), 1)
	assert.Equal(t, "sensor", p.TagList()[0].Key)
	assert.Equal(t, "b0b448c9-7f05-4c3e-9d1a-24718ab51a42", p.TagList()[0].Value)

	fields := map[string]interface{}{}
	for _, f := range p.FieldList() {
		fields[f.Key] = f.Value
	}
	assert.Equal(t, map[string]interface{}{"x": 0.01, "y": -0.02, "z": 1.0}, fields)
}

func TestInfluxPointButton(t *testing.T) {
	p := Point(sensortag.Event{Kind: sensortag.KindButtonPress, SensorID: "abc", Time: ts})
	assert.Equal(t, "button_press", p.Name())
	require.Len(t, p.FieldList(), 1)
	assert.Equal(t, "pressed", p.FieldList()[0].Key)
	assert.EqualValues(t, 1, p.FieldList()[0].Value)
}

func TestRedisArgs(t *testing.T) {
	r := NewRedis(RedisConfig{Addr: "localhost:6379", MaxLen: 1000}, zap.NewNop())
	defer r.Close()

	a := r.args(sensortag.Event{Kind: sensortag.KindLuxometer, SensorID: "abc", Time: ts, Lux: "123.46"})
	assert.Equal(t, "sensortag:abc", a.Stream)
	assert.Equal(t, int64(1000), a.MaxLen)
	assert.True(t, a.Approx)
	assert.Equal(t, map[string]interface{}{
		"kind":      "luxometer_change",
		"sensor_id": "abc",
		"timestamp": "2024-03-01T12:00:00Z",
		"lux":       "123.46",
	}, a.Values)
}

func TestHubBroadcast(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hub := NewHub(zap.NewNop())
	r := gin.New()
	hub.Register(r)
	srv := httptest.NewServer(r)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 10*time.Millisecond)

	hub.Handle(accelEvent())

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	var got sensortag.Event
	require.NoError(t, json.Unmarshal(msg, &got))
	assert.Equal(t, accelEvent(), got)

	conn.Close()
	require.Eventually(t, func() bool { return hub.Clients() == 0 }, time.Second, 10*time.Millisecond)
}

func TestHubDropsClientWithFullBuffer(t *testing.T) {
	hub := NewHub(zap.NewNop())
	cl := &client{send: make(chan []byte, 1)}
	hub.clients[cl] = true

	hub.Handle(accelEvent())
	assert.Equal(t, 1, hub.Clients())
	hub.Handle(accelEvent())
	assert.Equal(t, 0, hub.Clients())

	// the buffered event is still there for the writer, then the channel ends
	_, ok := <-cl.send
	assert.True(t, ok)
	_, ok = <-cl.send
	assert.False(t, ok)
}

func TestHubSlowClientDoesNotBlock(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hub := NewHub(zap.NewNop())
	r := gin.New()
	hub.Register(r)
	srv := httptest.NewServer(r)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	stalled, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer stalled.Close()
	reader, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer reader.Close()
	require.Eventually(t, func() bool { return hub.Clients() == 2 }, time.Second, 10*time.Millisecond)

	// stalled never reads; Handle must still return promptly every time
	start := time.Now()
	for i := 0; i < 500; i++ {
		hub.Handle(accelEvent())
	}
	assert.Less(t, time.Since(start), time.Second)

	reader.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := reader.ReadMessage()
	require.NoError(t, err)
	var got sensortag.Event
	require.NoError(t, json.Unmarshal(msg, &got))
	assert.Equal(t, accelEvent(), got)
}

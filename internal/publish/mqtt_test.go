package publish

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaunagostinho/gnss-reader/internal/gps"
)

type fakeToken struct {
	err     error
	pending bool
}

func (t *fakeToken) Wait() bool                     { return !t.pending }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return !t.pending }
func (t *fakeToken) Error() error                   { return t.err }

func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	if !t.pending {
		close(ch)
	}
	return ch
}

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type fakeClient struct {
	token        *fakeToken
	sent         []published
	disconnected bool
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.sent = append(c.sent, published{topic, qos, retained, payload.([]byte)})
	return c.token
}

func (c *fakeClient) Disconnect(uint) { c.disconnected = true }

func TestPublisherPublishesJSON(t *testing.T) {
	c := &fakeClient{token: &fakeToken{}}
	p := newPublisher(c, Config{Retained: true})

	fix := gps.Fix{Tag: "RMC", Talker: "GP", Status: "A", Latitude: 48.1173, Longitude: 11.516667, Speed: 22.4}
	require.NoError(t, p.Publish(fix))

	require.Len(t, c.sent, 1)
	assert.Equal(t, DefaultTopic, c.sent[0].topic)
	assert.True(t, c.sent[0].retained)
	assert.Zero(t, c.sent[0].qos)

	var got gps.Fix
	require.NoError(t, json.Unmarshal(c.sent[0].payload, &got))
	assert.Equal(t, "RMC", got.Tag)
	assert.InDelta(t, 22.4, got.Speed, 1e-9)

	require.NoError(t, p.Close())
	assert.True(t, c.disconnected)
}

func TestPublisherErrors(t *testing.T) {
	boom := errors.New("not authorized")
	p := newPublisher(&fakeClient{token: &fakeToken{err: boom}}, Config{Topic: "car/gps"})
	err := p.Publish(gps.Fix{Tag: "GGA"})
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "car/gps")

	p = newPublisher(&fakeClient{token: &fakeToken{pending: true}}, Config{})
	assert.ErrorIs(t, p.Publish(gps.Fix{Tag: "GGA"}), ErrTimeout)
}

func TestClientID(t *testing.T) {
	a, b := ClientID(), ClientID()
	assert.True(t, strings.HasPrefix(a, "gnss-reader-"))
	assert.Len(t, a, len("gnss-reader-")+8)
	assert.NotEqual(t, a, b)
}

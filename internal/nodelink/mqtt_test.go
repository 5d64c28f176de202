package nodelink

import (
	"context"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type doneToken struct{ err error }

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t doneToken) Error() error { return t.err }

type published struct {
	topic   string
	payload string
}

type fakeBroker struct {
	pubs         []published
	disconnected bool
}

func (b *fakeBroker) Publish(topic string, _ byte, _ bool, payload interface{}) mqtt.Token {
	b.pubs = append(b.pubs, published{topic, payload.(string)})
	return doneToken{}
}

func (b *fakeBroker) Disconnect(uint) { b.disconnected = true }

type fakeMessage struct {
	topic   string
	payload string
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 0 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 0 }
func (m fakeMessage) Payload() []byte   { return []byte(m.payload) }
func (m fakeMessage) Ack()              {}

func TestMQTTLinkPublishesCommands(t *testing.T) {
	b := &fakeBroker{}
	link := newMQTTLink(b, []string{"m3-1", "m3-2"}, func(string, string) {}, MQTTConfig{Prefix: "lab", Timeout: time.Second})

	require.NoError(t, link.Broadcast(context.Background(), "clear\n"))
	require.NoError(t, link.Send(context.Background(), []string{"m3-2"}, "send 2 50 10 1\n"))
	assert.Equal(t, []published{
		{"lab/m3-1/cmd", "clear\n"},
		{"lab/m3-2/cmd", "clear\n"},
		{"lab/m3-2/cmd", "send 2 50 10 1\n"},
	}, b.pubs)

	assert.ErrorIs(t, link.Send(context.Background(), []string{"m3-7"}, "show\n"), ErrUnknownNode)
	require.NoError(t, link.Close())
	assert.True(t, b.disconnected)
}

func TestMQTTLinkDispatchesLines(t *testing.T) {
	var got [][2]string
	link := newMQTTLink(&fakeBroker{}, []string{"m3-1"}, func(n, l string) { got = append(got, [2]string{n, l}) }, MQTTConfig{Prefix: "lab"})

	link.onMessage(fakeMessage{"lab/m3-1/out", "{\"ack\":\"show\"}\r\n\nhello\n"})
	link.onMessage(fakeMessage{"lab/m3-9/out", "{\"ack\":\"show\"}"})
	link.onMessage(fakeMessage{"other/m3-1/out", "x"})
	link.onMessage(fakeMessage{"lab/m3-1/cmd", "show"})

	assert.Equal(t, [][2]string{{"m3-1", `{"ack":"show"}`}, {"m3-1", "hello"}}, got)
}

func TestMQTTLinkCancelled(t *testing.T) {
	link := newMQTTLink(&fakeBroker{}, []string{"m3-1"}, func(string, string) {}, MQTTConfig{Prefix: "lab"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, link.Broadcast(ctx, "show\n"), context.Canceled)
}

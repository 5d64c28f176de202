package nodelink

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"iotlab-radio/internal/logging"
)

// MQTTConfig configures an MQTTLink. Node serial lines are bridged on
// <prefix>/<node>/out and commands are published on <prefix>/<node>/cmd.
type MQTTConfig struct {
	Broker   string
	Prefix   string
	ClientID string
	Username string
	Password string
	QoS      byte
	Timeout  time.Duration
	Logger   *slog.Logger
}

type mqttPublisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTTLink talks to nodes through a broker-side serial bridge.
type MQTTLink struct {
	client  mqttPublisher
	nodes   []string
	known   map[string]struct{}
	handler LineHandler
	prefix  string
	qos     byte
	timeout time.Duration
	logger  *slog.Logger
}

// generateClientID creates a random client ID for the MQTT connection
func generateClientID() string {
	b := make([]byte, 8)
	rand.Read(b)
	return "iotlab-radio_" + hex.EncodeToString(b)
}

// DialMQTT connects to the broker and subscribes to the output topic of every node.
func DialMQTT(nodes []string, handler LineHandler, cfg MQTTConfig) (*MQTTLink, error) {
	if cfg.Prefix == "" {
		cfg.Prefix = "iotlab"
	}
	if cfg.ClientID == "" {
		cfg.ClientID = generateClientID()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		cfg.Logger.Warn("MQTT connection lost", "err", err)
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); !token.WaitTimeout(cfg.Timeout) {
		return nil, fmt.Errorf("connect to MQTT broker %s: timeout", cfg.Broker)
	} else if token.Error() != nil {
		return nil, fmt.Errorf("connect to MQTT broker %s: %w", cfg.Broker, token.Error())
	}

	l := newMQTTLink(client, nodes, handler, cfg)
	topic := cfg.Prefix + "/+/out"
	token := client.Subscribe(topic, cfg.QoS, func(_ mqtt.Client, m mqtt.Message) { l.onMessage(m) })
	if !token.WaitTimeout(cfg.Timeout) || token.Error() != nil {
		client.Disconnect(250)
		return nil, fmt.Errorf("subscribe %s: %v", topic, token.Error())
	}
	cfg.Logger.Info("node link connected", "broker", cfg.Broker, "topic", topic, "nodes", len(nodes))
	return l, nil
}

func newMQTTLink(client mqttPublisher, nodes []string, handler LineHandler, cfg MQTTConfig) *MQTTLink {
	known := make(map[string]struct{}, len(nodes))
	for _, n := range nodes {
		known[n] = struct{}{}
	}
	return &MQTTLink{
		client:  client,
		nodes:   append([]string(nil), nodes...),
		known:   known,
		handler: handler,
		prefix:  cfg.Prefix,
		qos:     cfg.QoS,
		timeout: cfg.Timeout,
		logger:  cfg.Logger,
	}
}

// nodeFromTopic extracts <node> from <prefix>/<node>/out.
func (l *MQTTLink) nodeFromTopic(topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, l.prefix+"/")
	if !ok {
		return "", false
	}
	node, ok := strings.CutSuffix(rest, "/out")
	if !ok || node == "" || strings.Contains(node, "/") {
		return "", false
	}
	return node, true
}

func (l *MQTTLink) onMessage(m mqtt.Message) {
	node, ok := l.nodeFromTopic(m.Topic())
	if !ok {
		return
	}
	if _, ok := l.known[node]; !ok {
		return
	}
	for _, line := range strings.Split(string(m.Payload()), "\n") {
		line = strings.TrimRight(line, "\r")
		if line != "" {
			l.handler(node, line)
		}
	}
}

// Nodes implements Link.
func (l *MQTTLink) Nodes() []string { return append([]string(nil), l.nodes...) }

// Broadcast implements Link.
func (l *MQTTLink) Broadcast(ctx context.Context, text string) error {
	return l.Send(ctx, l.nodes, text)
}

// Send implements Link.
func (l *MQTTLink) Send(ctx context.Context, nodes []string, text string) error {
	errs := make(map[string]error)
	for _, n := range nodes {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, ok := l.known[n]; !ok {
			errs[n] = ErrUnknownNode
			continue
		}
		token := l.client.Publish(l.prefix+"/"+n+"/cmd", l.qos, false, text)
		if !token.WaitTimeout(l.timeout) {
			errs[n] = fmt.Errorf("publish timeout")
			continue
		}
		if err := token.Error(); err != nil {
			errs[n] = err
		}
	}
	return joinErrors(errs)
}

// Close disconnects from the broker.
func (l *MQTTLink) Close() error {
	l.client.Disconnect(250)
	return nil
}

package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"iotlab-radio/internal/nodelink"
)

// linkFlags select and configure the node control link.
type linkFlags struct {
	kind       string
	tcpPort    int
	mqttBroker string
	mqttPrefix string
	mqttUser   string
	mqttPass   string
	simLoss    float64
	simSilent  string
	simLatency time.Duration
	simSeed    int64
}

func (f *linkFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVar(&f.kind, "link", "tcp", "Node link: tcp (serial over TCP), mqtt or sim")
	fs.IntVar(&f.tcpPort, "tcp-port", nodelink.DefaultSerialPort, "TCP port of the node serial lines")
	fs.StringVar(&f.mqttBroker, "mqtt-broker", "tcp://localhost:1883", "MQTT broker URL")
	fs.StringVar(&f.mqttPrefix, "mqtt-prefix", "iotlab", "MQTT topic prefix")
	fs.StringVar(&f.mqttUser, "mqtt-user", "", "MQTT username")
	fs.StringVar(&f.mqttPass, "mqtt-password", "", "MQTT password")
	fs.Float64Var(&f.simLoss, "sim-loss", 0.1, "Simulated packet loss rate")
	fs.StringVar(&f.simSilent, "sim-silent", "", "Simulated nodes that never acknowledge")
	fs.DurationVar(&f.simLatency, "sim-latency", 0, "Simulated line latency")
	fs.Int64Var(&f.simSeed, "sim-seed", 0, "Simulation seed (0 picks one)")
}

func (f *linkFlags) open(ctx context.Context, nodes []string, handler nodelink.LineHandler, logger *slog.Logger) (nodelink.Link, error) {
	switch f.kind {
	case "tcp":
		port := f.tcpPort
		l, err := nodelink.DialTCP(ctx, nodes, handler, nodelink.TCPConfig{
			Address: func(node string) string { return fmt.Sprintf("%s:%d", node, port) },
			Logger:  logger,
		})
		if err != nil {
			return nil, err
		}
		return l, nil
	case "mqtt":
		l, err := nodelink.DialMQTT(nodes, handler, nodelink.MQTTConfig{
			Broker:   f.mqttBroker,
			Prefix:   f.mqttPrefix,
			Username: f.mqttUser,
			Password: f.mqttPass,
			Logger:   logger,
		})
		if err != nil {
			return nil, err
		}
		return l, nil
	case "sim":
		seed := f.simSeed
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		l, err := nodelink.NewSimulated(nodes, handler, nodelink.SimConfig{
			LossRate: f.simLoss,
			Silent:   nodelink.ParseNodeList(f.simSilent),
			Latency:  f.simLatency,
			Seed:     seed,
		})
		if err != nil {
			return nil, err
		}
		return l, nil
	default:
		return nil, fmt.Errorf("unknown link %q (want tcp, mqtt or sim)", f.kind)
	}
}

package nodelink

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"iotlab-radio/internal/logging"
)

// DefaultSerialPort is the TCP port exposing a node's serial line on the testbed.
const DefaultSerialPort = 20000

// TCPConfig configures a TCPLink.
type TCPConfig struct {
	// Address maps a node identifier to host:port. Defaults to <node>:20000.
	Address     func(node string) string
	DialTimeout time.Duration
	// WriteTimeout bounds a write to one node when ctx has no deadline.
	// Defaults to DialTimeout.
	WriteTimeout time.Duration
	Logger       *slog.Logger
}

type tcpNode struct {
	name string
	conn net.Conn
	mu   sync.Mutex // serializes writes
}

// TCPLink holds one TCP connection per node serial port.
type TCPLink struct {
	nodes  []string
	conns  map[string]*tcpNode
	group  *errgroup.Group
	cancel context.CancelFunc
	logger *slog.Logger

	writeTimeout time.Duration
}

// DialTCP connects to every node and starts one reader goroutine per node.
// All connections must succeed.
func DialTCP(ctx context.Context, nodes []string, handler LineHandler, cfg TCPConfig) (*TCPLink, error) {
	if cfg.Address == nil {
		cfg.Address = func(node string) string { return fmt.Sprintf("%s:%d", node, DefaultSerialPort) }
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = cfg.DialTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}

	d := net.Dialer{Timeout: cfg.DialTimeout}
	conns := make(map[string]*tcpNode, len(nodes))
	for _, n := range nodes {
		c, err := d.DialContext(ctx, "tcp", cfg.Address(n))
		if err != nil {
			for _, tn := range conns {
				tn.conn.Close()
			}
			return nil, fmt.Errorf("connect %s: %w", n, err)
		}
		conns[n] = &tcpNode{name: n, conn: c}
	}

	rctx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(rctx)
	l := &TCPLink{
		nodes:        append([]string(nil), nodes...),
		conns:        conns,
		group:        g,
		cancel:       cancel,
		logger:       cfg.Logger,
		writeTimeout: cfg.WriteTimeout,
	}
	for _, tn := range conns {
		tn := tn
		g.Go(func() error { return l.read(gctx, tn, handler) })
	}
	go func() {
		<-gctx.Done()
		for _, tn := range conns {
			tn.conn.Close()
		}
	}()
	cfg.Logger.Info("node link connected", "nodes", len(nodes))
	return l, nil
}

func (l *TCPLink) read(ctx context.Context, tn *tcpNode, handler LineHandler) error {
	sc := bufio.NewScanner(tn.conn)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if line == "" {
			continue
		}
		handler(tn.name, line)
	}
	if ctx.Err() != nil {
		return nil
	}
	// A node dropping its connection does not stop the others.
	if err := sc.Err(); err != nil {
		l.logger.Warn("node connection lost", "node", tn.name, "err", err)
	} else {
		l.logger.Warn("node connection closed", "node", tn.name)
	}
	return nil
}

// Nodes implements Link.
func (l *TCPLink) Nodes() []string { return append([]string(nil), l.nodes...) }

// Broadcast implements Link.
func (l *TCPLink) Broadcast(ctx context.Context, text string) error {
	return l.Send(ctx, l.nodes, text)
}

// Send implements Link.
func (l *TCPLink) Send(ctx context.Context, nodes []string, text string) error {
	errs := make(map[string]error)
	for _, n := range nodes {
		if err := ctx.Err(); err != nil {
			return err
		}
		tn, ok := l.conns[n]
		if !ok {
			errs[n] = ErrUnknownNode
			continue
		}
		tn.mu.Lock()
		dl, ok := ctx.Deadline()
		if !ok {
			dl = time.Now().Add(l.writeTimeout)
		}
		tn.conn.SetWriteDeadline(dl)
		_, err := tn.conn.Write([]byte(text))
		tn.mu.Unlock()
		if err != nil {
			errs[n] = err
		}
	}
	return joinErrors(errs)
}

// Close closes every connection and waits for the readers.
func (l *TCPLink) Close() error {
	l.cancel()
	return l.group.Wait()
}

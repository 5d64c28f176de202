package admin

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"iotlab-radio/internal/campaign"
	"iotlab-radio/internal/logging"
)

const writeWait = 5 * time.Second

// Server exposes the progress of a running campaign over HTTP.
type Server struct {
	Tracker  *campaign.Tracker
	gatherer prometheus.Gatherer
	tpl      *template.Template
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

//go:embed templates/index.html
var content embed.FS

// NewServer serves tracker and the metrics of gatherer. A nil gatherer uses
// the default Prometheus registry.
func NewServer(tracker *campaign.Tracker, gatherer prometheus.Gatherer, logger *slog.Logger) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	if logger == nil {
		logger = logging.Discard()
	}
	tpl := template.Must(template.New("index.html").ParseFS(content, "templates/index.html"))
	return &Server{
		Tracker:  tracker,
		gatherer: gatherer,
		tpl:      tpl,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Handler returns the routes of the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/ws", s.handleWS)
	mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	return mux
}

// Start serves on addr until ctx is done.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), writeWait)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	s.logger.Info("admin server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	st := s.Tracker.Snapshot()
	data := struct {
		Status  campaign.Status
		Percent int
	}{Status: st, Percent: percent(st)}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.tpl.Execute(w, data); err != nil {
		s.logger.Error("render index", "err", err)
	}
}

func percent(st campaign.Status) int {
	if st.Step.Total == 0 {
		return 0
	}
	done := st.Step.Index - 1
	if st.Summary != nil {
		done = st.Summary.CellsDone
	}
	return done * 100 / st.Step.Total
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.Tracker.Snapshot())
}

// handleWS pushes the current status, then every change, until the client
// goes away or the campaign finishes.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	updates, cancel := s.Tracker.Subscribe()
	defer cancel()

	// the read loop only notices the peer closing
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	// send reports whether the stream should go on
	send := func(st campaign.Status) bool {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(st); err != nil {
			return false
		}
		if st.Summary != nil {
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, st.State),
				time.Now().Add(writeWait))
			return false
		}
		return true
	}
	if !send(s.Tracker.Snapshot()) {
		return
	}
	for {
		select {
		case st, ok := <-updates:
			if !ok || !send(st) {
				return
			}
		case <-gone:
			return
		case <-r.Context().Done():
			return
		}
	}
}

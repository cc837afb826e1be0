// Package feed streams spectrum snapshots to display clients over WebSocket
// and accepts their display-offset adjustments. It also exposes health and
// metrics endpoints for the monitoring stack.
package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	// DefaultPublishInterval caps how often the latest snapshot goes out.
	DefaultPublishInterval = 100 * time.Millisecond

	writeWait        = 10 * time.Second
	maxControlBytes  = 512
	shutdownDeadline = 5 * time.Second
)

// Client operations.
const (
	opOffsetUp   = "offset_up"
	opOffsetDown = "offset_down"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 65536,
	CheckOrigin: func(r *http.Request) bool {
		// Display clients connect from file:// shells and local pages.
		return true
	},
}

// Snapshot is the display state published to every connected client.
type Snapshot struct {
	Seq         uint64    `json:"seq"`
	Timestamp   time.Time `json:"timestamp"`
	Mode        string    `json:"mode"`
	AxisStart   float64   `json:"axis_start"`
	AxisStep    float64   `json:"axis_step"`
	Bins        int       `json:"bins"`
	Power       []float64 `json:"power"`
	Calibrating bool      `json:"calibrating"`

	// NoiseRegion is the [start, end] of the noise estimation band in
	// MHz, present while calibrating.
	NoiseRegion []float64 `json:"noise_region,omitempty"`

	NoiseRef   *float64  `json:"noise_ref,omitempty"`
	Plateau    *float64  `json:"plateau,omitempty"`
	PlateauMin *float64  `json:"plateau_min,omitempty"`
	PlateauMax *float64  `json:"plateau_max,omitempty"`
	YMin       float64   `json:"y_min"`
	YMax       float64   `json:"y_max"`
	OffsetKHz  float64   `json:"offset_khz"`
	Markers    []float64 `json:"markers,omitempty"`
}

type controlMessage struct {
	Op string `json:"op"`
}

type controlAck struct {
	Op        string  `json:"op"`
	OffsetKHz float64 `json:"offset_khz"`
	Error     string  `json:"error,omitempty"`
}

// Controller adjusts the running session in response to client commands.
type Controller interface {
	// StepOffsetUp nudges the display offset one step up and returns the
	// new value in kHz.
	StepOffsetUp() (float64, error)

	// StepOffsetDown nudges the display offset one step down and returns
	// the new value in kHz.
	StepOffsetDown() (float64, error)
}

// WithLogger sets the logger for the server
func WithLogger(logger *slog.Logger) func(s *Server) {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithPublishInterval sets the snapshot publish cadence.
func WithPublishInterval(interval time.Duration) func(s *Server) {
	return func(s *Server) {
		s.interval = interval
	}
}

// WithMetrics exposes the gatherer's metrics on /metrics.
func WithMetrics(g prometheus.Gatherer) func(s *Server) {
	return func(s *Server) {
		s.metrics = g
	}
}

// Server owns the feed endpoints. Publish may be called from the pipeline
// at any rate; clients receive the latest snapshot on their own cadence.
type Server struct {
	addr     string
	ctrl     Controller
	interval time.Duration
	logger   *slog.Logger
	metrics  prometheus.Gatherer

	mu   sync.RWMutex
	snap *Snapshot

	httpServer *http.Server
	listener   net.Listener
	quit       chan struct{}
	isRunning  atomic.Bool
	stopOnce   sync.Once
	wg         sync.WaitGroup
}

// New creates a feed server listening on addr once started. The controller
// must not be nil; it backs the offset operations clients send.
func New(addr string, ctrl Controller, options ...func(s *Server)) *Server {
	s := Server{
		addr:     addr,
		ctrl:     ctrl,
		interval: DefaultPublishInterval,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)), // nil logger
		quit:     make(chan struct{}),
	}

	for _, option := range options {
		option(&s)
	}

	return &s
}

// Start binds the listener and serves in the background until Stop is
// called or ctx is canceled.
func (s *Server) Start(ctx context.Context) error {
	if !s.isRunning.CompareAndSwap(false, true) {
		return errors.New("feed server is already running")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.isRunning.Store(false)
		return fmt.Errorf("listening on %s: %w", s.addr, err)
	}
	s.listener = listener

	mux := http.NewServeMux()
	mux.HandleFunc("/spectrum", s.handleSpectrum)
	mux.HandleFunc("/healthz", s.handleHealth)
	if s.metrics != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.metrics, promhttp.HandlerOpts{}))
	}

	s.httpServer = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("feed server failed", slog.Any("error", err))
		}
	}()

	go func() {
		select {
		case <-ctx.Done():
			_ = s.Stop()
		case <-s.quit:
		}
	}()

	s.logger.Info("feed listening", slog.String("address", listener.Addr().String()))
	return nil
}

// Addr reports the bound address, valid after Start.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Publish replaces the snapshot clients receive next.
func (s *Server) Publish(snap Snapshot) {
	s.mu.Lock()
	s.snap = &snap
	s.mu.Unlock()
}

func (s *Server) latest() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Stop disconnects clients and shuts the server down.
func (s *Server) Stop() (err error) {
	if !s.isRunning.Load() {
		return nil
	}

	s.stopOnce.Do(func() {
		close(s.quit)

		ctx, cancel := context.WithTimeout(context.Background(), shutdownDeadline)
		defer cancel()

		err = s.httpServer.Shutdown(ctx)
		s.wg.Wait()
		s.isRunning.Store(false)
	})

	return err
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)

	snap := s.latest()
	if snap == nil {
		_, _ = w.Write([]byte("ok\n"))
		return
	}

	state := "locked"
	if snap.Calibrating {
		state = "calibrating"
	}
	_, _ = fmt.Fprintf(w, "ok mode=%s state=%s\n", snap.Mode, state)
}

type client struct {
	conn *websocket.Conn
	acks chan controlAck
}

func (s *Server) handleSpectrum(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("upgrading feed client", slog.Any("error", err))
		return
	}
	defer conn.Close()

	conn.SetReadLimit(maxControlBytes)

	c := &client{conn: conn, acks: make(chan controlAck, 4)}
	s.logger.Debug("feed client connected", slog.String("remote", conn.RemoteAddr().String()))

	done := make(chan struct{})
	go s.writeLoop(c, done)
	s.readLoop(c, done)

	s.logger.Debug("feed client disconnected", slog.String("remote", conn.RemoteAddr().String()))
}

// writeLoop owns all writes on the connection: periodic snapshots, command
// acknowledgements and the shutdown close frame.
func (s *Server) writeLoop(c *client, done chan struct{}) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	var lastSeq uint64
	var sentAny bool

	for {
		select {
		case <-done:
			return

		case <-s.quit:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			_ = c.conn.Close()
			return

		case ack := <-c.acks:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(ack); err != nil {
				_ = c.conn.Close()
				return
			}

		case <-ticker.C:
			snap := s.latest()
			if snap == nil || (sentAny && snap.Seq == lastSeq) {
				continue
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(snap); err != nil {
				_ = c.conn.Close()
				return
			}
			lastSeq, sentAny = snap.Seq, true
		}
	}
}

func (s *Server) readLoop(c *client, done chan struct{}) {
	defer close(done)

	for {
		var msg controlMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.logger.Debug("feed client read failed", slog.Any("error", err))
			}
			return
		}

		switch msg.Op {
		case opOffsetUp, opOffsetDown:
			var value float64
			var err error
			if msg.Op == opOffsetUp {
				value, err = s.ctrl.StepOffsetUp()
			} else {
				value, err = s.ctrl.StepOffsetDown()
			}

			ack := controlAck{Op: msg.Op, OffsetKHz: value}
			if err != nil {
				ack.Error = err.Error()
				s.logger.Warn("offset step failed", slog.String("op", msg.Op), slog.Any("error", err))
			}

			select {
			case c.acks <- ack:
			default:
				// Writer is saturated; the client sees the result in the
				// next snapshot anyway.
			}

		default:
			s.logger.Debug("ignoring unknown op", slog.String("op", msg.Op))
		}
	}
}

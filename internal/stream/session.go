// Package stream implements the per-connection push protocol: parameter
// negotiation, the periodic recompute-and-push loop, heartbeats and
// parameter updates, and the session registry.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ersozo/re-dashboard/internal/domain"
	"github.com/ersozo/re-dashboard/internal/service/report"
	"github.com/ersozo/re-dashboard/internal/ws"
)

// DefaultPushInterval is the steady cadence between snapshot pushes.
const DefaultPushInterval = 12 * time.Second

// Conn abstracts the client connection. Inbound traffic arrives on the
// Messages channel, which closes when the connection dies; Err reports the
// terminal read error after the close.
type Conn interface {
	Messages() <-chan []byte
	Err() error
	WriteJSON(v any) error
	Close() error
}

// SnapshotSource builds the channel payloads. *report.Service satisfies it.
type SnapshotSource interface {
	UnitReport(ctx context.Context, unitName string, w domain.TimeWindow, mode domain.WorkingMode) (domain.UnitReport, error)
	HourlySnapshot(ctx context.Context, unitName string, w domain.TimeWindow, mode domain.WorkingMode) (domain.HourlyReport, error)
}

// Session owns one client connection for its whole lifetime. Its parameters
// are rebound only between push iterations, never concurrently.
type Session struct {
	id           string
	kind         Kind
	conn         Conn
	source       SnapshotSource
	registry     *Registry
	log          *slog.Logger
	pushInterval time.Duration
	now          func() time.Time
	params       domain.StreamParams
}

// NewSession wires a session for one accepted connection. unitName is the
// channel's default unit, taken from the request path; an inbound parameter
// message may override it.
func NewSession(kind Kind, unitName string, conn Conn, source SnapshotSource, registry *Registry, log *slog.Logger, pushInterval time.Duration) *Session {
	if log == nil {
		log = slog.Default()
	}
	if pushInterval <= 0 {
		pushInterval = DefaultPushInterval
	}
	return &Session{
		id:           uuid.NewString(),
		kind:         kind,
		conn:         conn,
		source:       source,
		registry:     registry,
		log:          log,
		pushInterval: pushInterval,
		now:          func() time.Time { return time.Now().In(domain.Zone) },
		params:       domain.StreamParams{UnitName: unitName},
	}
}

// WithClock overrides the session clock. Intended for tests.
func (s *Session) WithClock(now func() time.Time) *Session {
	if now != nil {
		s.now = now
	}
	return s
}

// Run drives the session from parameter negotiation to teardown. It returns
// once the session is closed; the registry entry and the connection are
// released on every exit path.
func (s *Session) Run(ctx context.Context) {
	s.registry.Add(s.kind, s)
	defer func() {
		s.registry.Remove(s.kind, s)
		_ = s.conn.Close()
	}()

	log := s.log.With("session_id", s.id, "channel", string(s.kind), "unit", s.params.UnitName)

	// AwaitingParams: exactly one parameter message starts the stream.
	select {
	case <-ctx.Done():
		return
	case payload, ok := <-s.conn.Messages():
		if !ok {
			s.logClose(log, s.conn.Err())
			return
		}
		var first inboundMessage
		if err := json.Unmarshal(payload, &first); err != nil {
			log.Warn("malformed initial parameters", "error", err)
			return
		}
		params, err := first.toParams(s.params.UnitName)
		if err != nil {
			log.Warn("invalid initial parameters", "error", err)
			return
		}
		s.params = params
	}
	log.Info("stream started", "start", s.params.Window.Start, "end", s.params.Window.End, "mode", string(s.params.Mode))

	for {
		if ctx.Err() != nil {
			return
		}

		snap, err := s.snapshot(ctx)
		if err != nil {
			log.Warn("snapshot failed", "error", err)
			if werr := s.conn.WriteJSON(errorMessage{Error: clientErrorMessage(err)}); werr != nil {
				s.logClose(log, werr)
				return
			}
			// Failed cycle: hold a full interval before retrying with the
			// same parameters.
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.pushInterval):
			}
			continue
		}

		if err := s.conn.WriteJSON(snap); err != nil {
			s.logClose(log, err)
			return
		}

		// Wait out the interval unless the client speaks first. A
		// heartbeat or a parameter update cuts the wait short and rolls
		// straight into the next push.
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.pushInterval):
		case msg, ok := <-s.conn.Messages():
			if !ok {
				s.logClose(log, s.conn.Err())
				return
			}
			var in inboundMessage
			if err := json.Unmarshal(msg, &in); err != nil {
				log.Warn("malformed inbound message", "error", err)
				return
			}
			if in.Heartbeat {
				ack := heartbeatAck{Heartbeat: true, Timestamp: float64(s.now().UnixMilli()) / 1000}
				if err := s.conn.WriteJSON(ack); err != nil {
					s.logClose(log, err)
					return
				}
				// The ack does not consume the remaining interval: the
				// next data push follows immediately.
				continue
			}
			params, err := in.toParams(s.params.UnitName)
			if err != nil {
				log.Warn("invalid parameter update", "error", err)
				return
			}
			s.params = params
			log.Info("stream parameters updated", "unit", s.params.UnitName, "start", s.params.Window.Start, "end", s.params.Window.End, "mode", string(s.params.Mode))
		}
	}
}

func (s *Session) snapshot(ctx context.Context) (any, error) {
	switch s.kind {
	case KindHourly:
		return s.source.HourlySnapshot(ctx, s.params.UnitName, s.params.Window, s.params.Mode)
	default:
		rep, err := s.source.UnitReport(ctx, s.params.UnitName, s.params.Window, s.params.Mode)
		if err != nil {
			return nil, err
		}
		return toUnitSnapshot(rep), nil
	}
}

func (s *Session) logClose(log *slog.Logger, err error) {
	if err == nil || ws.IsNormalClose(err) {
		log.Info("stream disconnected", "reason", err)
		return
	}
	log.Error("unexpected stream error", "error", err)
}

// clientErrorMessage maps a cycle failure to the message pushed in-band.
func clientErrorMessage(err error) string {
	if errors.Is(err, report.ErrQueryTimeout) {
		return "Database query timeout - try a smaller time range"
	}
	return "Database error: " + err.Error()
}

package stream

import (
	"context"
	"encoding/json"
	"io"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ersozo/re-dashboard/internal/domain"
	"github.com/ersozo/re-dashboard/internal/service/report"
)

var errConnClosed = errors.New("connection closed")

// fakeConn feeds a pre-queued sequence of inbound messages through the
// Messages channel and records every outbound write. After maxWrites writes
// the channel closes, simulating a client disconnect, so Run terminates.
type fakeConn struct {
	msgs      chan []byte
	writes    []any
	maxWrites int
	closed    bool
	closeOnce sync.Once
}

func newFakeConn(maxWrites int, payloads ...[]byte) *fakeConn {
	c := &fakeConn{
		msgs:      make(chan []byte, len(payloads)+1),
		maxWrites: maxWrites,
	}
	for _, p := range payloads {
		c.msgs <- p
	}
	return c
}

func (c *fakeConn) Messages() <-chan []byte { return c.msgs }

func (c *fakeConn) Err() error { return errConnClosed }

func (c *fakeConn) WriteJSON(v any) error {
	c.writes = append(c.writes, v)
	if len(c.writes) >= c.maxWrites {
		c.disconnect()
	}
	return nil
}

func (c *fakeConn) Close() error {
	c.closed = true
	c.disconnect()
	return nil
}

func (c *fakeConn) disconnect() {
	c.closeOnce.Do(func() { close(c.msgs) })
}

type sourceCall struct {
	unit string
	w    domain.TimeWindow
	mode domain.WorkingMode
}

type fakeSource struct {
	calls   []sourceCall
	errOnce error
	onCall  func()
}

func (f *fakeSource) record(unit string, w domain.TimeWindow, mode domain.WorkingMode) error {
	f.calls = append(f.calls, sourceCall{unit: unit, w: w, mode: mode})
	if f.onCall != nil {
		f.onCall()
	}
	if f.errOnce != nil {
		err := f.errOnce
		f.errOnce = nil
		return err
	}
	return nil
}

func (f *fakeSource) UnitReport(_ context.Context, unit string, w domain.TimeWindow, mode domain.WorkingMode) (domain.UnitReport, error) {
	if err := f.record(unit, w, mode); err != nil {
		return domain.UnitReport{}, err
	}
	return domain.UnitReport{UnitName: unit, TotalSuccess: 8, TotalFail: 2, TotalQty: 10, TotalQuality: 0.8}, nil
}

func (f *fakeSource) HourlySnapshot(_ context.Context, unit string, w domain.TimeWindow, mode domain.WorkingMode) (domain.HourlyReport, error) {
	if err := f.record(unit, w, mode); err != nil {
		return domain.HourlyReport{}, err
	}
	return domain.HourlyReport{UnitName: unit}, nil
}

func paramsMessage(t *testing.T, unit, start, end, mode string) []byte {
	t.Helper()
	payload, err := json.Marshal(map[string]string{
		"unit_name":    unit,
		"start_time":   start,
		"end_time":     end,
		"working_mode": mode,
	})
	if err != nil {
		t.Fatal(err)
	}
	return payload
}

func newTestSession(conn *fakeConn, source *fakeSource, kind Kind, unit string, pushInterval time.Duration) (*Session, *Registry) {
	reg := NewRegistry()
	s := NewSession(kind, unit, conn, source, reg, slog.New(slog.NewTextHandler(io.Discard, nil)), pushInterval)
	return s, reg
}

func TestSessionHeartbeatAckSkipsInterval(t *testing.T) {
	conn := newFakeConn(3,
		paramsMessage(t, "U1", "2025-03-10T13:00:00", "2025-03-10T14:00:00", "mode1"),
		[]byte(`{"heartbeat":true}`),
	)
	source := &fakeSource{}
	// An hour-long push interval: if the ack consumed the remaining
	// interval, the third write would never arrive and this test would
	// hang instead of finishing.
	s, reg := newTestSession(conn, source, KindStandard, "U1", time.Hour)
	base := time.Date(2025, time.March, 10, 13, 30, 0, 0, domain.Zone)
	s.WithClock(func() time.Time { return base })

	s.Run(context.Background())

	if len(conn.writes) != 3 {
		t.Fatalf("writes = %d, want 3 (snapshot, ack, snapshot)", len(conn.writes))
	}
	if _, ok := conn.writes[0].(unitSnapshot); !ok {
		t.Fatalf("first write = %T, want unitSnapshot", conn.writes[0])
	}
	ack, ok := conn.writes[1].(heartbeatAck)
	if !ok {
		t.Fatalf("second write = %T, want heartbeatAck", conn.writes[1])
	}
	if !ack.Heartbeat {
		t.Error("ack heartbeat flag not set")
	}
	if want := float64(base.UnixMilli()) / 1000; ack.Timestamp != want {
		t.Errorf("ack timestamp = %v, want %v", ack.Timestamp, want)
	}
	if _, ok := conn.writes[2].(unitSnapshot); !ok {
		t.Fatalf("third write = %T, want unitSnapshot", conn.writes[2])
	}
	if !conn.closed {
		t.Error("connection not closed on exit")
	}
	if n := reg.Count(KindStandard); n != 0 {
		t.Errorf("registry count after run = %d, want 0", n)
	}
}

func TestSessionKeepsCadenceWhenClientIsSilent(t *testing.T) {
	conn := newFakeConn(3,
		paramsMessage(t, "U1", "2025-03-10T13:00:00", "2025-03-10T14:00:00", "mode1"),
	)
	source := &fakeSource{}
	s, _ := newTestSession(conn, source, KindStandard, "U1", 2*time.Millisecond)

	s.Run(context.Background())

	if len(conn.writes) != 3 {
		t.Fatalf("writes = %d, want 3 snapshots", len(conn.writes))
	}
	for i, w := range conn.writes {
		if _, ok := w.(unitSnapshot); !ok {
			t.Errorf("write %d = %T, want unitSnapshot", i, w)
		}
	}
	if len(source.calls) != 3 {
		t.Errorf("source calls = %d, want 3", len(source.calls))
	}
}

func TestSessionMalformedInitialParamsCloses(t *testing.T) {
	conn := newFakeConn(1, []byte(`{"start_time":`))
	s, reg := newTestSession(conn, &fakeSource{}, KindStandard, "U1", time.Hour)

	s.Run(context.Background())

	if len(conn.writes) != 0 {
		t.Fatalf("writes = %d, want none before valid parameters", len(conn.writes))
	}
	if !conn.closed {
		t.Error("connection not closed")
	}
	if n := reg.Count(KindStandard); n != 0 {
		t.Errorf("registry count = %d, want 0", n)
	}
}

func TestSessionInvalidWindowCloses(t *testing.T) {
	conn := newFakeConn(1,
		paramsMessage(t, "U1", "2025-03-10T14:00:00", "2025-03-10T13:00:00", "mode1"),
	)
	s, _ := newTestSession(conn, &fakeSource{}, KindStandard, "U1", time.Hour)

	s.Run(context.Background())

	if len(conn.writes) != 0 {
		t.Fatalf("writes = %d, want 0", len(conn.writes))
	}
	if !conn.closed {
		t.Error("connection not closed")
	}
}

func TestSessionQueryFailurePushesErrorThenRecovers(t *testing.T) {
	conn := newFakeConn(2,
		paramsMessage(t, "U1", "2025-03-10T13:00:00", "2025-03-10T14:00:00", "mode1"),
	)
	source := &fakeSource{errOnce: report.ErrQueryTimeout}
	s, _ := newTestSession(conn, source, KindStandard, "U1", 2*time.Millisecond)

	s.Run(context.Background())

	if len(conn.writes) != 2 {
		t.Fatalf("writes = %d, want 2 (error, snapshot)", len(conn.writes))
	}
	em, ok := conn.writes[0].(errorMessage)
	if !ok {
		t.Fatalf("first write = %T, want errorMessage", conn.writes[0])
	}
	if want := "Database query timeout - try a smaller time range"; em.Error != want {
		t.Errorf("error message = %q, want %q", em.Error, want)
	}
	if _, ok := conn.writes[1].(unitSnapshot); !ok {
		t.Fatalf("second write = %T, want unitSnapshot", conn.writes[1])
	}
	if len(source.calls) != 2 {
		t.Errorf("source calls = %d, want 2", len(source.calls))
	}
}

func TestSessionGenericFailureMessage(t *testing.T) {
	conn := newFakeConn(1,
		paramsMessage(t, "U1", "2025-03-10T13:00:00", "2025-03-10T14:00:00", "mode1"),
	)
	source := &fakeSource{errOnce: errors.New("relation missing")}
	s, _ := newTestSession(conn, source, KindStandard, "U1", 2*time.Millisecond)

	s.Run(context.Background())

	if len(conn.writes) < 1 {
		t.Fatal("no writes recorded")
	}
	em, ok := conn.writes[0].(errorMessage)
	if !ok {
		t.Fatalf("first write = %T, want errorMessage", conn.writes[0])
	}
	if want := "Database error: relation missing"; em.Error != want {
		t.Errorf("error message = %q, want %q", em.Error, want)
	}
}

func TestSessionParameterUpdateRebinds(t *testing.T) {
	conn := newFakeConn(2,
		paramsMessage(t, "", "2025-03-10T13:00:00", "2025-03-10T14:00:00", "mode1"),
		paramsMessage(t, "U2", "2025-03-11T08:00:00", "2025-03-11T09:00:00", "mode2"),
	)
	source := &fakeSource{}
	s, _ := newTestSession(conn, source, KindStandard, "U1", time.Hour)

	s.Run(context.Background())

	if len(source.calls) != 2 {
		t.Fatalf("source calls = %d, want 2", len(source.calls))
	}
	if source.calls[0].unit != "U1" {
		t.Errorf("first call unit = %q, want fallback %q", source.calls[0].unit, "U1")
	}
	second := source.calls[1]
	if second.unit != "U2" {
		t.Errorf("second call unit = %q, want %q", second.unit, "U2")
	}
	if second.mode != domain.Mode2 {
		t.Errorf("second call mode = %q, want %q", second.mode, domain.Mode2)
	}
	wantStart := time.Date(2025, time.March, 11, 8, 0, 0, 0, domain.Zone)
	if !second.w.Start.Equal(wantStart) {
		t.Errorf("second call start = %v, want %v", second.w.Start, wantStart)
	}
}

func TestSessionHourlyChannelUsesHourlySnapshot(t *testing.T) {
	conn := newFakeConn(1,
		paramsMessage(t, "U1", "2025-03-10T08:00:00", "2025-03-10T12:00:00", "mode1"),
	)
	source := &fakeSource{}
	s, _ := newTestSession(conn, source, KindHourly, "U1", time.Hour)

	s.Run(context.Background())

	if len(conn.writes) != 1 {
		t.Fatalf("writes = %d, want 1", len(conn.writes))
	}
	if _, ok := conn.writes[0].(domain.HourlyReport); !ok {
		t.Fatalf("write = %T, want domain.HourlyReport", conn.writes[0])
	}
}

func TestSessionRegisteredWhileRunning(t *testing.T) {
	conn := newFakeConn(1,
		paramsMessage(t, "U1", "2025-03-10T13:00:00", "2025-03-10T14:00:00", "mode1"),
	)
	source := &fakeSource{}
	s, reg := newTestSession(conn, source, KindStandard, "U1", time.Hour)
	var during int
	source.onCall = func() { during = reg.Count(KindStandard) }

	s.Run(context.Background())

	if during != 1 {
		t.Errorf("registry count during run = %d, want 1", during)
	}
	if n := reg.Count(KindStandard); n != 0 {
		t.Errorf("registry count after run = %d, want 0", n)
	}
}

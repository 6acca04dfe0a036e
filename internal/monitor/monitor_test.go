package monitor

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/muurk/tuyatap/internal/capture"
	"github.com/muurk/tuyatap/internal/profile"
	"github.com/muurk/tuyatap/internal/protocol"
)

func testEvent(t *testing.T) protocol.Event {
	t.Helper()
	payload := []byte{0x6A, 0x02, 0x00, 0x04, 0xFF, 0xFF, 0xFF, 0x9C}
	raw, err := protocol.BuildFrame(0x03, protocol.CmdReportDPStatus, payload)
	if err != nil {
		t.Fatalf("BuildFrame() error = %v", err)
	}
	frame, err := protocol.DecodeFrame(protocol.DirMCU, time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC), raw)
	if err != nil {
		t.Fatalf("DecodeFrame() error = %v", err)
	}
	return protocol.Event{Frame: frame, DataPoints: protocol.ParseDataPoints(frame.Payload)}
}

func TestNewEvent(t *testing.T) {
	ev := testEvent(t)

	wire := NewEvent(ev, nil)
	if wire.Type != "frame" || wire.Source != "mcu" {
		t.Errorf("wire = %+v, want frame event from mcu", wire)
	}
	if wire.Command != 0x06 || wire.CommandName != "Report DP Status" {
		t.Errorf("command = 0x%02X %q", wire.Command, wire.CommandName)
	}
	if !wire.ChecksumOK || wire.PayloadLen != 8 {
		t.Errorf("checksum_ok = %v payload_len = %d", wire.ChecksumOK, wire.PayloadLen)
	}
	if !strings.HasPrefix(wire.Hex, "55aa") {
		t.Errorf("hex = %q, want raw frame hex", wire.Hex)
	}

	if len(wire.DataPoints) != 1 {
		t.Fatalf("data points = %d, want 1", len(wire.DataPoints))
	}
	dp := wire.DataPoints[0]
	if dp.ID != 106 || dp.TypeName != "Value" {
		t.Errorf("dp = %+v", dp)
	}
	if dp.Signed == nil || *dp.Signed != -100 {
		t.Errorf("signed = %v, want -100", dp.Signed)
	}
	if dp.Unsigned == nil || *dp.Unsigned != 4294967196 {
		t.Errorf("unsigned = %v, want 4294967196", dp.Unsigned)
	}
	if dp.Label != "" {
		t.Errorf("label = %q, want none without a profile", dp.Label)
	}
}

func TestNewEventProfileAnnotations(t *testing.T) {
	prof := profile.New()
	prof.DataPoints[106] = &profile.DataPointMeta{Label: "delta", Unit: "cl", Scale: 0.1}

	wire := NewEvent(testEvent(t), prof)
	dp := wire.DataPoints[0]
	if dp.Label != "delta" {
		t.Errorf("label = %q, want %q", dp.Label, "delta")
	}
	if dp.Value != "-10 cl (raw -100)" {
		t.Errorf("value = %q, want scaled rendering", dp.Value)
	}
	// The numeric readings stay raw regardless of the profile.
	if dp.Signed == nil || *dp.Signed != -100 {
		t.Errorf("signed = %v, want -100", dp.Signed)
	}
}

func TestServerStreamsEvents(t *testing.T) {
	info := capture.NewSessionInfo("/dev/ttyUSB0", "/dev/ttyUSB1", 9600)
	srv, err := New(Config{Addr: "127.0.0.1:0", Session: &info})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	wsURL := "ws://" + srv.Addr().String() + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial(%s) error = %v", wsURL, err)
	}
	if resp != nil {
		resp.Body.Close()
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	// First message is the session header.
	_, hello, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage() error = %v", err)
	}
	var header map[string]any
	if err := json.Unmarshal(hello, &header); err != nil {
		t.Fatalf("header not JSON: %v\n%s", err, hello)
	}
	if header["type"] != "session" || header["session_id"] != info.SessionID {
		t.Errorf("header = %v, want session %s", header, info.SessionID)
	}

	// Receiving the header means the client is registered, so a publish
	// now must reach it.
	srv.Publish(testEvent(t))

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage() error = %v", err)
	}
	var event map[string]any
	if err := json.Unmarshal(msg, &event); err != nil {
		t.Fatalf("event not JSON: %v\n%s", err, msg)
	}
	if event["type"] != "frame" || event["command_name"] != "Report DP Status" {
		t.Errorf("event = %v", event)
	}

	// Health endpoint sees the one client.
	httpResp, err := http.Get("http://" + srv.Addr().String() + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz error = %v", err)
	}
	body, _ := io.ReadAll(httpResp.Body)
	httpResp.Body.Close()
	if httpResp.StatusCode != http.StatusOK {
		t.Errorf("healthz status = %d", httpResp.StatusCode)
	}
	if !strings.Contains(string(body), `"clients":1`) {
		t.Errorf("healthz body = %s, want one client", body)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Error("Run() did not stop after cancellation")
	}
}

func TestPublishWithoutClients(t *testing.T) {
	srv, err := New(Config{Addr: "127.0.0.1:0"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer srv.listener.Close()

	// Must not block or panic with nobody connected.
	srv.Publish(testEvent(t))

	if n := srv.ClientCount(); n != 0 {
		t.Errorf("ClientCount() = %d, want 0", n)
	}
}

package ipc

import (
	"io"
	"log/slog"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestParseRequest(t *testing.T) {
	req, err := ParseRequest([]byte(`{"command":"TOGGLE","payload":{"window":12}}` + "\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if req.Command != CommandToggle {
		t.Fatalf("expected TOGGLE, got %q", req.Command)
	}
	if string(req.Payload) != `{"window":12}` {
		t.Fatalf("unexpected payload %s", req.Payload)
	}

	if _, err := ParseRequest([]byte("not json")); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestNewOKResponse_NilDataOmitted(t *testing.T) {
	resp, err := NewOKResponse(nil)
	if err != nil {
		t.Fatalf("ok: %v", err)
	}
	data, err := resp.Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"status":"OK"}` {
		t.Fatalf("unexpected encoding %s", data)
	}
}

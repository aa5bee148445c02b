package errors

import (
	"fmt"
	"testing"
	"time"
)

func TestError(t *testing.T) {
	// Test basic error creation
	err := New(ErrCodeNodeNotFound, "node not found")
	if err.Code != ErrCodeNodeNotFound {
		t.Errorf("expected code %s, got %s", ErrCodeNodeNotFound, err.Code)
	}

	// Test error wrapping
	cause := fmt.Errorf("underlying error")
	wrapped := Wrap(cause, ErrCodeWorkerExited, "worker exited")

	if wrapped.Unwrap() != cause {
		t.Error("Unwrap should return the cause")
	}

	if !Is(wrapped, ErrCodeWorkerExited) {
		t.Error("Is should return true for matching code")
	}

	if Is(wrapped, ErrCodeNodeNotFound) {
		t.Error("Is should return false for non-matching code")
	}

	detailed := err.WithDetail("name", "Login").WithDetail("depth", 3)
	if detailed.Details["name"] != "Login" {
		t.Error("WithDetail should add details")
	}
}

func TestIsThroughFmtWrap(t *testing.T) {
	inner := WorkerTimeout("status --json", 50*time.Millisecond)
	outer := fmt.Errorf("executing: %w", inner)

	if !Is(outer, ErrCodeWorkerTimeout) {
		t.Error("Is should find codes behind fmt.Errorf wrapping")
	}
	if GetCode(outer) != ErrCodeWorkerTimeout {
		t.Errorf("GetCode = %s, want %s", GetCode(outer), ErrCodeWorkerTimeout)
	}
	if GetCode(nil) != "" {
		t.Error("GetCode(nil) should be empty")
	}

	v, ok := Detail(outer, "timeout")
	if !ok || v != "50ms" {
		t.Errorf("Detail(timeout) = %v, %v", v, ok)
	}
}

func TestErrorConstructors(t *testing.T) {
	err := NodeNotFound("story", "Checkout")
	if err.Code != ErrCodeNodeNotFound {
		t.Errorf("expected code %s, got %s", ErrCodeNodeNotFound, err.Code)
	}
	if err.Details["name"] != "Checkout" {
		t.Error("NodeNotFound should include name detail")
	}

	busy := ChannelBusy("status", "delete")
	if busy.Details["rejected"] != "delete" {
		t.Error("ChannelBusy should include the rejected command")
	}

	long := make([]byte, 500)
	for i := range long {
		long[i] = 'x'
	}
	malformed := MalformedResponse(string(long))
	if got := malformed.Details["payload"].(string); len(got) != 203 {
		t.Errorf("payload should be truncated, got %d bytes", len(got))
	}
}

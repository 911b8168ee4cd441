package internal

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestReadBodyStrict(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader([]byte("payload")))
	w := httptest.NewRecorder()

	body, err := ReadBodyStrict(w, req, 1024)
	if err != nil {
		t.Fatalf("Failed to read body: %v", err)
	}
	if string(body) != "payload" {
		t.Errorf("Expected exact request bytes, got %q", body)
	}
}

func TestReadBodyStrictEmpty(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	w := httptest.NewRecorder()

	if _, err := ReadBodyStrict(w, req, 1024); err == nil {
		t.Error("Expected error for empty body")
	}
}

func TestReadBodyStrictTooLarge(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(bytes.Repeat([]byte("a"), 100)))
	w := httptest.NewRecorder()

	_, err := ReadBodyStrict(w, req, 10)
	if !errors.Is(err, ErrPayloadTooLarge) {
		t.Errorf("Expected ErrPayloadTooLarge, got %v", err)
	}
}

package logging

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestNewWithWriter(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "restaurant", "warn")

	log.Info("hidden")
	log.Warn("shown", "order_id", "o-1")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected one JSON line, got %q: %v", buf.String(), err)
	}
	if entry["msg"] != "shown" || entry["service"] != "restaurant" || entry["order_id"] != "o-1" {
		t.Errorf("unexpected entry: %v", entry)
	}
}

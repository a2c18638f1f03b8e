package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestInfofPrefixesComponent(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter("stream", &buf)
	l.Infof("reconnect attempt %d/%d", 1, 5)

	got := buf.String()
	if !strings.Contains(got, "stream: reconnect attempt 1/5") {
		t.Fatalf("log output = %q, missing expected message", got)
	}
}

func TestWithNestsComponent(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter("stream", &buf).With("backoff")
	l.Warnf("capped at %ds", 30)

	got := buf.String()
	if !strings.Contains(got, "stream.backoff: WARN: capped at 30s") {
		t.Fatalf("log output = %q, missing expected message", got)
	}
}

package agentlog

import (
	"bytes"
	"log"
	"testing"
)

func TestSetLevelGatesDebugf(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Writer()
	log.SetOutput(&buf)
	defer log.SetOutput(prev)

	SetLevel("INFO")
	Debugf("hidden %d", 1)
	if buf.Len() != 0 {
		t.Fatalf("Debugf emitted at INFO level: %q", buf.String())
	}

	SetLevel("debug")
	Debugf("shown %d", 2)
	if !bytes.Contains(buf.Bytes(), []byte("DEBUG shown 2")) {
		t.Fatalf("Debugf did not emit at DEBUG level: %q", buf.String())
	}

	SetLevel("INFO")
	if DebugEnabled() {
		t.Fatal("DebugEnabled() = true after SetLevel(INFO)")
	}
}

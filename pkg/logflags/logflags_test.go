package logflags

import (
	"bytes"
	"testing"

	"github.com/sirupsen/logrus"
)

func resetFlags() {
	gdbWire = false
	server = false
	sim = false
	logOut = nil
}

func TestSetupComponents(t *testing.T) {
	defer resetFlags()
	if err := Setup(true, "gdbwire,sim", nil); err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if !GdbWire() || !Sim() {
		t.Errorf("expected gdbwire and sim enabled, got gdbwire=%v sim=%v", GdbWire(), Sim())
	}
	if Server() {
		t.Errorf("server component should stay disabled")
	}
	if !Any() {
		t.Errorf("Any should report true")
	}
}

func TestSetupDefaultComponent(t *testing.T) {
	defer resetFlags()
	if err := Setup(true, "", nil); err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if !Server() {
		t.Errorf("empty --log-output should enable the server component")
	}
}

func TestSetupLogstrWithoutLog(t *testing.T) {
	defer resetFlags()
	if err := Setup(false, "gdbwire", nil); err == nil {
		t.Errorf("expected an error for --log-output without --log")
	}
}

func TestDisabledLoggerIsQuiet(t *testing.T) {
	defer resetFlags()
	var buf bytes.Buffer
	logOut = &buf
	logger := GdbWireLogger()
	logger.Debug("should not appear")
	if buf.Len() != 0 {
		t.Errorf("disabled logger produced output: %q", buf.String())
	}
	if logger.Logger.Level != logrus.PanicLevel {
		t.Errorf("disabled logger level = %v, want %v", logger.Logger.Level, logrus.PanicLevel)
	}
}

func TestEnabledLoggerWrites(t *testing.T) {
	defer resetFlags()
	var buf bytes.Buffer
	logOut = &buf
	gdbWire = true
	GdbWireLogger().Debug("hello")
	if buf.Len() == 0 {
		t.Errorf("enabled logger produced no output")
	}
}

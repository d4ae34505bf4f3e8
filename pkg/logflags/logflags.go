// Package logflags turns per-component logging on and off. Every
// component gets its logger from here; a disabled component's logger is
// parked at panic level so the call sites stay cheap.
package logflags

import (
	"errors"
	"io"
	"io/ioutil"
	"log"
	"strings"

	"github.com/sirupsen/logrus"
)

var gdbWire = false
var server = false
var sim = false

var logOut io.Writer

func makeLogger(flag bool, fields logrus.Fields) *logrus.Entry {
	logger := logrus.New().WithFields(fields)
	logger.Logger.Formatter = &logrus.TextFormatter{DisableTimestamp: true}
	if logOut != nil {
		logger.Logger.Out = logOut
	}
	logger.Logger.Level = logrus.DebugLevel
	if !flag {
		logger.Logger.Level = logrus.PanicLevel
	}
	return logger
}

// GdbWire returns true if every packet exchanged with the client should
// be logged.
func GdbWire() bool {
	return gdbWire
}

// GdbWireLogger returns a configured logger for the wire protocol.
func GdbWireLogger() *logrus.Entry {
	return makeLogger(gdbWire, logrus.Fields{"layer": "wire"})
}

// Server returns true if the dispatcher should log.
func Server() bool {
	return server
}

// ServerLogger returns a logger for the dispatcher.
func ServerLogger() *logrus.Entry {
	return makeLogger(server, logrus.Fields{"layer": "server"})
}

// Sim returns true if the simulated target should log.
func Sim() bool {
	return sim
}

// SimLogger returns a logger for the simulated target.
func SimLogger() *logrus.Entry {
	return makeLogger(sim, logrus.Fields{"layer": "sim"})
}

// Any returns true if at least one component is logging.
func Any() bool {
	return gdbWire || server || sim
}

var errLogstrWithoutLog = errors.New("--log-output specified without --log")

// Setup sets the component flags based on the contents of logstr and
// directs every logger at out (logrus default when nil).
func Setup(logFlag bool, logstr string, out io.Writer) error {
	logOut = out
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	if !logFlag {
		log.SetOutput(ioutil.Discard)
		if logstr != "" {
			return errLogstrWithoutLog
		}
		return nil
	}
	if logstr == "" {
		logstr = "server"
	}
	for _, logcmd := range strings.Split(logstr, ",") {
		switch logcmd {
		case "gdbwire":
			gdbWire = true
		case "server":
			server = true
		case "sim":
			sim = true
		}
	}
	return nil
}

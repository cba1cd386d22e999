package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/log/colorstring"
)

const timestampLayout = "15:04:05"

// writerLogger prints the same lines as the go-utils logger, to out instead of the standard output.
type writerLogger struct {
	out   io.Writer
	debug bool
}

// stderrLogger returns the logger of a command whose result takes the standard output.
func stderrLogger(debug bool) log.Logger {
	return &writerLogger{out: os.Stderr, debug: debug}
}

// commandLogger returns the shared logger, or one writing to the standard error if toStdout.
func commandLogger(toStdout, debug bool) log.Logger {
	if toStdout {
		return stderrLogger(debug)
	}
	return logger
}

func (l *writerLogger) EnableDebugLog(enable bool) { l.debug = enable }

func (l *writerLogger) Infof(format string, v ...interface{})   { l.printf(colorstring.Bluef, false, format, v...) }
func (l *writerLogger) Warnf(format string, v ...interface{})   { l.printf(colorstring.Yellowf, false, format, v...) }
func (l *writerLogger) Printf(format string, v ...interface{})  { l.printf(colorstring.NoColorf, false, format, v...) }
func (l *writerLogger) Donef(format string, v ...interface{})   { l.printf(colorstring.Greenf, false, format, v...) }
func (l *writerLogger) Errorf(format string, v ...interface{})  { l.printf(colorstring.Redf, false, format, v...) }
func (l *writerLogger) TInfof(format string, v ...interface{})  { l.printf(colorstring.Bluef, true, format, v...) }
func (l *writerLogger) TWarnf(format string, v ...interface{})  { l.printf(colorstring.Yellowf, true, format, v...) }
func (l *writerLogger) TPrintf(format string, v ...interface{}) { l.printf(colorstring.NoColorf, true, format, v...) }
func (l *writerLogger) TDonef(format string, v ...interface{})  { l.printf(colorstring.Greenf, true, format, v...) }
func (l *writerLogger) TErrorf(format string, v ...interface{}) { l.printf(colorstring.Redf, true, format, v...) }

func (l *writerLogger) Debugf(format string, v ...interface{}) {
	if l.debug {
		l.printf(colorstring.Magentaf, false, format, v...)
	}
}

func (l *writerLogger) TDebugf(format string, v ...interface{}) {
	if l.debug {
		l.printf(colorstring.Magentaf, true, format, v...)
	}
}

func (l *writerLogger) Println() {
	fmt.Fprintln(l.out) //nolint:errcheck
}

func (l *writerLogger) printf(color colorstring.ColorfFunc, withTime bool, format string, v ...interface{}) {
	message := color(format, v...)
	if withTime {
		message = fmt.Sprintf("[%s] %s", time.Now().Format(timestampLayout), message)
	}
	fmt.Fprintln(l.out, message) //nolint:errcheck
}

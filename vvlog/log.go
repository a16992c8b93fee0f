// Package vvlog is the process-wide logging surface for the rendering
// pipeline: leveled formatted output through one dispatch path, an
// optional rotating file sink, and a frame timer for elapsed-time
// annotated render messages.
package vvlog

import (
	"fmt"
	"log"
	"os"
	"sync"
	"time"
)

// Level orders messages by urgency; anything below the current threshold
// is dropped. Debug is for per-frame and per-fetch detail (scale choices,
// fetcher activity, soft-tier occupancy), Info for lifecycle events, Warn
// for degraded-but-recovering conditions, Error for failures that leave a
// block unloaded or a frame unpublished.
type Level int32

const (
	Debug Level = iota
	Info
	Warn
	Error

	// Silent is above every real level; SetLevel(Silent) turns logging off.
	Silent
)

var levelTags = map[Level]string{
	Debug: "DEBUG",
	Info:  "INFO",
	Warn:  "WARN",
	Error: "ERROR",
}

var (
	mu        sync.Mutex
	threshold = Info
	sink      = log.New(os.Stdout, "", log.LstdFlags)
	closer    func() error
)

// SetLevel sets the minimum level a message needs to be written. The
// default is Info; the demo's -verbose flag lowers it to Debug.
func SetLevel(l Level) {
	mu.Lock()
	threshold = l
	mu.Unlock()
}

// emit is the single formatting and filtering path every level goes
// through.
func emit(l Level, format string, args ...interface{}) {
	mu.Lock()
	defer mu.Unlock()
	if l < threshold {
		return
	}
	sink.Printf(levelTags[l]+" "+format, args...)
}

func Debugf(format string, args ...interface{}) { emit(Debug, format, args...) }
func Infof(format string, args ...interface{})  { emit(Info, format, args...) }
func Warnf(format string, args ...interface{})  { emit(Warn, format, args...) }
func Errorf(format string, args ...interface{}) { emit(Error, format, args...) }

// Close flushes and closes the file sink if one was installed by
// LogConfig.Apply; harmless otherwise.
func Close() {
	mu.Lock()
	c := closer
	closer = nil
	mu.Unlock()
	if c != nil {
		if err := c(); err != nil {
			fmt.Fprintf(os.Stderr, "closing log file: %v\n", err)
		}
	}
}

// FrameTimer annotates log messages with the time since it was started.
// The renderer starts one per paint so frame logs carry their own render
// time.
//
//	ft := vvlog.StartFrameTimer()
//	... render the pass ...
//	ft.Logf(vvlog.Debug, "painted scale=%d valid=%v", scale, valid)
type FrameTimer struct {
	start time.Time
}

func StartFrameTimer() FrameTimer {
	return FrameTimer{start: time.Now()}
}

// Elapsed returns the time since the timer was started.
func (t FrameTimer) Elapsed() time.Duration {
	return time.Since(t.start)
}

// Logf writes one message at l with the elapsed time appended.
func (t FrameTimer) Logf(l Level, format string, args ...interface{}) {
	emit(l, format+" [%s]", append(args, t.Elapsed())...)
}

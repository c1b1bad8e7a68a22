// Package metrics records lightweight, file-based connection metrics.
// It is a thin CSV sink, not a full metrics pipeline: useful for
// offline inspection of connection lifecycles without standing up a
// collector.
package metrics

import (
	"encoding/csv"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	// DefaultMetricsFile is the CSV file connection lifecycle events are
	// appended to when no other path is configured.
	DefaultMetricsFile = "wsclient_metrics.csv"

	fileFlags = os.O_APPEND | os.O_CREATE | os.O_WRONLY
	filePerms = 0o644
)

// Recorder appends one CSV row per connection lifecycle event (open,
// close, and each dispatched inbound frame with its payload length) to
// a single file.
type Recorder struct {
	mu       sync.Mutex
	filename string
	logger   zerolog.Logger
}

// NewRecorder constructs a [Recorder] that appends to filename. An
// empty filename falls back to [DefaultMetricsFile].
func NewRecorder(filename string, l zerolog.Logger) *Recorder {
	if filename == "" {
		filename = DefaultMetricsFile
	}
	return &Recorder{filename: filename, logger: l}
}

// RecordOpen logs a connection's successful handshake.
func (r *Recorder) RecordOpen(connID string) {
	r.write([]string{time.Now().Format(time.RFC3339), connID, "open", "", ""})
}

// RecordClose logs a connection's terminal state: a clean close carries
// its status code and reason, an abort carries the failure message in reason.
func (r *Recorder) RecordClose(connID string, code int, reason string) {
	r.write([]string{time.Now().Format(time.RFC3339), connID, "close", strconv.Itoa(code), reason})
}

// RecordFrame logs one dispatched inbound frame, for throughput analysis.
func (r *Recorder) RecordFrame(connID, opcode string, payloadLen int) {
	r.write([]string{time.Now().Format(time.RFC3339), connID, "frame:" + opcode, strconv.Itoa(payloadLen), ""})
}

func (r *Recorder) write(record []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	f, err := os.OpenFile(r.filename, fileFlags, filePerms) //gosec:disable G304 // Operator-configured path.
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to open metrics file")
		return
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(record); err != nil {
		r.logger.Error().Err(err).Msg("failed to write metrics record")
		return
	}
	w.Flush()
	if err := w.Error(); err != nil {
		r.logger.Error().Err(err).Msg("failed to flush metrics file")
	}
}

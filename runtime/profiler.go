package runtime

import (
	"fmt"
	"os"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
)

// cborEncMode uses canonical encoding for deterministic trace files.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("runtime: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// TickSample records how long one tick took.
type TickSample struct {
	Frame          int64 `cbor:"frame"`
	DurationMicros int64 `cbor:"duration_us"`
}

// TraceCapture is the on-disk trace format.
type TraceCapture struct {
	ID        string       `cbor:"id"`
	StartedAt time.Time    `cbor:"started_at"`
	Samples   []TickSample `cbor:"samples"`
}

// Profiler captures per-tick timing samples between startTrace and
// stopTrace. Tick-thread only.
type Profiler struct {
	enabled   bool
	captureID string
	startedAt time.Time
	samples   []TickSample
}

// NewProfiler creates a disabled profiler.
func NewProfiler() *Profiler {
	return &Profiler{}
}

// Enabled reports whether samples are being captured.
func (p *Profiler) Enabled() bool {
	return p.enabled
}

// SampleCount returns the number of captured samples.
func (p *Profiler) SampleCount() int {
	return len(p.samples)
}

// StartTrace begins a fresh capture, discarding earlier samples.
func (p *Profiler) StartTrace() {
	p.enabled = true
	p.captureID = uuid.New().String()
	p.startedAt = time.Now()
	p.samples = p.samples[:0]
	log.Info("started capturing traces")
}

// StopTrace stops capturing. Samples stay available until Write clears
// them.
func (p *Profiler) StopTrace() {
	p.enabled = false
	log.Info("stopped capturing traces")
}

// RecordTick appends one sample while a capture is running.
func (p *Profiler) RecordTick(frame int64, duration time.Duration) {
	if !p.enabled {
		return
	}
	p.samples = append(p.samples, TickSample{
		Frame:          frame,
		DurationMicros: duration.Microseconds(),
	})
}

// Write serializes the capture to path, optionally clearing the samples.
func (p *Profiler) Write(path string, clear bool) error {
	capture := TraceCapture{
		ID:        p.captureID,
		StartedAt: p.startedAt,
		Samples:   p.samples,
	}
	data, err := cborEncMode.Marshal(&capture)
	if err != nil {
		return fmt.Errorf("runtime: marshal trace capture: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("runtime: write trace capture: %w", err)
	}
	if clear {
		p.samples = nil
	}
	return nil
}

// ReadTraceCapture loads a trace file written by Write.
func ReadTraceCapture(path string) (*TraceCapture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("runtime: read trace capture: %w", err)
	}
	var capture TraceCapture
	if err := cbor.Unmarshal(data, &capture); err != nil {
		return nil, fmt.Errorf("runtime: unmarshal trace capture: %w", err)
	}
	return &capture, nil
}

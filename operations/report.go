package operations

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Report records one execution of a step: what went in, what came out and how it ended. Reports
// are written next to the run summary, so every field must survive a JSON round trip.
type Report[IN, OUT any] struct {
	ID        string       `json:"id"`
	Def       Definition   `json:"definition"`
	Input     IN           `json:"input"`
	Output    OUT          `json:"output"`
	StartedAt time.Time    `json:"startedAt"`
	Elapsed   string       `json:"elapsed"`
	Err       *ReportError `json:"error,omitempty"`
}

// NewReport builds a report stamped with the current time. A non-nil err is kept as its message.
func NewReport[IN, OUT any](def Definition, input IN, output OUT, err error) Report[IN, OUT] {
	r := Report[IN, OUT]{
		ID:        uuid.NewString(),
		Def:       def,
		Input:     input,
		Output:    output,
		StartedAt: time.Now().UTC(),
	}
	if err != nil {
		r.Err = &ReportError{Message: err.Error()}
	}

	return r
}

// Failed reports whether the step ended with an error.
func (r Report[IN, OUT]) Failed() bool {
	return r.Err != nil
}

func (r Report[IN, OUT]) untyped() Report[any, any] {
	return Report[any, any]{
		ID:        r.ID,
		Def:       r.Def,
		Input:     r.Input,
		Output:    r.Output,
		StartedAt: r.StartedAt,
		Elapsed:   r.Elapsed,
		Err:       r.Err,
	}
}

// ReportError is the serialized form of a step error.
type ReportError struct {
	Message string `json:"message"`
}

func (e ReportError) Error() string {
	return e.Message
}

// Reporter collects the reports of a run in execution order.
type Reporter interface {
	Record(report Report[any, any]) error
	Reports() ([]Report[any, any], error)
}

// MemoryReporter keeps reports in memory. It is safe for concurrent use.
type MemoryReporter struct {
	mu      sync.Mutex
	reports []Report[any, any]
}

var _ Reporter = (*MemoryReporter)(nil)

func NewMemoryReporter() *MemoryReporter {
	return &MemoryReporter{}
}

func (m *MemoryReporter) Record(report Report[any, any]) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.reports = append(m.reports, report)

	return nil
}

// Reports returns a copy of the recorded reports.
func (m *MemoryReporter) Reports() ([]Report[any, any], error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Report[any, any], len(m.reports))
	copy(out, m.reports)

	return out, nil
}

// LastFailure returns the most recent failed report, if any.
func (m *MemoryReporter) LastFailure() (Report[any, any], bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := len(m.reports) - 1; i >= 0; i-- {
		if m.reports[i].Failed() {
			return m.reports[i], true
		}
	}

	return Report[any, any]{}, false
}

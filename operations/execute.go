package operations

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrNotSerializable is returned when a step input or output cannot be written as JSON.
var ErrNotSerializable = errors.New("value cannot be written to the run artifacts")

// ExecuteOperation runs a step once and records its report. The handler's error is returned as
// is so callers can still match it with errors.Is and errors.As.
func ExecuteOperation[IN, OUT, DEP any](
	b Bundle,
	op *Operation[IN, OUT, DEP],
	deps DEP,
	input IN,
) (Report[IN, OUT], error) {
	if err := checkJSON(input); err != nil {
		return Report[IN, OUT]{}, fmt.Errorf("step %s input: %w", op.def.ID, err)
	}

	start := time.Now()
	output, err := op.run(b, deps, input)
	if err == nil {
		if jerr := checkJSON(output); jerr != nil {
			return Report[IN, OUT]{}, fmt.Errorf("step %s output: %w", op.def.ID, jerr)
		}
	}

	report := NewReport(op.def, input, output, err)
	report.Elapsed = time.Since(start).Round(time.Millisecond).String()
	if rerr := b.reporter.Record(report.untyped()); rerr != nil {
		return report, errors.Join(err, rerr)
	}

	if err != nil {
		b.Logger.Warnw("Step failed", "step", op.def.ID, "error", err)
	}

	return report, err
}

func checkJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNotSerializable, err)
	}

	var back any
	if err = json.Unmarshal(data, &back); err != nil {
		return fmt.Errorf("%w: %w", ErrNotSerializable, err)
	}

	return nil
}

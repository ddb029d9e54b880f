package operations

import (
	"errors"
	"testing"

	"github.com/Masterminds/semver/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stableswap-ng/pool-deployer/pkg/logger"
)

var errSentinel = errors.New("factory reverted")

func Test_ExecuteOperation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		giveErr    error
		wantOutput int
		wantErr    error
	}{
		{
			name:       "success is reported",
			wantOutput: 3,
		},
		{
			name:    "failure keeps the error chain",
			giveErr: errSentinel,
			wantErr: errSentinel,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			calls := 0
			op := NewOperation("sum", semver.MustParse("1.0.0"), "sum",
				func(_ Bundle, _ OpDeps, input OpInput) (int, error) {
					calls++
					if tt.giveErr != nil {
						return 0, tt.giveErr
					}

					return input.A + input.B, nil
				})

			reporter := NewMemoryReporter()
			b := NewBundle(t.Context, logger.Test(t), reporter)

			report, err := ExecuteOperation(b, op, OpDeps{}, OpInput{A: 1, B: 2})
			assert.Equal(t, 1, calls, "steps run once")

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				require.True(t, report.Failed())
				assert.Equal(t, tt.wantErr.Error(), report.Err.Error())
			} else {
				require.NoError(t, err)
				assert.False(t, report.Failed())
				assert.Equal(t, tt.wantOutput, report.Output)
			}

			assert.NotEmpty(t, report.ID)
			assert.False(t, report.StartedAt.IsZero())
			assert.NotEmpty(t, report.Elapsed)

			stored, err := reporter.Reports()
			require.NoError(t, err)
			require.Len(t, stored, 1)
			assert.Equal(t, report.ID, stored[0].ID)
			assert.Equal(t, OpInput{A: 1, B: 2}, stored[0].Input)
		})
	}
}

func Test_ExecuteOperation_NotSerializable(t *testing.T) {
	t.Parallel()

	b := NewBundle(t.Context, logger.Test(t), NewMemoryReporter())

	inputOp := NewOperation("chan-in", semver.MustParse("1.0.0"), "",
		func(_ Bundle, _ OpDeps, _ chan int) (int, error) { return 0, nil })
	_, err := ExecuteOperation(b, inputOp, OpDeps{}, make(chan int))
	require.ErrorIs(t, err, ErrNotSerializable)

	outputOp := NewOperation("chan-out", semver.MustParse("1.0.0"), "",
		func(_ Bundle, _ OpDeps, _ struct{}) (func(), error) { return func() {}, nil })
	_, err = ExecuteOperation(b, outputOp, OpDeps{}, struct{}{})
	require.ErrorIs(t, err, ErrNotSerializable)

	reports, err := b.Reporter().Reports()
	require.NoError(t, err)
	assert.Empty(t, reports)
}

func Test_MemoryReporter(t *testing.T) {
	t.Parallel()

	reporter := NewMemoryReporter()
	def := Definition{ID: "submit-creation", Version: semver.MustParse("1.2.3")}

	_, ok := reporter.LastFailure()
	assert.False(t, ok)

	failed := NewReport[any, any](def, 1, "", errSentinel)
	first := NewReport[any, any](def, 2, "one", nil)
	require.NoError(t, reporter.Record(failed))
	require.NoError(t, reporter.Record(first))

	reports, err := reporter.Reports()
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.Equal(t, failed.ID, reports[0].ID)
	assert.Equal(t, "factory reverted", reports[0].Err.Message)

	last, ok := reporter.LastFailure()
	require.True(t, ok)
	assert.Equal(t, failed.ID, last.ID)
}

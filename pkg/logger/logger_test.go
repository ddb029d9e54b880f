package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func Test_New(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		give    Options
		wantErr string
	}{
		{name: "defaults"},
		{name: "debug console", give: Options{Level: "debug", Console: true}},
		{name: "warn json", give: Options{Level: "warn"}},
		{name: "unknown level", give: Options{Level: "loud"}, wantErr: `invalid log level "loud"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			lggr, err := New(tt.give)
			if tt.wantErr != "" {
				require.ErrorContains(t, err, tt.wantErr)
				return
			}

			require.NoError(t, err)
			assert.NotNil(t, lggr)
		})
	}
}

func Test_Named(t *testing.T) {
	t.Parallel()

	lggr := Named(Named(Nop(), "deployer"), "verify")
	assert.Equal(t, "deployer.verify", lggr.Name())
}

func Test_With(t *testing.T) {
	t.Parallel()

	lggr, logs := TestObserved(t, zapcore.InfoLevel)
	With(lggr, "network", "ethereum:mainnet").Infow("Pool deployed", "pool", "0x01")
	lggr.Debugw("hidden")

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "Pool deployed", entries[0].Message)
	assert.Equal(t, "ethereum:mainnet", entries[0].ContextMap()["network"])
	assert.Equal(t, "0x01", entries[0].ContextMap()["pool"])
}

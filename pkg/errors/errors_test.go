package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitOK},
		{"plain", errors.New("boom"), ExitFailure},
		{"input", fmt.Errorf("reading a.txt: %w", ErrInvalidInput), ExitInvalidInput},
		{"corrupt", Corruptf("bad term at %d", 12), ExitCorruptSegment},
		{"temp", fmt.Errorf("create: %w", ErrTempExhausted), ExitTempExhausted},
		{"no output", fmt.Errorf("finish: %w", ErrNoOutput), ExitNoOutput},
		{"app error wins", New(ErrInternal, 42, "custom"), 42},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, ExitCode(tt.err))
		})
	}
}

func TestAppErrorUnwrap(t *testing.T) {
	err := Newf(ErrNoOutput, ExitNoOutput, "output dir %s", "/tmp/x")
	require.ErrorIs(t, err, ErrNoOutput)
	require.Contains(t, err.Error(), "/tmp/x")
}

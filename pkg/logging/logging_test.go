package logging

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    LogLevel
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"", LevelInfo, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"loud", LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestInitForCLI_WritesSubsystem(t *testing.T) {
	var buf bytes.Buffer
	InitForCLI(LevelDebug, &buf)

	Info("Supervisor", "started %s", "echo")
	Error("Registry", errors.New("boom"), "failed")

	out := buf.String()
	assert.Contains(t, out, "subsystem=Supervisor")
	assert.Contains(t, out, "started echo")
	assert.Contains(t, out, "error=boom")
}

func TestInitForTUI_RoutesToChannel(t *testing.T) {
	ch := InitForTUI(LevelInfo)
	defer CloseTUIChannel()

	Debug("Supervisor", "filtered")
	Warn("Supervisor", "visible %d", 1)

	select {
	case entry := <-ch:
		assert.Equal(t, LevelWarn, entry.Level)
		assert.Equal(t, "visible 1", entry.Message)
		assert.Equal(t, "Supervisor", entry.Subsystem)
	default:
		t.Fatal("expected a log entry on the TUI channel")
	}
}

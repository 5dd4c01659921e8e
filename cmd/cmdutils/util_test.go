package cmdutils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddr(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
		wantErr  bool
	}{
		{name: "already http", input: "http://db1:7432", expected: "http://db1:7432"},
		{name: "already https", input: "https://db1:7432", expected: "https://db1:7432"},
		{name: "host and port", input: "db1:7432", expected: "http://db1:7432"},
		{name: "port only", input: ":7432", expected: "http://127.0.0.1:7432"},
		{name: "missing port", input: "db1", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Addr(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestParseDurationOrDefault(t *testing.T) {
	assert.Equal(t, 5*time.Second, ParseDurationOrDefault("5s", time.Minute))
	assert.Equal(t, time.Minute, ParseDurationOrDefault("bogus", time.Minute))
	assert.Equal(t, time.Minute, ParseDurationOrDefault("", time.Minute))
}

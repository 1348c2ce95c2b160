package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseArguments(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    map[string]any
		wantErr bool
	}{
		{name: "none", args: nil, want: nil},
		{name: "json object", args: []string{`{"a": 1, "b": "x"}`}, want: map[string]any{"a": float64(1), "b": "x"}},
		{name: "pairs keep json types", args: []string{"n=2", "ok=true", "list=[1,2]"}, want: map[string]any{"n": float64(2), "ok": true, "list": []any{float64(1), float64(2)}}},
		{name: "plain strings", args: []string{"text=hello world", "path=/tmp/x"}, want: map[string]any{"text": "hello world", "path": "/tmp/x"}},
		{name: "quoted number stays string", args: []string{`id="42"`}, want: map[string]any{"id": "42"}},
		{name: "empty value", args: []string{"text="}, want: map[string]any{"text": ""}},
		{name: "value with equals", args: []string{"expr=a=b"}, want: map[string]any{"expr": "a=b"}},
		{name: "missing equals", args: []string{"oops"}, wantErr: true},
		{name: "empty key", args: []string{"=1"}, wantErr: true},
		{name: "broken json", args: []string{`{"a":`}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseArguments(tt.args)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseEnv(t *testing.T) {
	env, err := ParseEnv([]string{"A=1", "B=x=y", "EMPTY="})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"A": "1", "B": "x=y", "EMPTY": ""}, env)

	_, err = ParseEnv([]string{"novalue"})
	assert.Error(t, err)

	env, err = ParseEnv(nil)
	require.NoError(t, err)
	assert.Nil(t, env)
}

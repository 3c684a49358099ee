package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/picogrid/legion-connector/pkg/simulation"
)

func TestPromptForParametersFromEnvironment(t *testing.T) {
	t.Setenv(SkipPromptsEnv, "true")
	t.Setenv("LEGION_CONNECTOR_MAX_TEMPERATURE", "95.5")
	t.Setenv("LEGION_CONNECTOR_SOLVE_TIMEOUT", "90s")

	params := []simulation.Parameter{
		{Name: "max_temperature", Type: "float", Default: 100.0},
		{Name: "solve_timeout", Type: "duration", Default: "1m"},
		{Name: "iterations", Type: "integer", Default: 50},
		{Name: "verbose", Type: "boolean"},
	}

	settings, err := PromptForParameters(params)
	require.NoError(t, err)

	assert.Equal(t, 95.5, settings["max_temperature"])
	assert.Equal(t, "90s", settings["solve_timeout"])
	assert.Equal(t, 50, settings["iterations"])
	assert.NotContains(t, settings, "verbose")

	resolved, err := settings.Resolve(params)
	require.NoError(t, err)
	assert.Equal(t, "90s", resolved["solve_timeout"])
}

func TestPromptForParametersRequiredMissing(t *testing.T) {
	t.Setenv(SkipPromptsEnv, "true")

	_, err := PromptForParameters([]simulation.Parameter{
		{Name: "engine_path", Type: "string", Required: true},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "engine_path")
}

func TestPromptForParametersBadEnvironmentValue(t *testing.T) {
	t.Setenv(SkipPromptsEnv, "true")
	t.Setenv("LEGION_CONNECTOR_SOLVE_TIMEOUT", "soon")

	_, err := PromptForParameters([]simulation.Parameter{
		{Name: "solve_timeout", Type: "duration"},
	})
	require.Error(t, err)
}

func TestPromptForParametersRejectsOutOfRangeEnvironment(t *testing.T) {
	t.Setenv(SkipPromptsEnv, "true")
	t.Setenv(EnvKey("efficiency_factor"), "1.5")

	_, err := PromptForParameters([]simulation.Parameter{
		{Name: "efficiency_factor", Type: "float", Default: 0.95, Min: 0.01, Max: 1.0},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "efficiency_factor must be at most 1")
}

func TestParseValue(t *testing.T) {
	tests := []struct {
		name    string
		param   simulation.Parameter
		raw     string
		want    interface{}
		wantErr string
	}{
		{name: "integer", param: simulation.Parameter{Name: "iterations", Type: "integer", Min: 1}, raw: " 20 ", want: 20},
		{name: "integer below min", param: simulation.Parameter{Name: "iterations", Type: "integer", Min: 1}, raw: "0", wantErr: "at least 1"},
		{name: "float", param: simulation.Parameter{Name: "max_temperature", Type: "float", Min: 0.0}, raw: "95", want: 95.0},
		{name: "boolean", param: simulation.Parameter{Name: "verbose", Type: "boolean"}, raw: "yes", wantErr: "true or false"},
		{name: "duration kept as text", param: simulation.Parameter{Name: "solve_timeout", Type: "duration"}, raw: "1m30s", want: "1m30s"},
		{name: "zero duration", param: simulation.Parameter{Name: "solve_timeout", Type: "duration"}, raw: "0s", wantErr: "positive"},
		{name: "option", param: simulation.Parameter{Name: "solver", Type: "string", Options: []string{"fast", "exact"}}, raw: "exact", want: "exact"},
		{name: "unknown option", param: simulation.Parameter{Name: "solver", Type: "string", Options: []string{"fast", "exact"}}, raw: "slow", wantErr: "one of fast, exact"},
		{name: "unsupported type", param: simulation.Parameter{Name: "flow", Type: "vector"}, raw: "1", wantErr: "unsupported"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseValue(tt.param, tt.raw)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSettingValidator(t *testing.T) {
	required := SettingValidator(simulation.Parameter{Name: "engine_path", Type: "string", Required: true})
	assert.Error(t, required(""))
	assert.NoError(t, required("/opt/hx/engine"))

	optional := SettingValidator(simulation.Parameter{Name: "efficiency_factor", Type: "float", Max: 1.0})
	assert.NoError(t, optional(""))
	assert.NoError(t, optional("0.8"))
	assert.Error(t, optional("2"))
}

func TestValidateURL(t *testing.T) {
	assert.NoError(t, ValidateURL("https://legion-staging.com"))
	assert.NoError(t, ValidateURL("http://minio:9000"))
	assert.Error(t, ValidateURL("legion-staging.com"))
	assert.Error(t, ValidateURL("ftp://files.example.com"))
	assert.Error(t, ValidateURL(""))
}

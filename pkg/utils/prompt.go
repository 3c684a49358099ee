package utils

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/AlecAivazis/survey/v2"

	"github.com/picogrid/legion-connector/pkg/logger"
	"github.com/picogrid/legion-connector/pkg/simulation"
)

// envPrefix prefixes the environment variables that answer parameter prompts
const envPrefix = "LEGION_CONNECTOR_"

// SkipPromptsEnv disables interactive prompts; values come from the environment or defaults
const SkipPromptsEnv = envPrefix + "SKIP_PROMPTS"

// EnvKey is the environment variable holding the value of a plugin setting,
// e.g. LEGION_CONNECTOR_MAX_TEMPERATURE.
func EnvKey(name string) string {
	return envPrefix + strings.ToUpper(name)
}

// PromptForParameters asks for the settings of a simulator plugin. Settings left
// empty are omitted so the plugin default applies when the connector starts.
func PromptForParameters(params []simulation.Parameter) (simulation.Settings, error) {
	skip := os.Getenv(SkipPromptsEnv) == "true"
	result := make(simulation.Settings)

	for _, param := range params {
		var (
			value interface{}
			err   error
		)
		if skip {
			value, err = settingFromEnvironment(param)
		} else {
			value, err = askSetting(param)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get %s: %w", param.Name, err)
		}
		if value != nil {
			result[param.Name] = value
		}
	}

	return result, nil
}

func settingFromEnvironment(param simulation.Parameter) (interface{}, error) {
	if raw := os.Getenv(EnvKey(param.Name)); raw != "" {
		return ParseValue(param, raw)
	}
	if param.Default != nil {
		return param.Default, nil
	}
	if param.Required {
		return nil, fmt.Errorf("required setting %s not provided and no default available", param.Name)
	}
	return nil, nil
}

// ParseValue converts a typed answer into the setting value stored in the connector
// configuration and checks it against the parameter's range and options. Durations stay
// strings so the configuration file keeps the value as written.
func ParseValue(param simulation.Parameter, raw string) (interface{}, error) {
	raw = strings.TrimSpace(raw)

	var value interface{}
	switch param.Type {
	case "integer":
		i, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("%s must be a whole number", param.Name)
		}
		value = i
	case "float":
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("%s must be a number", param.Name)
		}
		value = f
	case "boolean":
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("%s must be true or false", param.Name)
		}
		value = b
	case "duration":
		d, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("%s must be a duration like 30s or 5m", param.Name)
		}
		if d <= 0 {
			return nil, fmt.Errorf("%s must be positive", param.Name)
		}
		value = raw
	case "string":
		value = raw
	default:
		return nil, fmt.Errorf("unsupported parameter type: %s", param.Type)
	}

	if len(param.Options) > 0 && !slices.Contains(param.Options, raw) {
		return nil, fmt.Errorf("%s must be one of %s", param.Name, strings.Join(param.Options, ", "))
	}
	if err := checkRange(param, value); err != nil {
		return nil, err
	}
	return value, nil
}

func checkRange(param simulation.Parameter, value interface{}) error {
	var n float64
	switch v := value.(type) {
	case int:
		n = float64(v)
	case float64:
		n = v
	default:
		return nil
	}
	if param.Min != nil && n < toFloat64(param.Min) {
		return fmt.Errorf("%s must be at least %v", param.Name, param.Min)
	}
	if param.Max != nil && n > toFloat64(param.Max) {
		return fmt.Errorf("%s must be at most %v", param.Name, param.Max)
	}
	return nil
}

// askSetting prompts for one setting. A valid environment value replaces the
// plugin default as the suggested answer.
func askSetting(param simulation.Parameter) (interface{}, error) {
	suggested := param.Default
	if raw := os.Getenv(EnvKey(param.Name)); raw != "" {
		parsed, err := ParseValue(param, raw)
		if err != nil {
			logger.Warnf("Ignoring %s: %v", EnvKey(param.Name), err)
		} else {
			suggested = parsed
		}
	}

	if param.Type == "boolean" {
		answer := false
		if b, ok := suggested.(bool); ok {
			answer = b
		}
		err := survey.AskOne(&survey.Confirm{Message: param.Description, Default: answer}, &answer)
		return answer, err
	}

	defaultText := ""
	if suggested != nil {
		defaultText = fmt.Sprint(suggested)
	}

	var answer string
	if len(param.Options) > 0 {
		prompt := &survey.Select{Message: param.Description, Options: param.Options}
		if defaultText != "" {
			prompt.Default = defaultText
		}
		if err := survey.AskOne(prompt, &answer); err != nil {
			return nil, err
		}
		return answer, nil
	}

	prompt := &survey.Input{
		Message: param.Description,
		Default: defaultText,
		Help:    settingHelp(param),
	}
	if err := survey.AskOne(prompt, &answer, survey.WithValidator(SettingValidator(param))); err != nil {
		return nil, err
	}
	if strings.TrimSpace(answer) == "" {
		return nil, nil
	}
	return ParseValue(param, answer)
}

// SettingValidator is a survey validator for a typed setting answer.
func SettingValidator(param simulation.Parameter) survey.Validator {
	return func(val interface{}) error {
		raw, _ := val.(string)
		if strings.TrimSpace(raw) == "" {
			if param.Required {
				return errors.New("value is required")
			}
			return nil
		}
		_, err := ParseValue(param, raw)
		return err
	}
}

func settingHelp(param simulation.Parameter) string {
	var parts []string
	parts = append(parts, fmt.Sprintf("Setting %s (%s), env %s", param.Name, param.Type, EnvKey(param.Name)))
	switch {
	case param.Min != nil && param.Max != nil:
		parts = append(parts, fmt.Sprintf("between %v and %v", param.Min, param.Max))
	case param.Min != nil:
		parts = append(parts, fmt.Sprintf("at least %v", param.Min))
	case param.Max != nil:
		parts = append(parts, fmt.Sprintf("at most %v", param.Max))
	}
	if param.Type == "duration" {
		parts = append(parts, "e.g. 30s, 5m, 1h30m")
	}
	return strings.Join(parts, "; ")
}

// ValidateURL is a survey validator for Legion and object store endpoints.
func ValidateURL(val interface{}) error {
	raw, _ := val.(string)
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return fmt.Errorf("invalid URL %q", raw)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return fmt.Errorf("URL must start with https:// or http://")
	}
	return nil
}

func toFloat64(v interface{}) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case int:
		return float64(val)
	case string:
		f, _ := strconv.ParseFloat(val, 64)
		return f
	default:
		return 0
	}
}

package simulation

import (
	"fmt"
	"time"
)

// Parameter defines a configurable setting of a simulator plugin
type Parameter struct {
	Name        string      `yaml:"name"`
	Type        string      `yaml:"type"` // integer, float, string, duration, boolean
	Description string      `yaml:"description"`
	Default     interface{} `yaml:"default"`
	Required    bool        `yaml:"required"`
	Min         interface{} `yaml:"min,omitempty"`
	Max         interface{} `yaml:"max,omitempty"`
	Options     []string    `yaml:"options,omitempty"` // For string enums
}

// Settings holds plugin settings from the connector configuration file
type Settings map[string]interface{}

// Resolve applies parameter defaults and checks required settings and types
func (s Settings) Resolve(params []Parameter) (Settings, error) {
	out := make(Settings, len(s)+len(params))
	for k, v := range s {
		out[k] = v
	}

	for _, p := range params {
		v, ok := out[p.Name]
		if !ok || v == nil {
			if p.Required && p.Default == nil {
				return nil, fmt.Errorf("missing required setting %s", p.Name)
			}
			if p.Default != nil {
				out[p.Name] = p.Default
			}
			continue
		}
		if err := checkType(p, v); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func checkType(p Parameter, v interface{}) error {
	switch p.Type {
	case "integer":
		if _, ok := toFloat(v); !ok {
			return fmt.Errorf("setting %s must be an integer", p.Name)
		}
	case "float":
		if _, ok := toFloat(v); !ok {
			return fmt.Errorf("setting %s must be a number", p.Name)
		}
	case "boolean":
		if _, ok := v.(bool); !ok {
			return fmt.Errorf("setting %s must be a boolean", p.Name)
		}
	case "duration":
		str, ok := v.(string)
		if !ok {
			return fmt.Errorf("setting %s must be a duration string", p.Name)
		}
		if _, err := time.ParseDuration(str); err != nil {
			return fmt.Errorf("setting %s: %w", p.Name, err)
		}
	case "string":
		str, ok := v.(string)
		if !ok {
			return fmt.Errorf("setting %s must be a string", p.Name)
		}
		if len(p.Options) > 0 && !contains(p.Options, str) {
			return fmt.Errorf("setting %s must be one of %v", p.Name, p.Options)
		}
	}
	return nil
}

// String returns a string setting or def
func (s Settings) String(key, def string) string {
	if v, ok := s[key].(string); ok {
		return v
	}
	return def
}

// Float returns a numeric setting or def
func (s Settings) Float(key string, def float64) float64 {
	if f, ok := toFloat(s[key]); ok {
		return f
	}
	return def
}

// Duration returns a duration setting or def
func (s Settings) Duration(key string, def time.Duration) time.Duration {
	str, ok := s[key].(string)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(str)
	if err != nil {
		return def
	}
	return d
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	}
	return 0, false
}

func contains(options []string, v string) bool {
	for _, o := range options {
		if o == v {
			return true
		}
	}
	return false
}

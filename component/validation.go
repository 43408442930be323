package component

import (
	"bytes"
	"encoding/json"
	"fmt"
	"unicode"

	"github.com/c360/speechcore/errors"
)

// Limits applied to factory configuration
const (
	MaxStringLength = 1024
	MaxJSONSize     = 64 << 10
)

// ConfigValidator checks raw factory configuration before it is decoded.
// Factory configs are small flat objects: a path, a few numbers.
type ConfigValidator struct {
	maxDepth     int
	maxArraySize int
}

// NewConfigValidator creates a validator with the default limits
func NewConfigValidator() *ConfigValidator {
	return &ConfigValidator{maxDepth: 8, maxArraySize: 256}
}

// ValidateConfig checks size, nesting and string content of raw JSON.
// Empty configuration is valid.
func (v *ConfigValidator) ValidateConfig(rawConfig json.RawMessage) error {
	if len(rawConfig) == 0 {
		return nil
	}
	if len(rawConfig) > MaxJSONSize {
		return errors.WrapInvalid(
			fmt.Errorf("%w: %d bytes, limit %d", errors.ErrInvalidConfig, len(rawConfig), MaxJSONSize),
			"ConfigValidator", "ValidateConfig", "size check")
	}

	var doc any
	dec := json.NewDecoder(bytes.NewReader(rawConfig))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return errors.WrapInvalid(err, "ConfigValidator", "ValidateConfig", "JSON parsing")
	}
	if err := v.check(doc, "$", 0); err != nil {
		return errors.WrapInvalid(fmt.Errorf("%w: %w", errors.ErrInvalidConfig, err),
			"ConfigValidator", "ValidateConfig", "content check")
	}
	return nil
}

// check walks doc and names the offending location in its error.
func (v *ConfigValidator) check(doc any, at string, depth int) error {
	if depth > v.maxDepth {
		return fmt.Errorf("%s nested deeper than %d", at, v.maxDepth)
	}

	switch val := doc.(type) {
	case string:
		return checkString(val, at)
	case []any:
		if len(val) > v.maxArraySize {
			return fmt.Errorf("%s has %d elements, limit %d", at, len(val), v.maxArraySize)
		}
		for i, elem := range val {
			if err := v.check(elem, fmt.Sprintf("%s[%d]", at, i), depth+1); err != nil {
				return err
			}
		}
	case map[string]any:
		for key, elem := range val {
			if err := checkString(key, at+" key"); err != nil {
				return err
			}
			if err := v.check(elem, at+"."+key, depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}

func checkString(s, at string) error {
	if len(s) > MaxStringLength {
		return fmt.Errorf("%s is %d bytes, limit %d", at, len(s), MaxStringLength)
	}
	for _, r := range s {
		if unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t' {
			return fmt.Errorf("%s contains control character 0x%02x", at, r)
		}
	}
	return nil
}

// ValidateComponentName accepts letters, digits, dash, underscore and dot.
func ValidateComponentName(name string) error {
	if name == "" || len(name) > MaxStringLength {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "ConfigValidator", "ValidateComponentName", "name length")
	}
	for _, r := range name {
		if r > unicode.MaxASCII || !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' || r == '.') {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "ConfigValidator", "ValidateComponentName",
				fmt.Sprintf("invalid character %q", r))
		}
	}
	return nil
}

// Validatable is implemented by configs that can check themselves
type Validatable interface {
	Validate() error
}

// SafeUnmarshal validates rawConfig, decodes it into target and runs
// target's Validate method when it has one. Empty config leaves target as is.
func SafeUnmarshal(rawConfig json.RawMessage, target any) error {
	if err := NewConfigValidator().ValidateConfig(rawConfig); err != nil {
		return err
	}
	if len(rawConfig) > 0 {
		if err := json.Unmarshal(rawConfig, target); err != nil {
			return errors.WrapInvalid(err, "ConfigValidator", "SafeUnmarshal", "decode")
		}
	}
	if v, ok := target.(Validatable); ok {
		if err := v.Validate(); err != nil {
			return errors.Wrap(err, "ConfigValidator", "SafeUnmarshal", "validate")
		}
	}
	return nil
}

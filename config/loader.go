package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/c360/speechcore/errors"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "SPEECHCORE"

// Loader handles configuration loading with layers and overrides
type Loader struct {
	layers     []string
	validation bool
	envPrefix  string
	lookupEnv  func(string) (string, bool)
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	return &Loader{
		layers:    []string{},
		envPrefix: EnvPrefix,
		lookupEnv: os.LookupEnv,
	}
}

// AddLayer adds a configuration file layer
func (l *Loader) AddLayer(path string) {
	l.layers = append(l.layers, path)
}

// EnableValidation enables or disables configuration validation
func (l *Loader) EnableValidation(enable bool) {
	l.validation = enable
}

// LoadFile loads configuration from a single file
func (l *Loader) LoadFile(path string) (*Config, error) {
	l.layers = []string{path}
	return l.Load()
}

// Load loads and merges all configuration layers
func (l *Loader) Load() (*Config, error) {
	cfg := Default()

	for _, path := range l.layers {
		raw, err := l.loadRaw(path)
		if err != nil {
			return nil, errors.WrapInvalid(err, "Loader", "Load", "load "+path)
		}
		cfg, err = mergeFromMap(cfg, raw)
		if err != nil {
			return nil, errors.WrapInvalid(err, "Loader", "Load", "merge "+path)
		}
	}

	if err := l.applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if l.validation {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// loadRaw reads a layer into a generic map
func (l *Loader) loadRaw(path string) (map[string]any, error) {
	data, err := readConfigFile(path)
	if err != nil {
		return nil, err
	}

	var raw map[string]any
	if isYAML(path) {
		err = yaml.Unmarshal(data, &raw)
	} else {
		err = json.Unmarshal(data, &raw)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	if err := checkNesting(raw, 0); err != nil {
		return nil, err
	}
	return raw, nil
}

// mergeFromMap merges configuration from a raw map, only overriding fields
// present in the map
func mergeFromMap(base *Config, override map[string]any) (*Config, error) {
	if override == nil {
		return base, nil
	}

	baseJSON, err := json.Marshal(base)
	if err != nil {
		return nil, err
	}
	var baseMap map[string]any
	if err := json.Unmarshal(baseJSON, &baseMap); err != nil {
		return nil, err
	}

	mergedJSON, err := json.Marshal(deepMergeMaps(baseMap, override))
	if err != nil {
		return nil, err
	}

	var merged Config
	if err := json.Unmarshal(mergedJSON, &merged); err != nil {
		return nil, err
	}
	return &merged, nil
}

// deepMergeMaps recursively merges two maps, with override taking precedence
func deepMergeMaps(base, override map[string]any) map[string]any {
	result := make(map[string]any, len(base))
	for k, v := range base {
		result[k] = v
	}

	for k, v := range override {
		if v == nil {
			continue
		}
		if baseMap, ok := base[k].(map[string]any); ok {
			if overrideMap, ok := v.(map[string]any); ok {
				result[k] = deepMergeMaps(baseMap, overrideMap)
				continue
			}
		}
		result[k] = v
	}
	return result
}

// applyEnvOverrides applies SPEECHCORE_* environment variables
func (l *Loader) applyEnvOverrides(cfg *Config) error {
	var firstErr error
	setString := func(key string, dst *string) {
		if val, ok := l.env(key); ok {
			*dst = val
		}
	}
	setInt := func(key string, dst *int) {
		val, ok := l.env(key)
		if !ok {
			return
		}
		n, err := strconv.Atoi(val)
		if err != nil {
			if firstErr == nil {
				firstErr = errors.WrapInvalid(err, "Loader", "applyEnvOverrides", l.envPrefix+"_"+key)
			}
			return
		}
		*dst = n
	}
	setDuration := func(key string, dst *Duration) {
		val, ok := l.env(key)
		if !ok {
			return
		}
		d, err := time.ParseDuration(val)
		if err != nil {
			if firstErr == nil {
				firstErr = errors.WrapInvalid(err, "Loader", "applyEnvOverrides", l.envPrefix+"_"+key)
			}
			return
		}
		*dst = Duration(d)
	}

	setInt("RUNTIME_USER_LANE_QUEUE", &cfg.Runtime.UserLaneQueue)
	setInt("RUNTIME_BACKGROUND_LANE_QUEUE", &cfg.Runtime.BackgroundLaneQueue)
	setDuration("RUNTIME_STOP_TIMEOUT", &cfg.Runtime.StopTimeout)

	setString("PUMP_FACTORY", &cfg.Pump.Factory)
	setDuration("PUMP_CHUNK_DURATION", &cfg.Pump.ChunkDuration)
	setInt("PUMP_CHUNKS_PER_SLICE", &cfg.Pump.ChunksPerSlice)

	setString("INPUT_PATH", &cfg.Input.Path)
	setString("INPUT_KIND", &cfg.Input.Kind)
	pct := int(cfg.Input.RealTimePercentage)
	setInt("INPUT_REAL_TIME_PERCENTAGE", &pct)
	if pct < 0 || pct > 255 {
		if firstErr == nil {
			firstErr = errors.WrapInvalid(errors.ErrInvalidConfig, "Loader", "applyEnvOverrides",
				fmt.Sprintf("%s_INPUT_REAL_TIME_PERCENTAGE %d", l.envPrefix, pct))
		}
	} else {
		cfg.Input.RealTimePercentage = uint8(pct)
	}

	setString("PROCESSOR_FACTORY", &cfg.Processor.Factory)

	if val, ok := l.env("METRICS_ENABLED"); ok {
		b, err := strconv.ParseBool(val)
		if err != nil && firstErr == nil {
			firstErr = errors.WrapInvalid(err, "Loader", "applyEnvOverrides", l.envPrefix+"_METRICS_ENABLED")
		}
		cfg.Metrics.Enabled = b
	}
	setInt("METRICS_PORT", &cfg.Metrics.Port)

	return firstErr
}

// env looks up PREFIX_key and validates its value
func (l *Loader) env(key string) (string, bool) {
	name := l.envPrefix + "_" + key
	val, ok := l.lookupEnv(name)
	if !ok || val == "" {
		return "", false
	}
	if err := checkEnvValue(name, val); err != nil {
		return "", false
	}
	return val, true
}

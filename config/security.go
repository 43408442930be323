package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Limits on what the loader accepts from disk and the environment.
const (
	maxConfigSize = 1 << 20
	maxNesting    = 32
	maxEnvVarLen  = 4096
	maxPathLen    = 4096
)

// checkConfigPath accepts JSON or YAML files. Relative paths must stay
// inside the working directory.
func checkConfigPath(path string) error {
	switch {
	case path == "":
		return fmt.Errorf("empty config path")
	case len(path) > maxPathLen:
		return fmt.Errorf("path too long: %d > %d", len(path), maxPathLen)
	case !filepath.IsAbs(path) && !filepath.IsLocal(path):
		return fmt.Errorf("path escapes working directory: %s", path)
	case !isJSON(path) && !isYAML(path):
		return fmt.Errorf("only JSON or YAML config files allowed: %s", path)
	}
	return nil
}

// readConfigFile reads at most maxConfigSize bytes from a regular file.
func readConfigFile(path string) ([]byte, error) {
	if err := checkConfigPath(path); err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("not a regular file: %s", path)
	}

	data, err := io.ReadAll(io.LimitReader(f, maxConfigSize+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxConfigSize {
		return nil, fmt.Errorf("config file larger than %d bytes", maxConfigSize)
	}
	return data, nil
}

// writeConfigFile writes data readable by the owner only.
func writeConfigFile(path string, data []byte) error {
	if err := checkConfigPath(path); err != nil {
		return err
	}
	if len(data) > maxConfigSize {
		return fmt.Errorf("config data larger than %d bytes", maxConfigSize)
	}
	return os.WriteFile(path, data, 0o600)
}

func checkEnvValue(key, value string) error {
	if len(value) > maxEnvVarLen {
		return fmt.Errorf("%s longer than %d bytes", key, maxEnvVarLen)
	}
	if strings.ContainsRune(value, 0) {
		return fmt.Errorf("null byte in %s", key)
	}
	return nil
}

// checkNesting rejects decoded documents nested deeper than maxNesting.
func checkNesting(v any, depth int) error {
	if depth > maxNesting {
		return fmt.Errorf("nesting deeper than %d", maxNesting)
	}
	switch val := v.(type) {
	case map[string]any:
		for _, child := range val {
			if err := checkNesting(child, depth+1); err != nil {
				return err
			}
		}
	case []any:
		for _, child := range val {
			if err := checkNesting(child, depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}

func isJSON(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".json")
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

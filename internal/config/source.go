package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// source resolves a key from the environment first, then from the config file.
type source struct {
	env  func(string) (string, bool)
	file map[string]string
}

// newSource reads the optional YAML file at path. File keys use the same
// names as the environment variables, in any case:
//
//	openai_api_key: sk-...
//	LOG_LEVEL: debug
func newSource(path string) (source, error) {
	src := source{env: os.LookupEnv, file: map[string]string{}}
	if path == "" {
		return src, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return source{}, fmt.Errorf("read config file %s: %w", path, err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return source{}, fmt.Errorf("parse config file %s: %w", path, err)
	}
	for k, v := range raw {
		if v == nil {
			continue
		}
		src.file[strings.ToUpper(k)] = fmt.Sprint(v)
	}
	return src, nil
}

// lookup returns the value for key and whether it was set anywhere. An empty
// environment value counts as unset so that it falls through to the file.
func (s source) lookup(key string) (string, bool) {
	if v, ok := s.env(key); ok && v != "" {
		return v, true
	}
	v, ok := s.file[key]
	return v, ok
}

func (s source) get(key string) string {
	v, _ := s.lookup(key)
	return v
}

func (s source) getDefault(key, fallback string) string {
	if v := s.get(key); v != "" {
		return v
	}
	return fallback
}

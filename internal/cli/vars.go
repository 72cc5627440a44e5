package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	homedir "github.com/mitchellh/go-homedir"
)

// parseKeyValuePairs turns a repeated "KEY=VALUE" flag's values into a map.
func parseKeyValuePairs(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		idx := strings.IndexByte(p, '=')
		if idx <= 0 {
			return nil, fmt.Errorf("invalid KEY=VALUE pair %q", p)
		}
		out[p[:idx]] = p[idx+1:]
	}
	return out, nil
}

// loadVarFile reads a JSON object of string values from path.
func loadVarFile(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(expanded)
	if err != nil {
		return nil, err
	}
	var out map[string]string
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parsing var file %q: %w", path, err)
	}
	return out, nil
}

// mergeStringMaps layers src over dst, returning a new map; src wins on
// collision.
func mergeStringMaps(dst, src map[string]string) map[string]string {
	out := make(map[string]string, len(dst)+len(src))
	for k, v := range dst {
		out[k] = v
	}
	for k, v := range src {
		out[k] = v
	}
	return out
}

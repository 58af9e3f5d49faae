package config

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// blockedKeys may never appear as a key path segment.
var blockedKeys = []string{"__proto__", "prototype", "constructor"}

// ParseConfigPath splits a dotted key such as "gateway.auth.mode" into its
// segments. Numeric segments index into lists.
func ParseConfigPath(raw string) ([]string, error) {
	if raw == "" {
		return nil, &ConfigError{Message: "empty config path"}
	}
	parts := strings.Split(raw, ".")
	for _, p := range parts {
		switch {
		case p == "":
			return nil, &ConfigError{Message: "config path contains empty segment"}
		case slices.Contains(blockedKeys, p):
			return nil, &ConfigError{Message: "config path contains blocked key: " + p}
		}
	}
	return parts, nil
}

// child returns node[key] for a map, or node[index] for a list.
func child(node any, key string) (any, bool) {
	switch n := node.(type) {
	case map[string]any:
		v, ok := n[key]
		return v, ok
	case []any:
		i, ok := listIndex(n, key)
		if !ok {
			return nil, false
		}
		return n[i], true
	default:
		return nil, false
	}
}

func listIndex(list []any, key string) (int, bool) {
	i, err := strconv.Atoi(key)
	if err != nil || i < 0 || i >= len(list) {
		return 0, false
	}
	return i, true
}

func isContainer(v any) bool {
	switch v.(type) {
	case map[string]any, []any:
		return true
	}
	return false
}

// GetValueAtPath walks root along path.
func GetValueAtPath(root map[string]any, path []string) (any, bool) {
	var node any = root
	for _, key := range path {
		next, ok := child(node, key)
		if !ok {
			return nil, false
		}
		node = next
	}
	return node, true
}

// SetValueAtPath stores value at path. Missing or scalar intermediate map
// entries become maps; list elements can be replaced but lists never grow.
func SetValueAtPath(root map[string]any, path []string, value any) error {
	if len(path) == 0 {
		return &ConfigError{Message: "empty config path"}
	}

	var node any = root
	for depth, key := range path {
		last := depth == len(path)-1
		switch n := node.(type) {
		case map[string]any:
			if last {
				n[key] = value
				return nil
			}
			if !isContainer(n[key]) {
				n[key] = map[string]any{}
			}
			node = n[key]
		case []any:
			i, ok := listIndex(n, key)
			if !ok {
				return &ConfigError{Message: fmt.Sprintf("index %s out of range at %s",
					key, strings.Join(path[:depth], "."))}
			}
			if last {
				n[i] = value
				return nil
			}
			if !isContainer(n[i]) {
				n[i] = map[string]any{}
			}
			node = n[i]
		}
	}
	return nil
}

// UnsetValueAtPath deletes the map entry at path and reports whether there
// was one. List elements cannot be removed this way.
func UnsetValueAtPath(root map[string]any, path []string) bool {
	if len(path) == 0 {
		return false
	}
	parent, ok := GetValueAtPath(root, path[:len(path)-1])
	if !ok {
		return false
	}
	m, ok := parent.(map[string]any)
	if !ok {
		return false
	}
	last := path[len(path)-1]
	if _, ok := m[last]; !ok {
		return false
	}
	delete(m, last)
	return true
}

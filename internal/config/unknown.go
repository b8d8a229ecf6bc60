package config

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/AndreyAkinshin/hilrun/internal/model"
)

// detectUnknownFields compares normalized JSON with the known fields of
// the main Config struct, recursing into nested sections.
func detectUnknownFields(data []byte) []string {
	raw, ok := decodeObject(data)
	if !ok {
		return []string{"internal: failed to re-parse config for unknown field detection"}
	}
	return unknownFields(raw, reflect.TypeOf(Config{}), "")
}

// detectUnknownTaskFields is detectUnknownFields for task configurations.
// Top-level keys starting with "testcases_" are named test-case groups.
func detectUnknownTaskFields(data []byte) []string {
	raw, ok := decodeObject(data)
	if !ok {
		return []string{"internal: failed to re-parse task config for unknown field detection"}
	}

	groups := make(map[string]any)
	rest := make(map[string]any, len(raw))
	for key, v := range raw {
		if strings.HasPrefix(key, model.GroupPrefix) {
			groups[key] = v
			continue
		}
		rest[key] = v
	}

	warnings := unknownFields(rest, reflect.TypeOf(taskFile{}), "")
	caseType := reflect.TypeOf(testCaseFile{})
	for _, key := range sortedKeys(groups) {
		items, _ := groups[key].([]any)
		for i, item := range items {
			warnings = append(warnings, unknownFields(item, caseType, fmt.Sprintf("%s[%d]", key, i))...)
		}
	}
	return warnings
}

func decodeObject(data []byte) (map[string]any, bool) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, false
	}
	return raw, true
}

func unknownFields(v any, t reflect.Type, path string) []string {
	obj, ok := v.(map[string]any)
	if !ok {
		return nil
	}

	var warnings []string
	known := getJSONFields(t)
	for _, key := range sortedKeys(obj) {
		if key == "$schema" && path == "" {
			continue // $schema is explicitly allowed and ignored
		}
		ft, ok := known[key]
		if !ok {
			if path == "" {
				warnings = append(warnings, fmt.Sprintf("unknown field %q at root level (ignored)", key))
			} else {
				warnings = append(warnings, fmt.Sprintf("unknown field %q in %s (ignored)", key, path))
			}
			continue
		}

		child := joinPath(path, key)
		for ft.Kind() == reflect.Ptr {
			ft = ft.Elem()
		}
		switch ft.Kind() {
		case reflect.Struct:
			warnings = append(warnings, unknownFields(obj[key], ft, child)...)
		case reflect.Slice:
			elem := ft.Elem()
			for elem.Kind() == reflect.Ptr {
				elem = elem.Elem()
			}
			if elem.Kind() != reflect.Struct {
				continue
			}
			items, _ := obj[key].([]any)
			for i, item := range items {
				warnings = append(warnings, unknownFields(item, elem, fmt.Sprintf("%s[%d]", child, i))...)
			}
		}
	}
	return warnings
}

// getJSONFields returns the known JSON field names of a struct type mapped
// to their Go types.
func getJSONFields(t reflect.Type) map[string]reflect.Type {
	fields := make(map[string]reflect.Type)
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("json")
		if tag == "" || tag == "-" {
			continue
		}
		name := strings.Split(tag, ",")[0]
		if name != "" {
			fields[name] = field.Type
		}
	}
	return fields
}

func joinPath(parent, key string) string {
	if parent == "" {
		return key
	}
	return parent + "." + key
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

package vocab

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadFile reads a YAML vocabulary file and merges it over the defaults.
// Each vocabulary present in the file replaces the built-in one wholesale.
//
//	choices:
//	  rights:
//	    - {value: cc, label: DDR Creative Commons}
//	variants:
//	  status:
//	    completed: [Done, done]
//	headers:
//	  entity:
//	    facility: [facilities, camp]
func LoadFile(path string) (*Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read vocabulary file: %w", err)
	}
	return Parse(data)
}

// Parse is LoadFile for in-memory YAML.
func Parse(data []byte) (*Set, error) {
	var override Tables
	if err := yaml.Unmarshal(data, &override); err != nil {
		return nil, fmt.Errorf("parse vocabulary: %w", err)
	}

	t := DefaultTables()
	for name, cs := range override.Choices {
		if len(cs) == 0 {
			return nil, fmt.Errorf("vocabulary %q has no choices", name)
		}
		for i, c := range cs {
			if c.Value == "" {
				return nil, fmt.Errorf("vocabulary %q choice %d has empty value", name, i)
			}
		}
		t.Choices[name] = cs
	}
	for name, alts := range override.Variants {
		t.Variants[name] = alts
	}
	for kind, alts := range override.Headers {
		t.Headers[kind] = alts
	}
	return New(t), nil
}

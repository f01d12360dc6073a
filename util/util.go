// Package util contains misc internal utilities.
package util

import (
	"bytes"

	"github.com/BurntSushi/toml"
)

// TOMLParser is a koanf parser for TOML config files
type TOMLParser struct{}

// TOML returns a koanf parser for TOML
func TOML() TOMLParser {
	return TOMLParser{}
}

// Unmarshal parses TOML bytes into a nested map
func (TOMLParser) Unmarshal(b []byte) (map[string]interface{}, error) {
	var out map[string]interface{}
	if err := toml.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Marshal encodes a nested map as TOML
func (TOMLParser) Marshal(o map[string]interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(o); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// AllElementsNumbers returns true if all elements of a string are numbers or
// a decimal point, e.g. "12" or "7.5" but not "7.5fps"
func AllElementsNumbers(str string) bool {
	if str == "" {
		return false
	}
	for _, r := range str {
		if (r < '0' || r > '9') && r != '.' {
			return false
		}
	}
	return true
}

// Package dictionary loads the company and sector reference tables that are
// handed to the extractor as context. The tables are not parsed: their raw
// text is embedded in the prompt as-is.
package dictionary

import (
	"fmt"
	"os"
	"strings"
)

// Set holds the raw text of both reference tables.
type Set struct {
	// Companies lists No., stock code, official name, sector and keywords.
	Companies string
	// Sectors lists No. and sector name.
	Sectors string
}

// Load reads both dictionaries. Any error is fatal for the caller: the
// extractor cannot run without them.
func Load(companiesPath, sectorsPath string) (*Set, error) {
	companies, err := readTable(companiesPath)
	if err != nil {
		return nil, fmt.Errorf("dictionary: companies: %w", err)
	}
	sectors, err := readTable(sectorsPath)
	if err != nil {
		return nil, fmt.Errorf("dictionary: sectors: %w", err)
	}
	return &Set{Companies: companies, Sectors: sectors}, nil
}

func readTable(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	text := strings.TrimPrefix(string(data), "\uFEFF")
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%s is empty", path)
	}
	return text, nil
}

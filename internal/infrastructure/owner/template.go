package owner

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Rep is an ERP sales rep as listed in a mapping template
type Rep struct {
	Code  string `json:"code"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// CRMOwner is a CRM owner as listed in a mapping template
type CRMOwner struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Template is a starting point for a mapping file. Mappings holds the reps
// whose e-mail matched an owner; Unmatched lists the codes left to map.
type Template struct {
	MappingFile
	Unmatched []string   `json:"unmatched_rep_codes"`
	Reps      []Rep      `json:"sales_reps"`
	Owners    []CRMOwner `json:"owners"`
}

// BuildTemplate matches reps to owners by e-mail, case-insensitively
func BuildTemplate(reps []Rep, owners []CRMOwner) Template {
	byEmail := make(map[string]string, len(owners))
	for _, o := range owners {
		if email := strings.ToLower(strings.TrimSpace(o.Email)); email != "" {
			byEmail[email] = o.ID
		}
	}

	t := Template{
		MappingFile: MappingFile{Mappings: make(map[string]string)},
		Unmatched:   make([]string, 0),
		Reps:        reps,
		Owners:      owners,
	}
	for _, rep := range reps {
		code := strings.TrimSpace(rep.Code)
		if code == "" {
			continue
		}
		if id, ok := byEmail[strings.ToLower(strings.TrimSpace(rep.Email))]; ok {
			t.Mappings[code] = id
			continue
		}
		t.Unmatched = append(t.Unmatched, code)
	}
	sort.Strings(t.Unmatched)
	return t
}

// WriteTemplate writes t as indented JSON, creating parent directories
func WriteTemplate(path string, t Template) error {
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return fmt.Errorf("encode mapping template: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create template directory: %w", err)
		}
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

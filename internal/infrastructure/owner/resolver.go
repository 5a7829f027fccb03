// Package owner maps ERP sales rep codes to CRM owner ids using a JSON
// mapping file.
package owner

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/erp/crmsync/internal/domain/integration"
)

// MappingFile is the on-disk format of the sales rep mapping
type MappingFile struct {
	DefaultOwnerID *string           `json:"default_owner_id"`
	Mappings       map[string]string `json:"mappings"`
}

// Resolver is an immutable rep code to owner id lookup
type Resolver struct {
	defaultOwner string
	owners       map[string]string
}

var _ integration.OwnerResolver = (*Resolver)(nil)

// NewResolver builds a resolver from a mapping. Codes are matched trimmed
// and case-insensitively.
func NewResolver(m MappingFile) *Resolver {
	r := &Resolver{owners: make(map[string]string, len(m.Mappings))}
	for code, ownerID := range m.Mappings {
		code, ownerID = normalizeCode(code), strings.TrimSpace(ownerID)
		if code == "" || ownerID == "" {
			continue
		}
		r.owners[code] = ownerID
	}
	if m.DefaultOwnerID != nil {
		r.defaultOwner = strings.TrimSpace(*m.DefaultOwnerID)
	}
	return r
}

// Load reads a mapping file. A missing file yields a resolver that assigns
// no owners; a malformed file is an error.
func Load(path string, logger *zap.Logger) (*Resolver, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Warn("Sales rep mapping file not found, deals will be unassigned", zap.String("path", path))
		return NewResolver(MappingFile{}), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read sales rep mapping: %w", err)
	}

	var m MappingFile
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse sales rep mapping %s: %w", path, err)
	}
	r := NewResolver(m)
	logger.Info("Loaded sales rep mapping",
		zap.String("path", path),
		zap.Int("mappings", r.Len()),
		zap.Bool("default_owner", r.defaultOwner != ""),
	)
	return r, nil
}

// ResolveOwner returns the owner mapped to repCode, else the default owner.
// A blank rep code never resolves.
func (r *Resolver) ResolveOwner(repCode string) (string, bool) {
	code := normalizeCode(repCode)
	if code == "" {
		return "", false
	}
	if ownerID, ok := r.owners[code]; ok {
		return ownerID, true
	}
	if r.defaultOwner != "" {
		return r.defaultOwner, true
	}
	return "", false
}

// Len returns the number of explicit mappings
func (r *Resolver) Len() int {
	return len(r.owners)
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

package packager

import (
	"fmt"
	"strings"
	"sync"

	"github.com/openarchive/preserv-backend/internal/common"
	"github.com/openarchive/preserv-backend/internal/domain"
)

// Crosswalk converts an item snapshot into one metadata section of a
// manifest. Implementations must be deterministic: the same item snapshot
// always yields the same bytes, or AIP checksum stability breaks.
type Crosswalk interface {
	Name() string
	// MDType is the METS MDTYPE attribute value; "OTHER" makes the writer
	// record the crosswalk name as OTHERMDTYPE.
	MDType() string
	CanDisseminate(item *domain.Item) bool
	Disseminate(item *domain.Item) ([]byte, error)
}

// Registry holds the configured crosswalk plugins by name.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]Crosswalk
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Crosswalk)}
}

// Register adds or replaces a crosswalk under its own name.
func (r *Registry) Register(cw Crosswalk) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byName[cw.Name()] = cw
}

// Lookup resolves a configured crosswalk name. A missing plugin is a
// configuration error, fatal to manifest generation.
func (r *Registry) Lookup(name string) (Crosswalk, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cw, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", common.ErrPluginMissing, name)
	}
	return cw, nil
}

// SectionConfig names the crosswalks to run per manifest section, each a
// comma-and-or-space-separated list.
type SectionConfig struct {
	Descriptive string
	Technical   string
	Rights      string
	Provenance  string
	Source      string
}

// SplitNames parses a crosswalk name list.
func SplitNames(s string) []string {
	var names []string
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' || r == '\t' }) {
		if part != "" {
			names = append(names, part)
		}
	}
	return names
}

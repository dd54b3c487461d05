package domain

import (
	"context"
	"io"
	"time"
)

// MetadataValue is one qualified metadata field of an item snapshot.
type MetadataValue struct {
	Schema    string `json:"schema"`
	Element   string `json:"element"`
	Qualifier string `json:"qualifier,omitempty"`
	Language  string `json:"language,omitempty"`
	Value     string `json:"value"`
}

// Bundle groups an item's content bitstreams by name (ORIGINAL, LICENSE, ...).
type Bundle struct {
	Name       string      `json:"name"`
	Bitstreams []Bitstream `json:"bitstreams"`
}

// Item is a snapshot of a versioned repository item, loaded from the host
// platform through ItemRepository. It is a plain value: mutations go back
// through the repository, never through the snapshot.
type Item struct {
	ID           uint64          `json:"id"`
	Handle       string          `json:"handle,omitempty"`
	ParentHandle string          `json:"parent_handle,omitempty"`
	SubmitterID  uint64          `json:"submitter_id"`
	Archived     bool            `json:"archived"`
	Withdrawn    bool            `json:"withdrawn"`
	Discoverable bool            `json:"discoverable"`
	LastModified time.Time       `json:"last_modified"`
	Metadata     []MetadataValue `json:"metadata,omitempty"`
	Bundles      []Bundle        `json:"bundles,omitempty"`
}

// Field returns every metadata value matching schema.element.qualifier.
// An empty qualifier matches only unqualified fields.
func (i *Item) Field(schema, element, qualifier string) []string {
	var out []string
	for _, m := range i.Metadata {
		if m.Schema == schema && m.Element == element && m.Qualifier == qualifier {
			out = append(out, m.Value)
		}
	}
	return out
}

// Title returns the item's first dc.title value, or "" if none is set.
func (i *Item) Title() string {
	if vals := i.Field("dc", "title", ""); len(vals) > 0 {
		return vals[0]
	}
	return ""
}

// BitstreamIDs returns the ids of every content bitstream across all bundles.
func (i *Item) BitstreamIDs() []uint64 {
	var ids []uint64
	for _, b := range i.Bundles {
		for _, bs := range b.Bitstreams {
			ids = append(ids, bs.ID)
		}
	}
	return ids
}

// Actor identifies the caller of a privileged versioning operation.
type Actor struct {
	ID uint64
}

// ItemRepository is the collaborator interface onto the host platform's
// item model. The versioning subsystem never persists items itself.
type ItemRepository interface {
	Find(ctx context.Context, id uint64) (*Item, error)
	// CreateWorkingCopy clones an item into the submitter's workspace and
	// returns the new unarchived snapshot.
	CreateWorkingCopy(ctx context.Context, from *Item) (*Item, error)
	SetDiscoverable(ctx context.Context, id uint64, discoverable bool) error
	// RemoveFromCollections detaches the item from every collection that
	// holds it, which deletes the item on the host platform.
	RemoveFromCollections(ctx context.Context, id uint64) error
}

// AccessControl answers permission questions and propagates resource
// policies from an item to artifacts derived from it.
type AccessControl interface {
	IsAdmin(ctx context.Context, actor Actor, item *Item) (bool, error)
	CanWrite(ctx context.Context, actor Actor, item *Item) (bool, error)
	InheritPolicies(ctx context.Context, item *Item, bitstreamID uint64) error
}

// PackageIngester re-materializes an archival manifest back into an item,
// replacing its content in place. Used only by the restore path.
type PackageIngester interface {
	Replace(ctx context.Context, target *Item, manifest io.Reader, params map[string]string) (*Item, error)
}

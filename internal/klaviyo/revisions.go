package klaviyo

import (
	"sort"

	"github.com/ignite/klaviyo-webflow/internal/pkg/logger"
)

// LatestAlias names the newest supported revision.
const LatestAlias = "latest"

// DefaultEndpoint is the client subscriptions endpoint shared by all
// supported revisions.
const DefaultEndpoint = "https://a.klaviyo.com/client/subscriptions/"

// Revision is a dated API schema version and the endpoint that serves it.
type Revision struct {
	Revision string
	Endpoint string
	Features []string
}

// Revisions maps version labels to revisions. The "latest" alias points at
// one of the dated entries.
type Revisions struct {
	latest  string
	entries map[string]Revision
}

// DefaultRevisions returns the built-in revision table.
func DefaultRevisions() *Revisions {
	return NewRevisions("2025-04-15", map[string]Revision{
		"2025-04-15": {
			Revision: "2025-04-15",
			Endpoint: DefaultEndpoint,
			Features: []string{"email", "sms", "customProps", "phoneValidation"},
		},
		"2023-10-15": {
			Revision: "2023-10-15",
			Endpoint: DefaultEndpoint,
			Features: []string{"email", "sms", "customProps"},
		},
	})
}

// NewRevisions builds a table. latest must name a key of entries.
func NewRevisions(latest string, entries map[string]Revision) *Revisions {
	copied := make(map[string]Revision, len(entries))
	for label, rev := range entries {
		if rev.Revision == "" {
			rev.Revision = label
		}
		if rev.Endpoint == "" {
			rev.Endpoint = DefaultEndpoint
		}
		copied[label] = rev
	}
	return &Revisions{latest: latest, entries: copied}
}

// With returns a copy of the table with rev added under label. Passing
// LatestAlias as the label also repoints the alias.
func (r *Revisions) With(label string, rev Revision) *Revisions {
	entries := make(map[string]Revision, len(r.entries)+1)
	for k, v := range r.entries {
		entries[k] = v
	}
	latest := r.latest
	if label == LatestAlias {
		if rev.Revision == "" {
			return NewRevisions(latest, entries)
		}
		label = rev.Revision
		latest = rev.Revision
	}
	entries[label] = rev
	return NewRevisions(latest, entries)
}

// Latest returns the revision behind the alias.
func (r *Revisions) Latest() Revision {
	return r.entries[r.latest]
}

// Labels returns the dated labels in ascending order.
func (r *Revisions) Labels() []string {
	labels := make([]string, 0, len(r.entries))
	for label := range r.entries {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels
}

// Resolve maps a version label to a revision. An empty label or the alias
// resolves to latest; an unknown label logs a warning and falls back to latest.
func (r *Revisions) Resolve(label string) Revision {
	if label == "" || label == LatestAlias {
		return r.Latest()
	}
	if rev, ok := r.entries[label]; ok {
		return rev
	}
	logger.Component("klaviyo").Warn("API version not found, using latest",
		"requested", label, "latest", r.latest)
	return r.Latest()
}

package channels

import (
	"context"
	"fmt"
)

// ScopeKey addresses one catalog scope. Scope is empty for datasources.
type ScopeKey struct {
	Origin   Origin `json:"origin"`
	OriginID string `json:"originId"`
	Scope    string `json:"scope,omitempty"`
}

func (k ScopeKey) String() string {
	if k.Scope == "" {
		return fmt.Sprintf("%s:%s", k.Origin, k.OriginID)
	}

	return fmt.Sprintf("%s:%s/%s", k.Origin, k.OriginID, k.Scope)
}

// Channel is one catalog entry.
type Channel struct {
	Name     string `json:"name"`
	DataType string `json:"dataType,omitempty"`
}

// Scope is the catalog view of one data scope (or datasource).
type Scope struct {
	Key ScopeKey `json:"key"`
	// DefaultTags is the scope's default tag filter. Always empty for datasources.
	DefaultTags map[string]string `json:"defaultTags,omitempty"`
	Channels    []Channel         `json:"channels"`
}

// Lookup finds a channel by exact, case-sensitive name.
func (s *Scope) Lookup(name string) (Channel, bool) {
	for _, ch := range s.Channels {
		if ch.Name == name {
			return ch, true
		}
	}

	return Channel{}, false
}

// Catalog is the platform lookup service for channel existence and scope default tags.
// Implementations return an error matching ErrScopeNotFound when the scope does not exist.
type Catalog interface {
	Scope(ctx context.Context, key ScopeKey) (*Scope, error)
}

// Resolved is a catalog entry that has already been looked up. Refs built from it skip the
// catalog round trip.
type Resolved struct {
	Origin      Origin
	OriginID    string
	Scope       string
	Channel     Channel
	DefaultTags map[string]string
}

// MergePolicy decides what happens when an explicit tag collides with a scope default.
type MergePolicy int

const (
	// MergeOverride lets explicit tags win over scope defaults.
	MergeOverride MergePolicy = iota
	// MergeStrict fails with TagConflictError when an explicit tag disagrees with a default.
	MergeStrict
)

// MergeTags merges scope defaults with explicit tags. Keys only in one map are kept as is.
// Equal values on both sides never conflict.
func MergeTags(channel string, defaults, explicit map[string]string, policy MergePolicy) (map[string]string, error) {
	if len(defaults) == 0 && len(explicit) == 0 {
		return nil, nil
	}

	out := make(map[string]string, len(defaults)+len(explicit))
	for k, v := range defaults {
		out[k] = v
	}

	for k, v := range explicit {
		if d, ok := defaults[k]; ok && d != v && policy == MergeStrict {
			return nil, &TagConflictError{Channel: channel, Key: k, Default: d, Explicit: v}
		}
		out[k] = v
	}

	return out, nil
}

// FromResolved builds a ref from an already resolved catalog entry, merging its scope defaults
// with tags under policy.
func FromResolved(r Resolved, tags map[string]string, policy MergePolicy) (ChannelRef, error) {
	ref := ChannelRef{Origin: r.Origin, OriginID: r.OriginID, Scope: r.Scope, Name: r.Channel.Name}
	if err := ref.Validate(); err != nil {
		return ChannelRef{}, err
	}

	defaults := r.DefaultTags
	if !r.Origin.Scoped() {
		defaults = nil
	}

	merged, err := MergeTags(ref.Name, defaults, tags, policy)
	if err != nil {
		return ChannelRef{}, err
	}
	ref.Tags = merged

	return ref, nil
}

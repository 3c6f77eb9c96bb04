// Package channels turns channel identifiers (origin, identifiers, scope, tags) into canonical
// channel references, consulting the platform catalog for existence and scope default tags.
package channels

import (
	"fmt"
	"sort"
	"strings"
)

// Origin is the kind of resource a channel belongs to.
type Origin string

const (
	OriginAsset      Origin = "asset"
	OriginRun        Origin = "run"
	OriginDatasource Origin = "datasource"
)

// Valid reports whether o is a known origin.
func (o Origin) Valid() bool {
	switch o {
	case OriginAsset, OriginRun, OriginDatasource:
		return true
	default:
		return false
	}
}

// Scoped reports whether channels of this origin live in a data scope with default tags.
func (o Origin) Scoped() bool {
	return o == OriginAsset || o == OriginRun
}

// ChannelRef identifies one channel. It is a value: constructors copy the tag map and nothing
// mutates a ref after construction.
//
// OriginParam is set instead of OriginID when the origin identifier is a module parameter
// placeholder that is bound at application time.
type ChannelRef struct {
	Origin      Origin            `json:"origin"`
	OriginID    string            `json:"originId,omitempty"`
	OriginParam string            `json:"originParam,omitempty"`
	Scope       string            `json:"scope,omitempty"`
	Name        string            `json:"name"`
	Tags        map[string]string `json:"tags,omitempty"`
}

// AssetChannel builds an unresolved asset channel ref. Scope default tags are not applied;
// use a Resolver for that.
func AssetChannel(assetRID, scope, name string, tags map[string]string) ChannelRef {
	return ChannelRef{Origin: OriginAsset, OriginID: assetRID, Scope: scope, Name: name, Tags: cloneTags(tags)}
}

// RunChannel builds an unresolved run channel ref.
func RunChannel(runRID, scope, name string, tags map[string]string) ChannelRef {
	return ChannelRef{Origin: OriginRun, OriginID: runRID, Scope: scope, Name: name, Tags: cloneTags(tags)}
}

// DatasourceChannel builds a datasource channel ref. Datasources have no scope.
func DatasourceChannel(datasourceRID, name string, tags map[string]string) ChannelRef {
	return ChannelRef{Origin: OriginDatasource, OriginID: datasourceRID, Name: name, Tags: cloneTags(tags)}
}

// Validate checks the ref is structurally complete.
func (c ChannelRef) Validate() error {
	if !c.Origin.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidOrigin, c.Origin)
	}

	if c.OriginID == "" && c.OriginParam == "" {
		return fmt.Errorf("%w: %s channel %q has no origin identifier", ErrInvalidRef, c.Origin, c.Name)
	}

	if c.OriginID != "" && c.OriginParam != "" {
		return fmt.Errorf("%w: channel %q has both an origin identifier and a parameter", ErrInvalidRef, c.Name)
	}

	if c.Name == "" {
		return fmt.Errorf("%w: channel name is required", ErrInvalidRef)
	}

	if c.Origin.Scoped() && c.Scope == "" {
		return fmt.Errorf("%w: %s channel %q requires a data scope", ErrInvalidRef, c.Origin, c.Name)
	}

	if !c.Origin.Scoped() && c.Scope != "" {
		return fmt.Errorf("%w: datasource channel %q cannot have a data scope", ErrInvalidRef, c.Name)
	}

	return nil
}

// Parametrized reports whether the origin identifier is still a placeholder.
func (c ChannelRef) Parametrized() bool {
	return c.OriginParam != ""
}

// Bind returns a copy with the placeholder replaced by originID.
func (c ChannelRef) Bind(originID string) ChannelRef {
	out := c
	out.OriginID = originID
	out.OriginParam = ""
	out.Tags = cloneTags(c.Tags)

	return out
}

// WithTags returns a copy with tags merged over the current tags.
func (c ChannelRef) WithTags(tags map[string]string) ChannelRef {
	out := c
	out.Tags = cloneTags(c.Tags)

	for k, v := range tags {
		if out.Tags == nil {
			out.Tags = make(map[string]string, len(tags))
		}
		out.Tags[k] = v
	}

	return out
}

// Equal reports structural equality. A nil and an empty tag map are equal.
func (c ChannelRef) Equal(o ChannelRef) bool {
	if c.Origin != o.Origin || c.OriginID != o.OriginID || c.OriginParam != o.OriginParam ||
		c.Scope != o.Scope || c.Name != o.Name || len(c.Tags) != len(o.Tags) {
		return false
	}

	for k, v := range c.Tags {
		if ov, ok := o.Tags[k]; !ok || ov != v {
			return false
		}
	}

	return true
}

// Value is the canonical encoding used for hashing and serialization.
func (c ChannelRef) Value() map[string]any {
	v := map[string]any{
		"origin": string(c.Origin),
		"name":   c.Name,
	}

	if c.OriginParam != "" {
		v["originParam"] = c.OriginParam
	} else {
		v["originId"] = c.OriginID
	}

	if c.Scope != "" {
		v["scope"] = c.Scope
	}

	if len(c.Tags) > 0 {
		tags := make(map[string]any, len(c.Tags))
		for k, t := range c.Tags {
			tags[k] = t
		}
		v["tags"] = tags
	}

	return v
}

func (c ChannelRef) String() string {
	id := c.OriginID
	if c.OriginParam != "" {
		id = "$" + c.OriginParam
	}

	var b strings.Builder

	fmt.Fprintf(&b, "%s:%s", c.Origin, id)
	if c.Scope != "" {
		fmt.Fprintf(&b, "/%s", c.Scope)
	}
	fmt.Fprintf(&b, "/%s", c.Name)

	if len(c.Tags) > 0 {
		keys := make([]string, 0, len(c.Tags))
		for k := range c.Tags {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		pairs := make([]string, len(keys))
		for i, k := range keys {
			pairs[i] = k + "=" + c.Tags[k]
		}
		fmt.Fprintf(&b, "{%s}", strings.Join(pairs, ","))
	}

	return b.String()
}

func cloneTags(tags map[string]string) map[string]string {
	if len(tags) == 0 {
		return nil
	}

	out := make(map[string]string, len(tags))
	for k, v := range tags {
		out[k] = v
	}

	return out
}

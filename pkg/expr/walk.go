package expr

import (
	"sort"

	"github.com/ethpandaops/seriesgraph/pkg/channels"
)

// Walk visits n and its descendants in pre-order. Returning false from fn skips the children
// of the current node.
func Walk(n Node, fn func(Node) bool) {
	if n == nil || !fn(n) {
		return
	}

	for _, c := range Children(n) {
		Walk(c, fn)
	}
}

// Rewrite rebuilds n bottom-up. For every node, fn may return a replacement (and true), in which
// case the replacement is used as is and its subtree is not visited. Untouched subtrees are
// shared with the input.
func Rewrite(n Node, fn func(Node) (Node, bool)) Node {
	out, _ := rewrite(n, fn)
	return out
}

func rewrite(n Node, fn func(Node) (Node, bool)) (Node, bool) {
	if replacement, ok := fn(n); ok {
		return replacement, true
	}

	children := Children(n)
	if len(children) == 0 {
		return n, false
	}

	changed := false
	rewritten := make([]Node, len(children))
	for i, c := range children {
		var childChanged bool
		rewritten[i], childChanged = rewrite(c, fn)
		changed = changed || childChanged
	}

	if !changed {
		return n, false
	}

	return withChildren(n, rewritten), true
}

// Channels returns the distinct channels read by n, ordered by their string form.
func Channels(n Node) []channels.ChannelRef {
	seen := map[string]channels.ChannelRef{}

	Walk(n, func(node Node) bool {
		if leaf, ok := node.(Leaf); ok {
			seen[leaf.Channel.String()] = leaf.Channel
		}
		return true
	})

	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]channels.ChannelRef, len(keys))
	for i, k := range keys {
		out[i] = seen[k]
	}

	return out
}

// Variables returns the distinct series placeholders in n, sorted.
func Variables(n Node) []string {
	return collectNames(n, KindVariable)
}

// References returns the distinct context references in n, sorted.
func References(n Node) []string {
	return collectNames(n, KindReference)
}

func collectNames(n Node, kind NodeKind) []string {
	seen := map[string]bool{}

	Walk(n, func(node Node) bool {
		switch v := node.(type) {
		case Variable:
			if kind == KindVariable {
				seen[v.Name] = true
			}
		case Reference:
			if kind == KindReference {
				seen[v.Name] = true
			}
		}
		return true
	})

	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)

	return out
}

// Size is the number of nodes in n.
func Size(n Node) int {
	count := 0

	Walk(n, func(Node) bool {
		count++
		return true
	})

	return count
}

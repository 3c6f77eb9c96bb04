package expr

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/seriesgraph/pkg/channels"
)

func TestChannelsAndVariables(t *testing.T) {
	w, x, _, _ := quaternion()

	n := mustNode(t, w.Times(x).Plus(w).Minus(Var("b")).Plus(Var("a")).Times(Ref("ctx")))

	refs := Channels(n)
	require.Len(t, refs, 2)
	assert.Equal(t, "attitude_quaternion.q1", refs[0].Name)
	assert.Equal(t, "attitude_quaternion.q2", refs[1].Name)

	assert.Equal(t, []string{"a", "b"}, Variables(n))
	assert.Equal(t, []string{"ctx"}, References(n))
	assert.Equal(t, 11, Size(n))
}

func TestRewrite_SharesUntouchedSubtrees(t *testing.T) {
	w, x, _, _ := quaternion()
	n := mustNode(t, w.Plus(Var("v")))

	same := Rewrite(n, func(Node) (Node, bool) { return nil, false })
	assert.True(t, Equal(n, same))

	replaced := Rewrite(n, func(node Node) (Node, bool) {
		if v, ok := node.(Variable); ok && v.Name == "v" {
			return mustNode(t, x), true
		}
		return nil, false
	})

	assert.True(t, Equal(replaced, mustNode(t, w.Plus(x))))
	assert.Equal(t, []string{"v"}, Variables(n))
}

type stubResolver struct {
	calls int
	err   error
}

func (s *stubResolver) Resolve(_ context.Context, ref channels.ChannelRef) (channels.ChannelRef, error) {
	s.calls++

	if s.err != nil {
		return channels.ChannelRef{}, s.err
	}

	return ref.WithTags(map[string]string{"vehicle": "v1"}), nil
}

func TestResolveChannels(t *testing.T) {
	w, x, _, _ := quaternion()
	r := &stubResolver{}

	resolved, err := w.Times(x).Plus(w).Resolve(context.Background(), r)
	require.NoError(t, err)
	assert.Equal(t, 2, r.calls)

	for _, ref := range Channels(mustNode(t, resolved)) {
		assert.Equal(t, map[string]string{"vehicle": "v1"}, ref.Tags)
	}

	failing := &stubResolver{err: errors.New("catalog down")}
	_, err = w.Resolve(context.Background(), failing)
	require.Error(t, err)
}

package slug

import (
	"testing"

	"github.com/mr-tron/base58"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stacnav/internal/uri"
)

const root = "https://catalog.example/root/catalog.json"

func newTestCodec(t *testing.T) (*Codec, *logtest.Hook) {
	t.Helper()
	r, err := uri.NewResolver(root)
	require.NoError(t, err)
	logger, hook := logtest.NewNullLogger()
	return NewCodec(r, logger), hook
}

func TestRoundTrip(t *testing.T) {
	c, hook := newTestCodec(t)

	for _, u := range []string{
		root,
		"https://catalog.example/root/collections/sentinel/collection.json",
		"https://catalog.example/root/items/a.json#10.5/-3.2/7",
		"https://catalog.example/other/place.json",
		"https://catalog.example/root/search.json?limit=10",
		"https://other.example/x",
	} {
		token := c.Slugify(u)
		got, err := c.DecodeStrict(token)
		require.NoError(t, err, u)
		assert.Equal(t, u, got)
		assert.Equal(t, u, c.Decode(token))
	}
	assert.Empty(t, hook.AllEntries())
}

func TestRoundTrip_SameHostnameOtherOrigin(t *testing.T) {
	c, hook := newTestCodec(t)
	r, err := uri.NewResolver(root)
	require.NoError(t, err)

	for _, u := range []string{
		"http://catalog.example/root/a.json",
		"https://catalog.example:8443/root/a.json",
		"https://CATALOG.example/root/a.json",
		"https://user@catalog.example/root/a.json",
		"https://catalog.example/root//a.json",
		"https://catalog.example/root/sub/../a.json",
		"https://catalog.example",
		"https://catalog.example/root/a:b.json",
	} {
		want, err := r.ResolveRoot(u)
		require.NoError(t, err, u)
		assert.Equal(t, want, c.Decode(c.Slugify(u)), u)
	}
	assert.Empty(t, hook.AllEntries())

	// distinct origins never share a slug
	assert.NotEqual(t,
		c.Slugify("https://catalog.example/root/a.json"),
		c.Slugify("https://catalog.example:8443/root/a.json"))
}

func TestSlugify_Deterministic(t *testing.T) {
	c, _ := newTestCodec(t)
	u := "https://catalog.example/root/sub/item.json"
	assert.Equal(t, c.Slugify(u), c.Slugify(u))
	assert.Equal(t, base58.Encode([]byte("sub/item.json")), c.Slugify(u))
}

func TestSlugify_CrossHostCarriesAbsoluteURI(t *testing.T) {
	c, _ := newTestCodec(t)
	b, err := base58.Decode(c.Slugify("https://other.example/x"))
	require.NoError(t, err)
	assert.Equal(t, "https://other.example/x", string(b))
}

func TestDecode_FallsBackToRoot(t *testing.T) {
	tests := []struct {
		name  string
		token string
	}{
		{"invalid alphabet", "not-valid-base58!!!"},
		{"invalid utf-8", base58.Encode([]byte{0xff, 0xfe, 0xfd})},
		{"unresolvable", base58.Encode([]byte("http://[::1"))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, hook := newTestCodec(t)

			_, err := c.DecodeStrict(tt.token)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrDecodeFailure)

			assert.Equal(t, root, c.Decode(tt.token))
			require.Len(t, hook.AllEntries(), 1)
			assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
		})
	}
}

func TestDecode_EmptyTokenIsRoot(t *testing.T) {
	c, hook := newTestCodec(t)
	assert.Equal(t, root, c.Decode(""))
	assert.Empty(t, hook.AllEntries())
}

func TestPathAndDecodeAll(t *testing.T) {
	c, _ := newTestCodec(t)
	a := "https://catalog.example/root/a/catalog.json"
	b := "https://catalog.example/root/a/b/item.json"

	p := c.Path(a, b)
	assert.Equal(t, c.Slugify(a)+"/"+c.Slugify(b), p)
	assert.Equal(t, []string{a, b}, c.DecodeAll([]string{c.Slugify(a), c.Slugify(b)}))
}

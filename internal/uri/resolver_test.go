package uri

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const root = "https://catalog.example/root/catalog.json"

func newTestResolver(t *testing.T) *Resolver {
	t.Helper()
	r, err := NewResolver(root)
	require.NoError(t, err)
	return r
}

func TestNewResolver_RejectsRelativeRoot(t *testing.T) {
	_, err := NewResolver("catalog.json")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidURI))
}

func TestResolve(t *testing.T) {
	r := newTestResolver(t)

	tests := []struct {
		name string
		href string
		base string
		want string
	}{
		{"absolute passthrough", "https://other.example/x.json", "", "https://other.example/x.json"},
		{"sibling", "sub/item.json", "", "https://catalog.example/root/sub/item.json"},
		{"parent", "../up.json", "", "https://catalog.example/up.json"},
		{"empty is root", "", "", root},
		{"custom base", "item.json", "https://catalog.example/a/b/collection.json", "https://catalog.example/a/b/item.json"},
		{"fragment kept", "item.json#x", "", "https://catalog.example/root/item.json#x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Resolve(tt.href, tt.base)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolve_InvalidReference(t *testing.T) {
	r := newTestResolver(t)

	_, err := r.ResolveRoot("http://[::1")
	require.Error(t, err)

	var ie *InvalidURIError
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, "http://[::1", ie.Ref)
	assert.True(t, errors.Is(err, ErrInvalidURI))
}

func TestResolve_RelativeBaseRejected(t *testing.T) {
	r := newTestResolver(t)
	_, err := r.Resolve("x.json", "relative/base.json")
	assert.ErrorIs(t, err, ErrInvalidURI)
}

func TestMakeRelative(t *testing.T) {
	r := newTestResolver(t)

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"cross host passthrough", "https://other.example/x", "https://other.example/x"},
		{"root itself", root, "catalog.json"},
		{"child", "https://catalog.example/root/sub/item.json", "sub/item.json"},
		{"outside root dir", "https://catalog.example/elsewhere/c.json", "../elsewhere/c.json"},
		{"fragment travels", "https://catalog.example/root/sub/item.json#12/3", "sub/item.json#12/3"},
		{"query travels", "https://catalog.example/root/search.json?page=2", "search.json?page=2"},
		{"directory with slash", "https://catalog.example/root/sub/", "sub/"},
		{"root directory with slash", "https://catalog.example/root/", "./"},
		{"root directory without slash", "https://catalog.example/root", "../root"},
		{"other scheme", "http://catalog.example/root/a.json", "http://catalog.example/root/a.json"},
		{"other port", "https://catalog.example:8443/root/a.json", "https://catalog.example:8443/root/a.json"},
		{"host casing", "https://CATALOG.example/root/a.json", "https://CATALOG.example/root/a.json"},
		{"userinfo", "https://user@catalog.example/root/a.json", "https://user@catalog.example/root/a.json"},
		{"empty segment", "https://catalog.example/root//a.json", "https://catalog.example/root//a.json"},
		{"dot segment", "https://catalog.example/root/sub/../a.json", "https://catalog.example/root/sub/../a.json"},
		{"empty path", "https://catalog.example", "https://catalog.example"},
		{"colon in first segment", "https://catalog.example/root/a:b.json", "./a:b.json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.MakeRelative(tt.in))
		})
	}
}

func TestMakeRelative_ResolvesBack(t *testing.T) {
	r := newTestResolver(t)

	for _, u := range []string{
		root,
		"https://catalog.example/root/sub/item.json",
		"https://catalog.example/elsewhere/c.json",
		"https://catalog.example/root/sub/item.json#frag",
		"https://catalog.example/root/search.json?page=2",
		"https://catalog.example/root/sub/",
		"https://catalog.example/root/",
		"https://catalog.example/root",
		"https://catalog.example/",
	} {
		got, err := r.ResolveRoot(r.MakeRelative(u))
		require.NoError(t, err)
		assert.Equal(t, u, got, "round trip of %s", u)
	}
}

func TestMakeRelative_RootAtHostRoot(t *testing.T) {
	r, err := NewResolver("https://catalog.example/catalog.json")
	require.NoError(t, err)

	assert.Equal(t, "collections/a.json", r.MakeRelative("https://catalog.example/collections/a.json"))
	assert.Equal(t, "./", r.MakeRelative("https://catalog.example/"))
}

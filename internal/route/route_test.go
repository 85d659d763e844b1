package route

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSelected(t *testing.T) {
	b := NewBridge(nil)
	cases := map[string]string{
		"/watershed/42":           "42",
		"/watershed/ws-7":         "ws-7",
		"/watershed/a%20b":        "a b",
		"/watershed/42?tab=flows": "42",
		"":                        "",
		"/":                       "",
		"/watershed":              "",
		"/watershed/":             "",
		"/watershed/42/extra":     "",
		"/watershed/a%2Fb":        "",
		"/other/42":               "",
		"/watershed/%zz":          "",
	}
	for path, want := range cases {
		assert.Equal(t, want, b.Selected(path), "path %q", path)
		assert.Equal(t, want, b.Selected(path), "path %q is deterministic", path)
	}
}

func TestPathForRoundTrip(t *testing.T) {
	b := NewBridge(nil)
	for _, id := range []string{"42", "ws-7", "a b", "é"} {
		assert.Equal(t, id, b.Selected(b.PathFor(id)), id)
	}
	assert.Equal(t, "/watershed/42", b.PathFor("42"))
}

func TestClickNavigates(t *testing.T) {
	var got []string
	b := NewBridge(func(p string) { got = append(got, p) })
	b.Click("42")
	b.Click("")
	assert.Equal(t, []string{"/watershed/42"}, got)

	NewBridge(nil).Click("42")
}

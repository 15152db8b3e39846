package router

import "testing"

func TestTokenizePrefix(t *testing.T) {
	cases := []struct {
		text string
		name string
		args string
		ok   bool
	}{
		{"!get Gmail", "get", "Gmail", true},
		{"!list", "list", "", true},
		{"!NEW My Service", "new", "My Service", true},
		{"  !delete  Bank  ", "delete", "Bank", true},
		{"!", "", "", false},
		{"hello", "", "", false},
		{"get Gmail", "", "", false},
		{"", "", "", false},
	}
	for _, tc := range cases {
		name, args, ok := tokenizePrefix(tc.text, "!")
		if name != tc.name || args != tc.args || ok != tc.ok {
			t.Errorf("tokenizePrefix(%q) = (%q, %q, %v), want (%q, %q, %v)",
				tc.text, name, args, ok, tc.name, tc.args, tc.ok)
		}
	}
}

func TestNormalizeHandlerName(t *testing.T) {
	cases := []struct{ in, want string }{
		{"/download", "download"},
		{"My Handler", "my_handler"},
		{"", "unknown"},
		{"  ", "unknown"},
	}
	for _, tc := range cases {
		if got := normalizeHandlerName(tc.in); got != tc.want {
			t.Errorf("normalizeHandlerName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

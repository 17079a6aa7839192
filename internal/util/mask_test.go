package util

import "testing"

func TestMaskEmail(t *testing.T) {
	cases := map[string]string{
		"":                   "",
		"Box@Example.com":    "b…@e….com",
		"a@b.co":             "a@b.co",
		" padded@domain.io ": "p…@d….io",
		"@domain.io":         "@…o",
		"not-an-email":       "n…l",
		"ab":                 "***",
	}
	for in, want := range cases {
		if got := MaskEmail(in); got != want {
			t.Errorf("MaskEmail(%q) = %q, want %q", in, got, want)
		}
	}
}

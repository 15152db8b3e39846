package convo

import "testing"

func TestTokens(t *testing.T) {
	cases := []struct {
		input string
		fn    func(string) bool
		want  bool
	}{
		{"cancel", IsCancel, true},
		{"  CANCEL  ", IsCancel, true},
		{"/cancel", IsCancel, true},
		{"cancellation", IsCancel, false},
		{"skip", IsSkip, true},
		{"N/A", IsSkip, true},
		{"-", IsSkip, true},
		{"skipped", IsSkip, false},
		{"yes", IsAffirmative, true},
		{"Y", IsAffirmative, true},
		{"✅", IsAffirmative, true},
		{"yeah", IsAffirmative, false},
		{"no", IsNegative, true},
		{"❌", IsNegative, true},
		{"nope", IsNegative, false},
	}
	for _, tc := range cases {
		if got := tc.fn(tc.input); got != tc.want {
			t.Errorf("token %q: got %v, want %v", tc.input, got, tc.want)
		}
	}
}

package matching

import "testing"

func TestNormalize(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"case folds", "ACME Pharma", "acme pharma"},
		{"strips punctuation", "Acme, Pharma & Co.", "acme pharma"},
		{"strips legal suffix", "Acme Pharma GmbH", "acme pharma"},
		{"strips stacked suffixes", "Acme Trading Co Ltd", "acme trading"},
		{"keeps trade tokens", "Meridian Pharmaceuticals Ltd", "meridian pharmaceuticals"},
		{"strips accents", "Química Andrés SA", "quimica andres"},
		{"collapses whitespace", "  Acme   Pharma  ", "acme pharma"},
		{"empty input", "", ""},
		{"whitespace only", "   \t ", ""},
		{"suffix alone survives", "Limited", "limited"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Normalize(tc.in); got != tc.want {
				t.Fatalf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestNormalizeDeterministic(t *testing.T) {
	in := "Bräustübl Pharma Handels-GmbH"
	first := Normalize(in)
	for i := 0; i < 10; i++ {
		if got := Normalize(in); got != first {
			t.Fatalf("Normalize is not deterministic: %q vs %q", got, first)
		}
	}
}

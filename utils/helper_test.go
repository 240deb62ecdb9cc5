package utils

import "testing"

func TestIsValidEmail(t *testing.T) {
	valid := []string{"guest@example.com", "a.b+c@sub.domain.org"}
	invalid := []string{"", "guest", "guest@", "@example.com", "guest@example"}
	for _, email := range valid {
		if !IsValidEmail(email) {
			t.Fatalf("expected %q to be valid", email)
		}
	}
	for _, email := range invalid {
		if IsValidEmail(email) {
			t.Fatalf("expected %q to be invalid", email)
		}
	}
}

func TestNormalizePhone(t *testing.T) {
	cases := map[string]string{
		"+959123456789":  "+959123456789",
		"09123456789":    "+959123456789",
		"09 123 456 789": "+959123456789",
		"":               "",
		"abc":            "",
	}
	for in, expected := range cases {
		if got := NormalizePhone(in); got != expected {
			t.Fatalf("NormalizePhone(%q) = %q, expected %q", in, got, expected)
		}
	}
}

func TestPhoneSuffix(t *testing.T) {
	a := PhoneSuffix("+959123456789", 7)
	b := PhoneSuffix("09123456789", 7)
	if a == "" || a != b {
		t.Fatalf("suffixes should match across formats: %q vs %q", a, b)
	}
	if PhoneSuffix("12345", 7) != "" {
		t.Fatal("numbers shorter than the suffix length have no suffix")
	}
}

func TestNormalizeNameTokens(t *testing.T) {
	tokens := NormalizeNameTokens("  Aye  CHAN aye. ")
	if len(tokens) != 2 {
		t.Fatalf("expected deduped tokens [aye chan], got %v", tokens)
	}
	if tokens[0] != "aye" || tokens[1] != "chan" {
		t.Fatalf("unexpected tokens %v", tokens)
	}
	if len(NormalizeNameTokens("")) != 0 {
		t.Fatal("empty name has no tokens")
	}
}

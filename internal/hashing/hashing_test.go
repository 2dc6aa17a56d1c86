package hashing

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"lowercases", "My Name Is Alice", "my name is alice"},
		{"collapses whitespace", "lives   in\t Seattle\n", "lives in seattle"},
		{"strips punctuation", "I work, as an engineer!", "i work as an engineer"},
		{"trims", "  hello  ", "hello"},
		{"empty", "", ""},
		{"only punctuation", "?!...", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.input); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

// Hash idempotence: variants of the same sentence must collide.
func TestHashVariantsCollide(t *testing.T) {
	base := "My name is Alice, and I work as a software engineer."
	variants := []string{
		"my name is alice and i work as a software engineer",
		"My  name is Alice and I work as a software engineer!",
		"  MY NAME IS ALICE AND I WORK AS A SOFTWARE ENGINEER  ",
	}

	want := Hash(base, true, SHA256)
	for _, v := range variants {
		if got := Hash(v, true, SHA256); got != want {
			t.Errorf("Hash(%q) = %s, want %s", v, got, want)
		}
	}

	// Without normalization the variants must NOT collide.
	if Hash(base, false, SHA256) == Hash(variants[0], false, SHA256) {
		t.Error("unnormalized hashes of differing strings collided")
	}
}

func TestHashAlgorithms(t *testing.T) {
	text := "lives in Boston"

	sha := Hash(text, true, SHA256)
	if len(sha) != 64 {
		t.Errorf("sha256 hex length = %d, want 64", len(sha))
	}

	md := Hash(text, true, MD5)
	if len(md) != 32 {
		t.Errorf("md5 hex length = %d, want 32", len(md))
	}

	// Unknown algorithm falls back to SHA-256.
	if got := Hash(text, true, "fnv"); got != sha {
		t.Errorf("unknown algorithm hash = %s, want sha256 fallback %s", got, sha)
	}
}

func TestSameHashAndSimilarText(t *testing.T) {
	if !SameHash("I live in Boston.", "i live in boston") {
		t.Error("SameHash rejected punctuation/case variant")
	}
	if SameHash("I live in Boston", "I live in Seattle") {
		t.Error("SameHash accepted different sentences")
	}
	if !SimilarText("Hello,   World!", "hello world") {
		t.Error("SimilarText rejected normalization variant")
	}
	if SimilarText("alpha", "beta") {
		t.Error("SimilarText accepted different strings")
	}
}

func TestContentHashStable(t *testing.T) {
	// The canonical hash must be stable across calls (no process state).
	a := ContentHash("I got promoted to senior engineer")
	b := ContentHash("I got promoted to senior engineer")
	if a != b {
		t.Errorf("ContentHash not deterministic: %s != %s", a, b)
	}
}

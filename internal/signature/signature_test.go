package signature

import (
	"strings"
	"testing"

	"github.com/miradorstack/mirador-heal/internal/models"
)

func TestFingerprintIgnoresNumbers(t *testing.T) {
	a := Fingerprint(models.ErrorTypeNetwork, "Connection failed to server 1", "")
	b := Fingerprint(models.ErrorTypeNetwork, "Connection failed to server 2", "")
	if a != b {
		t.Fatalf("expected equal fingerprints, got %s and %s", a, b)
	}
}

func TestFingerprintIgnoresIdentifiers(t *testing.T) {
	cases := [][2]string{
		{
			"workflow 3f2b8c1e-9a4d-4e6f-8b1a-2c3d4e5f6a7b not found",
			"workflow 00000000-1111-2222-3333-444444444444 not found",
		},
		{
			"fetch https://api.example.com/v1/users/12 failed",
			"fetch http://internal.svc:8080/health?check=true failed",
		},
		{
			"  Timeout after 3000ms  ",
			"timeout after 15ms",
		},
	}
	for _, tc := range cases {
		a := Fingerprint(models.ErrorTypeRuntime, tc[0], "")
		b := Fingerprint(models.ErrorTypeRuntime, tc[1], "")
		if a != b {
			t.Fatalf("expected %q and %q to share a fingerprint", tc[0], tc[1])
		}
	}
}

func TestFingerprintDistinguishesTypeAndStack(t *testing.T) {
	base := Fingerprint(models.ErrorTypeNetwork, "boom", "at handler (a.go:10)")
	if base == Fingerprint(models.ErrorTypeDatabase, "boom", "at handler (a.go:10)") {
		t.Fatalf("expected error type to change the fingerprint")
	}
	if base == Fingerprint(models.ErrorTypeNetwork, "boom", "at other (b.go:10)") {
		t.Fatalf("expected first stack line to change the fingerprint")
	}
	if base != Fingerprint(models.ErrorTypeNetwork, "boom", "\n  at handler (a.go:99)\n at caller") {
		t.Fatalf("expected only the first stack line to matter")
	}
}

func TestTemplateKeepsCase(t *testing.T) {
	got := Template("User 42 hit https://x.io/a twice")
	if got != "User <num> hit <url> twice" {
		t.Fatalf("unexpected template %q", got)
	}
	if strings.Contains(Normalize("User 42"), "U") {
		t.Fatalf("expected normalized output to be lower case")
	}
}

func TestJaccard(t *testing.T) {
	a := Tokens("database connection timeout on <num>")
	b := Tokens("database connection timeout on shard <num>")
	if got := Jaccard(a, b); got < 0.8 || got > 0.84 {
		t.Fatalf("expected ~0.83, got %f", got)
	}
	if got := Jaccard(Tokens("alpha beta"), Tokens("gamma delta")); got != 0 {
		t.Fatalf("expected disjoint sets to score 0, got %f", got)
	}
}

func TestNormalizeFoldsCompatibilityForms(t *testing.T) {
	a := Fingerprint(models.ErrorTypeNetwork, "Connection failed to server １２", "")
	b := Fingerprint(models.ErrorTypeNetwork, "connection FAILED to server 7", "")
	if a != b {
		t.Fatalf("expected full-width digits and case to normalise, got %s and %s", a, b)
	}
	if got := Normalize("Lookup failed for Straße"); got != "lookup failed for strasse" {
		t.Fatalf("unexpected normalisation %q", got)
	}
}

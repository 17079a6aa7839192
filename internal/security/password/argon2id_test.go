package password

import (
	"strings"
	"testing"
)

func TestHashVerify_RoundTrip(t *testing.T) {
	phc, err := Hash(Default, "correct horse battery staple")
	if err != nil {
		t.Fatalf("Hash err: %v", err)
	}
	if !strings.HasPrefix(phc, "$argon2id$v=19$") {
		t.Fatalf("unexpected PHC prefix: %s", phc)
	}
	if !Verify("correct horse battery staple", phc) {
		t.Fatalf("Verify must accept the original password")
	}
	if Verify("wrong password", phc) {
		t.Fatalf("Verify must reject a different password")
	}
}

func TestHash_RejectsEmpty(t *testing.T) {
	if _, err := Hash(Default, ""); err == nil {
		t.Fatalf("expected error for empty password")
	}
}

func TestVerify_MalformedHash(t *testing.T) {
	for _, phc := range []string{
		"",
		"plaintext",
		"$argon2i$v=19$m=65536,t=3,p=1$c2FsdA$ZGs",
		"$argon2id$v=18$m=65536,t=3,p=1$c2FsdA$ZGs",
		"$argon2id$v=19$m=0,t=0,p=0$c2FsdA$ZGs",
		"$argon2id$v=19$m=65536,t=3,p=1$!!$ZGs",
	} {
		if Verify("anything", phc) {
			t.Fatalf("malformed hash %q must not verify", phc)
		}
	}
}

func TestHash_SaltsDiffer(t *testing.T) {
	a, err := Hash(Default, "same password")
	if err != nil {
		t.Fatal(err)
	}
	b, err := Hash(Default, "same password")
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Fatalf("two hashes of the same password must differ (random salt)")
	}
}

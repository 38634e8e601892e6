package identity

import (
	"context"
	"testing"
)

func TestVerify_ResolvesUserID(t *testing.T) {
	v := NewStaticVerifier([]Credential{
		{UserID: "user-1", Token: "tok-1"},
		{UserID: "user-2", Token: "tok-2"},
	})

	user, err := v.Verify(context.Background(), "tok-2")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if user != "user-2" {
		t.Errorf("user = %q, want user-2", user)
	}

	if _, err := v.Verify(context.Background(), "unknown"); err == nil {
		t.Error("unknown token accepted")
	}
}

func TestVerify_EmptyListRejectsAll(t *testing.T) {
	v := NewStaticVerifier(nil)
	if _, err := v.Verify(context.Background(), "anything"); err == nil {
		t.Error("empty verifier accepted a token")
	}
}

func TestParseCredentials(t *testing.T) {
	creds, err := ParseCredentials([]string{"user-1:tok-1", "user-2:tok:with:colons"})
	if err != nil {
		t.Fatalf("ParseCredentials: %v", err)
	}
	if len(creds) != 2 || creds[0].UserID != "user-1" || creds[1].Token != "tok:with:colons" {
		t.Errorf("creds = %+v", creds)
	}

	for _, bad := range []string{"no-colon", ":token-only", "user-only:"} {
		if _, err := ParseCredentials([]string{bad}); err == nil {
			t.Errorf("entry %q accepted", bad)
		}
	}
}

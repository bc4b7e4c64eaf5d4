package vault

import (
	"context"
	"testing"
)

func TestDisabledClient_StoreAndGetRoundTrip(t *testing.T) {
	c, err := NewClient(Config{Enabled: false})
	if err != nil {
		t.Fatalf("unexpected error constructing disabled client: %v", err)
	}

	creds := Credentials{APIKey: "key", SecretKey: "secret", IsTestnet: true}
	if err := c.StoreCredentials(context.Background(), "V4", creds); err != nil {
		t.Fatalf("unexpected error storing credentials: %v", err)
	}

	got, err := c.GetCredentials(context.Background(), "V4")
	if err != nil {
		t.Fatalf("unexpected error retrieving credentials: %v", err)
	}
	if got != creds {
		t.Fatalf("expected %+v, got %+v", creds, got)
	}
}

func TestDisabledClient_MissingCredentialsError(t *testing.T) {
	c, _ := NewClient(Config{Enabled: false})
	if _, err := c.GetCredentials(context.Background(), "V1"); err == nil {
		t.Fatalf("expected an error for an unset bot version")
	}
}

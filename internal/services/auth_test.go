package services

import (
	"context"
	"testing"
)

func TestRegisterLoginRoundTrip(t *testing.T) {
	svc := NewAuthService(testLogger(), newFakeUserRepo(), "test-secret", 3600)
	ctx := context.Background()

	user, err := svc.Register(ctx, "ada@example.com", "hunter22", "Ada", 50)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if user.Password == "hunter22" {
		t.Fatalf("password stored in the clear")
	}
	if user.DefaultLoad != 50 {
		t.Fatalf("default load = %d, want 50", user.DefaultLoad)
	}

	token, logged, err := svc.Login(ctx, "ada@example.com", "hunter22")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if logged.ID != user.ID {
		t.Fatalf("login resolved a different user")
	}

	resolved, err := svc.UserFromToken(ctx, token)
	if err != nil {
		t.Fatalf("token resolve: %v", err)
	}
	if resolved.ID != user.ID {
		t.Fatalf("token resolved a different user")
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc := NewAuthService(testLogger(), newFakeUserRepo(), "test-secret", 3600)
	ctx := context.Background()

	if _, err := svc.Register(ctx, "ada@example.com", "pw", "Ada", 0); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := svc.Register(ctx, "ada@example.com", "pw2", "Ada Again", 0); err == nil {
		t.Fatalf("duplicate email accepted")
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	svc := NewAuthService(testLogger(), newFakeUserRepo(), "test-secret", 3600)
	ctx := context.Background()

	if _, err := svc.Register(ctx, "ada@example.com", "pw", "Ada", 0); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, _, err := svc.Login(ctx, "ada@example.com", "wrong"); err == nil {
		t.Fatalf("wrong password accepted")
	}
	if _, _, err := svc.Login(ctx, "nobody@example.com", "pw"); err == nil {
		t.Fatalf("unknown email accepted")
	}
}

func TestUserFromTokenRejectsForgedToken(t *testing.T) {
	repo := newFakeUserRepo()
	svc := NewAuthService(testLogger(), repo, "test-secret", 3600)
	other := NewAuthService(testLogger(), repo, "other-secret", 3600)
	ctx := context.Background()

	if _, err := svc.Register(ctx, "ada@example.com", "pw", "Ada", 0); err != nil {
		t.Fatalf("register: %v", err)
	}
	token, _, err := other.Login(ctx, "ada@example.com", "pw")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := svc.UserFromToken(ctx, token); err == nil {
		t.Fatalf("token signed with a different secret accepted")
	}
}

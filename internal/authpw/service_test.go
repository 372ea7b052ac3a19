package authpw

import (
	"context"
	"errors"
	"testing"

	"plantrack/api/internal/store"
)

type mockUserStore struct {
	users     map[string]store.User
	passwords map[int64]string
}

func newMockUserStore() *mockUserStore {
	return &mockUserStore{
		users:     make(map[string]store.User),
		passwords: make(map[int64]string),
	}
}

func (m *mockUserStore) GetUserByEmail(ctx context.Context, email string) (store.User, error) {
	if user, ok := m.users[email]; ok {
		return user, nil
	}
	return store.User{}, errors.New("user not found")
}

func (m *mockUserStore) UpdateUserPassword(ctx context.Context, userID int64, passwordHash string) error {
	m.passwords[userID] = passwordHash
	return nil
}

func (m *mockUserStore) add(t *testing.T, id int64, email, password string, active bool) store.User {
	t.Helper()
	hash, err := HashPassword(password)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	user := store.User{ID: id, Email: email, PasswordHash: hash, Role: "EDITOR", IsActive: active}
	m.users[email] = user
	return user
}

func TestSignIn(t *testing.T) {
	ctx := context.Background()
	mockStore := newMockUserStore()
	mockStore.add(t, 1, "ana@example.com", "correct-horse", true)
	mockStore.add(t, 2, "gone@example.com", "correct-horse", false)
	svc := NewService(mockStore)

	t.Run("successful sign in", func(t *testing.T) {
		user, err := svc.SignIn(ctx, "ana@example.com", "correct-horse")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if user.ID != 1 {
			t.Errorf("expected user 1, got %d", user.ID)
		}
	})

	t.Run("email is case insensitive", func(t *testing.T) {
		if _, err := svc.SignIn(ctx, "  Ana@Example.COM ", "correct-horse"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := svc.SignIn(ctx, "ana@example.com", "wrong")
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("expected ErrInvalidCredentials, got %v", err)
		}
	})

	t.Run("unknown email", func(t *testing.T) {
		_, err := svc.SignIn(ctx, "nobody@example.com", "correct-horse")
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("expected ErrInvalidCredentials, got %v", err)
		}
	})

	t.Run("deactivated account", func(t *testing.T) {
		_, err := svc.SignIn(ctx, "gone@example.com", "correct-horse")
		if !errors.Is(err, ErrInactive) {
			t.Errorf("expected ErrInactive, got %v", err)
		}
	})

	t.Run("empty credentials", func(t *testing.T) {
		if _, err := svc.SignIn(ctx, "", ""); err == nil {
			t.Error("expected error for empty credentials")
		}
	})
}

func TestChangePassword(t *testing.T) {
	ctx := context.Background()
	mockStore := newMockUserStore()
	user := mockStore.add(t, 7, "ana@example.com", "old-secret", true)
	svc := NewService(mockStore)

	t.Run("requires matching old password", func(t *testing.T) {
		err := svc.ChangePassword(ctx, user, "nope", "new-secret", true)
		if !errors.Is(err, ErrWrongPassword) {
			t.Errorf("expected ErrWrongPassword, got %v", err)
		}
		if _, ok := mockStore.passwords[user.ID]; ok {
			t.Error("password updated despite failed proof")
		}
	})

	t.Run("rejects short password", func(t *testing.T) {
		if err := svc.ChangePassword(ctx, user, "old-secret", "tiny", true); err == nil {
			t.Error("expected error for short password")
		}
	})

	t.Run("changes with valid proof", func(t *testing.T) {
		if err := svc.ChangePassword(ctx, user, "old-secret", "new-secret", true); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, ok := mockStore.passwords[user.ID]; !ok {
			t.Error("expected stored password to change")
		}
	})

	t.Run("skips proof when not required", func(t *testing.T) {
		if err := svc.ChangePassword(ctx, user, "", "reset-by-admin", false); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}

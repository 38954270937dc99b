package handlers

import (
	"context"
	"net/http"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func seedUser(t *testing.T, users *fakeUsers, password string) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	users.nextID = testUserID - 1
	if _, err := users.Create(context.Background(), "ana@example.com", nil, string(hash)); err != nil {
		t.Fatal(err)
	}
}

func TestGetMeHidesPasswordHash(t *testing.T) {
	users := newFakeUsers()
	seedUser(t, users, "correct-horse")
	h := NewUserHandler(users)

	rec, env := do(t, http.HandlerFunc(h.GetMe), http.MethodGet, "/api/users/me", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got map[string]interface{}
	decodeData(t, env, &got)
	if got["email"] != "ana@example.com" {
		t.Errorf("email = %v", got["email"])
	}
	if _, ok := got["password_hash"]; ok {
		t.Error("password hash leaked")
	}
}

func TestChangePassword(t *testing.T) {
	users := newFakeUsers()
	seedUser(t, users, "correct-horse")
	h := NewUserHandler(users)

	rec, _ := do(t, http.HandlerFunc(h.ChangePassword), http.MethodPost, "/api/users/me/password",
		map[string]string{"currentPassword": "wrong-horse", "newPassword": "brand-new-pass"})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong current password status = %d, want 401", rec.Code)
	}

	rec, _ = do(t, http.HandlerFunc(h.ChangePassword), http.MethodPost, "/api/users/me/password",
		map[string]string{"currentPassword": "correct-horse", "newPassword": "short"})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("short password status = %d, want 422", rec.Code)
	}

	rec, _ = do(t, http.HandlerFunc(h.ChangePassword), http.MethodPost, "/api/users/me/password",
		map[string]string{"currentPassword": "correct-horse", "newPassword": "brand-new-pass"})
	if rec.Code != http.StatusOK {
		t.Fatalf("change status = %d, body %s", rec.Code, rec.Body.String())
	}
	u, _ := users.GetByID(context.Background(), testUserID)
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte("brand-new-pass")) != nil {
		t.Error("new password was not stored")
	}
}

func TestUpdateAndDeleteMe(t *testing.T) {
	users := newFakeUsers()
	seedUser(t, users, "correct-horse")
	h := NewUserHandler(users)

	rec, env := do(t, http.HandlerFunc(h.UpdateMe), http.MethodPut, "/api/users/me", map[string]string{"name": "  Ana Lima "})
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d", rec.Code)
	}
	var got struct {
		Name *string `json:"name"`
	}
	decodeData(t, env, &got)
	if got.Name == nil || *got.Name != "Ana Lima" {
		t.Errorf("name = %v", got.Name)
	}

	rec, _ = do(t, http.HandlerFunc(h.DeleteMe), http.MethodDelete, "/api/users/me", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rec.Code)
	}
	rec, _ = do(t, http.HandlerFunc(h.GetMe), http.MethodGet, "/api/users/me", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want 404", rec.Code)
	}
}

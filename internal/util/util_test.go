package util

import (
	"errors"
	"fmt"
	"net/http"
	"novaexam_backend/internal/model"
	"testing"
	"time"
)

func TestStatusForError(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{ErrExamNotFound, http.StatusNotFound},
		{fmt.Errorf("load: %w", ErrAttemptNotFound), http.StatusNotFound},
		{ErrChoiceMismatch, http.StatusBadRequest},
		{ErrImportHeader, http.StatusBadRequest},
		{ErrAttemptSubmitted, http.StatusConflict},
		{ErrExamNotActive, http.StatusConflict},
		{ErrUsernameTaken, http.StatusConflict},
		{ErrPermissionDenied, http.StatusForbidden},
		{errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := StatusForError(tt.err); got != tt.want {
			t.Errorf("StatusForError(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestValidateStruct(t *testing.T) {
	type req struct {
		Name  string `validate:"required,notblank"`
		Marks int    `validate:"min=1"`
	}
	tests := []struct {
		name string
		in   req
		ok   bool
	}{
		{"valid", req{Name: "Quiz", Marks: 1}, true},
		{"blank", req{Name: "   ", Marks: 1}, false},
		{"missing", req{Marks: 1}, false},
		{"marks", req{Name: "Quiz"}, false},
	}
	for _, tt := range tests {
		err := ValidateStruct(&tt.in)
		if tt.ok && err != nil {
			t.Errorf("%s: unexpected error %v", tt.name, err)
		}
		if !tt.ok && !errors.Is(err, ErrValidation) {
			t.Errorf("%s: err = %v, want ErrValidation", tt.name, err)
		}
	}
}

func TestConversions(t *testing.T) {
	if got := MustParseUint("42"); got != 42 {
		t.Errorf("MustParseUint(42) = %d", got)
	}
	for _, s := range []string{"", "-1", "abc"} {
		if got := MustParseUint(s); got != 0 {
			t.Errorf("MustParseUint(%q) = %d, want 0", s, got)
		}
	}
	if got := Round2(100.0 / 3); got != 33.33 {
		t.Errorf("Round2 = %v, want 33.33", got)
	}
	if got := Round2(200.0 / 3); got != 66.67 {
		t.Errorf("Round2 = %v, want 66.67", got)
	}
}

func TestHasAllowedExtension(t *testing.T) {
	if !HasAllowedExtension("Questions.XLSX", AllowedImportExtensions) {
		t.Error("upper-case extension rejected")
	}
	if HasAllowedExtension("questions.xls", AllowedImportExtensions) {
		t.Error(".xls accepted")
	}
}

func TestJWTRoundTrip(t *testing.T) {
	user := &model.User{Username: "alice", Role: model.Student}
	user.ID = 7
	token, err := GenerateJWT(user, "secret", time.Hour)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	claims, err := ParseJWT(token, "secret")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.UserID != 7 || claims.Username != "alice" {
		t.Errorf("claims = %+v", claims)
	}
	if _, err := ParseJWT(token, "other"); err == nil {
		t.Error("token accepted with wrong secret")
	}
	expired, _ := GenerateJWT(user, "secret", -time.Minute)
	if _, err := ParseJWT(expired, "secret"); err == nil {
		t.Error("expired token accepted")
	}
}

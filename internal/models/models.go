// Package models defines the payloads exchanged with the gptkit backend
// by the session layer.
package models

import (
	"encoding/json"
	"errors"
	"fmt"
)

const (
	wpAuthStatusKey       = "wpAuthStatus"
	legacyWPAuthStatusKey = "WPAuthStatus"
)

// User is the authenticated account profile.
type User struct {
	ID    string
	Email string
	Name  string
	// WPAuthStatus is nil when the backend did not report it.
	WPAuthStatus *bool
}

// WordPressConnected reports whether the account has a linked WordPress site.
func (u User) WordPressConnected() bool {
	return u.WPAuthStatus != nil && *u.WPAuthStatus
}

// UnmarshalJSON decodes a user, accepting both the current "wpAuthStatus"
// key and the legacy "WPAuthStatus" spelling. The current key wins when both
// are present. Keys are matched exactly; encoding/json's case-insensitive
// field matching would otherwise conflate the two.
func (u *User) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		return errors.New("user: expected object")
	}

	var out User
	for key, dst := range map[string]*string{"id": &out.ID, "email": &out.Email, "name": &out.Name} {
		v, ok := raw[key]
		if !ok {
			return fmt.Errorf("user: missing %q", key)
		}
		if err := json.Unmarshal(v, dst); err != nil {
			return fmt.Errorf("user: %s: %w", key, err)
		}
	}

	status, err := optionalBool(raw, wpAuthStatusKey)
	if err != nil {
		return err
	}
	if status == nil {
		if status, err = optionalBool(raw, legacyWPAuthStatusKey); err != nil {
			return err
		}
	}
	out.WPAuthStatus = status

	*u = out
	return nil
}

// MarshalJSON always emits the current key spelling.
func (u User) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID           string `json:"id"`
		Email        string `json:"email"`
		Name         string `json:"name"`
		WPAuthStatus *bool  `json:"wpAuthStatus,omitempty"`
	}{u.ID, u.Email, u.Name, u.WPAuthStatus})
}

// optionalBool returns nil for an absent key or an explicit null.
func optionalBool(raw map[string]json.RawMessage, key string) (*bool, error) {
	v, ok := raw[key]
	if !ok {
		return nil, nil
	}
	var b *bool
	if err := json.Unmarshal(v, &b); err != nil {
		return nil, fmt.Errorf("user: %s: %w", key, err)
	}
	return b, nil
}

// LoginRequest is the body of POST auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterRequest is the body of POST auth/register.
type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RefreshRequest is the body of POST auth/refresh.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// LogoutRequest is the body of POST auth/logout.
type LogoutRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// AuthResponse is returned by login and register.
type AuthResponse struct {
	User         User   `json:"user"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// RefreshResponse is returned by auth/refresh.
type RefreshResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// UserResponse is returned by auth/me.
type UserResponse struct {
	User User `json:"user"`
}

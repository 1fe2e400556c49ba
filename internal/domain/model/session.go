package model

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/tidwall/gjson"
)

const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// User is the signed-in account as the storefront sees it.
type User struct {
	ID                 string `json:"id"`
	Name               string `json:"name"`
	Email              string `json:"email"`
	Phone              string `json:"phone,omitempty"`
	Role               string `json:"role,omitempty"`
	IsAdmin            bool   `json:"isAdmin,omitempty"`
	ProviderCustomerID string `json:"providerCustomerId,omitempty"`
}

func (u *User) IsZero() bool { return u == nil || (u.ID == "" && u.Email == "") }

// ParseUser reads a user object in any of the shapes the backend emits.
func ParseUser(raw []byte) User {
	return userFrom(gjson.ParseBytes(raw))
}

func userFrom(r gjson.Result) User {
	return User{
		ID:                 firstString(r, "_id", "id", "userId"),
		Name:               firstString(r, "name", "fullName", "username"),
		Email:              firstString(r, "email"),
		Phone:              firstString(r, "phone", "contact", "mobile"),
		Role:               firstString(r, "role"),
		IsAdmin:            r.Get("isAdmin").Bool(),
		ProviderCustomerID: firstString(r, "providerCustomerId", "razorpayCustomerId", "customerId"),
	}
}

func firstString(r gjson.Result, paths ...string) string {
	for _, p := range paths {
		if v := strings.TrimSpace(r.Get(p).String()); v != "" {
			return v
		}
	}
	return ""
}

// BackendSession is the durable credential pair written at login.
type BackendSession struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

func (s *BackendSession) IsZero() bool { return s == nil || s.Token == "" }

// Role derives admin|user from the stored user, then the token's claims.
func (s *BackendSession) Role() string {
	if s == nil {
		return RoleUser
	}
	if s.User.IsAdmin || strings.EqualFold(s.User.Role, RoleAdmin) {
		return RoleAdmin
	}
	if s.User.Role != "" {
		return RoleUser
	}
	claims := s.claims()
	if isAdminClaim(claims) {
		return RoleAdmin
	}
	if nested, ok := claims["user"].(map[string]any); ok && isAdminClaim(nested) {
		return RoleAdmin
	}
	return RoleUser
}

// Expired reports whether the token carries an exp claim in the past.
// Opaque tokens never expire client-side; the backend answers 401 instead.
func (s *BackendSession) Expired(now time.Time) bool {
	if s.IsZero() {
		return true
	}
	exp, err := s.claims().GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return !now.Before(exp.Time)
}

func (s *BackendSession) claims() jwt.MapClaims {
	claims := jwt.MapClaims{}
	if s.Token == "" {
		return claims
	}
	if _, _, err := jwt.NewParser().ParseUnverified(s.Token, claims); err != nil {
		return jwt.MapClaims{}
	}
	return claims
}

func isAdminClaim(c map[string]any) bool {
	if r, ok := c["role"].(string); ok && strings.EqualFold(r, RoleAdmin) {
		return true
	}
	b, ok := c["isAdmin"].(bool)
	return ok && b
}

// MarshalUser encodes u the way the session file stores it.
func MarshalUser(u User) string {
	b, _ := json.Marshal(u)
	return string(b)
}

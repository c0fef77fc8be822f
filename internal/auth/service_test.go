package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestSignInAnonymously(t *testing.T) {
	svc := NewService("test-secret")
	first, err := svc.SignInAnonymously(AnonymousRequest{Username: "  ana "})
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	second, _ := svc.SignInAnonymously(AnonymousRequest{})

	if first.UserID == "" || first.UserID == second.UserID {
		t.Fatalf("expected distinct user ids, got %q and %q", first.UserID, second.UserID)
	}
	if first.Username != "ana" || first.TokenType != "Bearer" || first.ExpiresIn != int64(accessTokenTTL.Seconds()) {
		t.Fatalf("unexpected response %+v", first)
	}

	claims, err := svc.ValidateAccessToken(first.AccessToken)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.UserID != first.UserID || claims.Username != "ana" {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestValidateRejectsForeignAndExpiredTokens(t *testing.T) {
	svc := NewService("test-secret")
	other := NewService("other-secret")

	resp, _ := other.SignInAnonymously(AnonymousRequest{})
	if _, err := svc.ValidateAccessToken(resp.AccessToken); err == nil {
		t.Fatalf("expected signature error")
	}

	svc.now = func() time.Time { return time.Now().Add(-2 * accessTokenTTL) }
	old, _ := svc.signToken("user-1", "", accessTokenTTL)
	svc.now = time.Now
	if _, err := svc.ValidateAccessToken(old); !errors.Is(err, jwt.ErrTokenExpired) {
		t.Fatalf("expected expired token error, got %v", err)
	}

	if _, err := svc.ValidateAccessToken("not-a-token"); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestValidateRejectsTokenWithoutUser(t *testing.T) {
	svc := NewService("test-secret")
	token, _ := svc.signToken("", "", time.Minute)
	if _, err := svc.ValidateAccessToken(token); err == nil {
		t.Fatalf("expected error for empty user id")
	}
}

func TestParseClaimsFnError(t *testing.T) {
	old := parseClaimsFn
	defer func() { parseClaimsFn = old }()
	parseClaimsFn = func(string, jwt.Claims, jwt.Keyfunc, ...jwt.ParserOption) (*jwt.Token, error) {
		return &jwt.Token{Claims: jwt.MapClaims{}, Valid: true}, nil
	}

	if _, err := NewService("secret").ValidateAccessToken("any"); err == nil {
		t.Fatalf("expected error for unexpected claims type")
	}
}

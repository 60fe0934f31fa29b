package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"plant-store/internal/domain"
	"plant-store/internal/repository"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"golang.org/x/crypto/bcrypt"
)

const testSecret = "test-secret-key"

func newTestUserService() (UserService, *mockUserRepository, *mockRefreshTokenRepository) {
	userRepo := newMockUserRepository()
	refreshTokenRepo := newMockRefreshTokenRepository()
	return NewUserService(userRepo, refreshTokenRepo, TokenConfig{Secret: testSecret}), userRepo, refreshTokenRepo
}

// Feature: plant-store, Property 1: Registration stores bcrypt hashes, never plaintext
func TestProperty_RegistrationCreatesHashedPasswords(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("passwords are hashed with bcrypt and not stored as plaintext", prop.ForAll(
		func(name string, email string, password string) bool {
			service, userRepo, _ := newTestUserService()
			ctx := context.Background()

			result, err := service.Register(ctx, name, email, password)
			if err != nil {
				t.Logf("FAIL: Registration failed: %v", err)
				return false
			}

			if result.User.PasswordHash == password {
				t.Logf("FAIL: Password stored as plaintext for email %s", email)
				return false
			}

			if err := bcrypt.CompareHashAndPassword([]byte(result.User.PasswordHash), []byte(password)); err != nil {
				t.Logf("FAIL: Password hash doesn't match: %v", err)
				return false
			}

			cost, err := bcrypt.Cost([]byte(result.User.PasswordHash))
			if err != nil || cost != BcryptCost {
				t.Logf("FAIL: Expected bcrypt cost %d, got %d (%v)", BcryptCost, cost, err)
				return false
			}

			stored, err := userRepo.FindByEmail(ctx, email)
			if err != nil {
				t.Logf("FAIL: Could not find stored user: %v", err)
				return false
			}

			return stored.PasswordHash == result.User.PasswordHash && stored.Role == domain.RoleUser
		},
		gen.RegexMatch(`[A-Z][a-z]{2,15}`),
		gen.RegexMatch(`[a-z]{3,10}@[a-z]{3,8}\.(com|org|net)`),
		gen.RegexMatch(`[A-Za-z0-9!@#$%]{8,20}`),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

// Feature: plant-store, Property 2: Registering an existing email fails
func TestProperty_DuplicateRegistrationRejected(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("a second registration with the same email is rejected", prop.ForAll(
		func(email string, password string) bool {
			service, _, _ := newTestUserService()
			ctx := context.Background()

			if _, err := service.Register(ctx, "First", email, password); err != nil {
				t.Logf("FAIL: First registration failed: %v", err)
				return false
			}

			_, err := service.Register(ctx, "Second", email, password)
			return errors.Is(err, repository.ErrUserAlreadyExists)
		},
		gen.RegexMatch(`[a-z]{3,10}@[a-z]{3,8}\.(com|org|net)`),
		gen.RegexMatch(`[A-Za-z0-9]{8,20}`),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

// Feature: plant-store, Property 3: Access tokens carry user id and role
func TestProperty_JWTTokensContainRequiredClaims(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("access tokens contain user ID and role claims", prop.ForAll(
		func(email string, password string, role string) bool {
			service, userRepo, _ := newTestUserService()
			ctx := context.Background()

			registered, err := service.Register(ctx, "Fern", email, password)
			if err != nil {
				t.Logf("FAIL: Registration failed: %v", err)
				return false
			}

			userRepo.users[registered.User.Email].Role = role

			result, err := service.Login(ctx, email, password)
			if err != nil {
				t.Logf("FAIL: Login failed: %v", err)
				return false
			}

			claims, err := service.ValidateToken(result.AccessToken)
			if err != nil {
				t.Logf("FAIL: Token validation failed: %v", err)
				return false
			}

			if claims.UserID != registered.User.ID {
				t.Logf("FAIL: User ID claim mismatch. Expected %s, got %s", registered.User.ID, claims.UserID)
				return false
			}
			if claims.Role != role {
				t.Logf("FAIL: Role claim mismatch. Expected %s, got %s", role, claims.Role)
				return false
			}

			return claims.ExpiresAt != nil && claims.IssuedAt != nil
		},
		gen.RegexMatch(`[a-z]{3,10}@[a-z]{3,8}\.(com|org|net)`),
		gen.RegexMatch(`[A-Za-z0-9!@#$%]{8,20}`),
		gen.OneConstOf(domain.RoleUser, domain.RoleAdmin),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

// Feature: plant-store, Property 4: Refresh tokens mint valid access tokens
func TestProperty_TokenRefreshRoundTrip(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("valid refresh token returns new valid access token", prop.ForAll(
		func(email string, password string) bool {
			service, _, _ := newTestUserService()
			ctx := context.Background()

			if _, err := service.Register(ctx, "Moss", email, password); err != nil {
				return false
			}

			result, err := service.Login(ctx, email, password)
			if err != nil {
				t.Logf("FAIL: Login failed: %v", err)
				return false
			}

			newAccessToken, err := service.RefreshToken(ctx, result.RefreshToken)
			if err != nil {
				t.Logf("FAIL: Token refresh failed: %v", err)
				return false
			}

			claims, err := service.ValidateToken(newAccessToken)
			if err != nil {
				t.Logf("FAIL: New access token validation failed: %v", err)
				return false
			}

			return claims.UserID == result.User.ID && time.Now().Before(claims.ExpiresAt.Time)
		},
		gen.RegexMatch(`[a-z]{3,10}@[a-z]{3,8}\.(com|org|net)`),
		gen.RegexMatch(`[A-Za-z0-9!@#$%]{8,20}`),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

// Feature: plant-store, Property 5: Logout invalidates the refresh token
func TestProperty_LogoutInvalidatesRefreshToken(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("logout marks refresh token as revoked", prop.ForAll(
		func(email string, password string) bool {
			service, _, refreshTokenRepo := newTestUserService()
			ctx := context.Background()

			registered, err := service.Register(ctx, "Ivy", email, password)
			if err != nil {
				return false
			}

			if err := service.Logout(ctx, registered.User.ID, registered.RefreshToken); err != nil {
				t.Logf("FAIL: Logout failed: %v", err)
				return false
			}

			if _, err := service.RefreshToken(ctx, registered.RefreshToken); !errors.Is(err, ErrInvalidToken) {
				t.Logf("FAIL: Expected ErrInvalidToken after logout, got: %v", err)
				return false
			}

			_, err = refreshTokenRepo.FindByToken(ctx, registered.RefreshToken)
			return errors.Is(err, repository.ErrRefreshTokenRevoked)
		},
		gen.RegexMatch(`[a-z]{3,10}@[a-z]{3,8}\.(com|org|net)`),
		gen.RegexMatch(`[A-Za-z0-9!@#$%]{8,20}`),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestLogin_WrongPasswordAndUnknownEmail(t *testing.T) {
	service, _, _ := newTestUserService()
	ctx := context.Background()

	if _, err := service.Register(ctx, "Rose", "Rose@Example.com ", "password123"); err != nil {
		t.Fatalf("Registration failed: %v", err)
	}

	if _, err := service.Login(ctx, "rose@example.com", "wrong-password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Expected ErrInvalidCredentials for wrong password, got %v", err)
	}
	if _, err := service.Login(ctx, "nobody@example.com", "password123"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Expected ErrInvalidCredentials for unknown email, got %v", err)
	}
	if _, err := service.Login(ctx, "ROSE@example.com", "password123"); err != nil {
		t.Errorf("Expected case-insensitive email login to succeed, got %v", err)
	}
}

func TestRefreshToken_Expired(t *testing.T) {
	service, _, refreshTokenRepo := newTestUserService()
	ctx := context.Background()

	result, err := service.Register(ctx, "Sage", "sage@example.com", "password123")
	if err != nil {
		t.Fatalf("Registration failed: %v", err)
	}
	refreshTokenRepo.tokens[result.RefreshToken].ExpiresAt = time.Now().Add(-time.Minute)

	if _, err := service.RefreshToken(ctx, result.RefreshToken); !errors.Is(err, ErrTokenExpired) {
		t.Errorf("Expected ErrTokenExpired, got %v", err)
	}
}

func TestValidateToken_RejectsForeignAndExpiredTokens(t *testing.T) {
	service, _, _ := newTestUserService()

	foreign, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{UserID: uuid.New(), Role: domain.RoleAdmin}).
		SignedString([]byte("some-other-secret"))
	if _, err := service.ValidateToken(foreign); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Expected ErrInvalidToken for token signed with another secret, got %v", err)
	}

	expired, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		UserID:           uuid.New(),
		Role:             domain.RoleUser,
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour))},
	}).SignedString([]byte(testSecret))
	if _, err := service.ValidateToken(expired); !errors.Is(err, ErrTokenExpired) {
		t.Errorf("Expected ErrTokenExpired, got %v", err)
	}

	if _, err := service.ValidateToken("not-a-jwt"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Expected ErrInvalidToken for garbage, got %v", err)
	}
}

func TestLogout_EndsEverySessionOfTheCaller(t *testing.T) {
	service, _, refreshTokenRepo := newTestUserService()
	ctx := context.Background()

	laptop, err := service.Register(ctx, "Fern", "fern@example.com", "password123")
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	phone, err := service.Login(ctx, "fern@example.com", "password123")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	other, err := service.Register(ctx, "Moss", "moss@example.com", "password123")
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	if err := service.Logout(ctx, laptop.User.ID, other.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Expected ErrInvalidToken for a foreign refresh token, got %v", err)
	}

	if err := service.Logout(ctx, laptop.User.ID, laptop.RefreshToken); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}
	for _, token := range []string{laptop.RefreshToken, phone.RefreshToken} {
		if _, err := refreshTokenRepo.FindByToken(ctx, token); !errors.Is(err, repository.ErrRefreshTokenRevoked) {
			t.Errorf("Expected every session revoked, got %v", err)
		}
	}
	if _, err := service.RefreshToken(ctx, other.RefreshToken); err != nil {
		t.Errorf("Other customers stay logged in, got %v", err)
	}

	if err := service.Logout(ctx, laptop.User.ID, laptop.RefreshToken); err != nil {
		t.Errorf("Logging out twice should succeed, got %v", err)
	}
}

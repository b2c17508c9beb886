package middleware

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"

	"github.com/rsclabs/valve-backend/internal/services"
)

const userLocalKey = "authenticatedUser"

// Claims is the bearer token payload: standard claims plus the wallet the
// user currently acts under.
type Claims struct {
	jwt.RegisteredClaims
	ActiveWallet string `json:"activeWallet,omitempty"`
}

// NewJWTAuth builds the auth middleware verifying RS256 bearer tokens
// against the identity provider's public key.
func NewJWTAuth(publicKeyPEM string) (fiber.Handler, error) {
	publicKey, err := jwt.ParseRSAPublicKeyFromPEM([]byte(publicKeyPEM))
	if err != nil {
		return nil, fmt.Errorf("failed to parse jwt public key: %w", err)
	}
	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		if !strings.HasPrefix(header, "Bearer ") {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing bearer token",
			})
		}
		tokenString := strings.TrimPrefix(header, "Bearer ")

		claims := &Claims{}
		token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
			}
			return publicKey, nil
		})
		if err != nil || !token.Valid || claims.Subject == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid bearer token",
			})
		}

		user := services.AuthenticatedUser{ID: claims.Subject}
		if common.IsHexAddress(claims.ActiveWallet) {
			wallet := common.HexToAddress(claims.ActiveWallet).Hex()
			user.ActiveWallet = &wallet
		}
		c.Locals(userLocalKey, user)
		return c.Next()
	}, nil
}

// UserFromContext returns the identity set by the auth middleware.
func UserFromContext(c *fiber.Ctx) services.AuthenticatedUser {
	user, _ := c.Locals(userLocalKey).(services.AuthenticatedUser)
	return user
}

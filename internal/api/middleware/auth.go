package middleware

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	bearerPrefix = "Bearer"

	// ContextSubject holds the authenticated caller of a control route
	ContextSubject   = "control_subject"
	anonymousSubject = "anonymous"

	// ScopeControl must be present in a token's scope claim
	ScopeControl = "control"
)

// Claims are the control token claims
type Claims struct {
	Scope string `json:"scope"`
	jwt.RegisteredClaims
}

// ControlAuth guards routes that change engine state with an HS256 bearer token.
// An empty secret disables auth, for local rigs.
func ControlAuth(secret string) gin.HandlerFunc {
	if secret == "" {
		return func(c *gin.Context) {
			c.Set(ContextSubject, anonymousSubject)
			c.Next()
		}
	}
	key := []byte(secret)

	return func(c *gin.Context) {
		tokenString := bearerToken(c.GetHeader("Authorization"))
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization required"})
			return
		}

		claims := &Claims{}
		token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return key, nil
		})
		if err != nil || !token.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			return
		}

		if !hasScope(claims.Scope, ScopeControl) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Token lacks control scope"})
			return
		}

		subject := claims.Subject
		if subject == "" {
			subject = anonymousSubject
		}
		c.Set(ContextSubject, subject)
		c.Next()
	}
}

// IssueControlToken signs a control token for subject, valid for ttl
func IssueControlToken(secret, subject string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Scope: ScopeControl,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func bearerToken(header string) string {
	parts := strings.Split(header, " ")
	if len(parts) == 2 && parts[0] == bearerPrefix {
		return parts[1]
	}
	return ""
}

func hasScope(scopes, want string) bool {
	for _, s := range strings.Fields(scopes) {
		if s == want {
			return true
		}
	}
	return false
}

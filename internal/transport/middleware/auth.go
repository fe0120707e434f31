package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/ds124wfegd/ems-booking/internal/entity"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const actorKey = "actor"

// Claims is the access token payload; sub carries the user id.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Auth accepts HS256 bearer tokens issued by the identity service.
func Auth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || raw == "" {
			abortUnauthorized(c, "missing bearer token")
			return
		}

		actor, err := ParseToken(raw, secret)
		if err != nil {
			abortUnauthorized(c, err.Error())
			return
		}

		c.Set(actorKey, actor)
		c.Next()
	}
}

func ParseToken(raw, secret string) (entity.Actor, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return entity.Actor{}, err
	}

	if claims.Subject == "" {
		return entity.Actor{}, errors.New("token has no subject")
	}

	role := entity.Role(claims.Role)
	switch role {
	case entity.RoleUser, entity.RoleOrganizer, entity.RoleAdmin:
	case "":
		role = entity.RoleUser
	default:
		return entity.Actor{}, errors.New("token has unknown role")
	}

	return entity.Actor{UserID: claims.Subject, Role: role}, nil
}

// ActorFrom returns the caller set by Auth.
func ActorFrom(c *gin.Context) (entity.Actor, bool) {
	v, ok := c.Get(actorKey)
	if !ok {
		return entity.Actor{}, false
	}
	actor, ok := v.(entity.Actor)
	return actor, ok
}

func abortUnauthorized(c *gin.Context, reason string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"success": false,
		"error":   entity.ErrUnauthorized.Error(),
		"code":    "UNAUTHORIZED",
		"details": gin.H{"reason": reason},
	})
}

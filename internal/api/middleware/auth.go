// Package middleware carries the HTTP middleware for the lifecycle API.
package middleware

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/oakwellcare/clinic-engagement/internal/actor"
)

// ActorClaims is the token payload: who is calling and in what capacity.
// Token issuance lives with the identity provider; this service only
// verifies.
type ActorClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// ActorJWT verifies an HMAC-signed bearer token and places the resulting
// actor on the request context. Requests without a valid token, or with an
// unknown role, are rejected.
func ActorJWT(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				http.Error(w, "authentication disabled", http.StatusUnauthorized)
				return
			}
			auth := r.Header.Get("Authorization")
			if auth == "" || !strings.HasPrefix(auth, "Bearer ") {
				http.Error(w, "missing authorization header", http.StatusUnauthorized)
				return
			}
			tokenString := strings.TrimPrefix(auth, "Bearer ")
			claims := ActorClaims{}
			token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(secret), nil
			})
			if err != nil || !token.Valid {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			act, ok := actorFromClaims(claims)
			if !ok {
				http.Error(w, "unknown actor role", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r.WithContext(actor.WithActor(r.Context(), act)))
		})
	}
}

func actorFromClaims(claims ActorClaims) (actor.Actor, bool) {
	if claims.Subject == "" {
		return actor.Actor{}, false
	}
	role := actor.Role(claims.Role)
	switch role {
	case actor.RolePatient, actor.RoleStaff, actor.RoleClinician, actor.RoleAdmin:
		return actor.Actor{ID: claims.Subject, Role: role}, true
	}
	return actor.Actor{}, false
}

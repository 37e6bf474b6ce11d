package main

import (
	"fmt"
	"strings"

	"github.com/abhishek622/evalengine/internal/auth"
	"github.com/abhishek622/evalengine/internal/handler"
	"github.com/abhishek622/evalengine/pkg/response"
	"github.com/gin-gonic/gin"
)

func (app *application) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := verifyClaimsFromAuthHeader(c, app.Handler.TokenMaker)
		if err != nil {
			response.Unauthorized(c, err.Error())
			return
		}

		c.Set(handler.ClaimsKey, claims)
		c.Next()
	}
}

// AdminAuthMiddleware runs after AuthMiddleware and admits admin callers only.
func (app *application) AdminAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := app.Handler.GetClaimsFromContext(c)
		if claims == nil {
			response.Unauthorized(c, "")
			return
		}
		if !claims.IsAdmin {
			response.Forbidden(c, "admin access required")
			return
		}
		c.Next()
	}
}

func verifyClaimsFromAuthHeader(c *gin.Context, tokenMaker *auth.JWTMaker) (*auth.UserClaims, error) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return nil, fmt.Errorf("authorization header is missing")
	}

	fields := strings.Fields(authHeader)
	if len(fields) != 2 || fields[0] != "Bearer" {
		return nil, fmt.Errorf("invalid authorization header")
	}

	claims, err := tokenMaker.VerifyToken(fields[1])
	if err != nil {
		return nil, fmt.Errorf("invalid token")
	}

	return claims, nil
}

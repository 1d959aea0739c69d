package models

import (
	"github.com/golang-jwt/jwt/v5"
)

type SessionClaims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

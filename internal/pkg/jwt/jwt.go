package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

// Claims JWT Claims结构
// 本服务只消费外部签发的 token，user_id 是唯一必需字段
type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// Validator Bearer Token 校验器
type Validator struct {
	secret []byte
}

// NewValidator 创建校验器
func NewValidator(secret string) *Validator {
	return &Validator{secret: []byte(secret)}
}

// Validate 验证 Token 并返回 Claims
func (v *Validator) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return v.secret, nil
	}, jwt.WithLeeway(30*time.Second))

	if err != nil {
		// jwt/v5 使用 errors.Is 来检查错误类型
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}

	return nil, ErrInvalidToken
}

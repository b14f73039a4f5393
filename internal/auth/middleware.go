package auth

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

// CallerContextKey 请求上下文中保存调用方信息的键
const CallerContextKey contextKey = "caller"

// 认证方式
const (
	MethodFunctionKey = "function_key"
	MethodJWT         = "jwt"
)

// Caller 已认证调用方的信息。
type Caller struct {
	ID     string
	Role   string
	Method string
}

// Middleware 认证中间件。
// 依次尝试函数密钥（请求头或 code 查询参数）和 JWT Bearer Token。
type Middleware struct {
	jwt       *JWTManager
	keyHeader string
	keys      *FunctionKeyValidator
	enabled   bool
}

// NewMiddleware 创建认证中间件，jwt 和 keys 都可为 nil。
func NewMiddleware(jwt *JWTManager, keyHeader string, keys *FunctionKeyValidator, enabled bool) *Middleware {
	return &Middleware{
		jwt:       jwt,
		keyHeader: keyHeader,
		keys:      keys,
		enabled:   enabled,
	}
}

// Authenticate 包装处理器，认证失败返回 401。
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.enabled {
			next.ServeHTTP(w, r)
			return
		}

		key := r.Header.Get(m.keyHeader)
		if key == "" {
			key = r.URL.Query().Get("code")
		}
		if key != "" && m.keys != nil {
			if caller, err := m.keys.Validate(key); err == nil {
				next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), CallerContextKey, caller)))
				return
			}
		}

		if m.jwt != nil {
			if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
				if claims, err := m.jwt.Validate(token); err == nil {
					caller := &Caller{ID: claims.Subject, Role: claims.Role, Method: MethodJWT}
					next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), CallerContextKey, caller)))
					return
				}
			}
		}

		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
	})
}

// GetCaller 从请求上下文中提取调用方，未认证时返回 nil。
func GetCaller(ctx context.Context) *Caller {
	if c, ok := ctx.Value(CallerContextKey).(*Caller); ok {
		return c
	}
	return nil
}

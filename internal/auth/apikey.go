// Package auth 保护 HTTP 触发器：支持函数密钥和 JWT Bearer 两种认证方式。
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
)

// ErrInvalidFunctionKey 表示函数密钥不匹配
var ErrInvalidFunctionKey = errors.New("invalid function key")

// GenerateFunctionKey 生成一个新的函数密钥。
// 返回原始密钥（以 "nrf_" 为前缀）和它的 SHA-256 哈希值。
func GenerateFunctionKey() (string, string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", "", err
	}
	key := "nrf_" + hex.EncodeToString(buf)
	return key, HashFunctionKey(key), nil
}

// HashFunctionKey 计算函数密钥的 SHA-256 哈希值（十六进制编码）。
func HashFunctionKey(key string) string {
	h := sha256.Sum256([]byte(key))
	return hex.EncodeToString(h[:])
}

// FunctionKeyValidator 校验请求携带的函数密钥，只保存配置密钥的哈希。
type FunctionKeyValidator struct {
	hash []byte
}

// NewFunctionKeyValidator 创建校验器，key 为空时返回 nil。
func NewFunctionKeyValidator(key string) *FunctionKeyValidator {
	if key == "" {
		return nil
	}
	sum := sha256.Sum256([]byte(key))
	return &FunctionKeyValidator{hash: sum[:]}
}

// Validate 使用常量时间比较哈希值。
func (v *FunctionKeyValidator) Validate(key string) (*Caller, error) {
	if v == nil {
		return nil, ErrInvalidFunctionKey
	}
	sum := sha256.Sum256([]byte(key))
	if subtle.ConstantTimeCompare(sum[:], v.hash) != 1 {
		return nil, ErrInvalidFunctionKey
	}
	return &Caller{ID: "function-key", Method: MethodFunctionKey}, nil
}

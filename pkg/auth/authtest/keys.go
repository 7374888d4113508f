// Package authtest 提供测试用的 RSA 私钥
package authtest

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/hex"
	"sync"
	"testing"
)

var (
	once   sync.Once
	shared *rsa.PrivateKey
	genErr error
)

// Key 返回进程内共享的 2048 位测试私钥
func Key(t testing.TB) *rsa.PrivateKey {
	t.Helper()
	once.Do(func() {
		shared, genErr = rsa.GenerateKey(rand.Reader, 2048)
	})
	if genErr != nil {
		t.Fatalf("generate rsa key: %v", genErr)
	}
	return shared
}

// KeyHex 返回共享测试私钥的十六进制 PKCS#8 编码
func KeyHex(t testing.TB) string {
	t.Helper()
	return EncodeKeyHex(t, Key(t))
}

// EncodeKeyHex 将私钥编码为十六进制 PKCS#8
func EncodeKeyHex(t testing.TB, key any) string {
	t.Helper()
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatalf("marshal pkcs8: %v", err)
	}
	return hex.EncodeToString(der)
}

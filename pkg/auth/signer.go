package auth

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	pkgerrors "pagptclient/pkg/errors"
)

// Signer 开放平台请求签名器
// 私钥为十六进制编码的 DER PKCS#8 RSA 私钥，签名算法 RSA-PKCS1v15 + SHA-256
type Signer struct {
	key *rsa.PrivateKey
}

// NewSigner 解析私钥并创建签名器
func NewSigner(privateKeyHex string) (*Signer, error) {
	key, err := ParsePrivateKeyHex(privateKeyHex)
	if err != nil {
		return nil, err
	}
	return &Signer{key: key}, nil
}

// ParsePrivateKeyHex 解析十六进制 PKCS#8 私钥
func ParsePrivateKeyHex(privateKeyHex string) (*rsa.PrivateKey, error) {
	der, err := hex.DecodeString(strings.TrimSpace(privateKeyHex))
	if err != nil {
		return nil, pkgerrors.NewCryptoKeyInvalid(err, "private key is not valid hex")
	}

	parsed, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, pkgerrors.NewCryptoKeyInvalid(err, "private key is not DER PKCS#8")
	}

	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, pkgerrors.NewCryptoKeyInvalid(nil, fmt.Sprintf("private key type %T is not RSA", parsed))
	}
	return key, nil
}

// Sign 对请求时间戳签名，返回大写十六进制签名
func (s *Signer) Sign(requestTime string) (string, error) {
	sig, err := jwt.SigningMethodRS256.Sign(requestTime, s.key)
	if err != nil {
		return "", pkgerrors.NewCryptoSignError(err, "")
	}
	return strings.ToUpper(hex.EncodeToString(sig)), nil
}

// Verify 校验签名，主要用于测试和排查网关鉴权失败
func (s *Signer) Verify(requestTime, signatureHex string) error {
	sig, err := hex.DecodeString(signatureHex)
	if err != nil {
		return pkgerrors.NewCryptoSignError(err, "signature is not valid hex")
	}
	if err := jwt.SigningMethodRS256.Verify(requestTime, sig, &s.key.PublicKey); err != nil {
		return pkgerrors.NewCryptoSignError(err, "signature mismatch")
	}
	return nil
}

// SignatureLength 签名的十六进制长度（2048 位密钥为 512）
func (s *Signer) SignatureLength() int {
	return s.key.Size() * 2
}

// Sign 一次性签名：解析私钥并对时间戳签名
func Sign(privateKeyHex, requestTime string) (string, error) {
	s, err := NewSigner(privateKeyHex)
	if err != nil {
		return "", err
	}
	return s.Sign(requestTime)
}

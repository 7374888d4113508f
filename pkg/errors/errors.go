package errors

import (
	"strconv"

	"github.com/go-kratos/kratos/v2/errors"
)

// Error reasons
const (
	ReasonCryptoKeyInvalid = "CRYPTO_KEY_INVALID"
	ReasonCryptoSignError  = "CRYPTO_SIGN_ERROR"
	ReasonTokenUnavailable = "TOKEN_UNAVAILABLE"
	ReasonDialogTransport  = "DIALOG_TRANSPORT"
	ReasonDialogRejected   = "DIALOG_REJECTED"
	ReasonInvalidParameter = "INVALID_PARAMETER"
	ReasonConfigError      = "CONFIG_ERROR"
)

// Common errors
var (
	ErrCryptoKeyInvalid = errors.New(CodeCryptoKeyInvalid, ReasonCryptoKeyInvalid, "private key cannot be parsed")
	ErrCryptoSignError  = errors.New(CodeCryptoSignError, ReasonCryptoSignError, "signing failed")
	ErrTokenUnavailable = errors.New(CodeTokenUnavailable, ReasonTokenUnavailable, "access token unavailable")
	ErrDialogTransport  = errors.New(CodeDialogTransport, ReasonDialogTransport, "dialog endpoint unreachable")
	ErrDialogRejected   = errors.New(CodeDialogRejected, ReasonDialogRejected, "dialog request rejected")
	ErrInvalidParameter = errors.New(CodeInvalidParameter, ReasonInvalidParameter, "invalid parameter")
	ErrConfigError      = errors.New(CodeConfigError, ReasonConfigError, "invalid configuration")
)

// NewCryptoKeyInvalid 私钥无法解析
func NewCryptoKeyInvalid(err error, message string) *errors.Error {
	return wrap(ErrCryptoKeyInvalid, err, message)
}

// NewCryptoSignError 签名失败
func NewCryptoSignError(err error, message string) *errors.Error {
	return wrap(ErrCryptoSignError, err, message)
}

// NewTokenUnavailable 获取 access token 失败
func NewTokenUnavailable(err error, message string) *errors.Error {
	return wrap(ErrTokenUnavailable, err, message)
}

// NewDialogTransport 对话接口网络错误
func NewDialogTransport(err error, message string) *errors.Error {
	return wrap(ErrDialogTransport, err, message)
}

// NewDialogRejected 对话接口返回非 2xx
func NewDialogRejected(status int, message string) *errors.Error {
	e := wrap(ErrDialogRejected, nil, message)
	return e.WithMetadata(map[string]string{
		"status": strconv.Itoa(status),
	})
}

// NewInvalidParameter 参数校验失败
func NewInvalidParameter(message string) *errors.Error {
	return wrap(ErrInvalidParameter, nil, message)
}

// NewConfigError 配置错误
func NewConfigError(err error, message string) *errors.Error {
	return wrap(ErrConfigError, err, message)
}

func wrap(base *errors.Error, cause error, message string) *errors.Error {
	e := errors.Clone(base)
	if message != "" {
		e.Message = message
	}
	if cause != nil {
		e = e.WithCause(cause)
	}
	return e
}

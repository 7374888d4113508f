package errors

import (
	"github.com/go-kratos/kratos/v2/errors"
)

// 错误码沿用 HTTP 语义：
// - 4xx: 调用方参数问题
// - 5xx: 本地密钥、配置或网关侧故障

const (
	CodeInvalidParameter = 400

	CodeCryptoKeyInvalid = 500
	CodeCryptoSignError  = 500
	CodeConfigError      = 500
	CodeDialogRejected   = 502
	CodeTokenUnavailable = 503
	CodeDialogTransport  = 503
)

// ==================== 错误判断函数 ====================

// IsCryptoKeyInvalid 判断是否为私钥解析错误
func IsCryptoKeyInvalid(err error) bool {
	return errors.Reason(err) == ReasonCryptoKeyInvalid
}

// IsCryptoSignError 判断是否为签名错误
func IsCryptoSignError(err error) bool {
	return errors.Reason(err) == ReasonCryptoSignError
}

// IsTokenUnavailable 判断是否为 token 获取失败
func IsTokenUnavailable(err error) bool {
	return errors.Reason(err) == ReasonTokenUnavailable
}

// IsDialogTransport 判断是否为对话接口网络错误
func IsDialogTransport(err error) bool {
	return errors.Reason(err) == ReasonDialogTransport
}

// IsDialogRejected 判断是否为对话接口拒绝
func IsDialogRejected(err error) bool {
	return errors.Reason(err) == ReasonDialogRejected
}

// IsInvalidParameter 判断是否为参数错误
func IsInvalidParameter(err error) bool {
	return errors.Reason(err) == ReasonInvalidParameter
}

// IsConfigError 判断是否为配置错误
func IsConfigError(err error) bool {
	return errors.Reason(err) == ReasonConfigError
}

// IsCryptoError 判断是否为签名链路上的密钥/签名错误，这类错误需要直接抛给调用方
func IsCryptoError(err error) bool {
	return IsCryptoKeyInvalid(err) || IsCryptoSignError(err)
}

// StatusOf 取出 DialogRejected 携带的 HTTP 状态码
func StatusOf(err error) string {
	if e := errors.FromError(err); e != nil {
		return e.Metadata["status"]
	}
	return ""
}

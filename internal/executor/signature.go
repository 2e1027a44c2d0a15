package executor

import (
	"crypto/rand"
	mathrand "math/rand"
)

// base58 字母表，不含易混淆的 0、O、I、l。
const signatureAlphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

// SignatureLength 是模拟交易签名的固定长度。
const SignatureLength = 88

// NewTxSignature 生成一个 88 位的模拟交易签名。
// 仅用于模拟，没有密码学意义，但不使用可预测的计数器。
func NewTxSignature() string {
	buf := make([]byte, SignatureLength)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand 在常规平台上不会失败，兜底退回 math/rand。
		for i := range buf {
			buf[i] = byte(mathrand.Intn(256))
		}
	}

	out := make([]byte, SignatureLength)
	for i, b := range buf {
		out[i] = signatureAlphabet[int(b)%len(signatureAlphabet)]
	}
	return string(out)
}

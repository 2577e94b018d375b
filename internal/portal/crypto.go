package portal

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"fmt"
)

// passwordPrefixLen is the number of zero bytes prepended to the password
// before encryption. The remote login endpoint decrypts and strips exactly
// this prefix, so the value is part of the protocol.
const passwordPrefixLen = 64

// EncryptPassword produces the credential string the login form expects:
// 64 zero bytes followed by the UTF-8 password, AES-128-CBC encrypted with a
// zero IV and PKCS7 padding, then base64 encoded. The key is the salt
// published on the login page, normalized to the AES-128 key size.
func EncryptPassword(password, salt string) (string, error) {
	block, err := aes.NewCipher(normalizeKey(salt))
	if err != nil {
		return "", fmt.Errorf("build password cipher: %w", err)
	}

	plain := make([]byte, passwordPrefixLen+len(password))
	copy(plain[passwordPrefixLen:], password)
	plain = pkcs7Pad(plain, block.BlockSize())

	out := make([]byte, len(plain))
	iv := make([]byte, block.BlockSize())
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, plain)

	return base64.StdEncoding.EncodeToString(out), nil
}

// normalizeKey fits the page salt to the 16-byte AES-128 key size: short
// salts are zero padded, long ones truncated.
func normalizeKey(salt string) []byte {
	key := make([]byte, 16)
	copy(key, salt)
	return key
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	pad := blockSize - len(data)%blockSize
	out := make([]byte, len(data)+pad)
	copy(out, data)
	for i := len(data); i < len(out); i++ {
		out[i] = byte(pad)
	}
	return out
}

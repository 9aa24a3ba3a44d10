package httpapi

import (
	"encoding/base64"

	"github.com/sunsided/yeet-yoink/internal/errors"
)

// decodeContentMD5 decodes an HTTP Content-MD5 header value, which per
// RFC 1864 is the base64 encoding of the 128-bit MD5 digest.
func decodeContentMD5(header string) ([]byte, error) {
	decoded, err := base64.StdEncoding.DecodeString(header)
	if err != nil {
		return nil, err
	}
	if len(decoded) != 16 {
		return nil, errors.New("decoded digest is not 128 bits")
	}
	return decoded, nil
}

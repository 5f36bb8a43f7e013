package query

import "unicode/utf8"

// DecodeUpload validates that an uploaded file's bytes are valid UTF-8
// source text, returning KindInputDecode on failure per the external
// interface's decode-error contract.
func DecodeUpload(body []byte) (string, error) {
	if !utf8.Valid(body) {
		return "", newError(KindInputDecode, ErrInvalidUTF8)
	}
	return string(body), nil
}

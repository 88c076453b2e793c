package token

import (
	"errors"
	"strings"

	"github.com/go-jose/go-jose/v4"

	"github.com/okian/uruk/internal/domain/registration"
)

// Only DEFLATE is defined for the JWE "zip" header.
const zipDeflate = "DEF"

// validateJWE decrypts a compact JWE and validates the nested JWS it carries.
func (v *Validator) validateJWE(compact string, p *registration.Policy) Outcome {
	hdr, ok := v.decodeHeader(compact)
	if !ok {
		return fail(StatusMalformed)
	}

	enc, present, valid := stringMember(hdr, "enc")
	switch {
	case !present || (valid && enc == ""):
		return fail(StatusMissingEncryptionAlgorithm)
	case !valid:
		return failHeader(StatusInvalidHeader, "enc")
	}
	alg, present, valid := stringMember(hdr, "alg")
	switch {
	case !present || (valid && alg == ""):
		return failHeader(StatusMissingHeader, "alg")
	case !valid:
		return failHeader(StatusInvalidHeader, "alg")
	}

	d := p.Decryption()
	if d == nil {
		return fail(StatusEncryptionKeyNotFound)
	}
	if !d.AllowsContentEncryption(enc) {
		return failHeader(StatusInvalidHeader, "enc")
	}
	if !d.AllowsKeyAlgorithm(alg) {
		return failHeader(StatusInvalidHeader, "alg")
	}
	zip, compressed, valid := stringMember(hdr, "zip")
	if compressed && (!valid || zip != zipDeflate) {
		return failHeader(StatusInvalidHeader, "zip")
	}

	obj, err := jose.ParseEncryptedCompact(compact, d.KeyAlgorithms(), d.ContentEncryptions())
	if err != nil {
		return fail(StatusMalformed)
	}
	plaintext, err := obj.Decrypt(d.Key())
	switch {
	case err == nil:
	case errors.Is(err, jose.ErrUnsupportedKeyType):
		return fail(StatusEncryptionKeyNotFound)
	case errors.Is(err, jose.ErrCryptoFailure):
		return fail(StatusDecryptionFailed)
	case compressed:
		return fail(StatusDecompressionFailed)
	default:
		return fail(StatusDecryptionFailed)
	}

	inner := strings.TrimSpace(string(plaintext))
	if strings.Count(inner, ".") != 2 {
		return fail(StatusMalformed)
	}
	return v.validateJWS(inner, p)
}

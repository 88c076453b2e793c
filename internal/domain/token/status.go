// Package token validates security event tokens against a registration policy.
package token

// Status is the reason a token failed validation.
type Status uint8

// Validation statuses. The set is closed; StatusCount must stay last.
const (
	StatusMalformed Status = iota
	StatusReplayed
	StatusExpired
	StatusMissingEncryptionAlgorithm
	StatusDecryptionFailed
	StatusNotYetValid
	StatusDecompressionFailed
	StatusCriticalHeaderMissing
	StatusCriticalHeaderUnsupported
	StatusInvalidClaim
	StatusMissingClaim
	StatusInvalidHeader
	StatusMissingHeader
	StatusKeyError
	StatusInvalidSignature
	StatusSignatureKeyNotFound
	StatusEncryptionKeyNotFound
	StatusUnspecified

	StatusCount
)

var statusNames = [StatusCount]string{
	StatusMalformed:                  "malformed",
	StatusReplayed:                   "replayed",
	StatusExpired:                    "expired",
	StatusMissingEncryptionAlgorithm: "missing_encryption_algorithm",
	StatusDecryptionFailed:           "decryption_failed",
	StatusNotYetValid:                "not_yet_valid",
	StatusDecompressionFailed:        "decompression_failed",
	StatusCriticalHeaderMissing:      "critical_header_missing",
	StatusCriticalHeaderUnsupported:  "critical_header_unsupported",
	StatusInvalidClaim:               "invalid_claim",
	StatusMissingClaim:               "missing_claim",
	StatusInvalidHeader:              "invalid_header",
	StatusMissingHeader:              "missing_header",
	StatusKeyError:                   "key_error",
	StatusInvalidSignature:           "invalid_signature",
	StatusSignatureKeyNotFound:       "signature_key_not_found",
	StatusEncryptionKeyNotFound:      "encryption_key_not_found",
	StatusUnspecified:                "unspecified",
}

// String returns the snake_case name of the status.
func (s Status) String() string {
	if s >= StatusCount {
		return "unknown"
	}
	return statusNames[s]
}

// IsKeyError reports whether the status belongs to the key-error category.
func (s Status) IsKeyError() bool {
	switch s {
	case StatusKeyError, StatusInvalidSignature, StatusSignatureKeyNotFound, StatusEncryptionKeyNotFound:
		return true
	default:
		return false
	}
}

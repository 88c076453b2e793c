// Package intake turns a raw security event token into an accept or reject decision.
package intake

import (
	"fmt"

	"github.com/okian/uruk/internal/domain/token"
)

// Description templates indexed by status. The array length pins the table to the
// status set; an empty entry means no description.
var descriptions = [token.StatusCount]string{
	token.StatusMalformed:                  "Malformed token.",
	token.StatusReplayed:                   "Duplicated token.",
	token.StatusExpired:                    "Expired token.",
	token.StatusMissingEncryptionAlgorithm: "Missing encryption algorithm in the header.",
	token.StatusDecryptionFailed:           "Unable to decrypt the token.",
	token.StatusNotYetValid:                "The token is not yet valid.",
	token.StatusDecompressionFailed:        "Unable to decompress the token.",
	token.StatusCriticalHeaderMissing:      "The critical header '%s' is missing.",
	token.StatusCriticalHeaderUnsupported:  "The critical header '%s' is not supported.",
	token.StatusInvalidClaim:               "The claim '%s' is invalid.",
	token.StatusMissingClaim:               "The claim '%s' is missing.",
	token.StatusInvalidHeader:              "The header '%s' is invalid.",
	token.StatusMissingHeader:              "The header '%s' is missing.",
	token.StatusKeyError:                   "",
	token.StatusInvalidSignature:           "",
	token.StatusSignatureKeyNotFound:       "",
	token.StatusEncryptionKeyNotFound:      "",
	token.StatusUnspecified:                "",
}

// Which failure field fills the %s of a template.
const (
	argNone = iota
	argHeader
	argClaim
)

var descriptionArgs = [token.StatusCount]uint8{
	token.StatusCriticalHeaderMissing:     argHeader,
	token.StatusCriticalHeaderUnsupported: argHeader,
	token.StatusInvalidClaim:              argClaim,
	token.StatusMissingClaim:              argClaim,
	token.StatusInvalidHeader:             argHeader,
	token.StatusMissingHeader:             argHeader,
}

// Classify maps a validation failure to the error code and description reported to the client.
// Key errors carry no description.
func Classify(f token.Failure) (ErrorCode, string) {
	if f.Status.IsKeyError() {
		return CodeInvalidKey, ""
	}
	if f.Status >= token.StatusCount {
		return CodeInvalidRequest, ""
	}
	tmpl := descriptions[f.Status]
	switch descriptionArgs[f.Status] {
	case argHeader:
		return CodeInvalidRequest, fmt.Sprintf(tmpl, f.Header)
	case argClaim:
		return CodeInvalidRequest, fmt.Sprintf(tmpl, f.Claim)
	default:
		return CodeInvalidRequest, tmpl
	}
}

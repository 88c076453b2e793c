package intake_test

import (
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/uruk/internal/domain/intake"
	"github.com/okian/uruk/internal/domain/token"
)

func TestClassify(t *testing.T) {
	Convey("Given validation failures", t, func() {
		Convey("When the status is a key error", func() {
			for _, s := range []token.Status{
				token.StatusKeyError, token.StatusInvalidSignature,
				token.StatusSignatureKeyNotFound, token.StatusEncryptionKeyNotFound,
			} {
				code, desc := intake.Classify(token.Failure{Status: s, Header: "alg", Claim: "iss"})
				So(code, ShouldEqual, intake.CodeInvalidKey)
				So(desc, ShouldBeEmpty)
			}
		})

		Convey("When the status has a fixed description", func() {
			fixed := map[token.Status]string{
				token.StatusMalformed:                  "Malformed token.",
				token.StatusReplayed:                   "Duplicated token.",
				token.StatusExpired:                    "Expired token.",
				token.StatusMissingEncryptionAlgorithm: "Missing encryption algorithm in the header.",
				token.StatusDecryptionFailed:           "Unable to decrypt the token.",
				token.StatusNotYetValid:                "The token is not yet valid.",
				token.StatusDecompressionFailed:        "Unable to decompress the token.",
			}
			for s, want := range fixed {
				code, desc := intake.Classify(token.Failure{Status: s})
				So(code, ShouldEqual, intake.CodeInvalidRequest)
				So(desc, ShouldEqual, want)
			}
		})

		Convey("When the status names a header or claim", func() {
			cases := []struct {
				f    token.Failure
				want string
			}{
				{token.Failure{Status: token.StatusCriticalHeaderMissing, Header: "exp"}, "The critical header 'exp' is missing."},
				{token.Failure{Status: token.StatusCriticalHeaderUnsupported, Header: "b64"}, "The critical header 'b64' is not supported."},
				{token.Failure{Status: token.StatusInvalidClaim, Claim: "aud"}, "The claim 'aud' is invalid."},
				{token.Failure{Status: token.StatusMissingClaim, Claim: "iss"}, "The claim 'iss' is missing."},
				{token.Failure{Status: token.StatusInvalidHeader, Header: "typ"}, "The header 'typ' is invalid."},
				{token.Failure{Status: token.StatusMissingHeader, Header: "alg"}, "The header 'alg' is missing."},
			}
			for _, c := range cases {
				code, desc := intake.Classify(c.f)
				So(code, ShouldEqual, intake.CodeInvalidRequest)
				So(desc, ShouldEqual, c.want)
			}
		})

		Convey("When the status is unspecified or unknown", func() {
			for _, s := range []token.Status{token.StatusUnspecified, token.StatusCount, token.Status(200)} {
				code, desc := intake.Classify(token.Failure{Status: s})
				So(code, ShouldEqual, intake.CodeInvalidRequest)
				So(desc, ShouldBeEmpty)
			}
		})

		Convey("When every status is classified twice", func() {
			Convey("Then the answers are identical and fully substituted", func() {
				for s := token.Status(0); s < token.StatusCount; s++ {
					f := token.Failure{Status: s, Header: "h", Claim: "c"}
					c1, d1 := intake.Classify(f)
					c2, d2 := intake.Classify(f)
					So(c1, ShouldEqual, c2)
					So(d1, ShouldEqual, d2)
					So(strings.Contains(d1, "%"), ShouldBeFalse)
				}
			})
		})
	})
}

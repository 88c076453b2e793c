package token

import (
	"encoding/json"
	"errors"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/okian/uruk/internal/domain/registration"
)

// Media type of a security event token in the "typ" header.
const setType = "secevent+jwt"

// Validator checks compact JWS and JWE security event tokens against a registration
// policy. It is safe for concurrent use.
type Validator struct {
	now     func() time.Time
	segment *jwt.Parser
}

// NewValidator creates a validator with configuration options.
func NewValidator(opts ...Option) *Validator {
	v := &Validator{
		now:     time.Now,
		segment: jwt.NewParser(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate decodes raw and checks it against p. The first failed check decides the outcome.
// p must not be nil.
func (v *Validator) Validate(raw []byte, p *registration.Policy) Outcome {
	if p == nil {
		panic("token: Validate called with nil policy")
	}
	compact := string(raw)
	if strings.TrimSpace(compact) != compact {
		return fail(StatusMalformed)
	}
	switch strings.Count(compact, ".") {
	case 2:
		return v.validateJWS(compact, p)
	case 4:
		return v.validateJWE(compact, p)
	default:
		return fail(StatusMalformed)
	}
}

func (v *Validator) validateJWS(compact string, p *registration.Policy) Outcome {
	hdr, ok := v.decodeHeader(compact)
	if !ok {
		return fail(StatusMalformed)
	}
	if out, bad := checkSignedHeader(hdr, p); bad {
		return out
	}

	claims := jwt.MapClaims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{p.Algorithm()}),
		jwt.WithoutClaimsValidation(),
		jwt.WithJSONNumber(),
	)
	_, err := parser.ParseWithClaims(compact, claims, func(*jwt.Token) (any, error) {
		return p.VerificationKey(), nil
	})
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrInvalidKeyType), errors.Is(err, jwt.ErrInvalidKey):
		return fail(StatusSignatureKeyNotFound)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return fail(StatusInvalidSignature)
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fail(StatusMalformed)
	default:
		return fail(StatusUnspecified)
	}

	iat, out, bad := v.checkTimes(claims, p)
	if bad {
		return out
	}
	return decodeClaims(claims, iat, p)
}

// decodeHeader decodes the protected header, the segment before the first dot.
func (v *Validator) decodeHeader(compact string) (map[string]any, bool) {
	seg, _, _ := strings.Cut(compact, ".")
	b, err := v.segment.DecodeSegment(seg)
	if err != nil {
		return nil, false
	}
	var hdr map[string]any
	if err := json.Unmarshal(b, &hdr); err != nil || hdr == nil {
		return nil, false
	}
	return hdr, true
}

// stringMember returns the named member as a string; valid is false when it is
// present with another type.
func stringMember(hdr map[string]any, name string) (value string, present, valid bool) {
	raw, present := hdr[name]
	if !present {
		return "", false, false
	}
	value, valid = raw.(string)
	return value, true, valid
}

func checkSignedHeader(hdr map[string]any, p *registration.Policy) (Outcome, bool) {
	alg, present, valid := stringMember(hdr, "alg")
	switch {
	case !present || (valid && alg == ""):
		return failHeader(StatusMissingHeader, "alg"), true
	case !valid || alg != p.Algorithm():
		return failHeader(StatusInvalidHeader, "alg"), true
	}

	if typ, present, valid := stringMember(hdr, "typ"); present {
		t := strings.TrimPrefix(strings.ToLower(typ), "application/")
		if !valid || t != setType {
			return failHeader(StatusInvalidHeader, "typ"), true
		}
	}

	raw, present := hdr["crit"]
	if !present {
		return Outcome{}, false
	}
	list, ok := raw.([]any)
	if !ok || len(list) == 0 {
		return failHeader(StatusInvalidHeader, "crit"), true
	}
	for _, item := range list {
		name, ok := item.(string)
		if !ok || name == "" {
			return failHeader(StatusInvalidHeader, "crit"), true
		}
		if !p.SupportsCritical(name) {
			return failHeader(StatusCriticalHeaderUnsupported, name), true
		}
		if _, ok := hdr[name]; !ok {
			return failHeader(StatusCriticalHeaderMissing, name), true
		}
	}
	return Outcome{}, false
}

// checkTimes validates exp, nbf and iat and returns iat, which may be nil.
func (v *Validator) checkTimes(claims jwt.MapClaims, p *registration.Policy) (*jwt.NumericDate, Outcome, bool) {
	if _, err := claims.GetExpirationTime(); err != nil {
		return nil, failClaim(StatusInvalidClaim, "exp"), true
	}
	if _, err := claims.GetNotBefore(); err != nil {
		return nil, failClaim(StatusInvalidClaim, "nbf"), true
	}
	iat, err := claims.GetIssuedAt()
	if err != nil {
		return nil, failClaim(StatusInvalidClaim, "iat"), true
	}

	tv := jwt.NewValidator(
		jwt.WithLeeway(p.ClockSkew()),
		jwt.WithTimeFunc(v.now),
		jwt.WithIssuedAt(),
	)
	if err := tv.Validate(claims); err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, fail(StatusExpired), true
		case errors.Is(err, jwt.ErrTokenNotValidYet):
			return nil, fail(StatusNotYetValid), true
		case errors.Is(err, jwt.ErrTokenUsedBeforeIssued):
			return nil, failClaim(StatusInvalidClaim, "iat"), true
		default:
			return nil, fail(StatusUnspecified), true
		}
	}

	if iat != nil && p.MaxTokenAge() > 0 && v.now().Sub(iat.Time) > p.MaxTokenAge()+p.ClockSkew() {
		return nil, fail(StatusExpired), true
	}
	return iat, Outcome{}, false
}

func decodeClaims(claims jwt.MapClaims, iat *jwt.NumericDate, p *registration.Policy) Outcome {
	iss, err := claims.GetIssuer()
	if err != nil {
		return failClaim(StatusInvalidClaim, "iss")
	}
	if iss == "" {
		return failClaim(StatusMissingClaim, "iss")
	}

	jti, present, valid := stringMember(claims, "jti")
	switch {
	case !present || (valid && jti == ""):
		return failClaim(StatusMissingClaim, "jti")
	case !valid:
		return failClaim(StatusInvalidClaim, "jti")
	}

	if iat == nil {
		return failClaim(StatusMissingClaim, "iat")
	}

	aud, err := claims.GetAudience()
	if err != nil {
		return failClaim(StatusInvalidClaim, "aud")
	}
	if len(aud) == 0 {
		return failClaim(StatusMissingClaim, "aud")
	}

	rawEvents, ok := claims["events"]
	if !ok {
		return failClaim(StatusMissingClaim, "events")
	}

	if !slices.Contains(aud, p.Audience()) {
		return failClaim(StatusInvalidClaim, "aud")
	}
	if want := p.Issuer(); want != "" && iss != want {
		return failClaim(StatusInvalidClaim, "iss")
	}

	events, ok := decodeEvents(rawEvents)
	if !ok {
		return failClaim(StatusInvalidClaim, "events")
	}

	d := Decoded{
		Issuer:   iss,
		Audience: aud,
		JTI:      jti,
		IssuedAt: iat.Time,
		Events:   events,
	}

	if sub, present, valid := stringMember(claims, "sub"); present {
		if !valid {
			return failClaim(StatusInvalidClaim, "sub")
		}
		d.Subject = sub
	}
	if txn, present, valid := stringMember(claims, "txn"); present {
		if !valid {
			return failClaim(StatusInvalidClaim, "txn")
		}
		d.TransactionID = txn
	}
	if raw, present := claims["toe"]; present {
		toe, ok := numericDate(raw)
		if !ok {
			return failClaim(StatusInvalidClaim, "toe")
		}
		d.TimeOfEvent = toe
	}

	return Succeeded(d)
}

// decodeEvents requires a non-empty JSON object whose members are objects.
func decodeEvents(raw any) (map[string]json.RawMessage, bool) {
	m, ok := raw.(map[string]any)
	if !ok || len(m) == 0 {
		return nil, false
	}
	events := make(map[string]json.RawMessage, len(m))
	for typ, payload := range m {
		if typ == "" {
			return nil, false
		}
		if _, ok := payload.(map[string]any); !ok {
			return nil, false
		}
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, false
		}
		events[typ] = b
	}
	return events, true
}

func numericDate(raw any) (time.Time, bool) {
	var secs float64
	switch n := raw.(type) {
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return time.Time{}, false
		}
		secs = f
	case float64:
		secs = n
	default:
		return time.Time{}, false
	}
	whole, frac := math.Modf(secs)
	return time.Unix(int64(whole), int64(frac*float64(time.Second))), true
}

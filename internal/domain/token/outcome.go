package token

import (
	"encoding/json"
	"maps"
	"time"
)

// Decoded is the validated content of a security event token.
type Decoded struct {
	Issuer        string
	Audience      []string
	JTI           string
	IssuedAt      time.Time
	Subject       string
	TransactionID string
	TimeOfEvent   time.Time
	Events        map[string]json.RawMessage
}

// EventTypes returns the event type URIs carried by the token.
func (d Decoded) EventTypes() []string {
	types := make([]string, 0, len(d.Events))
	for k := range d.Events {
		types = append(types, k)
	}
	return types
}

func (d Decoded) clone() Decoded {
	d.Audience = append([]string(nil), d.Audience...)
	d.Events = maps.Clone(d.Events)
	return d
}

// Failure describes why validation failed. Header or Claim names the offending
// element for statuses that refer to one.
type Failure struct {
	Status Status
	Header string
	Claim  string
}

// Outcome is either a decoded token or a failure, never both.
type Outcome struct {
	token   Decoded
	failure Failure
	ok      bool
}

// Succeeded wraps a decoded token.
func Succeeded(d Decoded) Outcome {
	return Outcome{token: d.clone(), ok: true}
}

// Failed wraps a failure.
func Failed(f Failure) Outcome {
	return Outcome{failure: f}
}

// OK reports whether the token passed validation.
func (o Outcome) OK() bool { return o.ok }

// Token returns the decoded token when validation succeeded.
func (o Outcome) Token() (Decoded, bool) {
	if !o.ok {
		return Decoded{}, false
	}
	return o.token.clone(), true
}

// Failure returns the failure when validation did not succeed.
func (o Outcome) Failure() (Failure, bool) {
	return o.failure, !o.ok
}

func fail(s Status) Outcome { return Failed(Failure{Status: s}) }

func failHeader(s Status, header string) Outcome {
	return Failed(Failure{Status: s, Header: header})
}

func failClaim(s Status, claim string) Outcome {
	return Failed(Failure{Status: s, Claim: claim})
}

package gatestatus

import "fmt"

// HeaderName is the response header the proxy surface uses to report
// what the gatekeeper did with a request.
const HeaderName = "Gate-Status"

type StatusValue string

const (
	StatusHit      StatusValue = "hit"
	StatusFwd      StatusValue = "fwd"
	StatusFallback StatusValue = "fallback"
)

type FwdReason string

const (
	// The request method's semantics require the request to be forwarded.
	FwdReasonMethod FwdReason = "method"

	// The request targets a different origin than the application's own.
	FwdReasonOrigin FwdReason = "origin"

	// The request path matches a configured excluded prefix.
	FwdReasonExcluded FwdReason = "excluded"

	// The request path's extension is not on the static allow-list.
	FwdReasonExtension FwdReason = "extension"

	// The gate handled the request but had nothing stored for it.
	FwdReasonMiss FwdReason = "miss"
)

// Status collects what happened to a single request.
// The zero value means nothing has been decided yet.
type Status struct {
	Value     StatusValue
	FwdReason FwdReason
	Stored    bool
}

func (s *Status) Hit() {
	s.Value = StatusHit
}

func (s *Status) Forward(reason FwdReason) {
	s.Value = StatusFwd
	s.FwdReason = reason
}

func (s *Status) Fallback() {
	s.Value = StatusFallback
}

func (s Status) String() string {
	status := fmt.Sprintf("Cache-Gate; %s", s.Value)
	if s.Value == StatusFwd && s.FwdReason != "" {
		status = fmt.Sprintf("%s=%s", status, s.FwdReason)
	}
	if s.Stored {
		status = status + "; stored"
	}
	return status
}

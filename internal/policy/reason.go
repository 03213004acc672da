package policy

// Reason explains a policy decision. The set is closed.
type Reason string

const (
	ReasonOK             Reason = "ok"
	ReasonOutOfScope     Reason = "out_of_scope"
	ReasonSensitivePath  Reason = "sensitive_path"
	ReasonAgentDenied    Reason = "agent_denied"
	ReasonTypeDenied     Reason = "type_denied"
	ReasonTypeNotAllowed Reason = "type_not_allowed"
	ReasonFileTooLarge   Reason = "file_too_large"
	ReasonManualPolicy   Reason = "manual_policy"
	ReasonStatFailed     Reason = "stat_failed"
)

// AllReasons lists every reason in a stable order, for reports.
var AllReasons = []Reason{
	ReasonOK,
	ReasonOutOfScope,
	ReasonSensitivePath,
	ReasonAgentDenied,
	ReasonTypeDenied,
	ReasonTypeNotAllowed,
	ReasonFileTooLarge,
	ReasonManualPolicy,
	ReasonStatFailed,
}

// Valid reports whether r belongs to the enumeration.
func (r Reason) Valid() bool {
	for _, v := range AllReasons {
		if r == v {
			return true
		}
	}
	return false
}

func (r Reason) String() string { return string(r) }

// Decision is the oracle's answer for one path.
// Allowed is false exactly when Reason is not ReasonOK.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  Reason `json:"reason"`
}

// Allow returns an allowing decision.
func Allow() Decision { return Decision{Allowed: true, Reason: ReasonOK} }

// Deny returns a denying decision. An empty or unknown reason is coerced to
// manual_policy so a denial always carries a reason.
func Deny(reason Reason) Decision {
	if reason == ReasonOK || !reason.Valid() {
		reason = ReasonManualPolicy
	}
	return Decision{Allowed: false, Reason: reason}
}

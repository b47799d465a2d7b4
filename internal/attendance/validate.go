package attendance

import "strings"

// Normalize trims every free-text field and drops blank names.
// Proxy submissions carry no attendee names.
func (s Submission) Normalize() Submission {
	s.PlanID = strings.TrimSpace(s.PlanID)
	s.LotID = strings.TrimSpace(s.LotID)
	s.ProxyHolderLot = strings.TrimSpace(s.ProxyHolderLot)
	s.CompanyRep = strings.TrimSpace(s.CompanyRep)

	if s.IsProxy() {
		s.Names = nil
		return s
	}
	names := make([]string, 0, len(s.Names))
	for _, n := range s.Names {
		if n = strings.TrimSpace(n); n != "" {
			names = append(names, n)
		}
	}
	s.Names = names
	return s
}

// Validate checks required fields. It never mutates the submission.
//
// proxy indicates the caller flagged the submission as a proxy vote; the
// proxy holder lot is then required even though it is what makes IsProxy true.
func (s Submission) Validate(proxy bool) error {
	if s.PlanID == "" {
		return NewValidationError("plan", "a plan must be selected")
	}
	if s.LotID == "" {
		return NewValidationError("lot", "a lot number is required")
	}
	if proxy {
		if s.ProxyHolderLot == "" {
			return NewValidationError("proxy_holder_lot", "the proxy holder lot number is required")
		}
		if s.ProxyHolderLot == s.LotID {
			return NewValidationError("proxy_holder_lot", "a lot cannot hold its own proxy")
		}
		return nil
	}
	if len(s.Names) == 0 {
		return NewValidationError("names", "at least one attendee must be selected")
	}
	return nil
}

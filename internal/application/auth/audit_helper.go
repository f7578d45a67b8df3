package auth

import (
	"errors"

	"github.com/baechuer/real-time-ressys/services/user-service/internal/domain"
)

func domainCode(err error) string {
	if err == nil {
		return ""
	}
	var de *domain.Error
	if errors.As(err, &de) {
		return de.Code
	}
	return "non_domain_error"
}

// auditor collects the common fields of one audited action.
type auditor struct {
	s      *Service
	action string
	base   map[string]string
}

func (s *Service) auditFor(action string, base map[string]string) auditor {
	return auditor{s: s, action: action, base: base}
}

func (a auditor) record(err error, extra map[string]string) {
	fields := make(map[string]string, len(a.base)+len(extra)+2)
	for k, v := range a.base {
		fields[k] = v
	}
	for k, v := range extra {
		fields[k] = v
	}
	if err != nil {
		fields["result"] = "error"
		fields["error_code"] = domainCode(err)
	} else {
		fields["result"] = "success"
	}
	a.s.audit(a.action, fields)
}

// Package categorize routes leads to the verification pipeline, the
// delivery pipeline, or a terminal skip, based on their last verification
// outcome and the campaign's send criteria.
package categorize

import (
	"strings"

	"github.com/Karthik-beta/Pivotr-Mailer-sub002/internal/email"
	"github.com/Karthik-beta/Pivotr-Mailer-sub002/internal/models"
)

// SkippedLead pairs a lead with its machine-readable skip reason
type SkippedLead struct {
	Lead   *models.Lead
	Reason string
}

// Categorized is the three-way partition of a lead batch. Every input
// lead appears in exactly one list.
type Categorized struct {
	NeedsVerification []*models.Lead
	ReadyToSend       []*models.Lead
	Skipped           []SkippedLead
}

// CategorizeLeads partitions leads by verification outcome. Pure: it
// reads its inputs and mutates nothing. Rules, in priority order:
// a blocked recipient domain is a terminal skip before anything else;
// verified-ok sends; catch-all and unknown send only when the campaign
// allows them; invalid, spamtrap, and disposable are terminal skips;
// anything else still needs verification.
func CategorizeLeads(leads []*models.Lead, campaign *models.Campaign) Categorized {
	var out Categorized

	for _, lead := range leads {
		if domainBlocked(lead.Email, campaign.SendCriteria.BlockedDomains) {
			out.Skipped = append(out.Skipped, SkippedLead{Lead: lead, Reason: "domain_blocked"})
			continue
		}

		switch lead.VerificationStatus {
		case models.VerificationOK:
			out.ReadyToSend = append(out.ReadyToSend, lead)

		case models.VerificationCatchAll:
			if campaign.SendCriteria.AllowCatchAll {
				out.ReadyToSend = append(out.ReadyToSend, lead)
			} else {
				out.Skipped = append(out.Skipped, SkippedLead{Lead: lead, Reason: "catch_all_not_allowed"})
			}

		case models.VerificationUnknown:
			if campaign.SendCriteria.AllowUnknown {
				out.ReadyToSend = append(out.ReadyToSend, lead)
			} else {
				out.Skipped = append(out.Skipped, SkippedLead{Lead: lead, Reason: "unknown_not_allowed"})
			}

		case models.VerificationInvalid, models.VerificationSpamtrap, models.VerificationDisposable:
			out.Skipped = append(out.Skipped, SkippedLead{Lead: lead, Reason: "invalid_email_" + string(lead.VerificationStatus)})

		default:
			out.NeedsVerification = append(out.NeedsVerification, lead)
		}
	}

	return out
}

func domainBlocked(address string, blocked []string) bool {
	if len(blocked) == 0 {
		return false
	}
	domain := email.ExtractDomain(address)
	if domain == "" {
		return false
	}
	for _, b := range blocked {
		if domain == strings.ToLower(strings.TrimSpace(b)) {
			return true
		}
	}
	return false
}

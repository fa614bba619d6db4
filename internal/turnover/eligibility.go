package turnover

import "turnline/internal/domain"

// Exclusion names why a person does not take part in a turnover roll. The
// empty Exclusion means the person is eligible.
type Exclusion string

const (
	Eligible          Exclusion = ""
	ExcludedInactive  Exclusion = "inactive"
	ExcludedDependent Exclusion = "dependent"
	ExcludedPrisoner  Exclusion = "not free"
	ExcludedDeployed  Exclusion = "deployed"
	ExcludedFounder   Exclusion = "founder"
	ExcludedSquad     Exclusion = "squad member"
)

// Eligibility reports whether p may roll for turnover. Squad members other
// than the designated commander leave or stay with their unit, which the
// caller resolves as a whole.
func Eligibility(p domain.Person, founderRetirement bool) Exclusion {
	switch {
	case !p.IsActive():
		return ExcludedInactive
	case p.PrimaryRole == domain.RoleDependent:
		return ExcludedDependent
	case !p.IsFree():
		return ExcludedPrisoner
	case p.Deployed:
		return ExcludedDeployed
	case p.Founder && !founderRetirement:
		return ExcludedFounder
	case p.PrimaryRole.IsSquadMember() && p.UnitID != "" && !p.UnitCommander:
		return ExcludedSquad
	}
	return Eligible
}

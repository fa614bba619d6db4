package domain

import "fmt"

type Role string

const (
	RoleNone                      Role = "none"
	RoleMekWarrior                Role = "mekwarrior"
	RoleAerospacePilot            Role = "aerospace_pilot"
	RoleConventionalAircraftPilot Role = "conventional_aircraft_pilot"
	RoleVehicleCrew               Role = "vehicle_crew"
	RoleSoldier                   Role = "soldier"
	RoleBattleArmour              Role = "battle_armour"
	RoleVesselCrew                Role = "vessel_crew"
	RoleTech                      Role = "tech"
	RoleDoctor                    Role = "doctor"
	RoleAdmin                     Role = "admin"
	RoleDependent                 Role = "dependent"
)

var knownRoles = map[Role]bool{
	RoleNone: true, RoleMekWarrior: true, RoleAerospacePilot: true, RoleConventionalAircraftPilot: true,
	RoleVehicleCrew: true, RoleSoldier: true, RoleBattleArmour: true, RoleVesselCrew: true,
	RoleTech: true, RoleDoctor: true, RoleAdmin: true, RoleDependent: true,
}

// Valid reports whether r is a known role. The empty role counts as none.
func (r Role) Valid() bool { return r == "" || knownRoles[r] }

func (r Role) IsNone() bool { return r == "" || r == RoleNone }

// IsCombat reports whether the role fights in a unit.
func (r Role) IsCombat() bool {
	switch r {
	case RoleMekWarrior, RoleAerospacePilot, RoleConventionalAircraftPilot, RoleVehicleCrew,
		RoleSoldier, RoleBattleArmour, RoleVesselCrew:
		return true
	}
	return false
}

// IsSupport reports whether the role is a non-combat staff role.
func (r Role) IsSupport() bool {
	switch r {
	case RoleTech, RoleDoctor, RoleAdmin:
		return true
	}
	return false
}

func (r Role) IsAerospacePilot() bool { return r == RoleAerospacePilot }

func (r Role) IsInfantry() bool { return r == RoleSoldier }

// IsSquadMember reports roles resolved as a whole squad by their commander.
func (r Role) IsSquadMember() bool { return r == RoleSoldier || r == RoleBattleArmour }

// IsUnitPilot reports roles that leave with a unit of a given weight class.
func (r Role) IsUnitPilot() bool {
	return r == RoleMekWarrior || r == RoleVehicleCrew || r == RoleAerospacePilot
}

// Experience is the five-point skill rating of a person.
type Experience int

const (
	ExperienceUnknown    Experience = -1
	ExperienceUltraGreen Experience = 0
	ExperienceGreen      Experience = 1
	ExperienceRegular    Experience = 2
	ExperienceVeteran    Experience = 3
	ExperienceElite      Experience = 4
)

func (e Experience) Valid() bool { return e >= ExperienceUltraGreen && e <= ExperienceElite }

func (e Experience) String() string {
	switch e {
	case ExperienceUltraGreen:
		return "Ultra-Green"
	case ExperienceGreen:
		return "Green"
	case ExperienceRegular:
		return "Regular"
	case ExperienceVeteran:
		return "Veteran"
	case ExperienceElite:
		return "Elite"
	default:
		return "Unknown"
	}
}

// UnitRating is the organization's quality rating, F (0) through A* (5).
type UnitRating int

const (
	RatingF UnitRating = iota
	RatingD
	RatingC
	RatingB
	RatingA
	RatingAStar
)

func (r UnitRating) Valid() bool { return r >= RatingF && r <= RatingAStar }

func (r UnitRating) String() string {
	switch r {
	case RatingF:
		return "F"
	case RatingD:
		return "D"
	case RatingC:
		return "C"
	case RatingB:
		return "B"
	case RatingA:
		return "A"
	case RatingAStar:
		return "A*"
	default:
		return fmt.Sprintf("rating(%d)", int(r))
	}
}

type WeightClass int

const (
	WeightUltraLight WeightClass = iota
	WeightLight
	WeightMedium
	WeightHeavy
	WeightAssault
	WeightSuperHeavy
)

// Shift moves the weight class by delta, clamped to the known classes.
func (w WeightClass) Shift(delta int) WeightClass {
	next := int(w) + delta
	if next < int(WeightUltraLight) {
		return WeightUltraLight
	}
	if next > int(WeightSuperHeavy) {
		return WeightSuperHeavy
	}
	return WeightClass(next)
}

type PersonStatus string

const (
	StatusActive    PersonStatus = "active"
	StatusRetired   PersonStatus = "retired"
	StatusDeserted  PersonStatus = "deserted"
	StatusKilled    PersonStatus = "killed"
	StatusDismissed PersonStatus = "dismissed"
)

type PrisonerStatus string

const (
	PrisonerFree     PrisonerStatus = "free"
	PrisonerPrisoner PrisonerStatus = "prisoner"
	PrisonerBondsman PrisonerStatus = "bondsman"
)

type ContractStatus string

const (
	ContractActive  ContractStatus = "active"
	ContractSuccess ContractStatus = "success"
	ContractPartial ContractStatus = "partial"
	ContractFailed  ContractStatus = "failed"
	ContractBreach  ContractStatus = "breach"
)

func (s ContractStatus) Valid() bool {
	switch s {
	case ContractActive, ContractSuccess, ContractPartial, ContractFailed, ContractBreach:
		return true
	}
	return false
}

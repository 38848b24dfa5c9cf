package capability

// Requirement is the capability an operation demands of its caller.
// The set is closed; every ledger-scoped operation picks exactly one.
type Requirement int

const (
	RequireRead Requirement = iota
	RequireRecord
	RequireConfigure
	RequireManage
)

var requirementChecks = map[Requirement]func(Level) bool{
	RequireRead:      CanRead,
	RequireRecord:    CanRecord,
	RequireConfigure: CanConfigure,
	RequireManage:    CanManage,
}

// Allows reports whether a caller holding level satisfies the requirement.
// Unknown requirements allow nothing.
func (r Requirement) Allows(level Level) bool {
	check, ok := requirementChecks[r]
	if !ok {
		return false
	}
	return check(level)
}

func (r Requirement) String() string {
	switch r {
	case RequireRead:
		return "read"
	case RequireRecord:
		return "record"
	case RequireConfigure:
		return "configure"
	case RequireManage:
		return "manage"
	default:
		return "unknown"
	}
}

package workflow

// AssessmentACL carries the relationship facts the access gate needs. It is
// resolved from storage once per operation so the predicates themselves stay
// pure and testable without any persistence dependency.
type AssessmentACL struct {
	LeadAuditorID string
	TeamMemberIDs map[string]struct{}
}

// NewAssessmentACL builds the relationship context from an assessment and its
// team roster.
func NewAssessmentACL(a Assessment, team []TeamMember) AssessmentACL {
	members := make(map[string]struct{}, len(team))
	for _, m := range team {
		members[m.UserID] = struct{}{}
	}
	return AssessmentACL{LeadAuditorID: a.LeadAuditorID, TeamMemberIDs: members}
}

func (acl AssessmentACL) isLead(userID string) bool {
	return userID != "" && userID == acl.LeadAuditorID
}

func (acl AssessmentACL) isTeamMember(userID string) bool {
	_, ok := acl.TeamMemberIDs[userID]
	return ok
}

// CanManage reports whether the caller may create, update or assign NCRs,
// corrective actions and responses on this assessment.
func CanManage(acl AssessmentACL, userID string, role Role) bool {
	if role == RoleSystemAdmin || role == RoleQualityManager {
		return true
	}
	if acl.isLead(userID) {
		return true
	}
	return role == RoleInternalAuditor && acl.isTeamMember(userID)
}

// CanVerify reports whether the caller may verify a corrective action or
// generate a report. Team membership alone is not enough.
func CanVerify(acl AssessmentACL, userID string, role Role) bool {
	if role == RoleSystemAdmin || role == RoleQualityManager {
		return true
	}
	return acl.isLead(userID)
}

// CanDelete reports whether the caller may delete NCRs, corrective actions or
// assessments. Relationship to the assessment does not matter here.
func CanDelete(role Role) bool {
	return role == RoleSystemAdmin || role == RoleQualityManager
}

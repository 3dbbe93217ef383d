package domain

// Principal is the resolved identity of a caller, produced by the external
// authentication resolver.
type Principal struct {
	UserID   string
	TenantID string

	// Permissions is the caller's plain permission set. It is never consulted
	// for tenant isolation decisions.
	Permissions []string

	// CrossTenantGrants lists tenant IDs the principal was individually
	// granted access to. Matching is exact: wildcard entries carry no meaning
	// here and never widen access.
	CrossTenantGrants []string
}

// HasGrantFor reports whether the principal carries an explicit grant for the
// given tenant. Only an exact entry counts.
func (p *Principal) HasGrantFor(tenantID string) bool {
	if tenantID == "" {
		return false
	}
	for _, g := range p.CrossTenantGrants {
		if g == tenantID {
			return true
		}
	}
	return false
}

// AccessDecision is the enumerated outcome of a tenant isolation check.
// Exactly one of the two fields being true authorizes access; everything else
// is a violation.
type AccessDecision struct {
	// TenantMatch is true when the principal's tenant equals the record's tenant.
	TenantMatch bool

	// CrossTenantGrant is true when the principal carries an explicit,
	// individually-granted capability for the record's tenant.
	CrossTenantGrant bool
}

// Authorized reports whether the decision permits access.
func (d AccessDecision) Authorized() bool {
	return d.TenantMatch || d.CrossTenantGrant
}

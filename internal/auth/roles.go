package auth

// Role is one of the three permission tiers. The tiers form a total
// order: viewer-user < privileged-user < admin-user.
type Role string

const (
	RoleViewer     Role = "viewer-user"
	RolePrivileged Role = "privileged-user"
	RoleAdmin      Role = "admin-user"
)

var roleRank = map[Role]int{
	RoleViewer:     1,
	RolePrivileged: 2,
	RoleAdmin:      3,
}

// Satisfies reports whether the role grants at least the required
// tier. Unknown roles rank zero and satisfy nothing.
func (r Role) Satisfies(required Role) bool {
	rank := roleRank[r]
	if rank == 0 {
		return false
	}
	return rank >= roleRank[required]
}

package domain

// DefaultGroupID is the id of Pi-hole's built-in "Default" group.
const DefaultGroupID = 0

// Group is identified by Name across instances; ID is instance-local.
type Group struct {
	ID      int
	Name    string
	Comment string
	Enabled bool
}

// ListEntry is identified by (Address, Type). Groups holds instance-local group ids
// and must be translated through group names when crossing instances.
type ListEntry struct {
	ID      int
	Address string
	Type    string
	Comment string
	Enabled bool
	Groups  []int
}

type ListKey struct {
	Address string
	Type    string
}

func (l ListEntry) Key() ListKey {
	return ListKey{Address: l.Address, Type: l.Type}
}

// UnresolvedReference records a group membership that could not be mapped onto a
// secondary and was replaced with the default group.
type UnresolvedReference struct {
	Host      string
	List      string
	GroupName string
	Reason    string
}

// AppPassword is returned by GET /auth/app.
type AppPassword struct {
	Password string
	Hash     string
}

package domain

type SyncMode string

const (
	// SyncModeSnapshot transfers the full teleporter archive.
	SyncModeSnapshot SyncMode = "teleporter"
	// SyncModeSelective transfers config subsets, groups and lists through typed API calls.
	SyncModeSelective SyncMode = "api"
)

func (m SyncMode) Valid() bool {
	return m == SyncModeSnapshot || m == SyncModeSelective
}

type FilterMode string

const (
	// FilterModeInclude keeps only the listed paths (opt-in).
	FilterModeInclude FilterMode = "include"
	// FilterModeExclude drops the listed paths (opt-out).
	FilterModeExclude FilterMode = "exclude"
)

func (m FilterMode) Valid() bool {
	return m == FilterModeInclude || m == FilterModeExclude
}

// SnapshotOptions selects which parts of a teleporter archive the secondary imports.
// The JSON shape is the one Pi-hole expects in the "import" multipart field.
type SnapshotOptions struct {
	Config     bool                 `json:"config"`
	DHCPLeases bool                 `json:"dhcp_leases"`
	Gravity    GravityImportOptions `json:"gravity"`
}

type GravityImportOptions struct {
	Group             bool `json:"group"`
	Adlist            bool `json:"adlist"`
	AdlistByGroup     bool `json:"adlist_by_group"`
	Domainlist        bool `json:"domainlist"`
	DomainlistByGroup bool `json:"domainlist_by_group"`
	Client            bool `json:"client"`
	ClientByGroup     bool `json:"client_by_group"`
}

// DefaultSnapshotOptions imports everything.
func DefaultSnapshotOptions() SnapshotOptions {
	return SnapshotOptions{
		Config:     true,
		DHCPLeases: true,
		Gravity: GravityImportOptions{
			Group:             true,
			Adlist:            true,
			AdlistByGroup:     true,
			Domainlist:        true,
			DomainlistByGroup: true,
			Client:            true,
			ClientByGroup:     true,
		},
	}
}

type ConfigSyncOptions struct {
	Mode  FilterMode
	Paths []string
}

type SelectiveOptions struct {
	// Config is nil when the target does not sync configuration.
	Config     *ConfigSyncOptions
	SyncGroups bool
	SyncLists  bool
}

// SyncTarget is a secondary endpoint plus its sync policy.
type SyncTarget struct {
	Endpoint      Endpoint
	Mode          SyncMode
	Snapshot      *SnapshotOptions
	Selective     SelectiveOptions
	UpdateGravity bool
}

func (t SyncTarget) Host() string {
	return t.Endpoint.Host
}

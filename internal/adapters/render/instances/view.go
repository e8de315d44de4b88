package instances

import (
	"fmt"
	"strings"

	"github.com/bnema/pihole-sync/internal/domain"
	"github.com/charmbracelet/lipgloss"
)

type RenderOptions struct {
	// ConfigPath is shown in the header when set.
	ConfigPath string
	// Verbose adds per-target import and filter options.
	Verbose bool
}

func renderView(config domain.Config, opts RenderOptions, s styles) string {
	header := fmt.Sprintf("secondaries: %d  trigger: %s  interval: %s",
		len(config.Secondaries), triggerLabel(config.Sync.TriggerMode), config.Sync.Interval)
	lines := []string{s.title.Render("Pi-hole instances")}
	if opts.ConfigPath != "" {
		lines = append(lines, s.header.Render("config: "+opts.ConfigPath))
	}
	lines = append(lines, s.header.Render(header))

	lines = append(lines, s.section.Render(renderEndpoint("main", config.Main, nil, s)))

	if len(config.Secondaries) == 0 {
		lines = append(lines, s.section.Render(s.empty.Render("No secondary instances configured.")))
		return lipgloss.JoinVertical(lipgloss.Left, lines...)
	}

	for _, target := range config.Secondaries {
		details := targetLines(target, opts, s)
		lines = append(lines, s.section.Render(renderEndpoint("secondary", target.Endpoint, details, s)))
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func renderEndpoint(role string, endpoint domain.Endpoint, details []string, s styles) string {
	parts := []string{
		lipgloss.JoinHorizontal(lipgloss.Top, s.host.Render(endpoint.Host), " ", s.role.Render("("+role+")")),
		field("url", endpointURL(endpoint), s),
		field("api key", credentialLabel(endpoint, s), s),
	}
	parts = append(parts, details...)
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func targetLines(target domain.SyncTarget, opts RenderOptions, s styles) []string {
	lines := []string{
		field("sync mode", modeLabel(target.Mode, s), s),
		field("update gravity", flag(target.UpdateGravity, s), s),
	}

	switch target.Mode {
	case domain.SyncModeSnapshot:
		if opts.Verbose {
			lines = append(lines, field("import", importLabel(target.Snapshot), s))
		}
	case domain.SyncModeSelective:
		lines = append(lines,
			field("groups", flag(target.Selective.SyncGroups, s), s),
			field("lists", flag(target.Selective.SyncLists, s), s),
		)
		if config := target.Selective.Config; config != nil {
			label := string(config.Mode)
			if opts.Verbose {
				label += " " + strings.Join(config.Paths, ", ")
			} else {
				label += fmt.Sprintf(" (%d keys)", len(config.Paths))
			}
			lines = append(lines, field("config", label, s))
		} else {
			lines = append(lines, field("config", flag(false, s), s))
		}
	}

	return lines
}

func field(key, value string, s styles) string {
	return "  " + s.key.Render(key+":") + " " + s.detail.Render(value)
}

func endpointURL(endpoint domain.Endpoint) string {
	scheme := endpoint.Scheme
	if scheme == "" {
		scheme = "http"
	}
	return scheme + "://" + endpoint.Address()
}

func credentialLabel(endpoint domain.Endpoint, s styles) string {
	if endpoint.CredentialRef != "" {
		return endpoint.CredentialRef
	}
	if endpoint.Credential == "" {
		return s.disabled.Render("none")
	}
	return s.hidden.Render("[hidden]")
}

func modeLabel(mode domain.SyncMode, s styles) string {
	switch mode {
	case domain.SyncModeSnapshot:
		return s.teleporter.Render("teleporter")
	case domain.SyncModeSelective:
		return s.api.Render("api")
	default:
		return string(mode)
	}
}

func triggerLabel(mode domain.TriggerMode) string {
	if mode == "" {
		return string(domain.TriggerModeInterval)
	}
	return string(mode)
}

func flag(on bool, s styles) string {
	if on {
		return s.enabled.Render("yes")
	}
	return s.disabled.Render("no")
}

func importLabel(opts *domain.SnapshotOptions) string {
	if opts == nil {
		return "everything"
	}

	var parts []string
	add := func(name string, on bool) {
		if on {
			parts = append(parts, name)
		}
	}
	add("config", opts.Config)
	add("dhcp_leases", opts.DHCPLeases)
	add("group", opts.Gravity.Group)
	add("adlist", opts.Gravity.Adlist)
	add("adlist_by_group", opts.Gravity.AdlistByGroup)
	add("domainlist", opts.Gravity.Domainlist)
	add("domainlist_by_group", opts.Gravity.DomainlistByGroup)
	add("client", opts.Gravity.Client)
	add("client_by_group", opts.Gravity.ClientByGroup)

	if len(parts) == 0 {
		return "nothing"
	}
	return strings.Join(parts, ", ")
}

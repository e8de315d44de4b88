package application

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strconv"
	"time"

	"github.com/bnema/pihole-sync/internal/domain"
	"github.com/bnema/pihole-sync/internal/ports"
)

// DefaultWriteThrottle is the pause between two write calls to the same secondary.
const DefaultWriteThrottle = 250 * time.Millisecond

// ReconcileResult counts the writes one reconciliation pass issued.
type ReconcileResult struct {
	Created  int
	Updated  int
	Warnings []domain.UnresolvedReference
}

func (r ReconcileResult) Writes() int {
	return r.Created + r.Updated
}

// WriteGate spaces out write calls to one secondary. It is shared by the group and
// list passes so the delay also holds across them.
type WriteGate struct {
	clock ports.Clock
	delay time.Duration
	wrote bool
}

func NewWriteGate(clock ports.Clock, delay time.Duration) *WriteGate {
	return &WriteGate{clock: clock, delay: delay}
}

func (g *WriteGate) wait(ctx context.Context) error {
	if g.wrote && g.delay > 0 {
		if err := g.clock.Sleep(ctx, g.delay); err != nil {
			return err
		}
	}
	g.wrote = true
	return nil
}

type Reconciler struct {
	logger *slog.Logger
}

func NewReconciler(logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{logger: logger}
}

// ReconcileGroups creates missing groups and updates groups whose comment or
// enabled flag differ. Groups that exist only on the secondary are left alone.
func (r *Reconciler) ReconcileGroups(ctx context.Context, store ports.GroupStore, gate *WriteGate, host string, mainGroups, secondaryGroups []domain.Group) (ReconcileResult, error) {
	byName := make(map[string]domain.Group, len(secondaryGroups))
	for _, group := range secondaryGroups {
		byName[group.Name] = group
	}

	var result ReconcileResult
	for _, group := range mainGroups {
		existing, ok := byName[group.Name]
		switch {
		case !ok:
			if err := gate.wait(ctx); err != nil {
				return result, err
			}
			if err := store.CreateGroup(ctx, group); err != nil {
				return result, fmt.Errorf("create group %q: %w", group.Name, err)
			}
			result.Created++
			r.logger.Debug("created group", "host", host, "group", group.Name)
		case existing.Comment != group.Comment || existing.Enabled != group.Enabled:
			if err := gate.wait(ctx); err != nil {
				return result, err
			}
			if err := store.UpdateGroup(ctx, existing.Name, group); err != nil {
				return result, fmt.Errorf("update group %q: %w", group.Name, err)
			}
			result.Updated++
			r.logger.Debug("updated group", "host", host, "group", group.Name)
		}
	}

	return result, nil
}

// ListInput is everything ReconcileLists needs about both sides. Group tables are
// used only to translate memberships by group name.
type ListInput struct {
	Host            string
	MainLists       []domain.ListEntry
	MainGroups      []domain.Group
	SecondaryLists  []domain.ListEntry
	SecondaryGroups []domain.Group
	// GroupsSynced is false when the secondary does not receive groups; memberships
	// other than the default group then collapse to the default group.
	GroupsSynced bool
}

func (r *Reconciler) ReconcileLists(ctx context.Context, store ports.ListStore, gate *WriteGate, in ListInput) (ReconcileResult, error) {
	mainNames := groupNamesByID(in.MainGroups)
	secondaryIDs := make(map[string]int, len(in.SecondaryGroups))
	for _, group := range in.SecondaryGroups {
		secondaryIDs[group.Name] = group.ID
	}

	existing := make(map[domain.ListKey]domain.ListEntry, len(in.SecondaryLists))
	for _, list := range in.SecondaryLists {
		existing[list.Key()] = list
	}

	var result ReconcileResult
	for _, list := range in.MainLists {
		desired := list
		desired.Groups = r.groupsForList(list, mainNames, secondaryIDs, in, &result)

		current, ok := existing[list.Key()]
		if ok && listsEqual(desired, current) {
			continue
		}

		if err := gate.wait(ctx); err != nil {
			return result, err
		}
		if ok {
			if err := store.UpdateList(ctx, desired); err != nil {
				return result, fmt.Errorf("update list %q: %w", list.Address, err)
			}
			result.Updated++
			r.logger.Debug("updated list", "host", in.Host, "list", list.Address, "type", list.Type)
			continue
		}
		if err := store.CreateList(ctx, desired); err != nil {
			return result, fmt.Errorf("create list %q: %w", list.Address, err)
		}
		result.Created++
		r.logger.Debug("created list", "host", in.Host, "list", list.Address, "type", list.Type)
	}

	return result, nil
}

func (r *Reconciler) groupsForList(list domain.ListEntry, mainNames map[int]string, secondaryIDs map[string]int, in ListInput, result *ReconcileResult) []int {
	raw := membership(list.Groups)

	if !in.GroupsSynced && slices.ContainsFunc(raw, func(id int) bool { return id != domain.DefaultGroupID }) {
		r.warn(result, domain.UnresolvedReference{
			Host:   in.Host,
			List:   list.Address,
			Reason: "group sync disabled on secondary; using default group",
		})
		return []int{domain.DefaultGroupID}
	}

	mapped := make([]int, 0, len(raw))
	for _, id := range raw {
		name := groupName(mainNames, id)
		if secondaryID, ok := secondaryIDs[name]; ok {
			mapped = append(mapped, secondaryID)
			continue
		}
		if id != domain.DefaultGroupID {
			r.warn(result, domain.UnresolvedReference{
				Host:      in.Host,
				List:      list.Address,
				GroupName: name,
				Reason:    "group missing on secondary; using default group",
			})
		}
		mapped = append(mapped, domain.DefaultGroupID)
	}

	return sortedUnique(mapped)
}

func (r *Reconciler) warn(result *ReconcileResult, ref domain.UnresolvedReference) {
	result.Warnings = append(result.Warnings, ref)
	r.logger.Warn(ref.Reason, "host", ref.Host, "list", ref.List, "group", ref.GroupName)
}

func listsEqual(desired, existing domain.ListEntry) bool {
	return desired.Comment == existing.Comment &&
		desired.Enabled == existing.Enabled &&
		slices.Equal(sortedUnique(membership(desired.Groups)), sortedUnique(membership(existing.Groups)))
}

// membership treats an empty group set as membership in the default group.
func membership(groups []int) []int {
	if len(groups) == 0 {
		return []int{domain.DefaultGroupID}
	}
	return groups
}

func sortedUnique(ids []int) []int {
	out := slices.Clone(ids)
	slices.Sort(out)
	return slices.Compact(out)
}

func groupNamesByID(groups []domain.Group) map[int]string {
	names := make(map[int]string, len(groups))
	for _, group := range groups {
		names[group.ID] = group.Name
	}
	return names
}

func groupName(names map[int]string, id int) string {
	if name, ok := names[id]; ok {
		return name
	}
	return "id:" + strconv.Itoa(id)
}

type normalizedGroup struct {
	Name    string `json:"name"`
	Comment string `json:"comment"`
	Enabled bool   `json:"enabled"`
}

// normalizeGroups drops instance-local ids so the hash only moves when a synced
// attribute does.
func normalizeGroups(groups []domain.Group) []normalizedGroup {
	out := make([]normalizedGroup, 0, len(groups))
	for _, group := range groups {
		out = append(out, normalizedGroup{Name: group.Name, Comment: group.Comment, Enabled: group.Enabled})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

type normalizedList struct {
	Address string   `json:"address"`
	Type    string   `json:"type"`
	Comment string   `json:"comment"`
	Enabled bool     `json:"enabled"`
	Groups  []string `json:"groups"`
}

// normalizeLists replaces group ids with group names.
func normalizeLists(lists []domain.ListEntry, groups []domain.Group) []normalizedList {
	names := groupNamesByID(groups)
	out := make([]normalizedList, 0, len(lists))
	for _, list := range lists {
		members := membership(list.Groups)
		groupNames := make([]string, 0, len(members))
		for _, id := range members {
			groupNames = append(groupNames, groupName(names, id))
		}
		sort.Strings(groupNames)
		out = append(out, normalizedList{
			Address: list.Address,
			Type:    list.Type,
			Comment: list.Comment,
			Enabled: list.Enabled,
			Groups:  groupNames,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Address != out[j].Address {
			return out[i].Address < out[j].Address
		}
		return out[i].Type < out[j].Type
	})
	return out
}

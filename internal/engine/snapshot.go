package engine

import (
	"context"
	"sort"
	"strings"

	"pressflow/internal/domain"
	"pressflow/internal/registry"
)

// FieldEntry is one requirement line in a snapshot: the display fields
// plus the resolved value.
type FieldEntry struct {
	Key       string `json:"key"`
	Label     string `json:"label"`
	Value     string `json:"value"`
	ShowValue bool   `json:"showValue"`
	HasValue  string `json:"hasValue"`
	NoValue   string `json:"noValue"`
}

// TaxEntry is one taxonomy requirement line: the term map stands in for
// the value, Count drives readiness.
type TaxEntry struct {
	Taxonomy  string           `json:"taxonomy"`
	Label     string           `json:"label"`
	Terms     map[int64]string `json:"terms,omitempty"`
	Count     int              `json:"count"`
	ShowValue bool             `json:"showValue"`
	HasValue  string           `json:"hasValue"`
	NoValue   string           `json:"noValue"`
}

// Snapshot is the full evaluation input for one item: every requirement
// entry with its value resolved, required and optional alike. Entries are
// sorted by key for stable output.
type Snapshot struct {
	RequiredPrimary    []FieldEntry `json:"requiredPrimary"`
	OptionalPrimary    []FieldEntry `json:"optionalPrimary"`
	RequiredMeta       []FieldEntry `json:"requiredMeta"`
	OptionalMeta       []FieldEntry `json:"optionalMeta"`
	RequiredGroups     []FieldEntry `json:"requiredGroups"`
	OptionalGroups     []FieldEntry `json:"optionalGroups"`
	RequiredTaxonomies []TaxEntry   `json:"requiredTaxonomies"`
	OptionalTaxonomies []TaxEntry   `json:"optionalTaxonomies"`
}

// BuildSnapshot resolves every requirement in the set against the item's
// current state. Pure; all inputs are passed in.
func BuildSnapshot(it domain.ContentItem, meta map[string]string, terms map[string][]domain.Term,
	set registry.RequirementSet, titlePlaceholder string) Snapshot {
	return Snapshot{
		RequiredPrimary:    primaryEntries(it, set.RequiredPrimary, titlePlaceholder),
		OptionalPrimary:    primaryEntries(it, set.OptionalPrimary, titlePlaceholder),
		RequiredMeta:       metaEntries(meta, set.RequiredMeta),
		OptionalMeta:       metaEntries(meta, set.OptionalMeta),
		RequiredGroups:     groupEntries(meta, set.RequiredGroups, set),
		OptionalGroups:     groupEntries(meta, set.OptionalGroups, set),
		RequiredTaxonomies: taxEntries(terms, set.RequiredTaxonomies),
		OptionalTaxonomies: taxEntries(terms, set.OptionalTaxonomies),
	}
}

// LoadSnapshot fetches the item's meta and terms and builds its snapshot
// against the resolved requirement set for its type.
func (e Engine) LoadSnapshot(ctx context.Context, it domain.ContentItem) (Snapshot, error) {
	meta, err := e.Repo.FirstMetaValues(ctx, it.ID)
	if err != nil {
		return Snapshot{}, err
	}
	terms, err := e.Repo.GetTerms(ctx, it.ID)
	if err != nil {
		return Snapshot{}, err
	}
	set := e.Registry.Resolve(it.Type)
	return BuildSnapshot(it, meta, terms, set, e.Config.TitlePlaceholder()), nil
}

// primaryValue reads a primary field off the typed record. A title still
// holding the placeholder counts as unset.
func primaryValue(it domain.ContentItem, key, titlePlaceholder string) string {
	switch key {
	case "title":
		if it.Title == titlePlaceholder {
			return ""
		}
		return it.Title
	case "content":
		return it.Content
	case "excerpt":
		return it.Excerpt
	case "slug":
		return it.Slug
	default:
		return ""
	}
}

func primaryEntries(it domain.ContentItem, specs map[string]registry.FieldSpec, titlePlaceholder string) []FieldEntry {
	entries := make([]FieldEntry, 0, len(specs))
	for key, spec := range specs {
		entries = append(entries, FieldEntry{
			Key:       key,
			Label:     spec.Label,
			Value:     primaryValue(it, key, titlePlaceholder),
			ShowValue: spec.ShowValue,
			HasValue:  spec.HasValue,
			NoValue:   spec.NoValue,
		})
	}
	sortEntries(entries)
	return entries
}

func metaEntries(meta map[string]string, specs map[string]registry.FieldSpec) []FieldEntry {
	entries := make([]FieldEntry, 0, len(specs))
	for key, spec := range specs {
		entries = append(entries, FieldEntry{
			Key:       key,
			Label:     spec.Label,
			Value:     meta[key],
			ShowValue: spec.ShowValue,
			HasValue:  spec.HasValue,
			NoValue:   spec.NoValue,
		})
	}
	sortEntries(entries)
	return entries
}

// groupEntries resolves each group to the comma-joined labels of its
// member keys that carry a non-empty meta value. Member labels come from
// the meta spec tables, falling back to the key itself.
func groupEntries(meta map[string]string, groups map[string]registry.GroupSpec, set registry.RequirementSet) []FieldEntry {
	entries := make([]FieldEntry, 0, len(groups))
	for key, g := range groups {
		var present []string
		for _, member := range g.Keys {
			if meta[member] != "" {
				present = append(present, memberLabel(member, set))
			}
		}
		entries = append(entries, FieldEntry{
			Key:       key,
			Label:     g.Label,
			Value:     strings.Join(present, ", "),
			ShowValue: g.ShowValue,
			HasValue:  g.HasValue,
			NoValue:   g.NoValue,
		})
	}
	sortEntries(entries)
	return entries
}

func memberLabel(key string, set registry.RequirementSet) string {
	if spec, ok := set.RequiredMeta[key]; ok && spec.Label != "" {
		return spec.Label
	}
	if spec, ok := set.OptionalMeta[key]; ok && spec.Label != "" {
		return spec.Label
	}
	return key
}

func taxEntries(terms map[string][]domain.Term, specs map[string]registry.FieldSpec) []TaxEntry {
	entries := make([]TaxEntry, 0, len(specs))
	for tax, spec := range specs {
		var termMap map[int64]string
		if assigned := terms[tax]; len(assigned) > 0 {
			termMap = make(map[int64]string, len(assigned))
			for _, t := range assigned {
				termMap[t.ID] = t.Name
			}
		}
		entries = append(entries, TaxEntry{
			Taxonomy:  tax,
			Label:     spec.Label,
			Terms:     termMap,
			Count:     len(termMap),
			ShowValue: spec.ShowValue,
			HasValue:  spec.HasValue,
			NoValue:   spec.NoValue,
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Taxonomy < entries[j].Taxonomy })
	return entries
}

func sortEntries(entries []FieldEntry) {
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
}

// Package registry resolves the publication requirement tables for each
// content type. Base tables come from site config; callers extend them
// with ordered composition functions registered per category.
package registry

import (
	"sort"

	"pressflow/internal/config"
)

type FieldSpec struct {
	Label     string `json:"label"`
	ShowValue bool   `json:"showValue"`
	HasValue  string `json:"hasValue"`
	NoValue   string `json:"noValue"`
}

type GroupSpec struct {
	Label     string   `json:"label"`
	Keys      []string `json:"keys"`
	ShowValue bool     `json:"showValue"`
	HasValue  string   `json:"hasValue"`
	NoValue   string   `json:"noValue"`
}

// RequirementSet is the fully-resolved table for one content type.
type RequirementSet struct {
	RequiredPrimary    map[string]FieldSpec
	OptionalPrimary    map[string]FieldSpec
	RequiredMeta       map[string]FieldSpec
	OptionalMeta       map[string]FieldSpec
	RequiredGroups     map[string]GroupSpec
	OptionalGroups     map[string]GroupSpec
	RequiredTaxonomies map[string]FieldSpec
	OptionalTaxonomies map[string]FieldSpec
}

// FieldExtender rewrites one field-spec table for a content type.
// Extenders run in registration order; each sees the previous output.
type FieldExtender func(itemType string, specs map[string]FieldSpec) map[string]FieldSpec

// GroupExtender rewrites one group-spec table for a content type.
type GroupExtender func(itemType string, groups map[string]GroupSpec) map[string]GroupSpec

// TypeExtender rewrites the supported content type list.
type TypeExtender func(types []string) []string

type category int

const (
	catRequiredPrimary category = iota
	catOptionalPrimary
	catRequiredMeta
	catOptionalMeta
	catRequiredTaxonomies
	catOptionalTaxonomies
)

type Registry struct {
	cfg *config.Config

	fieldExtenders map[category][]FieldExtender
	requiredGroups []GroupExtender
	optionalGroups []GroupExtender
	typeExtenders  []TypeExtender
}

func New(cfg *config.Config) *Registry {
	return &Registry{
		cfg:            cfg,
		fieldExtenders: make(map[category][]FieldExtender),
	}
}

func (r *Registry) ExtendRequiredPrimary(fn FieldExtender) {
	r.fieldExtenders[catRequiredPrimary] = append(r.fieldExtenders[catRequiredPrimary], fn)
}

func (r *Registry) ExtendOptionalPrimary(fn FieldExtender) {
	r.fieldExtenders[catOptionalPrimary] = append(r.fieldExtenders[catOptionalPrimary], fn)
}

func (r *Registry) ExtendRequiredMeta(fn FieldExtender) {
	r.fieldExtenders[catRequiredMeta] = append(r.fieldExtenders[catRequiredMeta], fn)
}

func (r *Registry) ExtendOptionalMeta(fn FieldExtender) {
	r.fieldExtenders[catOptionalMeta] = append(r.fieldExtenders[catOptionalMeta], fn)
}

func (r *Registry) ExtendRequiredGroups(fn GroupExtender) {
	r.requiredGroups = append(r.requiredGroups, fn)
}

func (r *Registry) ExtendOptionalGroups(fn GroupExtender) {
	r.optionalGroups = append(r.optionalGroups, fn)
}

func (r *Registry) ExtendRequiredTaxonomies(fn FieldExtender) {
	r.fieldExtenders[catRequiredTaxonomies] = append(r.fieldExtenders[catRequiredTaxonomies], fn)
}

func (r *Registry) ExtendOptionalTaxonomies(fn FieldExtender) {
	r.fieldExtenders[catOptionalTaxonomies] = append(r.fieldExtenders[catOptionalTaxonomies], fn)
}

func (r *Registry) ExtendSupportedTypes(fn TypeExtender) {
	r.typeExtenders = append(r.typeExtenders, fn)
}

// SupportedTypes returns the content types publishing is enabled for,
// config list first, then type extenders in order.
func (r *Registry) SupportedTypes() []string {
	types := append([]string(nil), r.cfg.Types.Supported...)
	for _, fn := range r.typeExtenders {
		types = fn(types)
	}
	sort.Strings(types)
	return types
}

func (r *Registry) Supports(itemType string) bool {
	for _, t := range r.SupportedTypes() {
		if t == itemType {
			return true
		}
	}
	return false
}

// DevDomain returns the hostname that forces readiness, empty when unset.
func (r *Registry) DevDomain() string {
	return r.cfg.Site.DevDomain
}

// Resolve builds the full requirement set for a content type: config
// base tables (baseline title/content when absent), extenders applied
// in registration order, then display-field normalization.
func (r *Registry) Resolve(itemType string) RequirementSet {
	base := r.cfg.Types.Requirements[itemType]

	set := RequirementSet{
		RequiredPrimary:    fieldsFromConfig(base.RequiredPrimary),
		OptionalPrimary:    fieldsFromConfig(base.OptionalPrimary),
		RequiredMeta:       fieldsFromConfig(base.RequiredMeta),
		OptionalMeta:       fieldsFromConfig(base.OptionalMeta),
		RequiredGroups:     groupsFromConfig(base.RequiredGroups),
		OptionalGroups:     groupsFromConfig(base.OptionalGroups),
		RequiredTaxonomies: fieldsFromConfig(base.RequiredTaxonomies),
		OptionalTaxonomies: fieldsFromConfig(base.OptionalTaxonomies),
	}
	if len(set.RequiredPrimary) == 0 {
		set.RequiredPrimary = baselinePrimary()
	}

	set.RequiredPrimary = r.applyFields(catRequiredPrimary, itemType, set.RequiredPrimary)
	set.OptionalPrimary = r.applyFields(catOptionalPrimary, itemType, set.OptionalPrimary)
	set.RequiredMeta = r.applyFields(catRequiredMeta, itemType, set.RequiredMeta)
	set.OptionalMeta = r.applyFields(catOptionalMeta, itemType, set.OptionalMeta)
	set.RequiredTaxonomies = r.applyFields(catRequiredTaxonomies, itemType, set.RequiredTaxonomies)
	set.OptionalTaxonomies = r.applyFields(catOptionalTaxonomies, itemType, set.OptionalTaxonomies)
	for _, fn := range r.requiredGroups {
		set.RequiredGroups = fn(itemType, set.RequiredGroups)
	}
	for _, fn := range r.optionalGroups {
		set.OptionalGroups = fn(itemType, set.OptionalGroups)
	}

	normalizeFields(set.RequiredPrimary)
	normalizeFields(set.OptionalPrimary)
	normalizeFields(set.RequiredMeta)
	normalizeFields(set.OptionalMeta)
	normalizeFields(set.RequiredTaxonomies)
	normalizeFields(set.OptionalTaxonomies)
	normalizeGroups(set.RequiredGroups)
	normalizeGroups(set.OptionalGroups)
	return set
}

func (r *Registry) applyFields(cat category, itemType string, specs map[string]FieldSpec) map[string]FieldSpec {
	for _, fn := range r.fieldExtenders[cat] {
		specs = fn(itemType, specs)
	}
	if specs == nil {
		specs = map[string]FieldSpec{}
	}
	return specs
}

func baselinePrimary() map[string]FieldSpec {
	return map[string]FieldSpec{
		"title":   {Label: "Title", ShowValue: true},
		"content": {Label: "Content", ShowValue: true},
	}
}

// normalizeFields fills label fallbacks in place: a spec with no label
// displays under its own key.
func normalizeFields(specs map[string]FieldSpec) {
	for key, spec := range specs {
		if spec.Label == "" {
			spec.Label = key
			specs[key] = spec
		}
	}
}

func normalizeGroups(groups map[string]GroupSpec) {
	for key, g := range groups {
		if g.Label == "" {
			g.Label = key
			groups[key] = g
		}
	}
}

func fieldsFromConfig(in map[string]config.FieldSpec) map[string]FieldSpec {
	out := make(map[string]FieldSpec, len(in))
	for k, v := range in {
		out[k] = FieldSpec{Label: v.Label, ShowValue: v.ShowValue, HasValue: v.HasValue, NoValue: v.NoValue}
	}
	return out
}

func groupsFromConfig(in map[string]config.GroupSpec) map[string]GroupSpec {
	out := make(map[string]GroupSpec, len(in))
	for k, v := range in {
		out[k] = GroupSpec{
			Label:     v.Label,
			Keys:      append([]string(nil), v.Keys...),
			ShowValue: v.ShowValue,
			HasValue:  v.HasValue,
			NoValue:   v.NoValue,
		}
	}
	return out
}

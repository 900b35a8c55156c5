package registry_test

import (
	"reflect"
	"testing"

	"pressflow/internal/config"
	"pressflow/internal/registry"
)

func TestResolveBaseline(t *testing.T) {
	cfg := config.Default("site-1")
	reg := registry.New(cfg)

	// pages come from config with explicit title/content specs
	set := reg.Resolve("page")
	if _, ok := set.RequiredPrimary["title"]; !ok {
		t.Fatalf("page requirements missing title")
	}
	if _, ok := set.RequiredPrimary["content"]; !ok {
		t.Fatalf("page requirements missing content")
	}

	// an unconfigured type gets the baseline table
	set = reg.Resolve("custom")
	if len(set.RequiredPrimary) != 2 {
		t.Fatalf("baseline primary = %d entries, want title+content", len(set.RequiredPrimary))
	}
}

func TestExtendersRunInOrder(t *testing.T) {
	cfg := config.Default("site-1")
	reg := registry.New(cfg)

	reg.ExtendRequiredMeta(func(itemType string, specs map[string]registry.FieldSpec) map[string]registry.FieldSpec {
		specs["hero_image"] = registry.FieldSpec{Label: "Hero"}
		return specs
	})
	reg.ExtendRequiredMeta(func(itemType string, specs map[string]registry.FieldSpec) map[string]registry.FieldSpec {
		if itemType == "page" {
			delete(specs, "hero_image")
		} else {
			spec := specs["hero_image"]
			spec.Label = "Hero image"
			specs["hero_image"] = spec
		}
		return specs
	})

	post := reg.Resolve("post")
	if got := post.RequiredMeta["hero_image"].Label; got != "Hero image" {
		t.Fatalf("later extender must see earlier output, label = %q", got)
	}
	page := reg.Resolve("page")
	if _, ok := page.RequiredMeta["hero_image"]; ok {
		t.Fatalf("page extender should have removed hero_image")
	}
}

func TestLabelFallsBackToKey(t *testing.T) {
	cfg := config.Default("site-1")
	reg := registry.New(cfg)
	reg.ExtendRequiredMeta(func(itemType string, specs map[string]registry.FieldSpec) map[string]registry.FieldSpec {
		specs["byline"] = registry.FieldSpec{}
		return specs
	})
	set := reg.Resolve("post")
	if got := set.RequiredMeta["byline"].Label; got != "byline" {
		t.Fatalf("label = %q, want key fallback", got)
	}
}

func TestSupportedTypesExtension(t *testing.T) {
	cfg := config.Default("site-1")
	reg := registry.New(cfg)
	if !reg.Supports("post") || !reg.Supports("page") {
		t.Fatalf("default types missing")
	}
	if reg.Supports("recipe") {
		t.Fatalf("recipe not yet supported")
	}
	reg.ExtendSupportedTypes(func(types []string) []string {
		return append(types, "recipe")
	})
	want := []string{"page", "post", "recipe"}
	if got := reg.SupportedTypes(); !reflect.DeepEqual(got, want) {
		t.Fatalf("types = %v, want %v", got, want)
	}
}

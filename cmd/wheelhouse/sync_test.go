package main

import (
	"context"
	"testing"

	"github.com/wheelhouse-dev/wheelhouse/internal/lockfile"
	"github.com/wheelhouse-dev/wheelhouse/internal/repository"
)

func TestSelectTargetFiltersByGroup(t *testing.T) {
	doc := lockfile.Document{Packages: []lockfile.Package{
		{Name: "app", Version: "1.0", Sections: []string{"default"}},
		{Name: "pytest", Version: "7.0", Sections: []string{"dev"}},
		{Name: "legacy", Version: "0.1"},
	}}
	repo, err := repository.NewLockedRepository(doc)
	if err != nil {
		t.Fatalf("NewLockedRepository: %v", err)
	}

	target, excluded, err := selectTarget(context.Background(), repo, doc, map[string]bool{"default": true}, false)
	if err != nil {
		t.Fatalf("selectTarget: %v", err)
	}

	if _, ok := target["app"]; !ok {
		t.Error("expected app in target (default section selected)")
	}
	if _, ok := target["pytest"]; ok {
		t.Error("did not expect pytest in target (dev section not selected)")
	}
	if !excluded["pytest"] {
		t.Error("expected pytest to be excluded from removal, not targeted")
	}
	if _, ok := target["legacy"]; !ok {
		t.Error("expected legacy in target (no Sections recorded, always included)")
	}
	if excluded["legacy"] {
		t.Error("legacy has no Sections and should not be excluded")
	}
}

func TestSelectTargetAllGroups(t *testing.T) {
	doc := lockfile.Document{Packages: []lockfile.Package{
		{Name: "app", Version: "1.0", Sections: []string{"default"}},
		{Name: "pytest", Version: "7.0", Sections: []string{"dev"}},
	}}
	repo, err := repository.NewLockedRepository(doc)
	if err != nil {
		t.Fatalf("NewLockedRepository: %v", err)
	}

	target, excluded, err := selectTarget(context.Background(), repo, doc, map[string]bool{}, true)
	if err != nil {
		t.Fatalf("selectTarget: %v", err)
	}
	if len(target) != 2 {
		t.Errorf("target = %v, want both packages with --all-groups", target)
	}
	if len(excluded) != 0 {
		t.Errorf("excluded = %v, want none with --all-groups", excluded)
	}
}

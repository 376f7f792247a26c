package service

import (
	"context"
	"errors"
	"testing"

	"github.com/tapfile/tapfile/internal/apperr"
	"github.com/tapfile/tapfile/internal/model"
)

func TestValidateSlug(t *testing.T) {
	tests := []struct {
		slug string
		ok   bool
	}{
		{"acme", true},
		{"acme-2024", true},
		{"0day", true},
		{"", false},
		{"-acme", false},
		{"Acme", false},
		{"acme_corp", false},
		{"a/b", false},
		{"system", false},
	}
	for _, tt := range tests {
		err := ValidateSlug(tt.slug)
		if (err == nil) != tt.ok {
			t.Errorf("ValidateSlug(%q) = %v, want ok=%v", tt.slug, err, tt.ok)
		}
		if err != nil && !errors.Is(err, apperr.ErrInvalid) {
			t.Errorf("ValidateSlug(%q) kind = %s", tt.slug, apperr.KindOf(err))
		}
	}
}

func TestProjectCreate(t *testing.T) {
	_, store := newTestAuth(t)
	owner := seedAdmin(t, store, "owner@example.com", "correct-horse", true)
	ctx := context.Background()

	svc := NewProjectService(store, 2, func() []string { return []string{"default", "analytics"} })

	p := &model.Project{Slug: "acme", OwnerID: owner.ID}
	if err := svc.Create(ctx, p); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if p.ID == 0 || p.Name != "acme" || p.Warehouse != model.DefaultWarehouse {
		t.Errorf("project = %+v", p)
	}

	tests := []struct {
		name string
		p    *model.Project
		want *apperr.Error
	}{
		{"duplicate slug", &model.Project{Slug: "acme", OwnerID: owner.ID}, apperr.ErrConflict},
		{"unknown warehouse", &model.Project{Slug: "beta", OwnerID: owner.ID, Warehouse: "nope"}, apperr.ErrInvalid},
		{"bad slug", &model.Project{Slug: "Bad Slug", OwnerID: owner.ID}, apperr.ErrInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := svc.Create(ctx, tt.p); !errors.Is(err, tt.want) {
				t.Errorf("Create = %v, want kind %s", err, tt.want.Kind)
			}
		})
	}

	second := &model.Project{Slug: "beta", OwnerID: owner.ID, Warehouse: "analytics"}
	if err := svc.Create(ctx, second); err != nil {
		t.Fatalf("Create second: %v", err)
	}
	err := svc.Create(ctx, &model.Project{Slug: "gamma", OwnerID: owner.ID})
	if !errors.Is(err, apperr.ErrCapacityExceeded) {
		t.Errorf("third project: err = %v, want CapacityExceeded", err)
	}
}

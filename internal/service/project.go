package service

import (
	"context"
	"errors"
	"regexp"
	"slices"
	"strings"

	"github.com/tapfile/tapfile/internal/apperr"
	"github.com/tapfile/tapfile/internal/config"
	"github.com/tapfile/tapfile/internal/model"
)

// slugPattern is the shape of a project slug: it appears in query URLs.
var slugPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{0,62}$`)

// ProjectService creates projects under the per-owner ceiling.
type ProjectService struct {
	store      *config.Store
	maxPerOwner int
	warehouses func() []string
}

// NewProjectService creates a ProjectService. warehouses lists the names a
// project may pick; maxPerOwner <= 0 disables the ceiling.
func NewProjectService(store *config.Store, maxPerOwner int, warehouses func() []string) *ProjectService {
	return &ProjectService{store: store, maxPerOwner: maxPerOwner, warehouses: warehouses}
}

// reservedSlugs collide with fixed routes under /api/v1.
var reservedSlugs = map[string]bool{"system": true}

// ValidateSlug reports whether slug can name a project.
func ValidateSlug(slug string) error {
	if !slugPattern.MatchString(slug) {
		return apperr.Invalid("invalid project slug %q: use 1-63 lowercase letters, digits or hyphens", slug)
	}
	if reservedSlugs[slug] {
		return apperr.Invalid("project slug %q is reserved", slug)
	}
	return nil
}

// Create validates p and inserts it. Name defaults to the slug and
// Warehouse to the default warehouse.
func (s *ProjectService) Create(ctx context.Context, p *model.Project) error {
	p.Slug = strings.TrimSpace(p.Slug)
	if err := ValidateSlug(p.Slug); err != nil {
		return err
	}
	if p.Name == "" {
		p.Name = p.Slug
	}
	p.Warehouse = p.WarehouseName()
	if s.warehouses != nil && !slices.Contains(s.warehouses(), p.Warehouse) {
		return apperr.Invalid("unknown warehouse %q", p.Warehouse)
	}

	if _, err := s.store.GetProjectBySlug(ctx, p.Slug); err == nil {
		return apperr.Conflict("project %q already exists", p.Slug)
	} else if !errors.Is(err, config.ErrNotFound) {
		return err
	}

	if s.maxPerOwner > 0 {
		n, err := s.store.CountProjectsByOwner(ctx, p.OwnerID)
		if err != nil {
			return err
		}
		if n >= s.maxPerOwner {
			return apperr.CapacityExceeded("owner already has %d projects, the limit is %d", n, s.maxPerOwner)
		}
	}

	return s.store.CreateProject(ctx, p)
}

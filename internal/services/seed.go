package services

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"themis-assess/internal/logging"
	"themis-assess/internal/repository"
	"themis-assess/internal/workflow"
	"themis-assess/pkg/models"
)

// ControlIDForName maps a workflow file name to a control id. Names that are
// already UUIDs are used as is; anything else gets a stable name-based id.
func ControlIDForName(name string) uuid.UUID {
	if id, err := uuid.Parse(name); err == nil {
		return id
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("themis:control:"+name))
}

// EnsureTenant returns the tenant owning domain, creating it when missing.
func EnsureTenant(ctx context.Context, tenants repository.TenantStore, domain, name string) (*models.Tenant, error) {
	tenant, err := tenants.GetTenantByDomain(ctx, domain)
	if err == nil {
		return tenant, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	tenant = &models.Tenant{Name: name, Domain: domain}
	if err := tenants.CreateTenant(ctx, tenant); err != nil {
		return nil, err
	}
	return tenant, nil
}

// SeedWorkflows loads every definition in dir and binds it to the control
// derived from its file name. It returns the control ids by name.
func SeedWorkflows(ctx context.Context, defs DefinitionService, tenantID, dir string, logger *logging.Logger) (map[string]uuid.UUID, error) {
	loaded, err := workflow.LoadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(loaded))
	for name := range loaded {
		names = append(names, name)
	}
	sort.Strings(names)

	seeded := make(map[string]uuid.UUID, len(loaded))
	var errs []error
	for _, name := range names {
		controlID := ControlIDForName(name)
		if err := defs.Put(ctx, tenantID, controlID, loaded[name]); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		seeded[name] = controlID
		logger.Info("seeded workflow", "name", name, "control_id", controlID)
	}
	return seeded, errors.Join(errs...)
}

package buildstate

import (
	"context"
)

// Store produces joined module rows.
type Store interface {
	ModuleStateRow(ctx context.Context, moduleID int64) (Row, error)
	ModuleStateRows(ctx context.Context) ([]Row, error)
	ModuleStateRowsForBranch(ctx context.Context, branchID int64) ([]Row, error)
}

// Service reads module snapshots.
type Service struct {
	store Store
}

func NewService(store Store) *Service { return &Service{store: store} }

// ModuleState returns the snapshot of one module.
func (s *Service) ModuleState(ctx context.Context, moduleID int64) (ModuleState, error) {
	row, err := s.store.ModuleStateRow(ctx, moduleID)
	if err != nil {
		return ModuleState{}, err
	}
	return NewModuleState(row), nil
}

// All returns the snapshots of every module.
func (s *Service) All(ctx context.Context) ([]ModuleState, error) {
	rows, err := s.store.ModuleStateRows(ctx)
	if err != nil {
		return nil, err
	}
	return project(rows), nil
}

// ForBranch returns the snapshots of the modules of one branch.
func (s *Service) ForBranch(ctx context.Context, branchID int64) ([]ModuleState, error) {
	rows, err := s.store.ModuleStateRowsForBranch(ctx, branchID)
	if err != nil {
		return nil, err
	}
	return project(rows), nil
}

func project(rows []Row) []ModuleState {
	out := make([]ModuleState, len(rows))
	for i, r := range rows {
		out[i] = NewModuleState(r)
	}
	return out
}

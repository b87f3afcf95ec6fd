package mirror

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"trustScope/internal/model"
	"trustScope/internal/storage"
)

// CreateProject registers or refreshes a project. A missing name becomes
// "Project #<id>" and a missing reward token symbol is resolved on chain.
func (s *Service) CreateProject(ctx context.Context, req CreateProjectRequest) (model.Project, error) {
	if req.ProjectID == nil || req.Owner == "" || req.RewardToken == "" {
		return model.Project{}, invalid("Missing required fields")
	}
	if *req.ProjectID < 0 {
		return model.Project{}, invalid("Invalid project ID")
	}
	owner, okOwner := normalizeAddress(req.Owner)
	token, okToken := normalizeAddress(req.RewardToken)
	if !okOwner || !okToken {
		return model.Project{}, invalid("Invalid address format")
	}
	if !ValidTxHash(req.TxHash) {
		return model.Project{}, invalid("Invalid transaction hash format")
	}
	req.TxHash = strings.ToLower(req.TxHash)
	amount, ok := numberText(req.RewardAmount)
	if !ok {
		return model.Project{}, invalid("Invalid reward amount")
	}
	if f, err := strconv.ParseFloat(amount, 64); err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return model.Project{}, invalid("Invalid reward amount")
	}
	if req.Duration == nil || *req.Duration <= 0 {
		return model.Project{}, invalid("Duration must be a positive integer")
	}

	p := model.Project{
		ProjectID:         *req.ProjectID,
		Owner:             owner,
		Name:              req.Name,
		Description:       req.Description,
		RewardToken:       token,
		RewardTokenSymbol: req.RewardTokenSymbol,
		RewardAmount:      amount,
		DurationDays:      *req.Duration,
		TxHash:            req.TxHash,
	}
	if p.Name == "" {
		p.Name = fmt.Sprintf("Project #%d", p.ProjectID)
	}
	if p.Description != nil && *p.Description == "" {
		p.Description = nil
	}
	if p.RewardTokenSymbol == "" {
		p.RewardTokenSymbol = s.resolveSymbol(ctx, token)
	}

	if err := s.store.UpsertProject(ctx, &p); err != nil {
		s.logger.Error("upsert project", zap.Int64("project_id", p.ProjectID), zap.Error(err))
		return model.Project{}, storeFailure("failed to create project", err)
	}
	s.logger.Info("project registered", zap.Int64("project_id", p.ProjectID), zap.String("owner", owner))
	return p, nil
}

func (s *Service) resolveSymbol(ctx context.Context, token string) string {
	if s.symbols == nil {
		return fallbackSymbol
	}
	return s.symbols.Resolve(ctx, token)
}

// GetProject returns one project.
func (s *Service) GetProject(ctx context.Context, id int64) (model.Project, error) {
	p, err := s.store.GetProject(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return model.Project{}, &NotFoundError{Message: "Project not found"}
		}
		s.logger.Error("read project", zap.Int64("project_id", id), zap.Error(err))
		return model.Project{}, storeFailure("failed to read project", err)
	}
	return p, nil
}

// ListProjects returns projects newest first, optionally only approved ones.
func (s *Service) ListProjects(ctx context.Context, approvedOnly bool) ([]model.Project, error) {
	projects, err := s.store.ListProjects(ctx, approvedOnly)
	if err != nil {
		s.logger.Error("list projects", zap.Error(err))
		return nil, storeFailure("failed to list projects", err)
	}
	return projects, nil
}

// PatchProject applies on-chain sync state to a project.
func (s *Service) PatchProject(ctx context.Context, id int64, patch model.ProjectPatch) (model.Project, error) {
	if patch.TotalStaked != nil && (*patch.TotalStaked < 0 || math.IsNaN(*patch.TotalStaked)) {
		return model.Project{}, invalid("Invalid total_staked value")
	}
	if patch.Empty() {
		return s.GetProject(ctx, id)
	}

	p, err := s.store.PatchProject(ctx, id, patch)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return model.Project{}, &NotFoundError{Message: "Project not found"}
		}
		s.logger.Error("patch project", zap.Int64("project_id", id), zap.Error(err))
		return model.Project{}, storeFailure("failed to update project", err)
	}
	s.logger.Info("project synced", zap.Int64("project_id", id))
	return p, nil
}

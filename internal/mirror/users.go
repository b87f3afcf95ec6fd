package mirror

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"trustScope/internal/model"
	"trustScope/internal/storage"
)

// RegisterUser upserts wallet metadata. Fields left nil keep their stored
// value; last_seen is always refreshed.
func (s *Service) RegisterUser(ctx context.Context, req RegisterUserRequest) (model.User, error) {
	if req.Wallet == "" {
		return model.User{}, invalid("Wallet address required")
	}
	wallet, ok := normalizeAddress(req.Wallet)
	if !ok {
		return model.User{}, invalid("Invalid wallet address")
	}

	user, err := s.store.UpsertUser(ctx, model.UserUpdate{
		Wallet:      wallet,
		XUsername:   req.XUsername,
		DisplayName: req.DisplayName,
		PfpURL:      req.PfpURL,
	}, s.now().UTC())
	if err != nil {
		s.logger.Error("upsert user", zap.String("wallet", wallet), zap.Error(err))
		return model.User{}, storeFailure("failed to register user", err)
	}
	return user, nil
}

// SearchUsers prefix-matches wallets and X usernames. Queries shorter than
// MinSearchLength return nothing.
func (s *Service) SearchUsers(ctx context.Context, q string) ([]model.User, error) {
	q = strings.ToLower(strings.TrimSpace(q))
	if len(q) < MinSearchLength {
		return []model.User{}, nil
	}
	users, err := s.store.SearchUsers(ctx, q, SearchLimit)
	if err != nil {
		s.logger.Error("search users", zap.String("q", q), zap.Error(err))
		return nil, storeFailure("failed to search users", err)
	}
	return users, nil
}

// Profile aggregates a wallet's metadata, reputation, received attestations
// (revoked ones included) and owned projects. Unknown wallets get an empty
// profile rather than an error.
func (s *Service) Profile(ctx context.Context, wallet string) (model.Profile, error) {
	wallet, ok := normalizeAddress(wallet)
	if !ok {
		return model.Profile{}, invalid("Invalid wallet address")
	}

	profile := model.Profile{Wallet: wallet}

	user, err := s.store.GetUser(ctx, wallet)
	switch {
	case err == nil:
		joined, seen := user.CreatedAt, user.LastSeen
		profile.JoinedAt = &joined
		profile.LastSeen = &seen
		profile.XUsername = user.XUsername
		profile.DisplayName = user.DisplayName
		profile.PfpURL = user.PfpURL
	case !errors.Is(err, storage.ErrNotFound):
		s.logger.Error("read user", zap.String("wallet", wallet), zap.Error(err))
		return model.Profile{}, storeFailure("failed to read profile", err)
	}

	rep, err := s.store.GetReputation(ctx, wallet)
	switch {
	case err == nil:
		profile.Reputation = model.ProfileReputation{
			Score:         rep.Score,
			ReceivedCount: rep.AttestationsReceived,
			GivenCount:    rep.AttestationsGiven,
		}
	case !errors.Is(err, storage.ErrNotFound):
		s.logger.Error("read reputation", zap.String("wallet", wallet), zap.Error(err))
		return model.Profile{}, storeFailure("failed to read profile", err)
	}

	profile.Attestations, err = s.store.ReceivedAttestations(ctx, wallet)
	if err != nil {
		s.logger.Error("read attestations", zap.String("wallet", wallet), zap.Error(err))
		return model.Profile{}, storeFailure("failed to read profile", err)
	}
	profile.Projects, err = s.store.ProjectsByOwner(ctx, wallet)
	if err != nil {
		s.logger.Error("read projects", zap.String("wallet", wallet), zap.Error(err))
		return model.Profile{}, storeFailure("failed to read profile", err)
	}
	return profile, nil
}

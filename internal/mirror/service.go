package mirror

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"trustScope/internal/model"
	"trustScope/internal/storage"
)

const (
	// FeedLimit bounds GET /activity.
	FeedLimit = 50
	// LeaderboardLimit bounds GET /leaderboard.
	LeaderboardLimit = 50
	// SearchLimit bounds GET /users?q=.
	SearchLimit = 10
	// MinSearchLength is the shortest query that is searched at all.
	MinSearchLength = 3

	fallbackSymbol = "TOKEN"
)

// SymbolResolver resolves token symbols. symbol.Resolver implements it.
type SymbolResolver interface {
	Resolve(ctx context.Context, address string) string
}

// Service records facts about finalized transactions and serves the
// denormalized reads built from them. It never retries.
type Service struct {
	store   storage.Store
	symbols SymbolResolver
	logger  *zap.Logger
	now     func() time.Time
}

// NewService creates a Service. symbols may be nil, in which case projects
// registered without a symbol get "TOKEN".
func NewService(store storage.Store, symbols SymbolResolver, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, symbols: symbols, logger: logger, now: time.Now}
}

// Ping checks the store.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// RecordAttestation validates and stores an attestation, then appends an
// ATTEST activity log labelled with the target's display name at this moment.
func (s *Service) RecordAttestation(ctx context.Context, req RecordAttestationRequest) (model.Attestation, error) {
	if req.From == "" || req.To == "" || req.Score == nil || req.TxHash == "" {
		return model.Attestation{}, invalid("Missing required fields")
	}
	from, okFrom := normalizeAddress(req.From)
	to, okTo := normalizeAddress(req.To)
	if !okFrom || !okTo {
		return model.Attestation{}, invalid("Invalid wallet address")
	}
	score, ok := parseScore(req.Score)
	if !ok {
		return model.Attestation{}, invalid("Score must be an integer between -127 and 127")
	}
	if !ValidTxHash(req.TxHash) {
		return model.Attestation{}, invalid("Invalid transaction hash format")
	}
	// Hex case is not significant; uniqueness is checked on the lowercase form.
	req.TxHash = strings.ToLower(req.TxHash)

	a := model.Attestation{
		FromWallet: from,
		ToWallet:   to,
		Score:      score,
		Comment:    req.Comment,
		TxHash:     req.TxHash,
	}
	if err := s.store.InsertAttestation(ctx, &a); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			return model.Attestation{}, &ConflictError{Message: "Attestation already recorded"}
		}
		s.logger.Error("insert attestation", zap.String("tx_hash", req.TxHash), zap.Error(err))
		return model.Attestation{}, storeFailure("failed to record attestation", err)
	}

	metadata := map[string]any{"score": score, "targetWallet": to}
	if req.Comment != nil {
		metadata["comment"] = *req.Comment
	}
	s.appendActivity(ctx, &model.ActivityLog{
		Type:     model.ActivityAttest,
		Wallet:   from,
		Target:   s.targetLabel(ctx, to),
		Amount:   fmt.Sprintf("%d Trust", score),
		Metadata: metadata,
		TxHash:   req.TxHash,
	})

	s.logger.Info("attestation recorded",
		zap.String("from", from),
		zap.String("to", to),
		zap.Int("score", score),
		zap.String("tx_hash", req.TxHash),
	)
	return a, nil
}

// targetLabel prefers @x_username, then display name, then the address.
func (s *Service) targetLabel(ctx context.Context, wallet string) string {
	user, err := s.store.GetUser(ctx, wallet)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.logger.Warn("lookup target user", zap.String("wallet", wallet), zap.Error(err))
		}
		return wallet
	}
	if user.XUsername != nil && *user.XUsername != "" {
		return "@" + *user.XUsername
	}
	if user.DisplayName != nil && *user.DisplayName != "" {
		return *user.DisplayName
	}
	return wallet
}

// appendActivity writes a feed row. The fact itself is already stored, so a
// failure here is logged and not surfaced.
func (s *Service) appendActivity(ctx context.Context, l *model.ActivityLog) {
	if err := s.store.InsertActivity(ctx, l); err != nil {
		s.logger.Warn("append activity log",
			zap.String("type", string(l.Type)),
			zap.String("tx_hash", l.TxHash),
			zap.Error(err),
		)
	}
}

// RevokeAttestation marks every active from -> to attestation revoked. It is
// a no-op when none match.
func (s *Service) RevokeAttestation(ctx context.Context, req RevokeAttestationRequest) (int64, error) {
	if req.From == "" || req.To == "" {
		return 0, invalid("Missing required fields")
	}
	from, okFrom := normalizeAddress(req.From)
	to, okTo := normalizeAddress(req.To)
	if !okFrom || !okTo {
		return 0, invalid("Invalid wallet address")
	}

	n, err := s.store.RevokeAttestations(ctx, from, to, s.now().UTC())
	if err != nil {
		s.logger.Error("revoke attestation", zap.String("from", from), zap.String("to", to), zap.Error(err))
		return 0, storeFailure("failed to revoke attestation", err)
	}
	s.logger.Info("attestation revoked",
		zap.String("from", from),
		zap.String("to", to),
		zap.String("tx_hash", req.TxHash),
		zap.Int64("rows", n),
	)
	return n, nil
}

// RecordStake stores a stake and appends a STAKE activity log. Only presence
// is checked; amount is kept as the caller sent it.
func (s *Service) RecordStake(ctx context.Context, req RecordStakeRequest) (model.Stake, error) {
	amount, ok := numberText(req.Amount)
	if req.ProjectID == nil || req.UserWallet == "" || !ok || amount == "" || req.TxHash == "" {
		return model.Stake{}, invalid("Missing required fields")
	}
	wallet := strings.ToLower(req.UserWallet)
	req.TxHash = strings.ToLower(req.TxHash)

	st := model.Stake{
		ProjectID:  *req.ProjectID,
		UserWallet: wallet,
		Amount:     amount,
		TxHash:     req.TxHash,
	}
	if err := s.store.InsertStake(ctx, &st); err != nil {
		s.logger.Error("insert stake", zap.String("tx_hash", req.TxHash), zap.Error(err))
		return model.Stake{}, storeFailure("failed to record stake", err)
	}

	s.appendActivity(ctx, &model.ActivityLog{
		Type:     model.ActivityStake,
		Wallet:   wallet,
		Target:   "Project #" + strconv.FormatInt(st.ProjectID, 10),
		Amount:   amount + " ETH",
		Metadata: map[string]any{"projectId": st.ProjectID, "amount": amount},
		TxHash:   req.TxHash,
	})

	s.logger.Info("stake recorded",
		zap.Int64("project_id", st.ProjectID),
		zap.String("wallet", wallet),
		zap.String("amount", amount),
	)
	return st, nil
}

// ActivityFeed returns the most recent activity, newest first.
func (s *Service) ActivityFeed(ctx context.Context) ([]model.FeedItem, error) {
	records, err := s.store.RecentActivity(ctx, FeedLimit)
	if err != nil {
		s.logger.Error("read activity", zap.Error(err))
		return nil, storeFailure("failed to read activity", err)
	}

	items := make([]model.FeedItem, 0, len(records))
	for _, r := range records {
		item := model.FeedItem{
			ID:        "log-" + strconv.FormatInt(r.Log.ID, 10),
			Type:      feedType(r.Log.Type),
			CreatedAt: r.Log.CreatedAt,
			User:      model.FeedUser{Wallet: r.Log.Wallet},
			Target:    r.Log.Target,
			Details:   r.Log.Amount,
		}
		if r.User != nil {
			item.User.DisplayName = r.User.DisplayName
			item.User.Username = r.User.XUsername
			item.User.PfpURL = r.User.PfpURL
		}
		items = append(items, item)
	}
	return items, nil
}

func feedType(kind model.ActivityKind) string {
	if kind == model.ActivityAttest {
		return "attestation"
	}
	return "stake"
}

// Leaderboard returns the top wallets by reputation score.
func (s *Service) Leaderboard(ctx context.Context) ([]model.LeaderboardEntry, error) {
	entries, err := s.store.Leaderboard(ctx, LeaderboardLimit)
	if err != nil {
		s.logger.Error("read leaderboard", zap.Error(err))
		return nil, storeFailure("failed to read leaderboard", err)
	}
	return entries, nil
}

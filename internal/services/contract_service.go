package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rsclabs/valve-backend/internal/apierr"
	"github.com/rsclabs/valve-backend/internal/contracts"
	"github.com/rsclabs/valve-backend/internal/logger"
	"github.com/rsclabs/valve-backend/internal/models"
)

// AuthenticatedUser is the identity extracted from the bearer token.
type AuthenticatedUser struct {
	ID           string
	ActiveWallet *string
}

// Identifiers returns every identifier the user can act under: the user id
// plus the active wallet address when one is linked.
func (u AuthenticatedUser) Identifiers() []string {
	identifiers := []string{u.ID}
	if u.ActiveWallet != nil && *u.ActiveWallet != "" {
		identifiers = append(identifiers, *u.ActiveWallet)
	}
	return identifiers
}

// StatusPatch is the transitional status-only update input. Address is
// honored only when the requested status is PUBLISHED.
type StatusPatch struct {
	Status  models.ContractStatus `json:"status" validate:"required,oneof=DRAFT PENDING PUBLISHED"`
	Address *string               `json:"address,omitempty" validate:"omitempty,eth_addr"`
}

// SearchQuery filters and pages the contract listing.
type SearchQuery struct {
	Author             *string                 `json:"author,omitempty"`
	Statuses           []models.ContractStatus `json:"statuses,omitempty"`
	Title              string                  `json:"title,omitempty"`
	Type               *models.ContractType    `json:"type,omitempty"`
	IsRecipientsLocked *bool                   `json:"isRecipientsLocked,omitempty"`
	OrderBy            string                  `json:"orderBy,omitempty"`
	OrderDirection     string                  `json:"orderDirection,omitempty"`
	Offset             int                     `json:"offset,omitempty"`
	Limit              int                     `json:"limit,omitempty"`
}

type SearchResult struct {
	Items []models.Contract `json:"items"`
	Total int64             `json:"total"`
}

type ContractService interface {
	Create(ctx context.Context, prepared *contracts.ValveV1PreparedContract, user AuthenticatedUser) (*models.Contract, error)
	FindOne(ctx context.Context, id string, user AuthenticatedUser) (*models.Contract, error)
	Update(ctx context.Context, id string, prepared *contracts.ValveV1PreparedContract, user AuthenticatedUser) (*models.Contract, error)
	Delete(ctx context.Context, id string, user AuthenticatedUser) error
	PatchStatus(ctx context.Context, id string, patch StatusPatch, user AuthenticatedUser) (*models.Contract, error)
	Search(ctx context.Context, query SearchQuery, user AuthenticatedUser) (*SearchResult, error)
}

type contractService struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewContractService(db *gorm.DB, log *logger.Logger) ContractService {
	return &contractService{db: db, log: log}
}

func (s *contractService) Create(ctx context.Context, prepared *contracts.ValveV1PreparedContract, user AuthenticatedUser) (*models.Contract, error) {
	if err := prepared.Validate(); err != nil {
		return nil, apierr.Validation(err)
	}
	normalized := prepared.Normalize()

	contract := normalized.BuildContractSchema(user.ID, user.ActiveWallet, models.ContractStatusDraft)
	contract.ID = uuid.NewString()
	participants := normalized.BuildParticipants(user.ID, user.ActiveWallet, contract.ID)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&contract).Error; err != nil {
			return fmt.Errorf("failed to create contract: %w", err)
		}
		if len(participants) > 0 {
			if err := tx.Create(&participants).Error; err != nil {
				return fmt.Errorf("failed to create participants: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Debug("contract created", "contract_id", contract.ID, "author", user.ID)
	contract.Participants = participants
	return &contract, nil
}

func (s *contractService) FindOne(ctx context.Context, id string, user AuthenticatedUser) (*models.Contract, error) {
	contract, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if contract.Visibility == models.ContractVisibilityPrivate {
		if len(contracts.MatchedRoles(contract.Participants, user.Identifiers())) == 0 {
			return nil, apierr.Forbidden("user %s has no access to contract %s", user.ID, id)
		}
	}
	return contract, nil
}

func (s *contractService) Update(ctx context.Context, id string, prepared *contracts.ValveV1PreparedContract, user AuthenticatedUser) (*models.Contract, error) {
	if err := prepared.Validate(); err != nil {
		return nil, apierr.Validation(err)
	}
	normalized := prepared.Normalize()

	current, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	roles := contracts.MatchedRoles(current.Participants, user.Identifiers())
	if !contracts.ValidateUpdatePermissions(roles, current, normalized) {
		return nil, apierr.Forbidden("user %s may not apply this update to contract %s", user.ID, id)
	}

	// author never changes; a contract without an owner adopts the
	// author's active wallet once the author updates it. Other
	// permitted updaters leave ownership unset.
	owner := current.Owner
	if owner == nil && current.Author != "" && user.ID == current.Author {
		owner = user.ActiveWallet
	}
	schema := normalized.BuildContractSchema(current.Author, owner, current.Status)
	derived := normalized.BuildParticipants(current.Author, owner, id)
	toCreate, toDelete := contracts.ParticipantDiff(derived, current.Participants)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Contract{}).
			Where("id = ? AND v = ?", id, current.V).
			Updates(map[string]interface{}{
				"owner":               schema.Owner,
				"title":               schema.Title,
				"description":         schema.Description,
				"version":             schema.Version,
				"chain":               schema.Chain,
				"type":                schema.Type,
				"visibility":          schema.Visibility,
				"status":              schema.Status,
				"metadata":            schema.Metadata,
				"address":             schema.Address,
				"published_at":        schema.PublishedAt,
				"legal_agreement_url": schema.LegalAgreementURL,
				"visualization_url":   schema.VisualizationURL,
				"v":                   gorm.Expr("v + 1"),
			})
		if result.Error != nil {
			return fmt.Errorf("failed to update contract: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			s.log.Warn("contract update lost the version race", "contract_id", id, "v", current.V)
			return apierr.NotFound("contract %s not found", id)
		}
		if len(toDelete) > 0 {
			if err := tx.Where("id IN ?", toDelete).Delete(&models.ContractParticipant{}).Error; err != nil {
				return fmt.Errorf("failed to delete participants: %w", err)
			}
		}
		if len(toCreate) > 0 {
			if err := tx.Create(&toCreate).Error; err != nil {
				return fmt.Errorf("failed to create participants: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Debug("contract updated", "contract_id", id, "user", user.ID)
	return s.load(ctx, id)
}

func (s *contractService) Delete(ctx context.Context, id string, user AuthenticatedUser) error {
	contract, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if contract.Status != models.ContractStatusDraft {
		return apierr.MethodNotAllowed("contract %s is %s, only drafts can be deleted", id, contract.Status)
	}
	if !s.isAuthorOrOwner(contract, user) {
		return apierr.Forbidden("user %s may not delete contract %s", user.ID, id)
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("contract_id = ?", id).Delete(&models.ContractParticipant{}).Error; err != nil {
			return fmt.Errorf("failed to delete participants: %w", err)
		}
		if err := tx.Delete(&models.Contract{}, "id = ?", id).Error; err != nil {
			return fmt.Errorf("failed to delete contract: %w", err)
		}
		return nil
	})
}

func (s *contractService) PatchStatus(ctx context.Context, id string, patch StatusPatch, user AuthenticatedUser) (*models.Contract, error) {
	current, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	prepared, err := contracts.PreparedFromContract(current)
	if err != nil {
		return nil, err
	}
	prepared.Status = &patch.Status
	if patch.Status == models.ContractStatusPublished && patch.Address != nil {
		prepared.Address = patch.Address
	}
	return s.Update(ctx, id, prepared, user)
}

var searchOrderColumns = map[string]string{
	"created":   "created_at",
	"updated":   "updated_at",
	"published": "published_at",
	"title":     "title",
}

func (s *contractService) Search(ctx context.Context, query SearchQuery, user AuthenticatedUser) (*SearchResult, error) {
	db := s.db.WithContext(ctx).Model(&models.Contract{})

	// private contracts are visible only where the caller participates
	db = db.Where(
		"visibility = ? OR id IN (?)",
		models.ContractVisibilityCommunity,
		s.db.Model(&models.ContractParticipant{}).
			Select("contract_id").
			Where("identifier IN ?", user.Identifiers()),
	)

	if query.Author != nil {
		db = db.Where("author = ?", *query.Author)
	}
	if len(query.Statuses) > 0 {
		db = db.Where("status IN ?", query.Statuses)
	}
	if query.Title != "" {
		db = db.Where("title LIKE ?", "%"+query.Title+"%")
	}
	if query.Type != nil {
		db = db.Where("type = ?", *query.Type)
	}
	if query.IsRecipientsLocked != nil {
		// metadata is persisted as a JSON text column; match the encoded
		// key, treating an absent key as unlocked
		if *query.IsRecipientsLocked {
			db = db.Where("metadata LIKE ?", `%"isRecipientsLocked":true%`)
		} else {
			db = db.Where("metadata NOT LIKE ?", `%"isRecipientsLocked":true%`)
		}
	}

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count contracts: %w", err)
	}

	column, ok := searchOrderColumns[query.OrderBy]
	if !ok {
		column = "created_at"
	}
	direction := "DESC"
	if strings.EqualFold(query.OrderDirection, "asc") {
		direction = "ASC"
	}

	limit := query.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	var items []models.Contract
	err := db.Order(column + " " + direction).
		Offset(query.Offset).
		Limit(limit).
		Preload("Participants").
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("failed to search contracts: %w", err)
	}
	return &SearchResult{Items: items, Total: total}, nil
}

func (s *contractService) load(ctx context.Context, id string) (*models.Contract, error) {
	var contract models.Contract
	err := s.db.WithContext(ctx).Preload("Participants").First(&contract, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apierr.NotFound("contract %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load contract: %w", err)
	}
	return &contract, nil
}

func (s *contractService) isAuthorOrOwner(contract *models.Contract, user AuthenticatedUser) bool {
	if user.ID == contract.Author {
		return true
	}
	if contract.Owner == nil {
		return false
	}
	for _, identifier := range user.Identifiers() {
		if strings.EqualFold(identifier, *contract.Owner) {
			return true
		}
	}
	return false
}

package contracts

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"
	"github.com/rsclabs/valve-backend/internal/models"
)

// AnonymousUser is a named wallet address appearing on a contract
// (controller or distributor).
type AnonymousUser struct {
	Name    string `json:"name,omitempty"`
	Address string `json:"address" validate:"required"`
}

// Recipient is a revenue recipient. Revenue is an integer percentage share.
type Recipient struct {
	Name    string `json:"name,omitempty"`
	Address string `json:"address" validate:"required"`
	Revenue int64  `json:"revenue" validate:"min=0"`
}

// Currency is an acceptable contract currency. A nil address means the
// chain's native currency.
type Currency struct {
	Title   string  `json:"title"`
	Address *string `json:"address"`
}

// ValveV1PreparedContract is the type-specific input for VALVE/1.0
// contracts. Pointer fields distinguish absent from explicitly set: absent
// fields are omitted from the metadata map, never written as null.
type ValveV1PreparedContract struct {
	Title                          string                     `json:"title" validate:"required"`
	Description                    *string                    `json:"description,omitempty" validate:"omitempty,max=256"`
	Version                        string                     `json:"version" validate:"required"`
	Chain                          *models.Chain              `json:"chain,omitempty" validate:"omitempty,oneof=ETHEREUM ETHEREUM_GOERLI POLYGON POLYGON_MUMBAI"`
	Type                           models.ContractType        `json:"type" validate:"required,oneof=VALVE"`
	Status                         *models.ContractStatus     `json:"status,omitempty" validate:"omitempty,oneof=DRAFT PENDING PUBLISHED"`
	Address                        *string                    `json:"address,omitempty" validate:"omitempty,eth_addr"`
	ImmutableController            *bool                      `json:"immutableController,omitempty"`
	Visibility                     *models.ContractVisibility `json:"visibility,omitempty" validate:"omitempty,oneof=PRIVATE COMMUNITY"`
	Controller                     *AnonymousUser             `json:"controller,omitempty"`
	Distributors                   []AnonymousUser            `json:"distributors,omitempty" validate:"omitempty,dive"`
	Currencies                     []Currency                 `json:"currencies,omitempty"`
	IsRecipientsLocked             *bool                      `json:"isRecipientsLocked,omitempty"`
	Recipients                     []Recipient                `json:"recipients,omitempty" validate:"omitempty,max=60,dive"`
	Distribution                   *models.DistributionType   `json:"distribution,omitempty" validate:"omitempty,oneof=AUTO MANUAL"`
	AutoNativeCurrencyDistribution *bool                      `json:"autoNativeCurrencyDistribution,omitempty"`
	MinAutoDistributionAmount      *int64                     `json:"minAutoDistributionAmount,omitempty" validate:"omitempty,min=0"`
	LegalAgreementURL              *string                    `json:"legalAgreementUrl,omitempty" validate:"omitempty,url"`
	VisualizationURL               *string                    `json:"visualizationUrl,omitempty" validate:"omitempty,url"`
}

var validate = validator.New()

// Validate checks the prepared input against its declared constraints.
func (p *ValveV1PreparedContract) Validate() error {
	return validate.Struct(p)
}

// Normalize returns a copy with every address-bearing field converted to
// its canonical checksummed representation. Collection entries whose
// address fails the check are dropped; a controller with an unparsable
// address is nulled.
func (p *ValveV1PreparedContract) Normalize() *ValveV1PreparedContract {
	out := *p

	if p.Address != nil {
		if checksummed, ok := checksumAddress(*p.Address); ok {
			out.Address = &checksummed
		} else {
			out.Address = nil
		}
	}
	if p.Controller != nil {
		if checksummed, ok := checksumAddress(p.Controller.Address); ok {
			out.Controller = &AnonymousUser{Name: p.Controller.Name, Address: checksummed}
		} else {
			out.Controller = nil
		}
	}
	if p.Recipients != nil {
		recipients := make([]Recipient, 0, len(p.Recipients))
		for _, r := range p.Recipients {
			if checksummed, ok := checksumAddress(r.Address); ok {
				recipients = append(recipients, Recipient{Name: r.Name, Address: checksummed, Revenue: r.Revenue})
			}
		}
		out.Recipients = recipients
	}
	if p.Distributors != nil {
		distributors := make([]AnonymousUser, 0, len(p.Distributors))
		for _, d := range p.Distributors {
			if checksummed, ok := checksumAddress(d.Address); ok {
				distributors = append(distributors, AnonymousUser{Name: d.Name, Address: checksummed})
			}
		}
		out.Distributors = distributors
	}
	if p.Currencies != nil {
		currencies := make([]Currency, 0, len(p.Currencies))
		for _, c := range p.Currencies {
			if c.Address == nil {
				currencies = append(currencies, Currency{Title: c.Title, Address: nil})
				continue
			}
			if checksummed, ok := checksumAddress(*c.Address); ok {
				currencies = append(currencies, Currency{Title: c.Title, Address: &checksummed})
			}
		}
		out.Currencies = currencies
	}

	return &out
}

func checksumAddress(address string) (string, bool) {
	if !common.IsHexAddress(address) {
		return "", false
	}
	return common.HexToAddress(address).Hex(), true
}

// BuildContractSchema translates the prepared input into a persistence-ready
// contract record. Status falls back to fallbackStatus when unset; address
// and publishedAt are populated only when the resulting status is PUBLISHED.
// Author and owner always come from the caller of this method, never from
// the prepared input.
func (p *ValveV1PreparedContract) BuildContractSchema(author string, owner *string, fallbackStatus models.ContractStatus) models.Contract {
	status := fallbackStatus
	if p.Status != nil {
		status = *p.Status
	}
	visibility := models.ContractVisibilityPrivate
	if p.Visibility != nil {
		visibility = *p.Visibility
	}

	var address *string
	var publishedAt *time.Time
	if status == models.ContractStatusPublished {
		address = p.Address
		now := time.Now().UTC()
		publishedAt = &now
	}

	var chain models.Chain
	if p.Chain != nil {
		chain = *p.Chain
	}

	contract := models.Contract{
		Author:            author,
		Owner:             owner,
		Title:             p.Title,
		Description:       p.Description,
		Version:           p.Version,
		Chain:             chain,
		Type:              p.Type,
		Visibility:        visibility,
		Status:            status,
		Address:           address,
		PublishedAt:       publishedAt,
		LegalAgreementURL: p.LegalAgreementURL,
		VisualizationURL:  p.VisualizationURL,
		Metadata:          models.JSON{},
	}

	setMetadataIfDefined(contract.Metadata, "controller", p.Controller, p.Controller != nil)
	setMetadataIfDefined(contract.Metadata, "immutableController", p.ImmutableController, p.ImmutableController != nil)
	setMetadataIfDefined(contract.Metadata, "recipients", p.Recipients, p.Recipients != nil)
	setMetadataIfDefined(contract.Metadata, "isRecipientsLocked", p.IsRecipientsLocked, p.IsRecipientsLocked != nil)
	setMetadataIfDefined(contract.Metadata, "distribution", p.Distribution, p.Distribution != nil)
	setMetadataIfDefined(contract.Metadata, "distributors", p.Distributors, p.Distributors != nil)
	setMetadataIfDefined(contract.Metadata, "autoNativeCurrencyDistribution", p.AutoNativeCurrencyDistribution, p.AutoNativeCurrencyDistribution != nil)
	setMetadataIfDefined(contract.Metadata, "minAutoDistributionAmount", p.MinAutoDistributionAmount, p.MinAutoDistributionAmount != nil)
	setMetadataIfDefined(contract.Metadata, "currencies", p.Currencies, p.Currencies != nil)

	return contract
}

func setMetadataIfDefined(metadata models.JSON, key string, value any, defined bool) {
	if defined {
		metadata[key] = value
	}
}

// BuildParticipants derives the canonical participant set: owner first when
// present, then author, recipients, controller, distributors. Uniqueness is
// by identifier; the first occurrence wins.
func (p *ValveV1PreparedContract) BuildParticipants(author string, owner *string, contractID string) []models.ContractParticipant {
	result := []models.ContractParticipant{{
		ContractID:     contractID,
		Identifier:     author,
		IdentifierType: models.ParticipantIdentifierTypeID,
		Role:           models.ParticipantRoleAuthor,
	}}

	if owner != nil && *owner != "" {
		result = append([]models.ContractParticipant{{
			ContractID:     contractID,
			Identifier:     *owner,
			IdentifierType: models.ParticipantIdentifierTypeAddress,
			Role:           models.ParticipantRoleOwner,
		}}, result...)
	}

	for _, recipient := range p.Recipients {
		if recipient.Address == "" {
			continue
		}
		result = append(result, models.ContractParticipant{
			ContractID:     contractID,
			Identifier:     recipient.Address,
			IdentifierType: models.ParticipantIdentifierTypeAddress,
			Role:           models.ParticipantRoleRecipient,
		})
	}

	if p.Controller != nil && p.Controller.Address != "" {
		result = append(result, models.ContractParticipant{
			ContractID:     contractID,
			Identifier:     p.Controller.Address,
			IdentifierType: models.ParticipantIdentifierTypeAddress,
			Role:           models.ParticipantRoleController,
		})
	}

	for _, distributor := range p.Distributors {
		result = append(result, models.ContractParticipant{
			ContractID:     contractID,
			Identifier:     distributor.Address,
			IdentifierType: models.ParticipantIdentifierTypeAddress,
			Role:           models.ParticipantRoleDistributor,
		})
	}

	seen := make(map[string]struct{}, len(result))
	unique := result[:0]
	for _, participant := range result {
		if _, dup := seen[participant.Identifier]; dup {
			continue
		}
		seen[participant.Identifier] = struct{}{}
		unique = append(unique, participant)
	}
	return unique
}

// ParticipantDiff computes the delta between a fresh derivation and the
// stored rows, keyed by identifier only. A role change shows up as a
// delete plus an insert, never an in-place update.
func ParticipantDiff(derived, stored []models.ContractParticipant) (toCreate []models.ContractParticipant, toDelete []uint) {
	storedByIdentifier := make(map[string]struct{}, len(stored))
	for _, participant := range stored {
		storedByIdentifier[participant.Identifier] = struct{}{}
	}
	derivedByIdentifier := make(map[string]struct{}, len(derived))
	for _, participant := range derived {
		derivedByIdentifier[participant.Identifier] = struct{}{}
	}

	for _, participant := range derived {
		if _, ok := storedByIdentifier[participant.Identifier]; !ok {
			toCreate = append(toCreate, participant)
		}
	}
	for _, participant := range stored {
		if _, ok := derivedByIdentifier[participant.Identifier]; !ok {
			toDelete = append(toDelete, participant.ID)
		}
	}
	return toCreate, toDelete
}

// PreparedFromContract reconstructs the prepared input implied by a stored
// contract: top-level columns merged with the metadata map. Used by the
// status-patch path to re-enter the standard update flow.
func PreparedFromContract(c *models.Contract) (*ValveV1PreparedContract, error) {
	merged := map[string]any{
		"title":             c.Title,
		"description":       c.Description,
		"version":           c.Version,
		"type":              c.Type,
		"visibility":        c.Visibility,
		"status":            c.Status,
		"address":           c.Address,
		"legalAgreementUrl": c.LegalAgreementURL,
		"visualizationUrl":  c.VisualizationURL,
	}
	if c.Chain != "" {
		merged["chain"] = c.Chain
	}
	for key, value := range c.Metadata {
		merged[key] = value
	}

	raw, err := json.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal contract fields: %w", err)
	}
	var prepared ValveV1PreparedContract
	if err := json.Unmarshal(raw, &prepared); err != nil {
		return nil, fmt.Errorf("failed to rebuild prepared contract: %w", err)
	}
	return &prepared, nil
}

// fieldValue returns the prepared input's value for a field, nil when the
// field is absent.
func (p *ValveV1PreparedContract) fieldValue(f Field) any {
	switch f {
	case FieldTitle:
		return p.Title
	case FieldDescription:
		return p.Description
	case FieldVersion:
		return p.Version
	case FieldChain:
		return p.Chain
	case FieldType:
		return p.Type
	case FieldStatus:
		return p.Status
	case FieldAddress:
		return p.Address
	case FieldImmutableController:
		return p.ImmutableController
	case FieldVisibility:
		return p.Visibility
	case FieldController:
		return p.Controller
	case FieldDistributors:
		return p.Distributors
	case FieldCurrencies:
		return p.Currencies
	case FieldIsRecipientsLocked:
		return p.IsRecipientsLocked
	case FieldRecipients:
		return p.Recipients
	case FieldDistribution:
		return p.Distribution
	case FieldAutoNativeCurrencyDistribution:
		return p.AutoNativeCurrencyDistribution
	case FieldMinAutoDistributionAmount:
		return p.MinAutoDistributionAmount
	case FieldLegalAgreementURL:
		return p.LegalAgreementURL
	case FieldVisualizationURL:
		return p.VisualizationURL
	}
	return nil
}

// currentFieldValue returns the stored contract's value for a field.
// Lifecycle columns come from the row, type-specific fields from the
// metadata map.
func currentFieldValue(c *models.Contract, f Field) any {
	switch f {
	case FieldTitle:
		return c.Title
	case FieldDescription:
		return c.Description
	case FieldVersion:
		return c.Version
	case FieldChain:
		if c.Chain == "" {
			return nil
		}
		return c.Chain
	case FieldType:
		return c.Type
	case FieldStatus:
		return c.Status
	case FieldAddress:
		return c.Address
	case FieldVisibility:
		return c.Visibility
	case FieldLegalAgreementURL:
		return c.LegalAgreementURL
	case FieldVisualizationURL:
		return c.VisualizationURL
	default:
		return c.Metadata[string(f)]
	}
}

// canonicalJSON reduces a value to a canonical JSON encoding so that
// struct, pointer and decoded-map representations of the same data compare
// equal. Empty collections and nil compare distinct, matching the stored
// absent-vs-set semantics.
func canonicalJSON(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("!%v", v)
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return string(raw)
	}
	canonical, err := json.Marshal(generic)
	if err != nil {
		return string(raw)
	}
	return string(canonical)
}

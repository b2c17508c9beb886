package contracts

import "github.com/rsclabs/valve-backend/internal/models"

// draftEditableFields is everything an author or owner may touch while the
// contract is still a draft.
var draftEditableFields = []Field{
	FieldTitle,
	FieldDescription,
	FieldChain,
	FieldImmutableController,
	FieldVisibility,
	FieldController,
	FieldDistributors,
	FieldCurrencies,
	FieldIsRecipientsLocked,
	FieldRecipients,
	FieldDistribution,
	FieldAutoNativeCurrencyDistribution,
	FieldMinAutoDistributionAmount,
	FieldLegalAgreementURL,
	FieldVisualizationURL,
}

// cosmeticFields stay editable for the author after the draft stage.
var cosmeticFields = []Field{
	FieldTitle,
	FieldDescription,
	FieldVisibility,
	FieldLegalAgreementURL,
	FieldVisualizationURL,
}

// AllowedFields is the per-role, per-status permission table as a pure
// function. The prepared input participates because an unlocked recipients
// list widens the controller's grant on PENDING and PUBLISHED contracts.
func AllowedFields(role models.ParticipantRole, status models.ContractStatus, prepared *ValveV1PreparedContract) FieldSet {
	switch role {
	case models.ParticipantRoleAuthor:
		switch status {
		case models.ContractStatusDraft:
			return NewFieldSet(draftEditableFields...)
		case models.ContractStatusPending, models.ContractStatusPublished:
			return NewFieldSet(cosmeticFields...)
		}

	case models.ParticipantRoleOwner:
		switch status {
		case models.ContractStatusDraft:
			set := NewFieldSet(draftEditableFields...)
			set.Add(FieldStatus)
			set.Add(FieldAddress)
			return set
		case models.ContractStatusPublished:
			set := NewFieldSet(cosmeticFields...)
			set.Add(FieldStatus)
			set.Add(FieldDistribution)
			set.Add(FieldController)
			set.Add(FieldIsRecipientsLocked)
			set.Add(FieldDistributors)
			return set
		case models.ContractStatusPending:
			set := NewFieldSet(cosmeticFields...)
			set.Add(FieldStatus)
			set.Add(FieldAddress)
			set.Add(FieldDistribution)
			set.Add(FieldController)
			set.Add(FieldIsRecipientsLocked)
			set.Add(FieldDistributors)
			return set
		}

	case models.ParticipantRoleController:
		recipientsLocked := prepared != nil &&
			prepared.IsRecipientsLocked != nil && *prepared.IsRecipientsLocked
		if !recipientsLocked &&
			(status == models.ContractStatusPending || status == models.ContractStatusPublished) {
			return NewFieldSet(FieldRecipients)
		}
	}

	return NewFieldSet()
}

// ValidateUpdatePermissions decides whether an identity holding the given
// roles may apply the prepared input to the current contract. The union of
// the roles' allowed sets must cover every field whose proposed value
// differs from the stored one; an empty union rejects outright.
func ValidateUpdatePermissions(roles []models.ParticipantRole, current *models.Contract, prepared *ValveV1PreparedContract) bool {
	allowed := NewFieldSet()
	for _, role := range roles {
		allowed = allowed.Union(AllowedFields(role, current.Status, prepared))
	}
	if allowed.Empty() {
		return false
	}

	for _, field := range allFields {
		if allowed.Has(field) {
			continue
		}
		if canonicalJSON(prepared.fieldValue(field)) != canonicalJSON(currentFieldValue(current, field)) {
			return false
		}
	}
	return true
}

// MatchedRoles intersects the caller's identifiers against the contract's
// participant rows and returns every role the caller holds on it.
func MatchedRoles(participants []models.ContractParticipant, identifiers []string) []models.ParticipantRole {
	identifierSet := make(map[string]struct{}, len(identifiers))
	for _, id := range identifiers {
		identifierSet[id] = struct{}{}
	}
	var roles []models.ParticipantRole
	for _, participant := range participants {
		if _, ok := identifierSet[participant.Identifier]; ok {
			roles = append(roles, participant.Role)
		}
	}
	return roles
}

package contracts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rsclabs/valve-backend/internal/models"
)

const (
	checksummedAddr = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"
	lowercaseAddr   = "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed"
	otherAddr       = "0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359"
)

func statusPtr(s models.ContractStatus) *models.ContractStatus { return &s }
func strPtr(s string) *string                                  { return &s }
func boolPtr(b bool) *bool                                     { return &b }

func TestNormalize(t *testing.T) {
	t.Run("checksums every address bearing field", func(t *testing.T) {
		prepared := &ValveV1PreparedContract{
			Title:      "valve",
			Version:    "1.0",
			Type:       models.ContractTypeValve,
			Address:    strPtr(lowercaseAddr),
			Controller: &AnonymousUser{Name: "ctrl", Address: lowercaseAddr},
			Recipients: []Recipient{
				{Name: "a", Address: lowercaseAddr, Revenue: 100},
			},
			Distributors: []AnonymousUser{{Name: "d", Address: lowercaseAddr}},
		}
		normalized := prepared.Normalize()
		assert.Equal(t, checksummedAddr, *normalized.Address)
		assert.Equal(t, checksummedAddr, normalized.Controller.Address)
		assert.Equal(t, checksummedAddr, normalized.Recipients[0].Address)
		assert.Equal(t, checksummedAddr, normalized.Distributors[0].Address)
	})

	t.Run("drops entries with invalid addresses", func(t *testing.T) {
		prepared := &ValveV1PreparedContract{
			Title:   "valve",
			Version: "1.0",
			Type:    models.ContractTypeValve,
			Recipients: []Recipient{
				{Name: "good", Address: lowercaseAddr, Revenue: 50},
				{Name: "bad", Address: "not-an-address", Revenue: 50},
			},
			Distributors: []AnonymousUser{{Name: "bad", Address: "0x123"}},
		}
		normalized := prepared.Normalize()
		require.Len(t, normalized.Recipients, 1)
		assert.Equal(t, "good", normalized.Recipients[0].Name)
		assert.Empty(t, normalized.Distributors)
	})

	t.Run("nulls a controller with an unparsable address", func(t *testing.T) {
		prepared := &ValveV1PreparedContract{
			Title:      "valve",
			Version:    "1.0",
			Type:       models.ContractTypeValve,
			Controller: &AnonymousUser{Name: "ctrl", Address: "broken"},
		}
		assert.Nil(t, prepared.Normalize().Controller)
	})

	t.Run("keeps a nil currency address as the native currency", func(t *testing.T) {
		prepared := &ValveV1PreparedContract{
			Title:   "valve",
			Version: "1.0",
			Type:    models.ContractTypeValve,
			Currencies: []Currency{
				{Title: "MATIC", Address: nil},
				{Title: "USDC", Address: strPtr(lowercaseAddr)},
			},
		}
		normalized := prepared.Normalize()
		require.Len(t, normalized.Currencies, 2)
		assert.Nil(t, normalized.Currencies[0].Address)
		assert.Equal(t, checksummedAddr, *normalized.Currencies[1].Address)
	})
}

func TestBuildContractSchema(t *testing.T) {
	t.Run("falls back to the given status", func(t *testing.T) {
		prepared := &ValveV1PreparedContract{Title: "valve", Version: "1.0", Type: models.ContractTypeValve}
		contract := prepared.BuildContractSchema("user-1", nil, models.ContractStatusDraft)
		assert.Equal(t, models.ContractStatusDraft, contract.Status)
		assert.Nil(t, contract.Address)
		assert.Nil(t, contract.PublishedAt)
	})

	t.Run("sets address and publishedAt only when published", func(t *testing.T) {
		prepared := &ValveV1PreparedContract{
			Title:   "valve",
			Version: "1.0",
			Type:    models.ContractTypeValve,
			Status:  statusPtr(models.ContractStatusPublished),
			Address: strPtr(checksummedAddr),
		}
		contract := prepared.BuildContractSchema("user-1", nil, models.ContractStatusDraft)
		assert.Equal(t, models.ContractStatusPublished, contract.Status)
		require.NotNil(t, contract.Address)
		assert.Equal(t, checksummedAddr, *contract.Address)
		assert.NotNil(t, contract.PublishedAt)
	})

	t.Run("pending status keeps address nil even when given", func(t *testing.T) {
		prepared := &ValveV1PreparedContract{
			Title:   "valve",
			Version: "1.0",
			Type:    models.ContractTypeValve,
			Status:  statusPtr(models.ContractStatusPending),
			Address: strPtr(checksummedAddr),
		}
		contract := prepared.BuildContractSchema("user-1", nil, models.ContractStatusDraft)
		assert.Nil(t, contract.Address)
		assert.Nil(t, contract.PublishedAt)
	})

	t.Run("absent optional fields never appear in metadata", func(t *testing.T) {
		prepared := &ValveV1PreparedContract{
			Title:              "valve",
			Version:            "1.0",
			Type:               models.ContractTypeValve,
			IsRecipientsLocked: boolPtr(false),
		}
		contract := prepared.BuildContractSchema("user-1", nil, models.ContractStatusDraft)
		_, hasLocked := contract.Metadata["isRecipientsLocked"]
		_, hasController := contract.Metadata["controller"]
		assert.True(t, hasLocked)
		assert.False(t, hasController)
		assert.Equal(t, false, contract.Metadata["isRecipientsLocked"])
	})
}

func TestBuildParticipants(t *testing.T) {
	t.Run("derives owner author recipients controller distributors in order", func(t *testing.T) {
		prepared := &ValveV1PreparedContract{
			Title:        "valve",
			Version:      "1.0",
			Type:         models.ContractTypeValve,
			Controller:   &AnonymousUser{Address: otherAddr},
			Recipients:   []Recipient{{Address: checksummedAddr, Revenue: 100}},
			Distributors: []AnonymousUser{{Address: "0x1111111111111111111111111111111111111111"}},
		}
		owner := "0x2222222222222222222222222222222222222222"
		participants := prepared.BuildParticipants("user-1", &owner, "c-1")

		require.Len(t, participants, 5)
		assert.Equal(t, models.ParticipantRoleOwner, participants[0].Role)
		assert.Equal(t, owner, participants[0].Identifier)
		assert.Equal(t, models.ParticipantRoleAuthor, participants[1].Role)
		assert.Equal(t, models.ParticipantIdentifierTypeID, participants[1].IdentifierType)
		assert.Equal(t, models.ParticipantRoleRecipient, participants[2].Role)
		assert.Equal(t, models.ParticipantRoleController, participants[3].Role)
		assert.Equal(t, models.ParticipantRoleDistributor, participants[4].Role)
	})

	t.Run("dedupes by identifier with the first role winning", func(t *testing.T) {
		prepared := &ValveV1PreparedContract{
			Title:      "valve",
			Version:    "1.0",
			Type:       models.ContractTypeValve,
			Controller: &AnonymousUser{Address: checksummedAddr},
			Recipients: []Recipient{{Address: checksummedAddr, Revenue: 100}},
		}
		participants := prepared.BuildParticipants("user-1", nil, "c-1")
		require.Len(t, participants, 2)
		assert.Equal(t, models.ParticipantRoleAuthor, participants[0].Role)
		assert.Equal(t, models.ParticipantRoleRecipient, participants[1].Role)
	})

	t.Run("skips recipients without an address", func(t *testing.T) {
		prepared := &ValveV1PreparedContract{
			Title:      "valve",
			Version:    "1.0",
			Type:       models.ContractTypeValve,
			Recipients: []Recipient{{Name: "nameless", Revenue: 100}},
		}
		participants := prepared.BuildParticipants("user-1", nil, "c-1")
		require.Len(t, participants, 1)
		assert.Equal(t, models.ParticipantRoleAuthor, participants[0].Role)
	})
}

func TestParticipantDiff(t *testing.T) {
	stored := []models.ContractParticipant{
		{ID: 1, Identifier: "user-1", Role: models.ParticipantRoleAuthor},
		{ID: 2, Identifier: checksummedAddr, Role: models.ParticipantRoleRecipient},
	}

	t.Run("idempotent on an unchanged derivation", func(t *testing.T) {
		derived := []models.ContractParticipant{
			{Identifier: "user-1", Role: models.ParticipantRoleAuthor},
			{Identifier: checksummedAddr, Role: models.ParticipantRoleRecipient},
		}
		toCreate, toDelete := ParticipantDiff(derived, stored)
		assert.Empty(t, toCreate)
		assert.Empty(t, toDelete)
	})

	t.Run("computes create and delete sets by identifier", func(t *testing.T) {
		derived := []models.ContractParticipant{
			{Identifier: "user-1", Role: models.ParticipantRoleAuthor},
			{Identifier: otherAddr, Role: models.ParticipantRoleRecipient},
		}
		toCreate, toDelete := ParticipantDiff(derived, stored)
		require.Len(t, toCreate, 1)
		assert.Equal(t, otherAddr, toCreate[0].Identifier)
		assert.Equal(t, []uint{2}, toDelete)
	})

	t.Run("a role change alone neither creates nor deletes", func(t *testing.T) {
		derived := []models.ContractParticipant{
			{Identifier: "user-1", Role: models.ParticipantRoleAuthor},
			{Identifier: checksummedAddr, Role: models.ParticipantRoleController},
		}
		toCreate, toDelete := ParticipantDiff(derived, stored)
		assert.Empty(t, toCreate)
		assert.Empty(t, toDelete)
	})
}

func TestPreparedFromContract(t *testing.T) {
	prepared := &ValveV1PreparedContract{
		Title:              "valve",
		Description:        strPtr("a split"),
		Version:            "1.0",
		Type:               models.ContractTypeValve,
		Recipients:         []Recipient{{Name: "a", Address: checksummedAddr, Revenue: 100}},
		IsRecipientsLocked: boolPtr(true),
	}
	contract := prepared.BuildContractSchema("user-1", nil, models.ContractStatusDraft)
	contract.ID = "c-1"

	rebuilt, err := PreparedFromContract(&contract)
	require.NoError(t, err)
	assert.Equal(t, "valve", rebuilt.Title)
	assert.Equal(t, "a split", *rebuilt.Description)
	require.NotNil(t, rebuilt.Status)
	assert.Equal(t, models.ContractStatusDraft, *rebuilt.Status)
	require.Len(t, rebuilt.Recipients, 1)
	assert.Equal(t, int64(100), rebuilt.Recipients[0].Revenue)
	require.NotNil(t, rebuilt.IsRecipientsLocked)
	assert.True(t, *rebuilt.IsRecipientsLocked)
}

func TestValidate(t *testing.T) {
	t.Run("rejects a missing title", func(t *testing.T) {
		prepared := &ValveV1PreparedContract{Version: "1.0", Type: models.ContractTypeValve}
		assert.Error(t, prepared.Validate())
	})

	t.Run("rejects more than sixty recipients", func(t *testing.T) {
		prepared := &ValveV1PreparedContract{Title: "valve", Version: "1.0", Type: models.ContractTypeValve}
		for i := 0; i < 61; i++ {
			prepared.Recipients = append(prepared.Recipients, Recipient{Address: checksummedAddr, Revenue: 1})
		}
		assert.Error(t, prepared.Validate())
	})

	t.Run("accepts a minimal valid input", func(t *testing.T) {
		prepared := &ValveV1PreparedContract{Title: "valve", Version: "1.0", Type: models.ContractTypeValve}
		assert.NoError(t, prepared.Validate())
	})
}

package services

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/rsclabs/valve-backend/internal/apierr"
	"github.com/rsclabs/valve-backend/internal/models"
	"github.com/rsclabs/valve-backend/internal/relay"
	"github.com/rsclabs/valve-backend/internal/web3"
)

type fakeRelayClient struct {
	deployer  common.Address
	predicted common.Address
	gasLimit  uint64
	submitErr error
	submitted *relay.SubmittedTransaction

	sentTo   common.Address
	sentData []byte
}

func (f *fakeRelayClient) DeployerAddress(context.Context) (common.Address, error) {
	return f.deployer, nil
}

func (f *fakeRelayClient) Call(_ context.Context, _ common.Address, _ []byte) ([]byte, error) {
	factory, err := web3.FactoryFor(models.ChainPolygonMumbai, models.ContractTypeValve, "1.0")
	if err != nil {
		return nil, err
	}
	parsed, err := factory.ABI()
	if err != nil {
		return nil, err
	}
	return parsed.Methods["predictDeterministicAddress"].Outputs.Pack(f.predicted)
}

func (f *fakeRelayClient) EstimateGas(context.Context, common.Address, []byte) (uint64, error) {
	return f.gasLimit, nil
}

func (f *fakeRelayClient) SendTransaction(_ context.Context, to common.Address, data []byte, _ uint64) (*relay.SubmittedTransaction, error) {
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	f.sentTo = to
	f.sentData = data
	return f.submitted, nil
}

type fakeResolver struct {
	client relay.Client
}

func (f *fakeResolver) ClientFor(models.Chain) (relay.Client, error) {
	return f.client, nil
}

func newFakeRelay() *fakeRelayClient {
	return &fakeRelayClient{
		deployer:  common.HexToAddress("0x3333333333333333333333333333333333333333"),
		predicted: common.HexToAddress("0x4444444444444444444444444444444444444444"),
		gasLimit:  500000,
		submitted: &relay.SubmittedTransaction{TransactionID: "relay-tx-1", Hash: "0xabc"},
	}
}

func seedDraftContract(t *testing.T, db *gorm.DB) *models.Contract {
	t.Helper()
	input := draftInput()
	chain := models.ChainPolygonMumbai
	input.Chain = &chain
	contract := input.BuildContractSchema("user-1", strPtr(walletTwo), models.ContractStatusDraft)
	contract.ID = uuid.NewString()
	require.NoError(t, db.Create(&contract).Error)
	participants := input.BuildParticipants("user-1", strPtr(walletTwo), contract.ID)
	require.NoError(t, db.Create(&participants).Error)
	return &contract
}

func TestDeploy(t *testing.T) {
	ctx := context.Background()

	t.Run("runs the full preparation flow", func(t *testing.T) {
		db := setupDB(t)
		client := newFakeRelay()
		service := NewDeploymentService(db, &fakeResolver{client: client}, testLogger())
		contract := seedDraftContract(t, db)

		deployment, err := service.Deploy(ctx, contract.ID, AuthenticatedUser{ID: "user-1"})
		require.NoError(t, err)

		assert.Equal(t, models.DeploymentStatusDeploying, deployment.Status)
		assert.Equal(t, "relay-tx-1", deployment.RelayTransactionID)
		assert.Equal(t, "0xabc", deployment.Transaction)
		assert.Equal(t, client.predicted.Hex(), deployment.Address)
		assert.Len(t, deployment.CreationID, 32)
		assert.NotContains(t, deployment.CreationID, "-")

		var storedContract models.Contract
		require.NoError(t, db.First(&storedContract, "id = ?", contract.ID).Error)
		assert.Equal(t, models.ContractStatusPending, storedContract.Status)
		assert.Equal(t, int64(1), storedContract.V)

		var storedDeployment models.ContractDeployment
		require.NoError(t, db.First(&storedDeployment, "id = ?", deployment.ID).Error)
		assert.Equal(t, models.DeploymentStatusDeploying, storedDeployment.Status)
		assert.Equal(t, int64(2), storedDeployment.V)
		assert.NotEmpty(t, storedDeployment.TxData)
		assert.NotEmpty(t, storedDeployment.UnsignedTx)
		assert.NotEmpty(t, client.sentData)
	})

	t.Run("only the author may deploy", func(t *testing.T) {
		db := setupDB(t)
		service := NewDeploymentService(db, &fakeResolver{client: newFakeRelay()}, testLogger())
		contract := seedDraftContract(t, db)

		_, err := service.Deploy(ctx, contract.ID, AuthenticatedUser{ID: "someone-else"})
		require.Error(t, err)
		assert.Equal(t, 403, apierr.StatusOf(err))
	})

	t.Run("only drafts deploy", func(t *testing.T) {
		db := setupDB(t)
		service := NewDeploymentService(db, &fakeResolver{client: newFakeRelay()}, testLogger())
		contract := seedDraftContract(t, db)
		require.NoError(t, db.Model(&models.Contract{}).Where("id = ?", contract.ID).
			Update("status", models.ContractStatusPending).Error)

		_, err := service.Deploy(ctx, contract.ID, AuthenticatedUser{ID: "user-1"})
		require.Error(t, err)
		assert.Equal(t, 405, apierr.StatusOf(err))
	})

	t.Run("a relay failure leaves the prepared checkpoint in place", func(t *testing.T) {
		db := setupDB(t)
		client := newFakeRelay()
		client.submitErr = errors.New("relay down")
		service := NewDeploymentService(db, &fakeResolver{client: client}, testLogger())
		contract := seedDraftContract(t, db)

		_, err := service.Deploy(ctx, contract.ID, AuthenticatedUser{ID: "user-1"})
		require.Error(t, err)
		assert.Equal(t, 502, apierr.StatusOf(err))

		// no rollback: the contract stays pending, the deployment keeps
		// its last status
		var storedContract models.Contract
		require.NoError(t, db.First(&storedContract, "id = ?", contract.ID).Error)
		assert.Equal(t, models.ContractStatusPending, storedContract.Status)

		var storedDeployment models.ContractDeployment
		require.NoError(t, db.First(&storedDeployment, "contract_id = ?", contract.ID).Error)
		assert.Equal(t, models.DeploymentStatusPrepared, storedDeployment.Status)
		assert.Empty(t, storedDeployment.RelayTransactionID)
	})
}

func TestActiveDeployment(t *testing.T) {
	ctx := context.Background()

	t.Run("returns the most recent in-flight deployment", func(t *testing.T) {
		db := setupDB(t)
		client := newFakeRelay()
		service := NewDeploymentService(db, &fakeResolver{client: client}, testLogger())
		contract := seedDraftContract(t, db)

		deployed, err := service.Deploy(ctx, contract.ID, AuthenticatedUser{ID: "user-1"})
		require.NoError(t, err)

		active, err := service.ActiveDeployment(ctx, contract.ID, AuthenticatedUser{ID: "user-1"})
		require.NoError(t, err)
		assert.Equal(t, deployed.ID, active.ID)
	})

	t.Run("completed deployments are not active", func(t *testing.T) {
		db := setupDB(t)
		service := NewDeploymentService(db, &fakeResolver{client: newFakeRelay()}, testLogger())
		contract := seedDraftContract(t, db)
		require.NoError(t, db.Create(&models.ContractDeployment{
			ID:         uuid.NewString(),
			ContractID: contract.ID,
			Strategy:   models.DeploymentStrategyPlatform,
			Status:     models.DeploymentStatusCompleted,
		}).Error)

		_, err := service.ActiveDeployment(ctx, contract.ID, AuthenticatedUser{ID: "user-1"})
		require.Error(t, err)
		assert.Equal(t, 404, apierr.StatusOf(err))
	})
}

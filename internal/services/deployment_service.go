package services

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rsclabs/valve-backend/internal/apierr"
	"github.com/rsclabs/valve-backend/internal/contracts"
	"github.com/rsclabs/valve-backend/internal/logger"
	"github.com/rsclabs/valve-backend/internal/models"
	"github.com/rsclabs/valve-backend/internal/relay"
	"github.com/rsclabs/valve-backend/internal/web3"
)

type DeploymentService interface {
	Deploy(ctx context.Context, contractID string, user AuthenticatedUser) (*models.ContractDeployment, error)
	ActiveDeployment(ctx context.Context, contractID string, user AuthenticatedUser) (*models.ContractDeployment, error)
}

type deploymentService struct {
	db       *gorm.DB
	resolver relay.Resolver
	log      *logger.Logger
}

func NewDeploymentService(db *gorm.DB, resolver relay.Resolver, log *logger.Logger) DeploymentService {
	return &deploymentService{db: db, resolver: resolver, log: log}
}

// Deploy runs the deployment preparation saga. Each stage checkpoints the
// deployment row; a failure after stage 1 leaves the contract PENDING and
// the deployment at its last recorded status. There is no rollback, the
// operator retries or the monitor streams resolve the outcome.
func (s *deploymentService) Deploy(ctx context.Context, contractID string, user AuthenticatedUser) (*models.ContractDeployment, error) {
	var contract models.Contract
	err := s.db.WithContext(ctx).First(&contract, "id = ?", contractID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apierr.NotFound("contract %s not found", contractID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load contract: %w", err)
	}
	if !strings.EqualFold(contract.Author, user.ID) {
		return nil, apierr.Forbidden("user %s is not the author of contract %s", user.ID, contractID)
	}
	if contract.Status != models.ContractStatusDraft {
		return nil, apierr.MethodNotAllowed("contract %s is %s, only drafts can be deployed", contractID, contract.Status)
	}

	prepared, err := contracts.PreparedFromContract(&contract)
	if err != nil {
		return nil, err
	}

	deployment := models.ContractDeployment{
		ID:         uuid.NewString(),
		ContractID: contractID,
		Strategy:   models.DeploymentStrategyPlatform,
		Status:     models.DeploymentStatusCreated,
	}
	deployment.CreationID = web3.CreationKey(deployment.ID)

	// stage 1: mark the contract pending and record the attempt
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Contract{}).
			Where("id = ? AND v = ?", contractID, contract.V).
			Updates(map[string]interface{}{
				"status": models.ContractStatusPending,
				"v":      gorm.Expr("v + 1"),
			})
		if result.Error != nil {
			return fmt.Errorf("failed to mark contract pending: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			s.log.Warn("deployment lost the contract version race", "contract_id", contractID, "v", contract.V)
			return apierr.NotFound("contract %s not found", contractID)
		}
		if err := tx.Create(&deployment).Error; err != nil {
			return fmt.Errorf("failed to create deployment: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// stage 2: resolve chain access and the factory for this contract
	client, err := s.resolver.ClientFor(contract.Chain)
	if err != nil {
		return nil, apierr.Upstream(err)
	}
	factory, err := web3.FactoryFor(contract.Chain, contract.Type, contract.Version)
	if err != nil {
		return nil, apierr.Upstream(err)
	}
	factoryAddress := common.HexToAddress(factory.Address)

	// stage 3: assemble the factory call tuple
	data, err := web3.BuildCreateData(prepared, web3.CreationID(deployment.CreationID))
	if err != nil {
		return nil, apierr.Validation(err)
	}

	// stage 4: predict the valve address before anything is broadcast
	deployer, err := client.DeployerAddress(ctx)
	if err != nil {
		return nil, apierr.Upstream(err)
	}
	predictCall, err := web3.EncodePredictAddressCall(factory, data, deployer)
	if err != nil {
		return nil, apierr.Upstream(err)
	}
	predictOutput, err := client.Call(ctx, factoryAddress, predictCall)
	if err != nil {
		return nil, apierr.Upstream(err)
	}
	predicted, err := web3.UnpackPredictedAddress(factory, predictOutput)
	if err != nil {
		return nil, apierr.Upstream(err)
	}

	// stage 5: encode the creation call, estimate gas, checkpoint PREPARED
	createCall, err := web3.EncodeCreateValveCall(factory, data)
	if err != nil {
		return nil, apierr.Upstream(err)
	}
	gasLimit, err := client.EstimateGas(ctx, factoryAddress, createCall)
	if err != nil {
		return nil, apierr.Upstream(err)
	}

	txData := models.JSON{
		"controller":                       data.Controller.Hex(),
		"distributors":                     addressStrings(data.Distributors),
		"isImmutableRecipients":            data.IsImmutableRecipients,
		"isAutoNativeCurrencyDistribution": data.IsAutoNativeCurrencyDistribution,
		"minAutoDistributeAmount":          data.MinAutoDistributeAmount.String(),
		"initialRecipients":                addressStrings(data.InitialRecipients),
		"percentages":                      bigStrings(data.Percentages),
		"creationId":                       web3.CreationIDHex(data.CreationId),
	}
	unsignedTx := models.JSON{
		"to":       factoryAddress.Hex(),
		"data":     hexutil.Encode(createCall),
		"gasLimit": gasLimit,
	}
	err = s.updateDeployment(ctx, deployment.ID, deployment.V, map[string]interface{}{
		"status":      models.DeploymentStatusPrepared,
		"address":     predicted.Hex(),
		"tx_data":     txData,
		"unsigned_tx": unsignedTx,
	})
	if err != nil {
		return nil, err
	}
	deployment.V++
	deployment.Status = models.DeploymentStatusPrepared
	deployment.Address = predicted.Hex()
	deployment.TxData = txData
	deployment.UnsignedTx = unsignedTx

	// stage 6: hand the transaction to the relay
	submitted, err := client.SendTransaction(ctx, factoryAddress, createCall, gasLimit)
	if err != nil {
		return nil, apierr.Upstream(err)
	}
	err = s.updateDeployment(ctx, deployment.ID, deployment.V, map[string]interface{}{
		"status":               models.DeploymentStatusDeploying,
		"relay_transaction_id": submitted.TransactionID,
		"transaction":          submitted.Hash,
	})
	if err != nil {
		return nil, err
	}
	deployment.V++
	deployment.Status = models.DeploymentStatusDeploying
	deployment.RelayTransactionID = submitted.TransactionID
	deployment.Transaction = submitted.Hash

	s.log.Info("deployment submitted",
		"contract_id", contractID,
		"deployment_id", deployment.ID,
		"relay_transaction_id", submitted.TransactionID,
		"predicted_address", deployment.Address,
	)
	return &deployment, nil
}

func (s *deploymentService) ActiveDeployment(ctx context.Context, contractID string, user AuthenticatedUser) (*models.ContractDeployment, error) {
	var contract models.Contract
	err := s.db.WithContext(ctx).Preload("Participants").First(&contract, "id = ?", contractID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apierr.NotFound("contract %s not found", contractID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load contract: %w", err)
	}
	if contract.Visibility == models.ContractVisibilityPrivate {
		if len(contracts.MatchedRoles(contract.Participants, user.Identifiers())) == 0 {
			return nil, apierr.Forbidden("user %s has no access to contract %s", user.ID, contractID)
		}
	}

	var deployment models.ContractDeployment
	err = s.db.WithContext(ctx).
		Where("contract_id = ? AND status IN ?", contractID, []models.DeploymentStatus{
			models.DeploymentStatusCreated,
			models.DeploymentStatusDeploying,
		}).
		Order("created_at DESC").
		First(&deployment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apierr.NotFound("contract %s has no active deployment", contractID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load deployment: %w", err)
	}
	return &deployment, nil
}

func (s *deploymentService) updateDeployment(ctx context.Context, id string, v int64, updates map[string]interface{}) error {
	updates["v"] = gorm.Expr("v + 1")
	result := s.db.WithContext(ctx).Model(&models.ContractDeployment{}).
		Where("id = ? AND v = ?", id, v).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update deployment: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		s.log.Warn("deployment update lost the version race", "deployment_id", id, "v", v)
		return apierr.NotFound("deployment %s not found", id)
	}
	return nil
}

func addressStrings(addresses []common.Address) []string {
	out := make([]string, 0, len(addresses))
	for _, address := range addresses {
		out = append(out, address.Hex())
	}
	return out
}

func bigStrings(values []*big.Int) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		out = append(out, value.String())
	}
	return out
}

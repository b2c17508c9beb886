package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"gorm.io/gorm"

	"github.com/rsclabs/valve-backend/internal/events"
	"github.com/rsclabs/valve-backend/internal/logger"
	"github.com/rsclabs/valve-backend/internal/models"
	"github.com/rsclabs/valve-backend/internal/web3"
)

// errStale signals a lost CAS inside the reconcile transaction. The event
// is dropped, not retried: the version race is the sole dedup mechanism.
var errStale = errors.New("stale deployment event")

// ReconcilerTopics names where deployed and deploy-failed records go.
type ReconcilerTopics struct {
	Deployed     string
	DeployFailed string
}

type reconcilerService struct {
	db     *gorm.DB
	codec  events.Codec
	topics ReconcilerTopics
	log    *logger.Logger
}

func NewReconcilerService(db *gorm.DB, topics ReconcilerTopics, log *logger.Logger) events.Reconciler {
	return &reconcilerService{db: db, codec: events.NewJSONCodec(), topics: topics, log: log}
}

// reconcileOutcome is one resolved step of a deployment: the paired status
// transition plus what to publish about it.
type reconcileOutcome struct {
	deploymentStatus models.DeploymentStatus
	contractStatus   models.ContractStatus
	address          string
	transaction      string
	deployed         bool
	failureMessage   string
}

func (s *reconcilerService) HandleOnchainEvent(ctx context.Context, record events.OnchainTransactionRecord) error {
	key, address, err := s.correlateOnchain(record)
	if err != nil {
		return err
	}
	if key == "" {
		s.log.Warn("onchain record carries no creation id, dropping", "hash", record.Hash, "chain", record.Chain)
		return nil
	}

	deployment, err := s.loadByCreationID(ctx, key)
	if err != nil {
		return err
	}
	if deployment == nil {
		s.log.Warn("onchain record matches no deployment, dropping", "creation_id", key, "hash", record.Hash)
		return nil
	}
	if record.From != "" {
		owner := deployment.Contract.Owner
		if owner == nil || !strings.EqualFold(record.From, *owner) {
			s.log.Warn("onchain record sender is not the contract owner, dropping",
				"deployment_id", deployment.ID, "from", record.From)
			return nil
		}
	}

	outcome := reconcileOutcome{transaction: record.Hash}
	switch record.Status {
	case events.OnchainStatusPending:
		outcome.deploymentStatus = models.DeploymentStatusDeploying
		outcome.contractStatus = models.ContractStatusPending
	case events.OnchainStatusMined:
		if address == "" {
			s.log.Warn("mined record carries no creation event, dropping", "deployment_id", deployment.ID)
			return nil
		}
		outcome.deploymentStatus = models.DeploymentStatusCompleted
		outcome.contractStatus = models.ContractStatusPublished
		outcome.address = address
		outcome.deployed = true
	case events.OnchainStatusFailed:
		outcome.deploymentStatus = models.DeploymentStatusFailed
		outcome.contractStatus = models.ContractStatusDraft
		outcome.failureMessage = "Transaction failed"
	case events.OnchainStatusCanceled:
		outcome.deploymentStatus = models.DeploymentStatusFailed
		outcome.contractStatus = models.ContractStatusDraft
		outcome.failureMessage = "Transaction canceled"
	default:
		s.log.Warn("unknown onchain status, dropping", "status", record.Status, "hash", record.Hash)
		return nil
	}
	return s.apply(ctx, deployment, outcome)
}

func (s *reconcilerService) HandleRelayerEvent(ctx context.Context, record events.RelayerTransactionRecord) error {
	switch record.Status {
	case events.RelayerStatusMined, events.RelayerStatusInMempool, events.RelayerStatusSent:
		// intermediate relay states carry no deployment transition
		return nil
	case events.RelayerStatusPending:
		s.log.Warn("relay pending record has no mapping, dropping", "relay_transaction_id", record.TransactionID)
		return nil
	}

	deployment, err := s.loadByRelayTransactionID(ctx, record.TransactionID)
	if err != nil {
		return err
	}
	if deployment == nil {
		s.log.Warn("relay record matches no deployment, dropping", "relay_transaction_id", record.TransactionID)
		return nil
	}

	outcome := reconcileOutcome{transaction: record.Hash}
	switch record.Status {
	case events.RelayerStatusSubmitted:
		outcome.deploymentStatus = models.DeploymentStatusDeploying
		outcome.contractStatus = models.ContractStatusPending
	case events.RelayerStatusConfirmed:
		if deployment.Address == "" {
			s.log.Warn("confirmed deployment has no predicted address, dropping", "deployment_id", deployment.ID)
			return nil
		}
		outcome.deploymentStatus = models.DeploymentStatusCompleted
		outcome.contractStatus = models.ContractStatusPublished
		outcome.address = deployment.Address
		outcome.deployed = true
	case events.RelayerStatusFailed:
		outcome.deploymentStatus = models.DeploymentStatusFailed
		outcome.contractStatus = models.ContractStatusDraft
		outcome.failureMessage = "Transaction failed"
	default:
		s.log.Warn("unknown relay status, dropping", "status", record.Status, "relay_transaction_id", record.TransactionID)
		return nil
	}
	return s.apply(ctx, deployment, outcome)
}

// apply commits one outcome: deployment row first, then the contract, both
// guarded by their version counters, outbox rows in the same transaction.
func (s *reconcilerService) apply(ctx context.Context, deployment *models.ContractDeployment, outcome reconcileOutcome) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		deploymentUpdates := map[string]interface{}{
			"status": outcome.deploymentStatus,
			"v":      gorm.Expr("v + 1"),
		}
		if outcome.transaction != "" {
			deploymentUpdates["transaction"] = outcome.transaction
		}
		if outcome.address != "" {
			deploymentUpdates["address"] = outcome.address
		}
		// terminal deployments never transition again: the status guard
		// is what drops a redelivered record, the version guard covers
		// concurrent writers
		result := tx.Model(&models.ContractDeployment{}).
			Where("id = ? AND v = ? AND status IN ?", deployment.ID, deployment.V, []models.DeploymentStatus{
				models.DeploymentStatusCreated,
				models.DeploymentStatusPrepared,
				models.DeploymentStatusDeploying,
			}).
			Updates(deploymentUpdates)
		if result.Error != nil {
			return fmt.Errorf("failed to update deployment: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return errStale
		}

		contractUpdates := map[string]interface{}{
			"status": outcome.contractStatus,
			"v":      gorm.Expr("v + 1"),
		}
		if outcome.contractStatus == models.ContractStatusPublished {
			now := time.Now().UTC()
			contractUpdates["address"] = outcome.address
			contractUpdates["published_at"] = now
		} else {
			contractUpdates["address"] = nil
			contractUpdates["published_at"] = nil
		}
		result = tx.Model(&models.Contract{}).
			Where("id = ? AND v = ?", deployment.ContractID, deployment.Contract.V).
			Updates(contractUpdates)
		if result.Error != nil {
			return fmt.Errorf("failed to update contract: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return errStale
		}

		if outcome.deployed {
			payload, err := s.codec.Encode(events.ContractDeployedRecord{
				ContractID:   deployment.ContractID,
				DeploymentID: deployment.ID,
				Address:      outcome.address,
				Chain:        deployment.Contract.Chain,
			})
			if err != nil {
				return err
			}
			if err := tx.Create(&models.DeploymentEventRecord{
				DeploymentID: deployment.ID,
				Topic:        s.topics.Deployed,
				Payload:      payload,
			}).Error; err != nil {
				return fmt.Errorf("failed to write deployed record: %w", err)
			}
		}
		if outcome.failureMessage != "" {
			payload, err := s.codec.Encode(events.ContractDeployFailedRecord{
				ContractID:   deployment.ContractID,
				DeploymentID: deployment.ID,
				ErrorDetails: events.ErrorDetails{Message: outcome.failureMessage},
			})
			if err != nil {
				return err
			}
			if err := tx.Create(&models.DeploymentEventRecord{
				DeploymentID: deployment.ID,
				Topic:        s.topics.DeployFailed,
				Payload:      payload,
			}).Error; err != nil {
				return fmt.Errorf("failed to write deploy-failed record: %w", err)
			}
		}
		return nil
	})
	if errors.Is(err, errStale) {
		s.log.Warn("deployment event lost the version race, dropping",
			"deployment_id", deployment.ID, "status", outcome.deploymentStatus)
		return nil
	}
	if err != nil {
		return err
	}

	s.log.Info("deployment reconciled",
		"deployment_id", deployment.ID,
		"deployment_status", outcome.deploymentStatus,
		"contract_id", deployment.ContractID,
		"contract_status", outcome.contractStatus,
	)
	return nil
}

// correlateOnchain extracts the creation key, preferring the mined
// creation event over the calldata, plus the created contract address when
// the logs carry one.
func (s *reconcilerService) correlateOnchain(record events.OnchainTransactionRecord) (key, address string, err error) {
	if len(record.Logs) > 0 {
		decoded, err := web3.ValveCreatedOnChain(record.Chain, record.Logs)
		if err != nil {
			return "", "", err
		}
		if decoded != nil {
			return web3.DecodeCreationID(decoded.CreationID), decoded.ContractAddress.Hex(), nil
		}
	}
	if record.Data != "" {
		data, err := hexutil.Decode(record.Data)
		if err != nil {
			return "", "", fmt.Errorf("failed to decode transaction data: %w", err)
		}
		creationID, ok, err := web3.CreationIDFromCallData(record.Chain, data)
		if err != nil {
			return "", "", err
		}
		if ok {
			return web3.DecodeCreationID(creationID), "", nil
		}
	}
	return "", "", nil
}

func (s *reconcilerService) loadByCreationID(ctx context.Context, creationID string) (*models.ContractDeployment, error) {
	var deployment models.ContractDeployment
	err := s.db.WithContext(ctx).Preload("Contract").
		Where("creation_id = ?", creationID).
		Order("created_at DESC").
		First(&deployment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load deployment: %w", err)
	}
	return &deployment, nil
}

func (s *reconcilerService) loadByRelayTransactionID(ctx context.Context, transactionID string) (*models.ContractDeployment, error) {
	var deployment models.ContractDeployment
	err := s.db.WithContext(ctx).Preload("Contract").
		Where("relay_transaction_id = ?", transactionID).
		Order("created_at DESC").
		First(&deployment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load deployment: %w", err)
	}
	return &deployment, nil
}

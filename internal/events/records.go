package events

import (
	"github.com/rsclabs/valve-backend/internal/models"
	"github.com/rsclabs/valve-backend/internal/web3"
)

type OnchainTransactionStatus string

const (
	OnchainStatusPending  OnchainTransactionStatus = "PENDING"
	OnchainStatusMined    OnchainTransactionStatus = "MINED"
	OnchainStatusFailed   OnchainTransactionStatus = "FAILED"
	OnchainStatusCanceled OnchainTransactionStatus = "CANCELED"
)

// OnchainTransactionRecord is emitted by the on-chain monitor when a
// watched transaction changes state. Mined records carry the receipt logs;
// the creation id decoded out of them correlates the record back to a
// deployment.
type OnchainTransactionRecord struct {
	Hash           string                   `json:"hash"`
	From           string                   `json:"from,omitempty"`
	Chain          models.Chain             `json:"chain"`
	Factory        string                   `json:"factory,omitempty"`
	FactoryVersion string                   `json:"factoryVersion,omitempty"`
	Value          string                   `json:"value,omitempty"`
	Status         OnchainTransactionStatus `json:"status"`
	Data           string                   `json:"data,omitempty"`
	Logs           []web3.Log               `json:"logs,omitempty"`
}

type RelayerTransactionStatus string

const (
	RelayerStatusPending   RelayerTransactionStatus = "PENDING"
	RelayerStatusSent      RelayerTransactionStatus = "SENT"
	RelayerStatusInMempool RelayerTransactionStatus = "INMEMPOOL"
	RelayerStatusSubmitted RelayerTransactionStatus = "SUBMITTED"
	RelayerStatusMined     RelayerTransactionStatus = "MINED"
	RelayerStatusConfirmed RelayerTransactionStatus = "CONFIRMED"
	RelayerStatusFailed    RelayerTransactionStatus = "FAILED"
)

// RelayerTransactionRecord is emitted by the relay monitor. The relay
// transaction id correlates back to a deployment.
type RelayerTransactionRecord struct {
	TransactionID string                   `json:"transactionId"`
	Hash          string                   `json:"hash,omitempty"`
	Status        RelayerTransactionStatus `json:"status"`
}

// ContractDeployedRecord is published once a contract reaches PUBLISHED.
type ContractDeployedRecord struct {
	ContractID   string       `json:"contractId"`
	DeploymentID string       `json:"deploymentId"`
	Address      string       `json:"address"`
	Chain        models.Chain `json:"chain"`
}

type ErrorDetails struct {
	Message string `json:"message"`
}

// ContractDeployFailedRecord is published when a deployment fails or is
// canceled on chain.
type ContractDeployFailedRecord struct {
	ContractID   string       `json:"contractId"`
	DeploymentID string       `json:"deploymentId"`
	ErrorDetails ErrorDetails `json:"errorDetails"`
}

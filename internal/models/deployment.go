package models

import "time"

type DeploymentStatus string

type DeploymentStrategy string

const (
	DeploymentStatusCreated   DeploymentStatus = "CREATED"
	DeploymentStatusPrepared  DeploymentStatus = "PREPARED"
	DeploymentStatusDeploying DeploymentStatus = "DEPLOYING"
	DeploymentStatusCompleted DeploymentStatus = "COMPLETED"
	DeploymentStatusFailed    DeploymentStatus = "FAILED"
)

const (
	DeploymentStrategyPlatform DeploymentStrategy = "PLATFORM"
)

// ContractDeployment is one attempt to publish a contract on-chain via the
// relay. CreationID correlates on-chain events back to this deployment;
// RelayTransactionID correlates relay-monitor events.
type ContractDeployment struct {
	ID                 string             `gorm:"primaryKey;type:varchar(36)" json:"id"`
	ContractID         string             `gorm:"not null;index;type:varchar(36)" json:"contract_id"`
	Strategy           DeploymentStrategy `gorm:"not null;default:PLATFORM" json:"strategy"`
	Status             DeploymentStatus   `gorm:"not null;default:CREATED;index" json:"status"`
	CreationID         string             `gorm:"index" json:"creation_id"`
	TxData             JSON               `gorm:"type:text" json:"tx_data,omitempty"`
	UnsignedTx         JSON               `gorm:"type:text" json:"unsigned_tx,omitempty"`
	RelayTransactionID string             `gorm:"index" json:"relay_transaction_id,omitempty"`
	Transaction        string             `json:"transaction,omitempty"`
	Address            string             `json:"address,omitempty"`
	V                  int64              `gorm:"not null;default:0" json:"-"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`

	Contract Contract `gorm:"foreignKey:ContractID;references:ID" json:"contract,omitempty"`
}

// DeploymentEventRecord is an outbox row holding an encoded deployed or
// deploy-failed record, written in the same transaction as the state change
// that produced it and published asynchronously.
type DeploymentEventRecord struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	DeploymentID string     `gorm:"not null;index;type:varchar(36)" json:"deployment_id"`
	Topic        string     `gorm:"not null" json:"topic"`
	Payload      []byte     `gorm:"type:blob" json:"payload"`
	PublishedAt  *time.Time `gorm:"index" json:"published_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

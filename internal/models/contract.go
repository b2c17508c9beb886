package models

import "time"

type ContractStatus string

type ContractVisibility string

type ContractType string

type Chain string

type DistributionType string

const (
	ContractStatusDraft     ContractStatus = "DRAFT"
	ContractStatusPending   ContractStatus = "PENDING"
	ContractStatusPublished ContractStatus = "PUBLISHED"
)

const (
	ContractVisibilityPrivate   ContractVisibility = "PRIVATE"
	ContractVisibilityCommunity ContractVisibility = "COMMUNITY"
)

const (
	ContractTypeValve ContractType = "VALVE"
)

const (
	ChainEthereum       Chain = "ETHEREUM"
	ChainEthereumGoerli Chain = "ETHEREUM_GOERLI"
	ChainPolygon        Chain = "POLYGON"
	ChainPolygonMumbai  Chain = "POLYGON_MUMBAI"
)

const (
	DistributionTypeAuto   DistributionType = "AUTO"
	DistributionTypeManual DistributionType = "MANUAL"
)

// ChainIDs maps a chain name to the blockchain's numeric chain ID.
var ChainIDs = map[Chain]string{
	ChainEthereum:       "1",
	ChainEthereumGoerli: "5",
	ChainPolygon:        "137",
	ChainPolygonMumbai:  "80001",
}

// Contract represents a revenue-split contract, pre- or post-deployment.
// Address and PublishedAt are non-nil iff Status is PUBLISHED. V is the
// optimistic-concurrency version counter: every mutation is conditioned on
// it and increments it.
type Contract struct {
	ID                string             `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Author            string             `gorm:"not null;index" json:"author"`
	Owner             *string            `gorm:"index" json:"owner,omitempty"`
	Title             string             `gorm:"not null" json:"title"`
	Description       *string            `json:"description,omitempty"`
	Version           string             `gorm:"not null" json:"version"`
	Chain             Chain              `json:"chain,omitempty"`
	Type              ContractType       `gorm:"not null" json:"type"`
	Visibility        ContractVisibility `gorm:"default:PRIVATE" json:"visibility"`
	Status            ContractStatus     `gorm:"default:DRAFT;index" json:"status"`
	Metadata          JSON               `gorm:"type:text" json:"metadata,omitempty"`
	Address           *string            `json:"address,omitempty"`
	PublishedAt       *time.Time         `json:"published_at,omitempty"`
	LegalAgreementURL *string            `json:"legal_agreement_url,omitempty"`
	VisualizationURL  *string            `json:"visualization_url,omitempty"`
	V                 int64              `gorm:"not null;default:0" json:"-"`
	CreatedAt         time.Time          `json:"created_at"`
	UpdatedAt         time.Time          `json:"updated_at"`

	Participants []ContractParticipant `gorm:"foreignKey:ContractID" json:"participants,omitempty"`
}

type ParticipantRole string

type ParticipantIdentifierType string

const (
	ParticipantRoleAuthor      ParticipantRole = "AUTHOR"
	ParticipantRoleOwner       ParticipantRole = "OWNER"
	ParticipantRoleRecipient   ParticipantRole = "RECIPIENT"
	ParticipantRoleController  ParticipantRole = "CONTROLLER"
	ParticipantRoleDistributor ParticipantRole = "DISTRIBUTOR"
)

const (
	ParticipantIdentifierTypeID      ParticipantIdentifierType = "ID"
	ParticipantIdentifierTypeAddress ParticipantIdentifierType = "ADDRESS"
)

// ContractParticipant is an identity (user id or wallet address) holding a
// role on a contract. The derived set is keyed by Identifier only: a row
// never changes role in place, it is deleted and re-inserted.
type ContractParticipant struct {
	ID             uint                      `gorm:"primaryKey" json:"id"`
	ContractID     string                    `gorm:"not null;index;type:varchar(36)" json:"contract_id"`
	Identifier     string                    `gorm:"not null;index" json:"identifier"`
	IdentifierType ParticipantIdentifierType `gorm:"not null" json:"identifier_type"`
	Role           ParticipantRole           `gorm:"not null" json:"role"`
	CreatedAt      time.Time                 `json:"created_at"`
}

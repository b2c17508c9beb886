package web3

import (
	"bytes"
	"fmt"
	"reflect"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/rsclabs/valve-backend/internal/models"
)

// Log is the receipt log shape carried by the on-chain monitor records.
type Log struct {
	Address string   `json:"address"`
	Topics  []string `json:"topics"`
	Data    string   `json:"data"`
}

// ValveCreatedEvent is the decoded RSCValveCreated factory event. Only the
// fields the reconciler correlates on are surfaced.
type ValveCreatedEvent struct {
	ContractAddress common.Address
	CreationID      [32]byte
}

// ValveCreatedFromLogs scans receipt logs for the factory's
// RSCValveCreated event and decodes it. Returns nil when no log matches.
func ValveCreatedFromLogs(factory *Factory, logs []Log) (*ValveCreatedEvent, error) {
	parsed, err := factory.ABI()
	if err != nil {
		return nil, fmt.Errorf("failed to parse factory abi: %w", err)
	}
	event, ok := parsed.Events["RSCValveCreated"]
	if !ok {
		return nil, fmt.Errorf("factory abi has no RSCValveCreated event")
	}
	for _, log := range logs {
		if len(log.Topics) == 0 || common.HexToHash(log.Topics[0]) != event.ID {
			continue
		}
		data, err := hexutil.Decode(log.Data)
		if err != nil {
			return nil, fmt.Errorf("failed to decode log data: %w", err)
		}
		values, err := parsed.Unpack("RSCValveCreated", data)
		if err != nil {
			return nil, fmt.Errorf("failed to decode RSCValveCreated event: %w", err)
		}
		if len(values) < 8 {
			return nil, fmt.Errorf("unexpected RSCValveCreated event arity: %d", len(values))
		}
		address, ok := values[0].(common.Address)
		if !ok {
			return nil, fmt.Errorf("unexpected contract address type %T", values[0])
		}
		creationID, ok := values[7].([32]byte)
		if !ok {
			return nil, fmt.Errorf("unexpected creation id type %T", values[7])
		}
		return &ValveCreatedEvent{ContractAddress: address, CreationID: creationID}, nil
	}
	return nil, nil
}

// CreationIDFromCallData recovers the creation id from createRSCValve
// calldata. Pending transactions have no receipt yet, so this is the only
// correlation handle before the transaction mines. Returns false when the
// data does not match any registered factory method.
func CreationIDFromCallData(chain models.Chain, data []byte) ([32]byte, bool, error) {
	if len(data) < 4 {
		return [32]byte{}, false, nil
	}
	all, err := loadFactories()
	if err != nil {
		return [32]byte{}, false, fmt.Errorf("failed to load factory registry: %w", err)
	}
	for _, factory := range all[chain] {
		parsed, err := factory.ABI()
		if err != nil {
			return [32]byte{}, false, fmt.Errorf("failed to parse factory abi: %w", err)
		}
		method, ok := parsed.Methods["createRSCValve"]
		if !ok || !bytes.Equal(method.ID, data[:4]) {
			continue
		}
		values, err := method.Inputs.Unpack(data[4:])
		if err != nil {
			return [32]byte{}, false, fmt.Errorf("failed to decode createRSCValve calldata: %w", err)
		}
		if len(values) != 1 {
			return [32]byte{}, false, fmt.Errorf("unexpected createRSCValve arity: %d", len(values))
		}
		field := reflect.ValueOf(values[0]).FieldByName("CreationId")
		if !field.IsValid() {
			return [32]byte{}, false, fmt.Errorf("createRSCValve tuple has no creation id")
		}
		creationID, ok := field.Interface().([32]byte)
		if !ok {
			return [32]byte{}, false, fmt.Errorf("unexpected creation id type %T", field.Interface())
		}
		return creationID, true, nil
	}
	return [32]byte{}, false, nil
}

// ValveCreatedOnChain decodes the creation event against every factory
// registered for the chain. The monitor does not say which factory version
// produced the transaction.
func ValveCreatedOnChain(chain models.Chain, logs []Log) (*ValveCreatedEvent, error) {
	all, err := loadFactories()
	if err != nil {
		return nil, fmt.Errorf("failed to load factory registry: %w", err)
	}
	for _, factory := range all[chain] {
		decoded, err := ValveCreatedFromLogs(factory, logs)
		if err != nil {
			return nil, err
		}
		if decoded != nil {
			return decoded, nil
		}
	}
	return nil, nil
}

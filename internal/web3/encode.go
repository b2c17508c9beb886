package web3

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/rsclabs/valve-backend/internal/contracts"
)

var weiPerToken = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// ValveCreateData mirrors the createRSCValve tuple argument. Field names
// follow the ABI component names so the encoder can match them.
type ValveCreateData struct {
	Controller                       common.Address
	Distributors                     []common.Address
	IsImmutableRecipients            bool
	IsAutoNativeCurrencyDistribution bool
	MinAutoDistributeAmount          *big.Int
	InitialRecipients                []common.Address
	Percentages                      []*big.Int
	CreationId                       [32]byte
}

// BuildCreateData assembles the factory call tuple from a normalized
// prepared contract and the deployment's creation id.
func BuildCreateData(prepared *contracts.ValveV1PreparedContract, creationID [32]byte) (ValveCreateData, error) {
	data := ValveCreateData{
		MinAutoDistributeAmount: big.NewInt(0),
		CreationId:              creationID,
	}

	addresses, percentages, err := RecipientsToContractFormat(prepared.Recipients)
	if err != nil {
		return ValveCreateData{}, err
	}
	data.InitialRecipients = make([]common.Address, 0, len(addresses))
	for _, address := range addresses {
		data.InitialRecipients = append(data.InitialRecipients, common.HexToAddress(address))
	}
	data.Percentages = make([]*big.Int, 0, len(percentages))
	for _, percentage := range percentages {
		value, ok := new(big.Int).SetString(percentage, 10)
		if !ok {
			return ValveCreateData{}, fmt.Errorf("invalid percentage value: %s", percentage)
		}
		data.Percentages = append(data.Percentages, value)
	}

	if prepared.Controller != nil && prepared.Controller.Address != "" {
		data.Controller = common.HexToAddress(prepared.Controller.Address)
	}
	data.Distributors = make([]common.Address, 0, len(prepared.Distributors))
	for _, distributor := range DistributorsToContractFormat(prepared.Distributors) {
		data.Distributors = append(data.Distributors, common.HexToAddress(distributor))
	}

	if prepared.IsRecipientsLocked != nil {
		data.IsImmutableRecipients = *prepared.IsRecipientsLocked
	}
	if prepared.AutoNativeCurrencyDistribution != nil {
		data.IsAutoNativeCurrencyDistribution = *prepared.AutoNativeCurrencyDistribution
	}
	if prepared.MinAutoDistributionAmount != nil {
		// amounts are specified in whole native tokens, the chain wants wei
		data.MinAutoDistributeAmount = new(big.Int).Mul(big.NewInt(*prepared.MinAutoDistributionAmount), weiPerToken)
	}
	return data, nil
}

// EncodeCreateValveCall packs the createRSCValve invocation.
func EncodeCreateValveCall(factory *Factory, data ValveCreateData) ([]byte, error) {
	parsed, err := factory.ABI()
	if err != nil {
		return nil, fmt.Errorf("failed to parse factory abi: %w", err)
	}
	packed, err := parsed.Pack("createRSCValve", data)
	if err != nil {
		return nil, fmt.Errorf("failed to encode createRSCValve call: %w", err)
	}
	return packed, nil
}

// EncodePredictAddressCall packs the predictDeterministicAddress view call
// used to learn the valve address before the deployment lands.
func EncodePredictAddressCall(factory *Factory, data ValveCreateData, deployer common.Address) ([]byte, error) {
	parsed, err := factory.ABI()
	if err != nil {
		return nil, fmt.Errorf("failed to parse factory abi: %w", err)
	}
	packed, err := parsed.Pack("predictDeterministicAddress", data, deployer)
	if err != nil {
		return nil, fmt.Errorf("failed to encode predictDeterministicAddress call: %w", err)
	}
	return packed, nil
}

// UnpackPredictedAddress decodes the predictDeterministicAddress result.
func UnpackPredictedAddress(factory *Factory, output []byte) (common.Address, error) {
	parsed, err := factory.ABI()
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to parse factory abi: %w", err)
	}
	values, err := parsed.Unpack("predictDeterministicAddress", output)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to decode predicted address: %w", err)
	}
	if len(values) != 1 {
		return common.Address{}, fmt.Errorf("unexpected predictDeterministicAddress output arity: %d", len(values))
	}
	address, ok := values[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("unexpected predictDeterministicAddress output type %T", values[0])
	}
	return address, nil
}

package web3

import (
	"fmt"
	"math/big"

	"github.com/rsclabs/valve-backend/internal/contracts"
)

// contractPercentScale converts an integer percentage share into the
// on-chain basis representation (1% == 100000).
var contractPercentScale = big.NewInt(100000)

func ToContractPercent(revenue int64) string {
	return new(big.Int).Mul(big.NewInt(revenue), contractPercentScale).String()
}

// RecipientsToContractFormat converts recipients into the parallel
// address/percentage arrays the factory expects. Entries with zero or
// negative revenue are excluded from both arrays; a summed revenue over
// 100 is a validation failure.
func RecipientsToContractFormat(recipients []contracts.Recipient) (addresses []string, percentages []string, err error) {
	total := int64(0)
	for _, recipient := range recipients {
		if recipient.Revenue <= 0 {
			continue
		}
		addresses = append(addresses, recipient.Address)
		percentages = append(percentages, ToContractPercent(recipient.Revenue))
		total += recipient.Revenue
	}
	if total > 100 {
		return nil, nil, fmt.Errorf("total percentage is greater than 100%% : (%d%%)", total)
	}
	return addresses, percentages, nil
}

func DistributorsToContractFormat(distributors []contracts.AnonymousUser) []string {
	out := make([]string, 0, len(distributors))
	for _, distributor := range distributors {
		out = append(out, distributor.Address)
	}
	return out
}

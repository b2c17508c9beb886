package web3

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"

	"github.com/rsclabs/valve-backend/internal/models"
)

//go:embed factories.json
var factoriesJSON []byte

// Factory describes a deployed factory contract for one chain, contract
// type and contract version.
type Factory struct {
	Name    string          `json:"name"`
	Version string          `json:"version"`
	Address string          `json:"address"`
	Abi     json.RawMessage `json:"abi"`

	parseOnce sync.Once
	parsed    abi.ABI
	parseErr  error
}

// ABI returns the parsed contract ABI. Parsing happens once per factory.
func (f *Factory) ABI() (abi.ABI, error) {
	f.parseOnce.Do(func() {
		f.parsed, f.parseErr = abi.JSON(strings.NewReader(string(f.Abi)))
	})
	return f.parsed, f.parseErr
}

var (
	factoriesOnce sync.Once
	factories     map[models.Chain][]*Factory
	factoriesErr  error
)

func loadFactories() (map[models.Chain][]*Factory, error) {
	factoriesOnce.Do(func() {
		factories = make(map[models.Chain][]*Factory)
		factoriesErr = json.Unmarshal(factoriesJSON, &factories)
	})
	return factories, factoriesErr
}

// FactoryFor resolves the factory contract for the given chain, contract
// type and version.
func FactoryFor(chain models.Chain, contractType models.ContractType, version string) (*Factory, error) {
	all, err := loadFactories()
	if err != nil {
		return nil, fmt.Errorf("failed to load factory registry: %w", err)
	}
	for _, f := range all[chain] {
		if f.Name == string(contractType) && f.Version == version {
			return f, nil
		}
	}
	return nil, fmt.Errorf("no factory for chain %s, type %s, version %s", chain, contractType, version)
}

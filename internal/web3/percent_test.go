package web3

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rsclabs/valve-backend/internal/contracts"
)

func TestToContractPercent(t *testing.T) {
	assert.Equal(t, "100000", ToContractPercent(1))
	assert.Equal(t, "5000000", ToContractPercent(50))
	assert.Equal(t, "10000000", ToContractPercent(100))
}

func TestRecipientsToContractFormat(t *testing.T) {
	t.Run("converts recipients into parallel arrays", func(t *testing.T) {
		addresses, percentages, err := RecipientsToContractFormat([]contracts.Recipient{
			{Name: "a", Address: "0x1111111111111111111111111111111111111111", Revenue: 60},
			{Name: "b", Address: "0x2222222222222222222222222222222222222222", Revenue: 40},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{
			"0x1111111111111111111111111111111111111111",
			"0x2222222222222222222222222222222222222222",
		}, addresses)
		assert.Equal(t, []string{"6000000", "4000000"}, percentages)
	})

	t.Run("skips zero and negative revenue entries", func(t *testing.T) {
		addresses, percentages, err := RecipientsToContractFormat([]contracts.Recipient{
			{Name: "a", Address: "0x1111111111111111111111111111111111111111", Revenue: 0},
			{Name: "b", Address: "0x2222222222222222222222222222222222222222", Revenue: -5},
			{Name: "c", Address: "0x3333333333333333333333333333333333333333", Revenue: 100},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"0x3333333333333333333333333333333333333333"}, addresses)
		assert.Equal(t, []string{"10000000"}, percentages)
	})

	t.Run("rejects totals over one hundred", func(t *testing.T) {
		_, _, err := RecipientsToContractFormat([]contracts.Recipient{
			{Name: "a", Address: "0x1111111111111111111111111111111111111111", Revenue: 70},
			{Name: "b", Address: "0x2222222222222222222222222222222222222222", Revenue: 40},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "greater than 100")
	})

	t.Run("totals under one hundred are accepted", func(t *testing.T) {
		addresses, _, err := RecipientsToContractFormat([]contracts.Recipient{
			{Name: "a", Address: "0x1111111111111111111111111111111111111111", Revenue: 30},
		})
		require.NoError(t, err)
		assert.Len(t, addresses, 1)
	})
}

package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMinerListAcceptsCountOrArray(t *testing.T) {
	var counted P2PoolStatsResponse
	require.NoError(t, json.Unmarshal([]byte(`{"miners":12}`), &counted))
	require.NotNil(t, counted.Miners)
	assert.False(t, counted.Miners.IsList)
	assert.Equal(t, uint64(12), counted.Miners.Len())

	var listed P2PoolMinersResponse
	require.NoError(t, json.Unmarshal([]byte(`{"miners":[{"address":"4a","last_share_time":100},{"address":"4b"}]}`), &listed))
	require.NotNil(t, listed.Miners)
	assert.True(t, listed.Miners.IsList)
	assert.Equal(t, uint64(2), listed.Miners.Len())
	assert.Equal(t, int64(100), listed.Miners.Entries[0].LastShareTime)

	var empty P2PoolMinersResponse
	require.NoError(t, json.Unmarshal([]byte(`{"miners":[]}`), &empty))
	assert.Equal(t, uint64(0), empty.Miners.Len())
}

func TestMinerListAbsent(t *testing.T) {
	var res P2PoolStatsResponse
	require.NoError(t, json.Unmarshal([]byte(`{"pool_hashrate":1}`), &res))
	assert.Nil(t, res.Miners)
	assert.Equal(t, uint64(0), res.Miners.Len())
}

func TestMinerListRejectsGarbage(t *testing.T) {
	var res P2PoolStatsResponse
	assert.Error(t, json.Unmarshal([]byte(`{"miners":"lots"}`), &res))
	assert.Error(t, json.Unmarshal([]byte(`{"miners":-3}`), &res))
}

func TestMinerListMarshal(t *testing.T) {
	out, err := json.Marshal(MinerList{Count: 5})
	require.NoError(t, err)
	assert.JSONEq(t, `5`, string(out))

	out, err = json.Marshal(MinerList{IsList: true, Entries: []MinerEntry{{LastShareTime: 9}}})
	require.NoError(t, err)
	assert.JSONEq(t, `[{"last_share_time":9}]`, string(out))
}

func TestCountTolerantDecoding(t *testing.T) {
	var res P2PoolStatsResponse
	body := `{"uptime":86400.5,"shares":345,"workers":"7","total_paid":1000000000000,"min_payout":-1}`
	require.NoError(t, json.Unmarshal([]byte(body), &res))

	require.NotNil(t, res.Uptime)
	assert.Equal(t, Count(86400), *res.Uptime)
	assert.Equal(t, Count(345), *res.Shares)
	assert.Equal(t, Count(7), *res.Workers)
	assert.Equal(t, Count(1_000_000_000_000), *res.TotalPaid)
	assert.Equal(t, Count(0), *res.MinPayout)
	assert.Nil(t, res.PoolFee)

	// integers above 2^53 keep full precision
	var big P2PoolStatsResponse
	require.NoError(t, json.Unmarshal([]byte(`{"total_paid":18446744073709551615}`), &big))
	assert.Equal(t, Count(18446744073709551615), *big.TotalPaid)

	assert.Error(t, json.Unmarshal([]byte(`{"uptime":"soon"}`), &res))
}

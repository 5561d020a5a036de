package rpc

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTable_GetOrCreateIsAtomic(t *testing.T) {
	var created atomic.Int32
	table := NewTable(4, func(key ServiceKey) *ServiceConnection {
		created.Add(1)
		return &ServiceConnection{key: key}
	})
	key := NewServiceKey("AccountService", "account")

	const callers = 64
	results := make([]*ServiceConnection, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = table.GetOrCreate(key)
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, created.Load())
	for _, sc := range results {
		assert.Same(t, results[0], sc)
	}
	assert.Equal(t, 1, table.Len())
}

func TestTable_DistinctKeys(t *testing.T) {
	table := NewTable(3, func(key ServiceKey) *ServiceConnection {
		return &ServiceConnection{key: key}
	})
	assert.Len(t, table.shards, 4)

	a := table.GetOrCreate(NewServiceKey("AccountService", "eu"))
	b := table.GetOrCreate(NewServiceKey("AccountService", "us"))
	c := table.GetOrCreate(NewServiceKey("BillingService", "eu"))
	assert.NotSame(t, a, b)
	assert.NotSame(t, a, c)

	got, ok := table.Get(NewServiceKey("AccountService", "us"))
	require.True(t, ok)
	assert.Same(t, b, got)
	_, ok = table.Get(NewServiceKey("AccountService", "asia"))
	assert.False(t, ok)

	seen := 0
	table.Range(func(*ServiceConnection) bool {
		seen++
		return true
	})
	assert.Equal(t, 3, seen)

	seen = 0
	table.Range(func(*ServiceConnection) bool {
		seen++
		return false
	})
	assert.Equal(t, 1, seen)
}

func TestServiceKey_Naming(t *testing.T) {
	named := NewServiceKey("AccountService", "account")
	assert.Equal(t, "account", named.ServiceName())
	assert.Equal(t, "account-AccountService", named.String())

	unnamed := NewServiceKey("AccountService", "")
	assert.Equal(t, "AccountService", unnamed.ServiceName())
	assert.Equal(t, "AccountService", unnamed.String())
}

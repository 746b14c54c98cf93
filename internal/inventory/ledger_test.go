package inventory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/fjod/petmarket/internal/apperr"
	"github.com/fjod/petmarket/internal/catalog/domain"
	catalog "github.com/fjod/petmarket/internal/catalog/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupLedger(t *testing.T, stock int) (*Ledger, *catalog.MemoryStore, int64) {
	t.Helper()
	store := catalog.NewMemoryStore()
	id := store.SetProduct(domain.Product{Name: "Chew Toy", Stock: stock})
	return NewLedger(store), store, id
}

func currentStock(t *testing.T, store *catalog.MemoryStore, id int64) int {
	t.Helper()
	p, err := store.GetProduct(context.Background(), id)
	require.NoError(t, err)
	return p.Stock
}

func TestReserve_Success(t *testing.T) {
	ledger, store, id := setupLedger(t, 10)

	require.NoError(t, ledger.Reserve(context.Background(), id, 3))
	assert.Equal(t, 7, currentStock(t, store, id))
}

func TestReserve_InsufficientStock(t *testing.T) {
	ledger, store, id := setupLedger(t, 2)

	err := ledger.Reserve(context.Background(), id, 3)

	assert.ErrorIs(t, err, apperr.ErrInsufficientStock)
	var stockErr *apperr.StockError
	require.True(t, errors.As(err, &stockErr))
	assert.Equal(t, id, stockErr.ProductID)
	assert.Equal(t, 3, stockErr.Requested)
	assert.Equal(t, 2, stockErr.Available)
	assert.Equal(t, 2, currentStock(t, store, id))
}

func TestReserve_ProductNotFound(t *testing.T) {
	ledger, _, _ := setupLedger(t, 1)

	err := ledger.Reserve(context.Background(), 404, 1)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestReserve_InvalidQuantity(t *testing.T) {
	ledger, store, id := setupLedger(t, 5)

	assert.ErrorIs(t, ledger.Reserve(context.Background(), id, 0), apperr.ErrInvalidQuantity)
	assert.Equal(t, 5, currentStock(t, store, id))
}

func TestRelease_RestoresStock(t *testing.T) {
	ledger, store, id := setupLedger(t, 10)
	ctx := context.Background()

	require.NoError(t, ledger.Reserve(ctx, id, 4))
	require.NoError(t, ledger.Release(ctx, id, 4))
	assert.Equal(t, 10, currentStock(t, store, id))
}

func TestRelease_IsUnbounded(t *testing.T) {
	ledger, store, id := setupLedger(t, 1)

	require.NoError(t, ledger.Release(context.Background(), id, 5))
	assert.Equal(t, 6, currentStock(t, store, id))
}

func TestRelease_ProductNotFound(t *testing.T) {
	ledger, _, _ := setupLedger(t, 1)

	assert.ErrorIs(t, ledger.Release(context.Background(), 404, 1), apperr.ErrNotFound)
}

func TestReserve_ConcurrentReservations(t *testing.T) {
	ledger, store, id := setupLedger(t, 10)

	var wg sync.WaitGroup
	var mu sync.Mutex
	successCount := 0
	shortCount := 0

	// 10 concurrent checkouts each trying to take 3 units out of 10
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := ledger.Reserve(context.Background(), id, 3)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successCount++
			} else if errors.Is(err, apperr.ErrInsufficientStock) {
				shortCount++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, successCount)
	assert.Equal(t, 7, shortCount)
	assert.Equal(t, 1, currentStock(t, store, id))
}

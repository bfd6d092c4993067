package sqlstore_test

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/profprotonn/protonbot/store"
	"github.com/profprotonn/protonbot/store/sqlstore"
	"github.com/profprotonn/protonbot/store/storetest"
)

var dbcount atomic.Uint64

func testPool() *sqlitex.Pool {
	k := dbcount.Add(1)
	pool, err := sqlitex.NewPool(fmt.Sprintf("file:%d.db?mode=memory&cache=shared", k), sqlitex.PoolOptions{Flags: sqlite.OpenReadWrite | sqlite.OpenCreate | sqlite.OpenMemory | sqlite.OpenSharedCache | sqlite.OpenURI})
	if err != nil {
		panic(err)
	}
	return pool
}

func TestStore(t *testing.T) {
	storetest.Test(context.Background(), t, func(ctx context.Context) store.Store {
		s, err := sqlstore.Open(ctx, testPool())
		if err != nil {
			t.Fatal(err)
		}
		return s
	})
}

func TestInitTwice(t *testing.T) {
	ctx := context.Background()
	db := testPool()
	defer db.Close()
	if err := sqlstore.Init(ctx, db); err != nil {
		t.Error(err)
	}
	if err := sqlstore.Init(ctx, db); err != nil {
		t.Errorf("second init failed: %v", err)
	}
}

package pgstore_test

import (
	"context"
	"os"
	"testing"

	"github.com/profprotonn/protonbot/store"
	"github.com/profprotonn/protonbot/store/pgstore"
	"github.com/profprotonn/protonbot/store/storetest"
)

func TestStore(t *testing.T) {
	dsn := os.Getenv("PROTONBOT_TEST_POSTGRES")
	if dsn == "" {
		t.Skip("PROTONBOT_TEST_POSTGRES not set")
	}
	storetest.Test(context.Background(), t, func(ctx context.Context) store.Store {
		s, err := pgstore.Open(ctx, dsn)
		if err != nil {
			t.Fatal(err)
		}
		// Each run starts from an empty table.
		if err := s.Reset(ctx); err != nil {
			t.Fatal(err)
		}
		return s
	})
}

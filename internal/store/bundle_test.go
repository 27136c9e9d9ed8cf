package store

import (
	"context"
	"testing"
)

func TestBundle_InsertGetRoundtrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	row := BundleRow{Handle: "h-1", Version: "1.0.0", Schema: testSchema(), DeployedSeq: 3}
	err := s.WithTx(ctx, func(tx *Tx) error {
		inserted, err := tx.InsertBundle(ctx, row)
		if err != nil {
			return err
		}
		if !inserted {
			t.Error("first insert should report inserted=true")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("InsertBundle failed: %v", err)
	}

	got, err := s.GetBundle(ctx, "h-1")
	if err != nil {
		t.Fatalf("GetBundle failed: %v", err)
	}
	if got.Version != "1.0.0" || got.DeployedSeq != 3 {
		t.Errorf("row mismatch: %+v", got)
	}
	if len(got.Schema.Fields) != 1 || got.Schema.Fields[0].Name != "value" || got.Schema.Reserved != 2 {
		t.Errorf("schema roundtrip: %+v", got.Schema)
	}
}

func TestBundle_InsertIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	row := BundleRow{Handle: "h-1", Version: "1.0.0", Schema: testSchema(), DeployedSeq: 1}
	for i, wantInserted := range []bool{true, false} {
		err := s.WithTx(ctx, func(tx *Tx) error {
			inserted, err := tx.InsertBundle(ctx, row)
			if err != nil {
				return err
			}
			if inserted != wantInserted {
				t.Errorf("insert %d: inserted=%v, want %v", i, inserted, wantInserted)
			}
			return nil
		})
		if err != nil {
			t.Fatalf("InsertBundle failed: %v", err)
		}
	}
}

func TestBundle_GetMissing(t *testing.T) {
	s := openTestStore(t)

	_, err := s.GetBundle(context.Background(), "ghost")
	if err != ErrNotFound {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestBundle_ListOrdered(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	err := s.WithTx(ctx, func(tx *Tx) error {
		for _, row := range []BundleRow{
			{Handle: "h-b", Version: "2.0.0", Schema: testSchema(), DeployedSeq: 2},
			{Handle: "h-a", Version: "1.0.0", Schema: testSchema(), DeployedSeq: 1},
		} {
			if _, err := tx.InsertBundle(ctx, row); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("InsertBundle failed: %v", err)
	}

	rows, err := s.ListBundles(ctx)
	if err != nil {
		t.Fatalf("ListBundles failed: %v", err)
	}
	if len(rows) != 2 || rows[0].Handle != "h-a" || rows[1].Handle != "h-b" {
		t.Errorf("ordering: %+v", rows)
	}
}

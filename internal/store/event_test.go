package store

import (
	"context"
	"testing"
	"time"

	"github.com/roach88/pivot/internal/audit"
)

func appendTestEvent(t *testing.T, s *Store, ev audit.Event) {
	t.Helper()
	ctx := context.Background()
	err := s.WithTx(ctx, func(tx *Tx) error {
		return tx.AppendEvent(ctx, ev)
	})
	if err != nil {
		t.Fatalf("AppendEvent failed: %v", err)
	}
}

func TestEvents_AppendAndList(t *testing.T) {
	s := openTestStore(t)
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	appendTestEvent(t, s, audit.Event{
		Seq: 1, Kind: audit.KindInitialized, InstanceID: "inst-1",
		Actor: "alice", ToVersion: "1.0.0", At: at,
	})
	appendTestEvent(t, s, audit.Event{
		Seq: 2, Kind: audit.KindUpgraded, InstanceID: "inst-1",
		Actor: "alice", FromVersion: "1.0.0", ToVersion: "2.0.0", At: at.Add(time.Second),
	})
	appendTestEvent(t, s, audit.Event{
		Seq: 3, Kind: audit.KindInitialized, InstanceID: "inst-2",
		Actor: "bob", ToVersion: "1.0.0", At: at.Add(2 * time.Second),
	})

	all, err := s.ListEvents(context.Background(), "")
	if err != nil {
		t.Fatalf("ListEvents failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("got %d events, want 3", len(all))
	}
	if all[0].Seq != 1 || all[1].Seq != 2 || all[2].Seq != 3 {
		t.Errorf("events out of order: %+v", all)
	}
	if all[1].FromVersion != "1.0.0" || all[1].ToVersion != "2.0.0" {
		t.Errorf("upgrade versions lost: %+v", all[1])
	}
	if !all[0].At.Equal(at) {
		t.Errorf("timestamp roundtrip: got %v, want %v", all[0].At, at)
	}
}

func TestEvents_FilterByInstance(t *testing.T) {
	s := openTestStore(t)
	at := time.Now().UTC()

	appendTestEvent(t, s, audit.Event{Seq: 1, Kind: audit.KindInitialized, InstanceID: "inst-1", Actor: "a", At: at})
	appendTestEvent(t, s, audit.Event{Seq: 2, Kind: audit.KindInitialized, InstanceID: "inst-2", Actor: "b", At: at})

	got, err := s.ListEvents(context.Background(), "inst-2")
	if err != nil {
		t.Fatalf("ListEvents failed: %v", err)
	}
	if len(got) != 1 || got[0].InstanceID != "inst-2" {
		t.Errorf("filter failed: %+v", got)
	}
}

func TestEvents_EmptyListNotNil(t *testing.T) {
	s := openTestStore(t)

	got, err := s.ListEvents(context.Background(), "")
	if err != nil {
		t.Fatalf("ListEvents failed: %v", err)
	}
	if got == nil {
		t.Error("expected empty slice, got nil")
	}
}

func TestMaxEventSeq(t *testing.T) {
	s := openTestStore(t)

	seq, err := s.MaxEventSeq(context.Background())
	if err != nil {
		t.Fatalf("MaxEventSeq failed: %v", err)
	}
	if seq != 0 {
		t.Errorf("empty store: got %d, want 0", seq)
	}

	appendTestEvent(t, s, audit.Event{Seq: 41, Kind: audit.KindInitialized, InstanceID: "i", Actor: "a", At: time.Now()})

	seq, err = s.MaxEventSeq(context.Background())
	if err != nil {
		t.Fatalf("MaxEventSeq failed: %v", err)
	}
	if seq != 41 {
		t.Errorf("got %d, want 41", seq)
	}
}

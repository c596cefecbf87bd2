package cleanup

import (
	"context"
	"fmt"
	"testing"
	"time"
)

// fakeStore records the cutoffs each sweep step received.
type fakeStore struct {
	deleteCutoff time.Time
	resetCutoff  time.Time
	deleted      int64
	reset        int64
	deleteErr    error
	resetErr     error
}

func (f *fakeStore) DeleteTerminalBefore(_ context.Context, cutoff time.Time) (int64, error) {
	f.deleteCutoff = cutoff
	return f.deleted, f.deleteErr
}

func (f *fakeStore) ResetInactiveEnvironments(_ context.Context, cutoff time.Time, _ time.Time) (int64, error) {
	f.resetCutoff = cutoff
	return f.reset, f.resetErr
}

func TestSweep(t *testing.T) {
	store := &fakeStore{deleted: 3, reset: 2}

	result, err := Sweep(context.Background(), store, 30*24*time.Hour)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if result.CommandsDeleted != 3 || result.EnvironmentsReset != 2 {
		t.Fatalf("result = %+v", result)
	}

	wantCutoff := time.Now().UTC().Add(-30 * 24 * time.Hour)
	if diff := store.deleteCutoff.Sub(wantCutoff); diff < -time.Minute || diff > time.Minute {
		t.Fatalf("delete cutoff = %v, want ~%v", store.deleteCutoff, wantCutoff)
	}
	if !store.deleteCutoff.Equal(store.resetCutoff) {
		t.Fatalf("cutoffs differ: %v vs %v", store.deleteCutoff, store.resetCutoff)
	}
}

func TestSweepDefaultRetention(t *testing.T) {
	store := &fakeStore{}

	if _, err := Sweep(context.Background(), store, 0); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	wantCutoff := time.Now().UTC().Add(-DefaultRetention)
	if diff := store.deleteCutoff.Sub(wantCutoff); diff < -time.Minute || diff > time.Minute {
		t.Fatalf("cutoff = %v, want ~%v", store.deleteCutoff, wantCutoff)
	}
}

func TestSweepDeleteError(t *testing.T) {
	store := &fakeStore{deleteErr: fmt.Errorf("disk gone")}

	if _, err := Sweep(context.Background(), store, time.Hour); err == nil {
		t.Fatal("expected error")
	}
	if !store.resetCutoff.IsZero() {
		t.Fatal("reset ran despite delete failure")
	}
}

func TestSweepResetErrorKeepsDeleteCount(t *testing.T) {
	store := &fakeStore{deleted: 5, resetErr: fmt.Errorf("locked")}

	result, err := Sweep(context.Background(), store, time.Hour)
	if err == nil {
		t.Fatal("expected error")
	}
	if result.CommandsDeleted != 5 {
		t.Fatalf("deleted = %d, want 5", result.CommandsDeleted)
	}
}

func TestSweepNilStore(t *testing.T) {
	if _, err := Sweep(context.Background(), nil, time.Hour); err == nil {
		t.Fatal("expected error")
	}
}

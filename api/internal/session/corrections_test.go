package session

import (
	"fmt"
	"testing"

	"voiceshield/api/internal/detect/types"
)

func correction(i int) types.Correction {
	return types.Correction{
		OriginalPrediction: types.LabelHuman,
		ActualLabel:        types.LabelAIGenerated,
		ReasoningOfFailure: fmt.Sprintf("lesson %d", i),
	}
}

func TestCorrectionLogOrder(t *testing.T) {
	l := NewCorrectionLog(3)
	for i := 1; i <= 2; i++ {
		l.Append(correction(i))
	}
	got := l.Snapshot()
	if len(got) != 2 || got[0].ReasoningOfFailure != "lesson 1" || got[1].ReasoningOfFailure != "lesson 2" {
		t.Fatalf("snapshot = %+v", got)
	}
}

func TestCorrectionLogEvictsOldest(t *testing.T) {
	l := NewCorrectionLog(3)
	for i := 1; i <= 5; i++ {
		l.Append(correction(i))
	}
	got := l.Snapshot()
	if len(got) != 3 {
		t.Fatalf("len = %d", len(got))
	}
	for i, want := range []string{"lesson 3", "lesson 4", "lesson 5"} {
		if got[i].ReasoningOfFailure != want {
			t.Fatalf("snapshot[%d] = %q, want %q", i, got[i].ReasoningOfFailure, want)
		}
	}
	if l.Total() != 5 || l.Len() != 3 || l.Cap() != 3 {
		t.Fatalf("total=%d len=%d cap=%d", l.Total(), l.Len(), l.Cap())
	}
}

func TestCorrectionLogSnapshotIsCopy(t *testing.T) {
	l := NewCorrectionLog(0)
	if l.Cap() != DefaultMaxCorrections {
		t.Fatalf("cap = %d", l.Cap())
	}
	l.Append(correction(1))
	s := l.Snapshot()
	s[0].ReasoningOfFailure = "mutated"
	if l.Snapshot()[0].ReasoningOfFailure != "lesson 1" {
		t.Fatal("snapshot aliases internal storage")
	}
}

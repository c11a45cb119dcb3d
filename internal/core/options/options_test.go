package options

import (
	"testing"

	"docwatch/internal/core/errors"
)

func TestDefaults(t *testing.T) {
	s := NewState()
	snap := s.Snapshot()

	if !snap.Trigger {
		t.Error("trigger must default to true")
	}
	if snap.Silent || snap.Verbose {
		t.Error("silent and verbose must default to false")
	}
}

func TestSet_RoundTrip(t *testing.T) {
	s := NewState()
	before := s.Snapshot()

	after, err := s.Set(map[string]bool{"verbose": true})
	if err != nil {
		t.Fatal(err)
	}
	if !after.Verbose {
		t.Error("verbose must be true after update")
	}
	if after.Trigger != before.Trigger || after.Silent != before.Silent {
		t.Error("untouched fields must keep their prior values")
	}
}

func TestSet_UnknownOptionIsAtomic(t *testing.T) {
	s := NewState()

	_, err := s.Set(map[string]bool{"silent": true, "bogus": true})
	if err == nil {
		t.Fatal("expected error for unknown option")
	}
	if !errors.IsCode(err, errors.CodeValidationError) {
		t.Fatalf("expected VALIDATION_ERROR, got %v", err)
	}
	if s.Snapshot().Silent {
		t.Error("failed update must not apply any of its changes")
	}
}

func TestOnChange_BroadcastsFullSnapshot(t *testing.T) {
	s := NewState()

	var got []Options
	s.OnChange(func(o Options) { got = append(got, o) })

	if _, err := s.SetToggle("silent", true); err != nil {
		t.Fatal(err)
	}
	if _, err := s.SetToggle("silent", false); err != nil {
		t.Fatal(err)
	}

	if len(got) != 2 {
		t.Fatalf("expected 2 broadcasts, got %d", len(got))
	}
	if !got[0].Silent || got[1].Silent {
		t.Error("broadcast snapshots must carry the resulting state")
	}
	if !got[0].Trigger {
		t.Error("broadcast must include untouched fields")
	}
}

func TestRegister_DynamicToggle(t *testing.T) {
	s := NewState()
	if err := s.Register("beep", true); err != nil {
		t.Fatal(err)
	}
	if err := s.Register("beep", false); err == nil {
		t.Fatal("duplicate registration must fail")
	}

	if v, ok := s.Snapshot().Get("beep"); !ok || !v {
		t.Error("registered toggle must carry its initial value")
	}

	snap, err := s.SetToggle("beep", false)
	if err != nil {
		t.Fatal(err)
	}
	if v, _ := snap.Get("beep"); v {
		t.Error("toggle update must apply")
	}
}

func TestRegisterInverse_PausedAliasesTrigger(t *testing.T) {
	s := NewState()
	if err := s.RegisterInverse("paused", "trigger"); err != nil {
		t.Fatal(err)
	}
	if err := s.RegisterInverse("x", "nope"); err == nil {
		t.Fatal("inverse of unknown toggle must fail")
	}

	snap, err := s.SetToggle("paused", true)
	if err != nil {
		t.Fatal(err)
	}
	if snap.Trigger {
		t.Error("paused on must clear trigger")
	}

	snap, err = s.SetToggle("paused", false)
	if err != nil {
		t.Fatal(err)
	}
	if !snap.Trigger {
		t.Error("paused off must restore trigger")
	}
}

func TestRegisterInverse_ResolvesThroughSnapshots(t *testing.T) {
	s := NewState()
	if err := s.RegisterInverse("paused", "trigger"); err != nil {
		t.Fatal(err)
	}

	paused, ok := s.Snapshot().Get("paused")
	if !ok {
		t.Fatal("snapshot must resolve a registered inverse toggle")
	}
	if paused {
		t.Error("paused must read false while trigger is true")
	}

	snap, err := s.SetToggle("paused", true)
	if err != nil {
		t.Fatal(err)
	}
	paused, ok = snap.Get("paused")
	if !ok || !paused {
		t.Errorf("broadcast snapshot: paused=%t ok=%t, want true/true", paused, ok)
	}

	var seen Options
	s.OnChange(func(o Options) { seen = o })
	if _, err := s.SetToggle("trigger", true); err != nil {
		t.Fatal(err)
	}
	paused, ok = seen.Get("paused")
	if !ok || paused {
		t.Errorf("change callback snapshot: paused=%t ok=%t, want false/true", paused, ok)
	}
}

func TestSnapshot_IsDefensiveCopy(t *testing.T) {
	s := NewState()
	if err := s.Register("beep", true); err != nil {
		t.Fatal(err)
	}

	snap := s.Snapshot()
	snap.Extra["beep"] = false
	snap.Trigger = false

	current := s.Snapshot()
	if v, _ := current.Get("beep"); !v {
		t.Error("mutating a snapshot must not affect live state")
	}
	if !current.Trigger {
		t.Error("mutating a snapshot must not affect live state")
	}
}

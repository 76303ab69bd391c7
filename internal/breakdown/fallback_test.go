package breakdown

import (
	"testing"

	"github.com/unstuck-app/unstuck/internal/task"
)

func TestFallbackSteps_MediumDefaults(t *testing.T) {
	steps := FallbackSteps("Clean kitchen", task.EnergyMedium)

	if len(steps) != 3 {
		t.Fatalf("expected 3 fallback steps, got %d", len(steps))
	}
	wantMinutes := []int{2, 12, 3}
	for i, st := range steps {
		if st.StepOrder != i+1 {
			t.Errorf("step %d order = %d, want %d", i, st.StepOrder, i+1)
		}
		if st.EstimatedMinutes != wantMinutes[i] {
			t.Errorf("step %d minutes = %d, want %d", i, st.EstimatedMinutes, wantMinutes[i])
		}
		if st.Description == "" {
			t.Errorf("step %d has an empty description", i)
		}
	}
}

func TestFallbackSteps_TierMinutes(t *testing.T) {
	cases := []struct {
		energy task.EnergyLevel
		want   []int
	}{
		{task.EnergyLow, []int{2, 7, 3}},
		{task.EnergyMedium, []int{2, 12, 3}},
		{task.EnergyHigh, []int{2, 25, 4}},
	}
	for _, tc := range cases {
		steps := FallbackSteps("x", tc.energy)
		for i, st := range steps {
			if st.EstimatedMinutes != tc.want[i] {
				t.Errorf("%s step %d minutes = %d, want %d", tc.energy, i, st.EstimatedMinutes, tc.want[i])
			}
		}
	}
}

func TestFallbackSteps_Deterministic(t *testing.T) {
	a := FallbackSteps("Do laundry", task.EnergyLow)
	b := FallbackSteps("Do laundry", task.EnergyLow)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("fallback steps differ at index %d: %+v vs %+v", i, a[i], b[i])
		}
	}
}

func TestFallbackSteps_InvalidEnergy(t *testing.T) {
	steps := FallbackSteps("x", task.EnergyLevel(""))
	if steps[1].EstimatedMinutes != 12 {
		t.Errorf("invalid energy should use medium defaults, got %d", steps[1].EstimatedMinutes)
	}
}

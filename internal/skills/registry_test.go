package skills

import (
	"math"
	"testing"

	"github.com/ghostpirates/crew/pkg/models"
)

// fakeAgentStore records skill updates without a database.
type fakeAgentStore struct {
	agents map[string]*models.Agent
	saved  map[string]map[string]float64
}

func newFakeAgentStore() *fakeAgentStore {
	return &fakeAgentStore{
		agents: make(map[string]*models.Agent),
		saved:  make(map[string]map[string]float64),
	}
}

func (f *fakeAgentStore) CreateAgent(a *models.Agent) error { f.agents[a.ID] = a; return nil }
func (f *fakeAgentStore) GetAgent(id string) (*models.Agent, error) {
	return f.agents[id], nil
}
func (f *fakeAgentStore) ListAgentsByTeam(string) ([]models.Agent, error) { return nil, nil }
func (f *fakeAgentStore) UpdateAgentSkills(id string, skills map[string]float64) error {
	f.saved[id] = skills
	return nil
}
func (f *fakeAgentStore) AdjustAgentLoad(string, int) error { return nil }
func (f *fakeAgentStore) DeactivateAgent(string) error      { return nil }

func TestRecordOutcomeBumpsOnSuccess(t *testing.T) {
	store := newFakeAgentStore()
	reg := NewRegistry(store)

	a := &models.Agent{ID: "w1", Skills: map[string]float64{"coding": 0.5}}
	if err := reg.RecordOutcome(a, []string{"coding"}, true); err != nil {
		t.Fatal(err)
	}

	want := 0.5 + bumpAlpha*0.5
	if math.Abs(a.Skills["coding"]-want) > 1e-9 {
		t.Errorf("coding = %v, want %v", a.Skills["coding"], want)
	}
	if store.saved["w1"] == nil {
		t.Error("skills should be persisted")
	}
}

func TestRecordOutcomeDecaysOnFailure(t *testing.T) {
	store := newFakeAgentStore()
	reg := NewRegistry(store)

	a := &models.Agent{ID: "w1", Skills: map[string]float64{"coding": 0.8}}
	if err := reg.RecordOutcome(a, []string{"coding"}, false); err != nil {
		t.Fatal(err)
	}

	want := 0.8 * (1 - decayAlpha)
	if math.Abs(a.Skills["coding"]-want) > 1e-9 {
		t.Errorf("coding = %v, want %v", a.Skills["coding"], want)
	}
}

func TestSuccessRateNeutralWithoutHistory(t *testing.T) {
	reg := NewRegistry(newFakeAgentStore())

	if got := reg.SuccessRate("unknown", []string{"coding"}); got != 0.5 {
		t.Errorf("rate = %v, want neutral 0.5", got)
	}
}

func TestSuccessRateAveragesOutcomes(t *testing.T) {
	store := newFakeAgentStore()
	reg := NewRegistry(store)
	a := &models.Agent{ID: "w1", Skills: map[string]float64{}}

	// 3 successes, 1 failure on coding
	for i := 0; i < 3; i++ {
		if err := reg.RecordOutcome(a, []string{"coding"}, true); err != nil {
			t.Fatal(err)
		}
	}
	if err := reg.RecordOutcome(a, []string{"coding"}, false); err != nil {
		t.Fatal(err)
	}

	if got := reg.SuccessRate("w1", []string{"coding"}); got != 0.75 {
		t.Errorf("rate = %v, want 0.75", got)
	}

	// Mixed with an unseen skill: (0.75 + 0.5) / 2
	if got := reg.SuccessRate("w1", []string{"coding", "testing"}); got != 0.625 {
		t.Errorf("mixed rate = %v, want 0.625", got)
	}
}

package pantheon

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/dakeena/living-chronicle/internal/domain"
	"github.com/dakeena/living-chronicle/internal/population"
)

func crowd(n int, d domain.Domain, level float64) []*population.Citizen {
	citizens := make([]*population.Citizen, n)
	for i := range citizens {
		c := &population.Citizen{ID: int64(i + 1), Alive: true}
		c.Beliefs[d] = level
		citizens[i] = c
	}
	return citizens
}

func force(citizens []*population.Citizen, d domain.Domain, level float64) {
	for _, c := range citizens {
		c.Beliefs[d] = level
	}
}

func TestAggregateBeliefs(t *testing.T) {
	citizens := []*population.Citizen{
		{Alive: true}, {Alive: true}, {Alive: false},
	}
	citizens[0].Beliefs[domain.Sky] = 0.2
	citizens[1].Beliefs[domain.Sky] = 0.8
	citizens[2].Beliefs[domain.Sky] = 1.0

	aggs := AggregateBeliefs(citizens)
	sky := aggs[domain.Sky]

	if math.Abs(sky.Mean-0.5) > 1e-9 {
		t.Errorf("mean = %v, want 0.5 (dead citizen excluded)", sky.Mean)
	}
	// variance = 0.09, coherence = 1 - 0.36
	if math.Abs(sky.Coherence-0.64) > 1e-9 {
		t.Errorf("coherence = %v, want 0.64", sky.Coherence)
	}
	if sky.Believers != 1 {
		t.Errorf("believers = %d, want 1", sky.Believers)
	}

	citizens[0].Beliefs[domain.War] = 0
	citizens[1].Beliefs[domain.War] = 1
	if c := AggregateBeliefs(citizens)[domain.War].Coherence; c != 0 {
		t.Errorf("polarised coherence = %v, want floored at 0", c)
	}
}

func TestAggregateEmptyPopulation(t *testing.T) {
	aggs := AggregateBeliefs(nil)
	for _, d := range domain.All {
		if aggs[d].Mean != 0 || aggs[d].Coherence != 0 {
			t.Errorf("%s: expected zero aggregate, got %+v", d, aggs[d])
		}
	}
}

func TestBirthAfterStreak(t *testing.T) {
	p := New(rand.New(rand.NewSource(1)))
	citizens := crowd(20, domain.River, 0.8)

	for day := 1; day < BirthStreak; day++ {
		born, _ := p.Process(citizens, day)
		if len(born) != 0 {
			t.Fatalf("day %d: god born before streak complete", day)
		}
		if got := p.Shrines()[domain.River]; got.Phase != Ascending || got.Streak != day {
			t.Fatalf("day %d: shrine = %s/%d, want ascending/%d", day, got.Phase, got.Streak, day)
		}
	}

	born, _ := p.Process(citizens, BirthStreak)
	if len(born) != 1 {
		t.Fatalf("expected one birth on day %d, got %d", BirthStreak, len(born))
	}
	g := born[0]
	if g.Domain != domain.River || !g.Alive || g.BirthDay != BirthStreak || g.Name == "" {
		t.Errorf("unexpected newborn %+v", g)
	}
	if p.Shrines()[domain.River].Phase != Manifest {
		t.Errorf("shrine phase = %s, want manifest", p.Shrines()[domain.River].Phase)
	}
}

func TestBadDayResetsStreak(t *testing.T) {
	p := New(rand.New(rand.NewSource(2)))
	citizens := crowd(10, domain.Flame, 0.9)

	for day := 1; day <= BirthStreak-1; day++ {
		p.Process(citizens, day)
	}
	force(citizens, domain.Flame, 0.1)
	p.Process(citizens, BirthStreak)
	if s := p.Shrines()[domain.Flame]; s.Phase != Dormant || s.Streak != 0 {
		t.Fatalf("after failing day shrine = %s/%d, want dormant/0", s.Phase, s.Streak)
	}

	force(citizens, domain.Flame, 0.9)
	for day := BirthStreak + 1; day < 2*BirthStreak; day++ {
		if born, _ := p.Process(citizens, day); len(born) != 0 {
			t.Fatalf("day %d: birth without a full fresh streak", day)
		}
	}
	if born, _ := p.Process(citizens, 2*BirthStreak); len(born) != 1 {
		t.Fatal("expected birth after a full fresh streak")
	}
}

func TestIncoherentBeliefDoesNotBirth(t *testing.T) {
	p := New(rand.New(rand.NewSource(3)))
	citizens := crowd(10, domain.War, 1.0)
	for i := 0; i < 4; i++ {
		citizens[i].Beliefs[domain.War] = 0.05
	}
	// Mean 0.62 but variance ~0.22, coherence ~0.11.
	for day := 1; day <= 3*BirthStreak; day++ {
		if born, _ := p.Process(citizens, day); len(born) != 0 {
			t.Fatal("incoherent belief should not birth a god")
		}
	}
}

func TestFadeAfterStreak(t *testing.T) {
	p := New(rand.New(rand.NewSource(4)))
	citizens := crowd(12, domain.Harvest, 0.8)
	var god *God
	for day := 1; day <= BirthStreak; day++ {
		born, _ := p.Process(citizens, day)
		if len(born) == 1 {
			god = born[0]
		}
	}
	if god == nil {
		t.Fatal("setup: god not born")
	}

	force(citizens, domain.Harvest, 0)
	start := BirthStreak + 1
	for i := 0; i < FadeStreak-1; i++ {
		_, faded := p.Process(citizens, start+i)
		if len(faded) != 0 {
			t.Fatalf("faded after %d weak days", i+1)
		}
		if !god.Alive || god.WeakDays != i+1 || god.StrongDays != 0 {
			t.Fatalf("weak day %d: god state %+v", i+1, god)
		}
	}

	deathDay := start + FadeStreak - 1
	_, faded := p.Process(citizens, deathDay)
	if len(faded) != 1 || faded[0] != god {
		t.Fatalf("expected the god to fade on day %d", deathDay)
	}
	if god.Alive || god.DeathDay == nil || *god.DeathDay != deathDay {
		t.Errorf("faded god state %+v", god)
	}
	if len(p.Living()) != 0 {
		t.Error("no gods should remain alive")
	}
	if s := p.Shrines()[domain.Harvest]; s.Phase != Dormant || s.God != nil {
		t.Errorf("shrine after fade = %s", s.Phase)
	}
}

func TestRecoveryResetsWeakStreak(t *testing.T) {
	p := New(rand.New(rand.NewSource(5)))
	citizens := crowd(8, domain.Memory, 0.9)
	for day := 1; day <= BirthStreak; day++ {
		p.Process(citizens, day)
	}
	god := p.Living()[0]

	force(citizens, domain.Memory, 0.1)
	p.Process(citizens, 6)
	p.Process(citizens, 7)
	if p.Shrines()[domain.Memory].Phase != Waning {
		t.Fatalf("phase = %s, want waning", p.Shrines()[domain.Memory].Phase)
	}

	force(citizens, domain.Memory, 0.5)
	p.Process(citizens, 8)
	if god.WeakDays != 0 || god.StrongDays != 1 || p.Shrines()[domain.Memory].Phase != Manifest {
		t.Errorf("recovery not applied: %+v phase=%s", god, p.Shrines()[domain.Memory].Phase)
	}
	if god.BeliefStrength != 0.5 {
		t.Errorf("belief strength = %v, want refreshed 0.5", god.BeliefStrength)
	}
}

func TestAtMostOneLivingGodPerDomain(t *testing.T) {
	p := New(rand.New(rand.NewSource(6)))
	citizens := crowd(15, domain.Sky, 0.95)

	for day := 1; day <= 100; day++ {
		p.Process(citizens, day)
		count := 0
		for _, g := range p.Living() {
			if g.Domain == domain.Sky {
				count++
			}
		}
		if count > 1 {
			t.Fatalf("day %d: %d living sky gods", day, count)
		}
	}
}

func TestRestore(t *testing.T) {
	p := New(rand.New(rand.NewSource(7)))
	gods := []*God{
		{ID: 1, Domain: domain.River, Alive: true},
		{ID: 2, Domain: domain.War, Alive: true, WeakDays: 3},
		{ID: 3, Domain: domain.River, Alive: false},
	}
	if err := p.Restore(gods); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	shrines := p.Shrines()
	if shrines[domain.River].Phase != Manifest || shrines[domain.War].Phase != Waning {
		t.Errorf("restored phases %s/%s", shrines[domain.River].Phase, shrines[domain.War].Phase)
	}
	if len(p.Living()) != 2 {
		t.Errorf("living = %d, want 2", len(p.Living()))
	}

	dup := New(rand.New(rand.NewSource(8)))
	err := dup.Restore([]*God{
		{ID: 1, Domain: domain.Sky, Alive: true},
		{ID: 2, Domain: domain.Sky, Alive: true},
	})
	if !errors.Is(err, ErrDuplicateGod) {
		t.Errorf("expected ErrDuplicateGod, got %v", err)
	}
}

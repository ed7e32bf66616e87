package crafting

import (
	"errors"
	"math"
	"testing"

	"github.com/astralforge/starhold/internal/bus"
	"github.com/astralforge/starhold/internal/config"
	"github.com/astralforge/starhold/internal/simerr"
)

func newTestSkills(t *testing.T) (*SkillSystem, *bus.Bus) {
	t.Helper()
	cfg := config.Default()
	b := bus.New()
	ss := NewSkillSystem(&cfg.Crafting, b)
	for _, s := range DefaultSkills() {
		ss.Register(s)
	}
	for _, m := range DefaultMasteries() {
		ss.RegisterMastery(m)
	}
	return ss, b
}

func TestRegister_Defaults(t *testing.T) {
	ss, _ := newTestSkills(t)

	s, err := ss.Skill("ore_refining")
	if err != nil {
		t.Fatal(err)
	}
	if !s.Unlocked {
		t.Error("prerequisite-free skill should start unlocked")
	}
	if s.MaxLevel != 50 {
		t.Errorf("max level = %d", s.MaxLevel)
	}
	if s.XPToNext != 100 {
		t.Errorf("first level cost = %v, want 100", s.XPToNext)
	}

	gated, _ := ss.Skill("alloy_smithing")
	if gated.Unlocked {
		t.Error("gated skill should start locked")
	}
}

func TestGrantXP_LevelsUpAndAwardsPoints(t *testing.T) {
	ss, b := newTestSkills(t)

	if err := ss.GrantXP("ore_refining", 150); err != nil {
		t.Fatal(err)
	}
	s, _ := ss.Skill("ore_refining")
	if s.Level != 1 {
		t.Errorf("level = %d, want 1", s.Level)
	}
	if s.XP != 50 {
		t.Errorf("carried xp = %v, want 50", s.XP)
	}
	// Level 2 now costs 2^1.5 * 100.
	want := math.Pow(2, 1.5) * 100
	if math.Abs(s.XPToNext-want) > 1e-9 {
		t.Errorf("next cost = %v, want %v", s.XPToNext, want)
	}
	if ss.SkillPoints != 1 {
		t.Errorf("skill points = %d", ss.SkillPoints)
	}

	events := b.Flush()
	found := false
	for _, ev := range events {
		if ev.Kind == bus.KindSkillLevelUp {
			found = true
		}
	}
	if !found {
		t.Error("no level-up event published")
	}

	if err := ss.GrantXP("ore_refining", -5); !errors.Is(err, simerr.ErrValidationFailure) {
		t.Errorf("negative xp error = %v", err)
	}
	if err := ss.GrantXP("nonsense", 10); !errors.Is(err, simerr.ErrNotFound) {
		t.Errorf("unknown skill error = %v", err)
	}
}

func TestGrantXP_LedgerBalances(t *testing.T) {
	ss, _ := newTestSkills(t)

	grants := []float64{150, 75.5, 1200, 3, 9000}
	total := 0.0
	for _, xp := range grants {
		if err := ss.GrantXP("ore_refining", xp); err != nil {
			t.Fatal(err)
		}
		total += xp
	}
	if math.Abs(ss.TotalXPGranted-total) > 1e-9 {
		t.Errorf("total granted = %v, want %v", ss.TotalXPGranted, total)
	}
	if math.Abs(ss.AccountedXP()-ss.TotalXPGranted) > 1e-9 {
		t.Errorf("accounted %v != granted %v", ss.AccountedXP(), ss.TotalXPGranted)
	}
}

func TestUnlock_RequiresPrerequisites(t *testing.T) {
	ss, _ := newTestSkills(t)

	ok, err := ss.Unlockable("alloy_smithing")
	if err != nil || ok {
		t.Fatalf("unlockable fresh = %v, %v", ok, err)
	}
	if err := ss.Unlock("alloy_smithing"); !errors.Is(err, simerr.ErrUnavailable) {
		t.Errorf("premature unlock error = %v", err)
	}

	levelSkill(t, ss, "ore_refining", 5)
	ok, _ = ss.Unlockable("alloy_smithing")
	if !ok {
		t.Fatal("prerequisites met, still not unlockable")
	}
	if err := ss.Unlock("alloy_smithing"); err != nil {
		t.Fatal(err)
	}
	s, _ := ss.Skill("alloy_smithing")
	if !s.Unlocked {
		t.Error("skill not marked unlocked")
	}
}

func TestSpendSkillPoint(t *testing.T) {
	ss, _ := newTestSkills(t)

	if err := ss.SpendSkillPoint("ore_refining"); !errors.Is(err, simerr.ErrInsufficient) {
		t.Errorf("spend with zero points = %v", err)
	}

	ss.GrantXP("ore_refining", 100) // one point
	if err := ss.SpendSkillPoint("alloy_smithing"); !errors.Is(err, simerr.ErrUnavailable) {
		t.Errorf("spend on locked skill = %v", err)
	}
	if err := ss.SpendSkillPoint("ore_refining"); err != nil {
		t.Fatal(err)
	}
	s, _ := ss.Skill("ore_refining")
	if s.Level != 2 {
		t.Errorf("level after spend = %d, want 2", s.Level)
	}
	if ss.SkillPoints != 0 {
		t.Errorf("points left = %d", ss.SkillPoints)
	}
}

func TestMeetsRequirements(t *testing.T) {
	ss, _ := newTestSkills(t)
	levelSkill(t, ss, "ore_refining", 3)

	cases := []struct {
		name string
		reqs map[SkillID]int
		want bool
	}{
		{"empty", nil, true},
		{"met", map[SkillID]int{"ore_refining": 3}, true},
		{"level short", map[SkillID]int{"ore_refining": 4}, false},
		{"locked skill", map[SkillID]int{"cryo_processing": 1}, false},
		{"unknown skill", map[SkillID]int{"basket_weaving": 1}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ss.MeetsRequirements(tc.reqs); got != tc.want {
				t.Errorf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestMastery_UnlocksAtCategoryTotal(t *testing.T) {
	ss, b := newTestSkills(t)

	levelSkill(t, ss, "ore_refining", 19)
	for _, m := range ss.Masteries() {
		if m.Unlocked {
			t.Fatalf("mastery %s unlocked early", m.ID)
		}
	}
	if got := ss.QualityMultiplier(CategoryRefining); got != 1 {
		t.Errorf("quality mult before mastery = %v", got)
	}
	b.Flush()

	levelSkill(t, ss, "ore_refining", 20)
	found := false
	for _, m := range ss.Masteries() {
		if m.ID == "master_refiner" && m.Unlocked {
			found = true
		}
	}
	if !found {
		t.Fatal("master_refiner not unlocked at 20 refining levels")
	}
	if got := ss.QualityMultiplier(CategoryRefining); got != 1.1 {
		t.Errorf("quality mult = %v, want 1.1", got)
	}

	unlockedEvent := false
	for _, ev := range b.Flush() {
		if ev.Kind == bus.KindMasteryUnlocked {
			unlockedEvent = true
		}
	}
	if !unlockedEvent {
		t.Error("no mastery event published")
	}
}

func TestSpeedBonus_StacksSkillAndMastery(t *testing.T) {
	ss, _ := newTestSkills(t)
	levelSkill(t, ss, "ore_refining", 10)

	// 10 levels at 0.02 per level.
	if got := ss.SpeedBonus(CategoryRefining); math.Abs(got-0.2) > 1e-9 {
		t.Errorf("speed bonus = %v, want 0.2", got)
	}

	levelSkill(t, ss, "ore_refining", 20) // triggers master_refiner
	// (1 + 0.4) * 1.25 - 1
	if got := ss.SpeedBonus(CategoryRefining); math.Abs(got-0.75) > 1e-9 {
		t.Errorf("speed bonus with mastery = %v, want 0.75", got)
	}
}

func TestMaterialEfficiency_Capped(t *testing.T) {
	ss, _ := newTestSkills(t)
	levelSkill(t, ss, "ore_refining", 40)

	// 40 * 0.005 = 0.2, under the cap.
	if got := ss.MaterialEfficiency(CategoryRefining); math.Abs(got-0.2) > 1e-9 {
		t.Errorf("efficiency = %v, want 0.2", got)
	}

	cfg := config.Default()
	ss2 := NewSkillSystem(&cfg.Crafting, bus.New())
	ss2.Register(Skill{ID: "bulk", Category: CategoryRefining, Level: 30, MaterialEffPerLevel: 0.1})
	if got := ss2.MaterialEfficiency(CategoryRefining); got != 0.5 {
		t.Errorf("efficiency = %v, want cap 0.5", got)
	}
}

func TestExclusiveRecipeUnlocked(t *testing.T) {
	ss, _ := newTestSkills(t)
	if ss.ExclusiveRecipeUnlocked("composite_lattice") {
		t.Error("exclusive recipe available without mastery")
	}
	for _, m := range ss.Masteries() {
		if m.ID == "master_fabricator" {
			m.Unlocked = true
		}
	}
	if !ss.ExclusiveRecipeUnlocked("composite_lattice") {
		t.Error("exclusive recipe not granted by unlocked mastery")
	}
}

func TestRestoreLedger(t *testing.T) {
	ss, _ := newTestSkills(t)
	ss.RestoreLedger(500, 300, 3)
	if ss.TotalXPGranted != 500 || ss.ConsumedXP() != 300 || ss.SkillPoints != 3 {
		t.Errorf("ledger = %v / %v / %d", ss.TotalXPGranted, ss.ConsumedXP(), ss.SkillPoints)
	}
}

package settlement

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fxarena/fxarena/internal/domain"
)

func prizeTable(entries ...float64) []domain.PrizeTableEntry {
	table := make([]domain.PrizeTableEntry, 0, len(entries))
	for i, pct := range entries {
		table = append(table, domain.PrizeTableEntry{Rank: i + 1, Percentage: d(pct)})
	}
	return table
}

func rankedFixture(ids ...string) []RankedParticipant {
	t0 := time.Now().UTC()
	out := make([]RankedParticipant, 0, len(ids))
	for i, id := range ids {
		out = append(out, RankedParticipant{
			Participant: activeParticipant(id, "c1", "user-"+id, 10_000, t0),
			Rank:        i + 1,
			Metric:      d(float64(100 - i)),
		})
	}
	return out
}

func assertConservation(t *testing.T, dist domain.Distribution, gross decimal.Decimal) {
	t.Helper()
	total := dist.TotalNet().Add(dist.PlatformFee).Add(dist.UnclaimedPool)
	if !total.Equal(gross) {
		t.Errorf("conservation violated: net %s + fee %s + unclaimed %s = %s, want %s",
			dist.TotalNet(), dist.PlatformFee, dist.UnclaimedPool, total, gross)
	}
}

// Scenario from the settlement contract: pool 1000, fee 10%, table
// {1: 70%, 2: 30%}, three qualified participants, no ties.
func TestDistribute_ThreeQualifiedTwoPrizes(t *testing.T) {
	ranked := rankedFixture("a", "b", "c")

	dist, err := Distribute(ranked, prizeTable(70, 30), d(1000), d(0.10), 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(dist.Entries) != 2 {
		t.Fatalf("want 2 payouts, got %d", len(dist.Entries))
	}
	if !dist.Entries[0].NetPayout.Equal(d(630)) {
		t.Errorf("rank 1 net: want 630, got %s", dist.Entries[0].NetPayout)
	}
	if !dist.Entries[1].NetPayout.Equal(d(270)) {
		t.Errorf("rank 2 net: want 270, got %s", dist.Entries[1].NetPayout)
	}
	if !dist.PlatformFee.Equal(d(100)) {
		t.Errorf("platform fee: want 100, got %s", dist.PlatformFee)
	}
	if !dist.UnclaimedPool.IsZero() {
		t.Errorf("unclaimed: want 0, got %s", dist.UnclaimedPool)
	}
	assertConservation(t, dist, d(1000))
}

// Same setup but only one qualified participant: rank 2's gross 300 goes
// unclaimed and the fee is charged only on the 700 actually awarded.
func TestDistribute_ShortfallBecomesUnclaimed(t *testing.T) {
	ranked := rankedFixture("a")

	dist, err := Distribute(ranked, prizeTable(70, 30), d(1000), d(0.10), 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(dist.Entries) != 1 {
		t.Fatalf("want 1 payout, got %d", len(dist.Entries))
	}
	if !dist.Entries[0].NetPayout.Equal(d(630)) {
		t.Errorf("winner net: want 630, got %s", dist.Entries[0].NetPayout)
	}
	if !dist.PlatformFee.Equal(d(70)) {
		t.Errorf("fee must cover only awarded amounts: want 70, got %s", dist.PlatformFee)
	}
	if !dist.UnclaimedPool.Equal(d(300)) {
		t.Errorf("unclaimed: want 300, got %s", dist.UnclaimedPool)
	}
	if dist.UnclaimedReason == nil || *dist.UnclaimedReason != domain.UnclaimedNoQualifiedWinners {
		t.Errorf("unclaimed reason: want no_qualified_winners, got %v", dist.UnclaimedReason)
	}
	assertConservation(t, dist, d(1000))
}

func TestDistribute_TiedWinnersSplitEqually(t *testing.T) {
	t0 := time.Now().UTC()
	ranked := []RankedParticipant{
		{Participant: activeParticipant("a", "c1", "user-a", 10_000, t0), Rank: 1, IsTied: true},
		{Participant: activeParticipant("b", "c1", "user-b", 10_000, t0), Rank: 1, IsTied: true},
		{Participant: activeParticipant("c", "c1", "user-c", 10_000, t0), Rank: 2},
	}

	dist, err := Distribute(ranked, prizeTable(70, 30), d(1000), d(0.10), 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(dist.Entries) != 3 {
		t.Fatalf("want 3 payouts, got %d", len(dist.Entries))
	}
	// 700 split two ways, minus 10% each.
	for i := 0; i < 2; i++ {
		if !dist.Entries[i].GrossShare.Equal(d(350)) {
			t.Errorf("tied gross share: want 350, got %s", dist.Entries[i].GrossShare)
		}
		if !dist.Entries[i].NetPayout.Equal(d(315)) {
			t.Errorf("tied net: want 315, got %s", dist.Entries[i].NetPayout)
		}
		if !dist.Entries[i].IsTied {
			t.Errorf("tie flag lost in distribution entry %d", i)
		}
	}
	if !dist.Entries[2].NetPayout.Equal(d(270)) {
		t.Errorf("rank 2 net: want 270, got %s", dist.Entries[2].NetPayout)
	}
	assertConservation(t, dist, d(1000))
}

func TestDistribute_AllTiedConservation(t *testing.T) {
	t0 := time.Now().UTC()
	var ranked []RankedParticipant
	for _, id := range []string{"a", "b", "c"} {
		ranked = append(ranked, RankedParticipant{
			Participant: activeParticipant(id, "c1", "user-"+id, 10_000, t0),
			Rank:        1,
			IsTied:      true,
		})
	}

	dist, err := Distribute(ranked, prizeTable(70, 30), d(1000), d(0.10), 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// 700 split three ways cannot divide evenly; the remainder must be
	// reconciled so conservation still holds to the cent.
	assertConservation(t, dist, d(1000))
	if dist.UnclaimedReason == nil || *dist.UnclaimedReason != domain.UnclaimedNoQualifiedWinners {
		t.Errorf("rank 2 allocation should be unclaimed, got reason %v", dist.UnclaimedReason)
	}
	for _, e := range dist.Entries {
		if e.NetPayout.LessThan(d(209)) || e.NetPayout.GreaterThan(d(211)) {
			t.Errorf("tied payout out of expected band: %s", e.NetPayout)
		}
	}
}

func TestDistribute_NoParticipants(t *testing.T) {
	dist, err := Distribute(nil, prizeTable(70, 30), d(1000), d(0.10), 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(dist.Entries) != 0 {
		t.Fatalf("want no payouts, got %d", len(dist.Entries))
	}
	if !dist.PlatformFee.Equal(d(100)) {
		t.Errorf("notional fee: want 100, got %s", dist.PlatformFee)
	}
	if !dist.UnclaimedPool.Equal(d(900)) {
		t.Errorf("unclaimed: want 900, got %s", dist.UnclaimedPool)
	}
	if dist.UnclaimedReason == nil || *dist.UnclaimedReason != domain.UnclaimedNoParticipants {
		t.Errorf("want no_participants, got %v", dist.UnclaimedReason)
	}
	assertConservation(t, dist, d(1000))
}

func TestDistribute_AllDisqualified(t *testing.T) {
	t0 := time.Now().UTC()
	ranked := []RankedParticipant{
		{Participant: activeParticipant("a", "c1", "user-a", 10_000, t0), Disqualified: true},
		{Participant: activeParticipant("b", "c1", "user-b", 10_000, t0), Disqualified: true},
	}

	dist, err := Distribute(ranked, prizeTable(100), d(500), d(0.20), 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if dist.UnclaimedReason == nil || *dist.UnclaimedReason != domain.UnclaimedAllDisqualified {
		t.Errorf("want all_disqualified, got %v", dist.UnclaimedReason)
	}
	assertConservation(t, dist, d(500))
}

func TestDistribute_SingleWinnerTable(t *testing.T) {
	ranked := rankedFixture("a", "b")

	dist, err := Distribute(ranked, prizeTable(100), d(250), d(0.05), 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(dist.Entries) != 1 {
		t.Fatalf("want 1 payout, got %d", len(dist.Entries))
	}
	if !dist.Entries[0].NetPayout.Equal(d(237.5)) {
		t.Errorf("net: want 237.50, got %s", dist.Entries[0].NetPayout)
	}
	if !dist.PlatformFee.Equal(d(12.5)) {
		t.Errorf("fee: want 12.50, got %s", dist.PlatformFee)
	}
	assertConservation(t, dist, d(250))
}

func TestDistribute_RoundingRemainderGoesToLargestShare(t *testing.T) {
	ranked := rankedFixture("a", "b", "c")

	// 100 / 3 produces repeating thirds at every step.
	table := []domain.PrizeTableEntry{
		{Rank: 1, Percentage: decimal.NewFromFloat(33.34)},
		{Rank: 2, Percentage: decimal.NewFromFloat(33.33)},
		{Rank: 3, Percentage: decimal.NewFromFloat(33.33)},
	}
	dist, err := Distribute(ranked, table, d(100), d(0.07), 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertConservation(t, dist, d(100))
}

func TestDistribute_RejectsBadInputs(t *testing.T) {
	if _, err := Distribute(nil, nil, d(-1), d(0.1), 2); err == nil {
		t.Errorf("negative pool must be rejected")
	}
	if _, err := Distribute(nil, nil, d(100), d(1.5), 2); err == nil {
		t.Errorf("fee fraction above 1 must be rejected")
	}
}

package settlement

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/fxarena/fxarena/internal/domain"
)

// RankedParticipant is one row of a computed ranking.
type RankedParticipant struct {
	domain.Participant

	// Rank is 1-based and dense: tied participants share a rank and the
	// next distinct group takes the following number. Disqualified
	// participants carry Rank 0 and sort after everyone qualified.
	Rank         int
	Metric       decimal.Decimal
	Disqualified bool
	IsTied       bool
}

// metricFor evaluates one ranking key for a participant.
func metricFor(p domain.Participant, key string) decimal.Decimal {
	switch domain.RankingMethod(key) {
	case domain.RankByPnL:
		return p.ProfitLoss
	case domain.RankByROI:
		return p.ROI
	case domain.RankByTotalCapital:
		return p.CurrentCapital
	case domain.RankByWinRate:
		return p.WinRate()
	case domain.RankByTotalWins:
		return decimal.NewFromInt(int64(p.WinningTrades))
	case domain.RankByProfitFactor:
		return p.ProfitFactor()
	}
	return decimal.Zero
}

func validMethod(m domain.RankingMethod) bool {
	switch m {
	case domain.RankByPnL, domain.RankByROI, domain.RankByTotalCapital,
		domain.RankByWinRate, domain.RankByTotalWins, domain.RankByProfitFactor:
		return true
	}
	return false
}

func validTieBreaker(t domain.TieBreaker) bool {
	if t == "" || t == domain.TieByJoinTime {
		return true
	}
	return validMethod(domain.RankingMethod(t))
}

// compareKey orders a and b by one tie-break key. Negative means a ranks
// ahead of b. JoinTime orders ascending (earlier entrant first); metric
// keys order descending.
func compareKey(a, b domain.Participant, key domain.TieBreaker) int {
	if key == "" {
		return 0
	}
	if key == domain.TieByJoinTime {
		switch {
		case a.JoinedAt.Before(b.JoinedAt):
			return -1
		case b.JoinedAt.Before(a.JoinedAt):
			return 1
		default:
			return 0
		}
	}
	return metricFor(b, string(key)).Cmp(metricFor(a, string(key)))
}

// Rank is a pure function from a participant snapshot and ranking rules to
// an ordered, tie-broken ranking with qualification status. It performs no
// I/O and its output does not depend on the input slice order.
//
// The minimum-trade qualification threshold is only enforced once the
// contest has completed; during a live contest everyone ranks.
func Rank(participants []domain.Participant, rules domain.RankingRules, status domain.ContestStatus) ([]RankedParticipant, error) {
	if !validMethod(rules.Method) {
		return nil, fmt.Errorf("settlement: ranking method %q: %w", rules.Method, domain.ErrInvalidRules)
	}
	if !validTieBreaker(rules.TieBreaker1) || !validTieBreaker(rules.TieBreaker2) {
		return nil, fmt.Errorf("settlement: tie breakers %q/%q: %w", rules.TieBreaker1, rules.TieBreaker2, domain.ErrInvalidRules)
	}

	ranked := make([]RankedParticipant, 0, len(participants))
	for _, p := range participants {
		disq := status == domain.ContestStatusCompleted && p.TotalTrades < rules.MinimumTrades
		if p.Status == domain.ParticipantStatusDisqualified {
			disq = true
		}
		ranked = append(ranked, RankedParticipant{
			Participant:  p,
			Metric:       metricFor(p, string(rules.Method)),
			Disqualified: disq,
		})
	}

	// tiedOnAll reports whether a and b are equal on the primary metric and
	// every configured tie-breaker.
	tiedOnAll := func(a, b RankedParticipant) bool {
		if !a.Metric.Equal(b.Metric) {
			return false
		}
		if compareKey(a.Participant, b.Participant, rules.TieBreaker1) != 0 {
			return false
		}
		return compareKey(a.Participant, b.Participant, rules.TieBreaker2) == 0
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Disqualified != b.Disqualified {
			return !a.Disqualified
		}
		if c := a.Metric.Cmp(b.Metric); c != 0 {
			return c > 0
		}
		if c := compareKey(a.Participant, b.Participant, rules.TieBreaker1); c != 0 {
			return c < 0
		}
		if c := compareKey(a.Participant, b.Participant, rules.TieBreaker2); c != 0 {
			return c < 0
		}
		// Fully tied: fall back to ID so the ordering is deterministic for
		// any permutation of the input.
		return a.ID < b.ID
	})

	// Assign dense 1-based ranks among qualified participants and flag
	// groups that remain tied after every configured criterion.
	rank := 0
	for i := range ranked {
		if ranked[i].Disqualified {
			continue
		}
		if rank == 0 || !tiedOnAll(ranked[i], ranked[i-1]) {
			rank++
		}
		ranked[i].Rank = rank
		if i > 0 && !ranked[i-1].Disqualified && tiedOnAll(ranked[i], ranked[i-1]) {
			ranked[i].IsTied = true
			ranked[i-1].IsTied = true
		}
	}

	return ranked, nil
}

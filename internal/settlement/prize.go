package settlement

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/fxarena/fxarena/internal/domain"
)

var (
	oneHundred = decimal.NewFromInt(100)
	one        = decimal.NewFromInt(1)
)

// Distribute divides a gross prize pool among the ranked winners.
//
// The prize table maps rank to a percentage of the gross pool. Tied
// participants at a prize-bearing rank split that rank's allocation
// equally. The platform fee is deducted per winner from their gross share,
// never from the pool as a whole. Table entries with no qualified
// participant at their rank become unclaimed pool: not redistributed and
// not retained as extra fee.
//
// With zero qualified winners the fee is still charged notionally on the
// whole pool and the remainder is unclaimed, with the reason classified
// for the audit trail.
//
// After rounding every amount to precision decimal places, any remainder
// against the gross pool is folded into the largest net payout so that
// Σnet + fee + unclaimed == gross exactly.
func Distribute(ranked []RankedParticipant, table []domain.PrizeTableEntry, gross decimal.Decimal, feePct decimal.Decimal, precision int32) (domain.Distribution, error) {
	if gross.IsNegative() {
		return domain.Distribution{}, fmt.Errorf("settlement: negative prize pool %s", gross)
	}
	if feePct.IsNegative() || feePct.GreaterThan(one) {
		return domain.Distribution{}, fmt.Errorf("settlement: fee fraction %s out of range", feePct)
	}

	byRank := make(map[int][]RankedParticipant)
	qualified := 0
	for _, r := range ranked {
		if r.Disqualified || r.Rank == 0 {
			continue
		}
		byRank[r.Rank] = append(byRank[r.Rank], r)
		qualified++
	}

	// Zero winners: the entire pool minus the notional fee is unclaimed.
	if qualified == 0 {
		reason := domain.UnclaimedNoQualifiedWinners
		if len(ranked) == 0 {
			reason = domain.UnclaimedNoParticipants
		} else {
			allDisq := true
			for _, r := range ranked {
				if !r.Disqualified {
					allDisq = false
					break
				}
			}
			if allDisq {
				reason = domain.UnclaimedAllDisqualified
			}
		}
		fee := gross.Mul(feePct).Round(precision)
		return domain.Distribution{
			PlatformFee:     fee,
			UnclaimedPool:   gross.Sub(fee),
			UnclaimedReason: &reason,
		}, nil
	}

	var (
		entries   []domain.PrizeDistributionEntry
		awarded   = decimal.Zero // gross amounts actually awarded
		unclaimed = decimal.Zero
	)

	for _, te := range table {
		allocation := gross.Mul(te.Percentage).Div(oneHundred)
		group := byRank[te.Rank]
		if len(group) == 0 {
			unclaimed = unclaimed.Add(allocation.Round(precision))
			continue
		}

		share := allocation.Div(decimal.NewFromInt(int64(len(group)))).Round(precision)
		for _, winner := range group {
			net := share.Mul(one.Sub(feePct)).Round(precision)
			entries = append(entries, domain.PrizeDistributionEntry{
				Rank:          te.Rank,
				ParticipantID: winner.ID,
				UserID:        winner.UserID,
				GrossShare:    share,
				NetPayout:     net,
				IsTied:        winner.IsTied,
			})
			awarded = awarded.Add(share)
		}
	}

	// Fee is charged only on gross amounts actually awarded.
	fee := awarded.Mul(feePct).Round(precision)

	var reason *domain.UnclaimedReason
	if unclaimed.IsPositive() {
		r := domain.UnclaimedNoQualifiedWinners
		reason = &r
	}

	dist := domain.Distribution{
		Entries:         entries,
		PlatformFee:     fee,
		UnclaimedPool:   unclaimed,
		UnclaimedReason: reason,
	}

	// Rounding reconciliation: push any residue into the largest net
	// payout so the conservation invariant holds to the cent.
	remainder := gross.Sub(dist.TotalNet()).Sub(fee).Sub(unclaimed)
	if !remainder.IsZero() && len(dist.Entries) > 0 {
		largest := 0
		for i := range dist.Entries {
			if dist.Entries[i].NetPayout.GreaterThan(dist.Entries[largest].NetPayout) {
				largest = i
			}
		}
		dist.Entries[largest].NetPayout = dist.Entries[largest].NetPayout.Add(remainder)
	} else if !remainder.IsZero() {
		dist.UnclaimedPool = dist.UnclaimedPool.Add(remainder)
	}

	return dist, nil
}

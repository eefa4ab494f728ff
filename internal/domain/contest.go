package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ContestType distinguishes many-participant competitions from 1v1
// challenges. The two are settled identically.
type ContestType string

const (
	ContestTypeCompetition ContestType = "competition"
	ContestTypeChallenge   ContestType = "challenge"
)

// ContestStatus is the contest lifecycle state.
type ContestStatus string

const (
	ContestStatusUpcoming  ContestStatus = "upcoming"
	ContestStatusActive    ContestStatus = "active"
	ContestStatusCompleted ContestStatus = "completed"
	ContestStatusCancelled ContestStatus = "cancelled"
)

// RankingMethod selects the primary ordering metric for a contest.
type RankingMethod string

const (
	RankByPnL          RankingMethod = "pnl"
	RankByROI          RankingMethod = "roi"
	RankByTotalCapital RankingMethod = "total_capital"
	RankByWinRate      RankingMethod = "win_rate"
	RankByTotalWins    RankingMethod = "total_wins"
	RankByProfitFactor RankingMethod = "profit_factor"
)

// TieBreaker is a secondary ordering criterion applied when the previous
// criterion is exactly equal. JoinTime orders ascending (earlier entrant
// wins); every other key orders descending like a primary metric.
type TieBreaker string

const (
	TieByJoinTime     TieBreaker = "join_time"
	TieByPnL          TieBreaker = "pnl"
	TieByROI          TieBreaker = "roi"
	TieByTotalCapital TieBreaker = "total_capital"
	TieByWinRate      TieBreaker = "win_rate"
	TieByTotalWins    TieBreaker = "total_wins"
	TieByProfitFactor TieBreaker = "profit_factor"
)

// TiePrizePolicy controls how a prize-bearing rank shared by several tied
// participants is divided.
type TiePrizePolicy string

const (
	TiePrizeSplitEqually TiePrizePolicy = "split_equally"
)

// RankingRules bundles everything the ranking engine needs to order
// participants and decide qualification.
type RankingRules struct {
	Method        RankingMethod `json:"method"`
	TieBreaker1   TieBreaker    `json:"tie_breaker_1"`
	TieBreaker2   TieBreaker    `json:"tie_breaker_2"`
	MinimumTrades int           `json:"minimum_trades"`
}

// PrizeTableEntry maps a rank to its percentage of the gross pool.
type PrizeTableEntry struct {
	Rank       int             `json:"rank"`
	Percentage decimal.Decimal `json:"percentage"`
}

// LeaderboardEntry is one row of a contest's final leaderboard, persisted
// on the contest document at completion as a read model for the UI.
type LeaderboardEntry struct {
	Rank          int             `json:"rank"`
	ParticipantID string          `json:"participant_id"`
	UserID        string          `json:"user_id"`
	Metric        decimal.Decimal `json:"metric"`
	ProfitLoss    decimal.Decimal `json:"profit_loss"`
	ROI           decimal.Decimal `json:"roi"`
	TotalTrades   int             `json:"total_trades"`
	Disqualified  bool            `json:"disqualified"`
	IsTied        bool            `json:"is_tied"`
	Prize         decimal.Decimal `json:"prize"`
}

// Contest is a competition or challenge. Contests are never deleted; a
// settled contest keeps its final leaderboard and winner as read models.
type Contest struct {
	ID             string
	Type           ContestType
	Name           string
	Status         ContestStatus
	StartTime      time.Time
	EndTime        time.Time
	GrossPrizePool decimal.Decimal
	PlatformFeePct decimal.Decimal // fraction, e.g. 0.10
	PrizeTable     []PrizeTableEntry
	Rules          RankingRules
	TiePolicy      TiePrizePolicy
	WinnerID       *string
	Leaderboard    []LeaderboardEntry
	CreatedAt      time.Time
	CompletedAt    *time.Time
}

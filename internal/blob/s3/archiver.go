package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/fxarena/fxarena/internal/domain"
)

// Archiver exports settled contests to S3 cold storage: the final
// leaderboard, full trade history, order log, and the wallet and platform
// ledgers, one JSONL object each.
//
// Deletion of the archived rows from the primary store is intentionally
// NOT performed here. That is a separate, explicit step to be executed
// after the archive has been verified.
type Archiver struct {
	writer        *Writer
	st            domain.Stores
	retentionDays int
	logger        *slog.Logger
}

// NewArchiver creates an Archiver that exports contests completed more
// than retentionDays ago.
func NewArchiver(writer *Writer, st domain.Stores, retentionDays int, logger *slog.Logger) *Archiver {
	return &Archiver{
		writer:        writer,
		st:            st,
		retentionDays: retentionDays,
		logger:        logger.With(slog.String("component", "archiver")),
	}
}

// Run executes a single archive pass over every contest completed before
// the retention cutoff. A failure in one contest is logged and does not
// block the others.
func (a *Archiver) Run(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-time.Duration(a.retentionDays) * 24 * time.Hour)

	contests, err := a.st.Contests.ListCompletedBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("s3blob: list contests before %v: %w", cutoff, err)
	}
	if len(contests) == 0 {
		return nil
	}

	a.logger.InfoContext(ctx, "starting archive run",
		slog.Time("cutoff", cutoff),
		slog.Int("contests", len(contests)),
	)

	archived := 0
	for _, contest := range contests {
		if err := a.archiveContest(ctx, contest); err != nil {
			a.logger.ErrorContext(ctx, "contest archive failed",
				slog.String("contest_id", contest.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		archived++
	}

	a.logger.InfoContext(ctx, "archive run complete",
		slog.Int("archived", archived),
	)
	return nil
}

func (a *Archiver) archiveContest(ctx context.Context, contest domain.Contest) error {
	trades, err := a.st.Trades.ListByContest(ctx, contest.ID)
	if err != nil {
		return fmt.Errorf("query trades: %w", err)
	}
	orders, err := a.st.Orders.ListByContest(ctx, contest.ID)
	if err != nil {
		return fmt.Errorf("query orders: %w", err)
	}
	walletTxs, err := a.st.Wallets.ListTransactionsByContest(ctx, contest.ID)
	if err != nil {
		return fmt.Errorf("query wallet ledger: %w", err)
	}
	platformTxs, err := a.st.Platform.ListByContest(ctx, contest.ID)
	if err != nil {
		return fmt.Errorf("query platform ledger: %w", err)
	}

	if err := putJSONL(ctx, a.writer, contest, "contest", []domain.Contest{contest}); err != nil {
		return err
	}
	if err := putJSONL(ctx, a.writer, contest, "trades", trades); err != nil {
		return err
	}
	if err := putJSONL(ctx, a.writer, contest, "orders", orders); err != nil {
		return err
	}
	if err := putJSONL(ctx, a.writer, contest, "wallet_ledger", walletTxs); err != nil {
		return err
	}
	if err := putJSONL(ctx, a.writer, contest, "platform_ledger", platformTxs); err != nil {
		return err
	}

	a.logger.InfoContext(ctx, "contest archived",
		slog.String("contest_id", contest.ID),
		slog.Int("trades", len(trades)),
		slog.Int("orders", len(orders)),
	)
	return nil
}

func putJSONL[T any](ctx context.Context, writer *Writer, contest domain.Contest, kind string, records []T) error {
	if len(records) == 0 {
		return nil
	}

	buf, err := marshalJSONL(records)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", kind, err)
	}

	path := archivePath(contest, kind)
	if err := writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return fmt.Errorf("upload %s: %w", kind, err)
	}
	return nil
}

// archivePath builds the S3 key for one archive object, partitioned by the
// contest's completion month:
//
//	archive/contests/2026-08/{contestID}/trades.jsonl
func archivePath(contest domain.Contest, kind string) string {
	month := contest.EndTime.Format("2006-01")
	if contest.CompletedAt != nil {
		month = contest.CompletedAt.Format("2006-01")
	}
	return fmt.Sprintf("archive/contests/%s/%s/%s.jsonl", month, contest.ID, kind)
}

// marshalJSONL serialises a slice of values as newline-delimited JSON.
// Each element is marshalled as a single compact JSON line followed by '\n'.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

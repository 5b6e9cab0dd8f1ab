package pullreport

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite" // sqlite driver

	"github.com/dolomite-exchange/dolomite-oracle-go/pkg/oracle"
)

const schema = `
CREATE TABLE IF NOT EXISTS reports (
	feed_id     TEXT    NOT NULL,
	observed_at INTEGER NOT NULL,
	valid_from  INTEGER NOT NULL,
	price       TEXT    NOT NULL,
	posted_at   INTEGER NOT NULL,
	PRIMARY KEY (feed_id, observed_at)
);
`

// Store persists posted reports so they survive restarts. The primary key on
// (feed_id, observed_at) is what makes duplicate posts detectable.
type Store struct {
	db *sql.DB
}

// OpenStore opens (and initializes) a report store at the given sqlite DSN.
// Use ":memory:" for an ephemeral store.
func OpenStore(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open report store: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize report store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Insert stores a report, failing with ErrReportAlreadySet when a report for
// the same feed and observation timestamp exists.
func (s *Store) Insert(ctx context.Context, report Report) error {
	result, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO reports (feed_id, observed_at, valid_from, price, posted_at)
		 VALUES (?, ?, ?, ?, ?)`,
		report.FeedID.Hex(),
		report.ObservationsTimestamp.Unix(),
		report.ValidFromTimestamp.Unix(),
		report.Price.String(),
		time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert report: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read insert result: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: feed %s at %d",
			oracle.ErrReportAlreadySet, report.FeedID.Hex(), report.ObservationsTimestamp.Unix())
	}
	return nil
}

// Latest returns the most recent report for the feed, or ErrPriceNotFound.
func (s *Store) Latest(ctx context.Context, feedID common.Hash) (Report, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT observed_at, valid_from, price FROM reports
		 WHERE feed_id = ? ORDER BY observed_at DESC LIMIT 1`,
		feedID.Hex(),
	)

	var observedAt, validFrom int64
	var priceStr string
	if err := row.Scan(&observedAt, &validFrom, &priceStr); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Report{}, fmt.Errorf("%w: feed %s", oracle.ErrPriceNotFound, feedID.Hex())
		}
		return Report{}, fmt.Errorf("failed to query latest report: %w", err)
	}

	price, err := decimal.NewFromString(priceStr)
	if err != nil {
		return Report{}, fmt.Errorf("corrupt stored price %q: %w", priceStr, err)
	}

	return Report{
		FeedID:                feedID,
		ValidFromTimestamp:    time.Unix(validFrom, 0),
		ObservationsTimestamp: time.Unix(observedAt, 0),
		Price:                 price,
	}, nil
}

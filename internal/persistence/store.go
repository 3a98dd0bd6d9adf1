package persistence

import (
	"context"
	"database/sql"

	"github.com/rs/zerolog"

	"github.com/aristath/cryptosentinel/internal/database"
)

// Store is the Persistence Layer's single entry point: one *database.DB
// connection, repository methods per table (spec.md §4.12/§6), and a
// Writer draining the hot-path write queue in the background. Reads are
// synchronous, direct sql.DB round trips — only writes on the signal/cycle
// hot path go through the async queue.
type Store struct {
	db     *database.DB
	writer *Writer
	log    zerolog.Logger
}

// New wraps db with PL's repository methods and starts its own background
// writer. Callers must run Run(ctx) (e.g. as a goroutine from the
// composition root) to drain queued writes.
func New(db *database.DB, queueLimit int, log zerolog.Logger) *Store {
	return &Store{
		db:     db,
		writer: NewWriter(queueLimit, log),
		log:    log.With().Str("component", "persistence").Logger(),
	}
}

// Run drains the async write queue until ctx is cancelled, flushing
// whatever remains before returning. Intended to run on its own goroutine
// for the process lifetime.
func (s *Store) Run(ctx context.Context) {
	s.writer.Run(ctx)
}

// QueueLen and Dropped surface write-queue pressure to CP/health checks.
func (s *Store) QueueLen() int    { return s.writer.QueueLen() }
func (s *Store) Dropped() int64  { return s.writer.Dropped() }

// conn is a thin helper shared by every repository file in this package.
func (s *Store) conn() *sql.DB { return s.db.Conn() }

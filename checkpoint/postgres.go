package checkpoint

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v4/pgxpool"
)

// PostgresStore persists checkpoint snapshots to a Postgres table
// instead of the local filesystem - a supplemental durability option
// (spec.md §4.3 [ADD]) grounded on the teacher's storage/postgres.go,
// trimmed from a full YCSB row store down to the one table this domain
// needs.
type PostgresStore struct {
	ctx  context.Context
	pool *pgxpool.Pool
}

// NewPostgresStore connects to dsn and ensures the checkpoints table
// exists. Like the teacher's SQLDB.init, failures to connect are fatal
// to the caller - a checkpoint backend that silently can't persist
// would defeat the point of choosing it.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.Connect(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres checkpoint store: %w", err)
	}
	const ddl = `CREATE TABLE IF NOT EXISTS pbft_checkpoints (
		checkpoint_id BIGINT NOT NULL,
		node_id TEXT NOT NULL,
		snapshot TEXT NOT NULL,
		PRIMARY KEY (checkpoint_id, node_id)
	)`
	if _, err := pool.Exec(ctx, ddl); err != nil {
		return nil, fmt.Errorf("create checkpoints table: %w", err)
	}
	return &PostgresStore{ctx: ctx, pool: pool}, nil
}

func (p *PostgresStore) AppendLocal(nodeID string, checkpointID int64, text string) error {
	_, err := p.pool.Exec(p.ctx,
		`INSERT INTO pbft_checkpoints (checkpoint_id, node_id, snapshot) VALUES ($1, $2, $3)
		 ON CONFLICT (checkpoint_id, node_id) DO UPDATE SET snapshot = EXCLUDED.snapshot`,
		checkpointID, nodeID, text)
	return err
}

// WriteFinal concatenates in the canonical id order the caller already
// computed (replica/state.go's canonicalIDOrder), matching FileStore.
func (p *PostgresStore) WriteFinal(checkpointID int64, textsByNode map[string]string, order []string) (string, error) {
	var b strings.Builder
	for _, id := range order {
		b.WriteString(textsByNode[id])
		b.WriteString("\n")
	}
	final := b.String()
	_, err := p.pool.Exec(p.ctx,
		`INSERT INTO pbft_checkpoints (checkpoint_id, node_id, snapshot) VALUES ($1, $2, $3)
		 ON CONFLICT (checkpoint_id, node_id) DO UPDATE SET snapshot = EXCLUDED.snapshot`,
		checkpointID, "__final__", final)
	return final, err
}

func (p *PostgresStore) WriteRecovered(nodeID string, text string) error {
	_, err := p.pool.Exec(p.ctx,
		`INSERT INTO pbft_checkpoints (checkpoint_id, node_id, snapshot) VALUES (-1, $1, $2)
		 ON CONFLICT (checkpoint_id, node_id) DO UPDATE SET snapshot = EXCLUDED.snapshot`,
		"recovered_"+nodeID, text)
	return err
}

var _ Store = (*PostgresStore)(nil)

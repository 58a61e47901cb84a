package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver

	"github.com/Brownie44l1/xray-api/internal/model"
)

type PostgresStore struct{ DB *sql.DB }

// OpenPostgres connects with the pgx driver and pings the server.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("db.Ping: %w", err)
	}
	return db, nil
}

func NewPostgresStore(db *sql.DB) *PostgresStore { return &PostgresStore{DB: db} }

// EnsureSchema creates the history table if it does not exist yet.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	stmts := []string{`
create table if not exists prediction_history (
  id              text primary key,
  user_id         text not null,
  type            text not null,
  predicted_class text not null,
  image_url       text not null,
  created_at      timestamptz not null
)`,
		`create index if not exists prediction_history_user_idx on prediction_history (user_id, created_at)`,
	}
	for _, q := range stmts {
		if _, err := s.DB.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (s *PostgresStore) Append(ctx context.Context, userID string, rec Record) error {
	const q = `
insert into prediction_history (id, user_id, type, predicted_class, image_url, created_at)
values ($1,$2,$3,$4,$5,$6)`
	_, err := s.DB.ExecContext(ctx, q,
		rec.ID, userID, rec.Type, string(rec.PredictedClass), rec.ImageURL, rec.Timestamp)
	return err
}

func (s *PostgresStore) List(ctx context.Context, userID string) ([]Record, error) {
	const q = `
select id, type, predicted_class, image_url, created_at
from prediction_history
where user_id = $1
order by created_at, id`
	rows, err := s.DB.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []Record
	for rows.Next() {
		var (
			rec   Record
			class string
		)
		if err := rows.Scan(&rec.ID, &rec.Type, &class, &rec.ImageURL, &rec.Timestamp); err != nil {
			return nil, err
		}
		rec.PredictedClass = model.Label(class)
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, ErrNotFound
	}
	return recs, nil
}

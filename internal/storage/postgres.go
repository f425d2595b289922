package storage

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository implements Repository using PostgreSQL. Identifiers are
// generated in the 63-bit range so they fit the BIGINT columns.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgres builds a Postgres-backed repository.
func NewPostgres(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) FindUserByUsername(ctx context.Context, username string) (User, error) {
	row := r.db.QueryRow(ctx, `SELECT uuid, username, login, password_hash, salt, key
        FROM users WHERE username = $1`, username)
	return scanUser(row)
}

func (r *PostgresRepository) FindUserByUUID(ctx context.Context, uuid uint64) (User, error) {
	row := r.db.QueryRow(ctx, `SELECT uuid, username, login, password_hash, salt, key
        FROM users WHERE uuid = $1`, int64(uuid))
	return scanUser(row)
}

func (r *PostgresRepository) CreateUser(ctx context.Context, user User) error {
	_, err := r.db.Exec(ctx, `INSERT INTO users (uuid, username, login, password_hash, salt, key)
        VALUES ($1, $2, $3, $4, $5, $6)`,
		int64(user.UUID), user.Username, user.Login, user.Hash, user.Salt, user.Key)
	return mapUniqueViolation(err)
}

func (r *PostgresRepository) CreateMessage(ctx context.Context, message Message) error {
	_, err := r.db.Exec(ctx, `INSERT INTO messages (text, user_uuid, flow_id, posted_at)
        VALUES ($1, $2, $3, $4)`,
		message.Text, int64(message.UserUUID), int64(message.FlowID), message.Timestamp)
	return err
}

func (r *PostgresRepository) ListMessages(ctx context.Context) ([]Message, error) {
	rows, err := r.db.Query(ctx, `SELECT text, user_uuid, flow_id, posted_at
        FROM messages ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var m Message
		var userUUID, flowID int64
		if err := rows.Scan(&m.Text, &userUUID, &flowID, &m.Timestamp); err != nil {
			return nil, err
		}
		m.UserUUID = uint64(userUUID)
		m.FlowID = uint64(flowID)
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

func (r *PostgresRepository) CreateFlow(ctx context.Context, flow Flow) error {
	_, err := r.db.Exec(ctx, `INSERT INTO flows (flow_id, time_created, flow_type, title, info)
        VALUES ($1, $2, $3, $4, $5)`,
		int64(flow.FlowID), flow.TimeCreated, flow.FlowType, flow.Title, flow.Info)
	return mapUniqueViolation(err)
}

func (r *PostgresRepository) ListFlows(ctx context.Context) ([]Flow, error) {
	rows, err := r.db.Query(ctx, `SELECT flow_id, time_created, flow_type, title, info
        FROM flows ORDER BY time_created, flow_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var flows []Flow
	for rows.Next() {
		var f Flow
		var flowID int64
		if err := rows.Scan(&flowID, &f.TimeCreated, &f.FlowType, &f.Title, &f.Info); err != nil {
			return nil, err
		}
		f.FlowID = uint64(flowID)
		flows = append(flows, f)
	}
	return flows, rows.Err()
}

func scanUser(row pgx.Row) (User, error) {
	var u User
	var uuid int64
	if err := row.Scan(&uuid, &u.Username, &u.Login, &u.Hash, &u.Salt, &u.Key); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	u.UUID = uint64(uuid)
	return u, nil
}

// mapUniqueViolation converts Postgres unique-index violations into the
// repository sentinel errors the dispatcher retries on.
func mapUniqueViolation(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		if strings.Contains(pgErr.ConstraintName, "username") {
			return ErrDuplicateUsername
		}
		return ErrDuplicateID
	}
	return err
}

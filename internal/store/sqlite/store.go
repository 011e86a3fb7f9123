package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"timevault/internal/seal"
)

// Store implements seal.Store on SQLite. Counter updates run in the same
// transaction as the message change that moves them.
type Store struct {
	db *sql.DB
}

var _ seal.Store = (*Store)(nil)

// New opens the database at path.
func New(path string) (*Store, error) {
	db, err := Open(path)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing connection. The schema must already exist.
func NewWithDB(db *sql.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying connection.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Close() error { return s.db.Close() }

// HealthCheck pings the database.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// --- Vaults ---

func (s *Store) CreateVault(ctx context.Context, v *seal.Vault) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO vaults (id, name, owner_id, created_at) VALUES (?, ?, ?, ?)`,
		v.ID, v.Name, v.OwnerID, formatTime(v.CreatedAt))
	if err != nil {
		return errors.Wrap(err, "sqlite.CreateVault.Insert")
	}
	return nil
}

func (s *Store) GetVault(ctx context.Context, vaultID string) (*seal.Vault, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, owner_id, created_at, total, locked, unlocked FROM vaults WHERE id = ?`, vaultID)

	var (
		v         seal.Vault
		createdAt string
	)
	err := row.Scan(&v.ID, &v.Name, &v.OwnerID, &createdAt, &v.Counters.Total, &v.Counters.Locked, &v.Counters.Unlocked)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("vault %s: %w", vaultID, seal.ErrNotFound)
	}
	if err != nil {
		return nil, errors.Wrap(err, "sqlite.GetVault.Scan")
	}
	if v.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &v, nil
}

// --- Messages ---

const messageColumns = `id, vault_id, title, content_kind, unlock_time, created_at, created_by, envelope, revealed, lock_state`

func (s *Store) AddMessage(ctx context.Context, m *seal.Message) error {
	if m.State != seal.StateLocked {
		return fmt.Errorf("%w: new message must be locked", seal.ErrInvalidMessage)
	}
	env, err := seal.MarshalEnvelope(m.Envelope)
	if err != nil {
		return err
	}

	return s.withTx(ctx, "AddMessage", func(tx *sql.Tx) error {
		if err := vaultExists(ctx, tx, m.VaultID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO messages (`+messageColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, NULL, ?)`,
			m.ID, m.VaultID, m.Title, string(m.Kind), formatTime(m.UnlockTime), formatTime(m.CreatedAt),
			m.CreatedBy, string(env), string(seal.StateLocked))
		if err != nil {
			return errors.Wrap(err, "sqlite.AddMessage.Insert")
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE vaults SET total = total + 1, locked = locked + 1 WHERE id = ?`, m.VaultID)
		return errors.Wrap(err, "sqlite.AddMessage.Counters")
	})
}

func (s *Store) GetMessage(ctx context.Context, vaultID, messageID string) (*seal.Message, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE vault_id = ? AND id = ?`, vaultID, messageID)
	m, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("message %s: %w", messageID, seal.ErrNotFound)
	}
	return m, err
}

func (s *Store) ListMessages(ctx context.Context, vaultID string) ([]*seal.Message, error) {
	if _, err := s.GetVault(ctx, vaultID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE vault_id = ? ORDER BY seq`, vaultID)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite.ListMessages.Query")
	}
	defer func() { _ = rows.Close() }()

	messages := []*seal.Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "sqlite.ListMessages.Rows")
	}
	return messages, nil
}

func (s *Store) MarkUnlocked(ctx context.Context, vaultID, messageID string, content []byte) (bool, error) {
	if content == nil {
		content = []byte{}
	}

	var won bool
	err := s.withTx(ctx, "MarkUnlocked", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE messages SET lock_state = ?, revealed = ? WHERE vault_id = ? AND id = ? AND lock_state = ?`,
			string(seal.StateUnlocked), content, vaultID, messageID, string(seal.StateLocked))
		if err != nil {
			return errors.Wrap(err, "sqlite.MarkUnlocked.Update")
		}
		n, err := res.RowsAffected()
		if err != nil {
			return errors.Wrap(err, "sqlite.MarkUnlocked.RowsAffected")
		}
		if n == 0 {
			return messageExists(ctx, tx, vaultID, messageID)
		}

		won = true
		_, err = tx.ExecContext(ctx,
			`UPDATE vaults SET locked = locked - 1, unlocked = unlocked + 1 WHERE id = ?`, vaultID)
		return errors.Wrap(err, "sqlite.MarkUnlocked.Counters")
	})
	if err != nil {
		return false, err
	}
	return won, nil
}

func (s *Store) DeleteMessage(ctx context.Context, vaultID, messageID string) (*seal.Message, error) {
	var removed *seal.Message
	err := s.withTx(ctx, "DeleteMessage", func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx,
			`SELECT `+messageColumns+` FROM messages WHERE vault_id = ? AND id = ?`, vaultID, messageID)
		m, err := scanMessage(row)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("message %s: %w", messageID, seal.ErrNotFound)
		}
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE vault_id = ? AND id = ?`, vaultID, messageID); err != nil {
			return errors.Wrap(err, "sqlite.DeleteMessage.Delete")
		}

		bucket := "locked"
		if m.State == seal.StateUnlocked {
			bucket = "unlocked"
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE vaults SET total = total - 1, `+bucket+` = `+bucket+` - 1 WHERE id = ?`, vaultID)
		if err != nil {
			return errors.Wrap(err, "sqlite.DeleteMessage.Counters")
		}
		removed = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}

// --- helpers ---

func (s *Store) withTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrapf(err, "sqlite.%s.Begin", op)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return errors.Wrapf(tx.Commit(), "sqlite.%s.Commit", op)
}

func vaultExists(ctx context.Context, tx *sql.Tx, vaultID string) error {
	var one int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM vaults WHERE id = ?`, vaultID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("vault %s: %w", vaultID, seal.ErrNotFound)
	}
	return errors.Wrap(err, "sqlite.vaultExists")
}

func messageExists(ctx context.Context, tx *sql.Tx, vaultID, messageID string) error {
	var one int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM messages WHERE vault_id = ? AND id = ?`, vaultID, messageID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("message %s: %w", messageID, seal.ErrNotFound)
	}
	return errors.Wrap(err, "sqlite.messageExists")
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMessage(row scanner) (*seal.Message, error) {
	var (
		m                     seal.Message
		kind, state, env      string
		unlockTime, createdAt string
		revealed              []byte
	)
	err := row.Scan(&m.ID, &m.VaultID, &m.Title, &kind, &unlockTime, &createdAt, &m.CreatedBy, &env, &revealed, &state)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, errors.Wrap(err, "sqlite.scanMessage")
	}

	m.Kind = seal.ContentKind(kind)
	m.State = seal.LockState(state)
	if m.Envelope, err = seal.UnmarshalEnvelope([]byte(env)); err != nil {
		return nil, err
	}
	if m.UnlockTime, err = parseTime(unlockTime); err != nil {
		return nil, err
	}
	if m.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}

	// An empty BLOB can scan as nil; unlocked messages always carry content.
	if m.State == seal.StateUnlocked {
		m.RevealedContent = append([]byte{}, revealed...)
	}
	return &m, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "sqlite: bad timestamp %q", s)
	}
	return t, nil
}

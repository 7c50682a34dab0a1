package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bhandras/smln/internal/database"
	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
)

// SQLStore implements Store on top of database/sql.
//
// Queries are written with '?' placeholders and rebound for the connection's
// dialect.
type SQLStore struct {
	db    *database.DB
	creds CredentialService
	now   func() time.Time
	newID func() string
}

var _ Store = (*SQLStore)(nil)

// NewSQLStore creates a store over an opened, migrated database.
func NewSQLStore(db *database.DB, creds CredentialService) *SQLStore {
	return &SQLStore{
		db:    db,
		creds: creds,
		now:   time.Now,
		newID: uuid.NewString,
	}
}

func (s *SQLStore) q(query string) string {
	return s.db.Rebind(query)
}

const userColumns = "id, login, name, is_online, last_seen, public_key"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (User, error) {
	var (
		u      User
		online int64
	)
	if err := row.Scan(&u.ID, &u.Login, &u.Name, &online, &u.LastSeen, &u.PublicKey); err != nil {
		return User{}, err
	}
	u.IsOnline = online != 0
	return u, nil
}

// CreateUser provisions a user with a fresh key pair sealed by password.
func (s *SQLStore) CreateUser(ctx context.Context, login, name, password string) (User, error) {
	hash, err := s.creds.Hash(password)
	if err != nil {
		return User{}, err
	}
	public, private, err := s.creds.GenerateKeyPair(password)
	if err != nil {
		return User{}, err
	}

	u := User{ID: s.newID(), Login: login, Name: name, PublicKey: public}
	_, err = s.db.ExecContext(ctx, s.q(`
		INSERT INTO users (id, login, name, password_hash, public_key, private_key, is_online, last_seen)
		VALUES (?, ?, ?, ?, ?, ?, 0, 0)`),
		u.ID, login, name, hash, public, private,
	)
	if isUniqueViolation(err) {
		return User{}, ErrLoginTaken
	}
	if err != nil {
		return User{}, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}

func (s *SQLStore) ValidatePassword(ctx context.Context, login, password string) (Credentials, bool, error) {
	var (
		c    Credentials
		hash string
	)
	err := s.db.QueryRowContext(ctx,
		s.q("SELECT id, password_hash, public_key, private_key FROM users WHERE login = ?"), login,
	).Scan(&c.UserID, &hash, &c.PublicKey, &c.PrivateKey)
	if errors.Is(err, sql.ErrNoRows) {
		return Credentials{}, false, nil
	}
	if err != nil {
		return Credentials{}, false, fmt.Errorf("lookup login: %w", err)
	}
	if !s.creds.Verify(password, hash) {
		return Credentials{}, false, nil
	}
	return c, true, nil
}

func (s *SQLStore) MakeOnline(ctx context.Context, userID string) (bool, error) {
	return s.setPresence(ctx, userID, true)
}

func (s *SQLStore) MakeOffline(ctx context.Context, userID string) (bool, error) {
	return s.setPresence(ctx, userID, false)
}

func (s *SQLStore) setPresence(ctx context.Context, userID string, online bool) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		s.q("UPDATE users SET is_online = ?, last_seen = ? WHERE id = ?"),
		boolInt(online), s.now().UnixMilli(), userID,
	)
	if err != nil {
		return false, fmt.Errorf("update presence: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update presence: %w", err)
	}
	return n > 0, nil
}

func (s *SQLStore) GetUser(ctx context.Context, userID string) (User, bool, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx,
		s.q("SELECT "+userColumns+" FROM users WHERE id = ?"), userID))
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, false, nil
	}
	if err != nil {
		return User{}, false, fmt.Errorf("get user: %w", err)
	}
	return u, true, nil
}

func (s *SQLStore) People(ctx context.Context, props ListProperties) ([]User, []string, error) {
	p, invalid := ParseListParams(props)
	if len(invalid) > 0 {
		return nil, invalid, nil
	}

	query := "SELECT " + userColumns + " FROM users"
	var args []any
	if p.Filter != "" {
		pattern := likePattern(p.Filter)
		query += ` WHERE LOWER(login) LIKE ? ESCAPE '\' OR LOWER(name) LIKE ? ESCAPE '\'`
		args = append(args, pattern, pattern)
	}
	query += " ORDER BY login " + sqlOrder(p.order(SortAsc))
	query, args = s.paginate(query, args, p)

	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, nil, fmt.Errorf("list people: %w", err)
	}
	defer rows.Close()

	users := []User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("list people: %w", err)
	}
	return users, nil, nil
}

func (s *SQLStore) Download(ctx context.Context, userID, token string) ([]byte, bool, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		s.q("SELECT data FROM files WHERE token = ? AND owner_id = ?"), token, userID,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("download: %w", err)
	}
	return data, true, nil
}

// paginate appends LIMIT/OFFSET clauses for p.
func (s *SQLStore) paginate(query string, args []any, p ListParams) (string, []any) {
	switch {
	case p.Count > 0:
		return query + " LIMIT ? OFFSET ?", append(args, p.Count, p.From)
	case p.From > 0 && s.db.Dialect() == database.DialectSQLite:
		// SQLite requires a LIMIT before OFFSET.
		return query + " LIMIT -1 OFFSET ?", append(args, p.From)
	case p.From > 0:
		return query + " OFFSET ?", append(args, p.From)
	}
	return query, args
}

func (s *SQLStore) userExists(ctx context.Context, userID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, s.q("SELECT COUNT(*) FROM users WHERE id = ?"), userID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check user: %w", err)
	}
	return n > 0, nil
}

func likePattern(filter string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(strings.ToLower(filter)) + "%"
}

func sqlOrder(order string) string {
	if order == SortDesc {
		return "DESC"
	}
	return "ASC"
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.UniqueViolation
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"motherbot/internal/models"
	"motherbot/internal/storage"

	"github.com/pressly/goose/v3"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Migrations holds the goose migrations for the record store
//
//go:embed migrations/*.sql
var Migrations embed.FS

var statColumns = map[string]string{
	models.StatMessages: "messages",
	models.StatReplies:  "replies",
	models.StatBlocked:  "blocked",
	models.StatSenders:  "senders",
}

type SQLiteDB struct {
	db *sql.DB
}

// NewSQLiteDB opens the record store file at path
func NewSQLiteDB(path string) (*SQLiteDB, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	// A single connection serializes writers, which keeps conditional inserts race free
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	return &SQLiteDB{db: db}, nil
}

// DB exposes the underlying handle for the migrate command
func (s *SQLiteDB) DB() *sql.DB {
	return s.db
}

// Initialize applies pending migrations
func (s *SQLiteDB) Initialize(ctx context.Context) error {
	goose.SetBaseFS(Migrations)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set migration dialect: %w", err)
	}
	if err := goose.UpContext(ctx, s.db, "migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// UpsertUser creates the user or refreshes its profile fields
func (s *SQLiteDB) UpsertUser(ctx context.Context, user *models.User) error {
	role := user.Role
	if role == "" {
		role = models.RoleUser
	}
	created := user.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, display_name, username, role, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			display_name = excluded.display_name,
			username = excluded.username,
			role = CASE WHEN ? = '' THEN users.role ELSE excluded.role END`,
		user.ID, user.DisplayName, user.Username, role, created.UnixNano(), string(user.Role))
	if err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}
	return nil
}

// GetUser returns a user with its relay ids
func (s *SQLiteDB) GetUser(ctx context.Context, id int64) (*models.User, error) {
	var u models.User
	var created int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id, display_name, username, role, created_at FROM users WHERE id = ?`, id,
	).Scan(&u.ID, &u.DisplayName, &u.Username, &u.Role, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	u.CreatedAt = time.Unix(0, created)

	rows, err := s.db.QueryContext(ctx, `SELECT relay_id FROM user_relays WHERE user_id = ? ORDER BY rowid`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list user relays: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var relayID string
		if err := rows.Scan(&relayID); err != nil {
			return nil, fmt.Errorf("failed to scan user relay: %w", err)
		}
		u.RelayIDs = append(u.RelayIDs, relayID)
	}
	return &u, rows.Err()
}

// AddUserRelay attaches a relay to the user and promotes plain users to owners
func (s *SQLiteDB) AddUserRelay(ctx context.Context, userID int64, relayID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE users SET role = CASE WHEN role = 'user' THEN 'owner' ELSE role END WHERE id = ?`, userID)
	if err != nil {
		return fmt.Errorf("failed to update user role: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrNotFound
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO user_relays (user_id, relay_id) VALUES (?, ?) ON CONFLICT DO NOTHING`, userID, relayID); err != nil {
		return fmt.Errorf("failed to add user relay: %w", err)
	}
	return tx.Commit()
}

// CreateRelayBot inserts the relay bot unless the credential is taken or the owner quota is full
func (s *SQLiteDB) CreateRelayBot(ctx context.Context, bot *models.RelayBot, maxPerOwner int) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO relay_bots (
			id, credential, owner_id, public_handle, display_name, created_at, status,
			welcome_text, max_message_length, allow_media, notify_owner, rate_limit
		)
		SELECT ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?
		WHERE ? <= 0 OR (SELECT COUNT(*) FROM relay_bots WHERE owner_id = ?) < ?`,
		bot.ID, bot.Credential, bot.OwnerID, bot.PublicHandle, bot.DisplayName, bot.CreatedAt.UnixNano(), string(bot.Status),
		bot.Settings.WelcomeText, bot.Settings.MaxMessageLength, bot.Settings.AllowMedia, bot.Settings.NotifyOwner,
		bot.Settings.RateLimitPerWindow,
		maxPerOwner, bot.OwnerID, maxPerOwner)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrDuplicateCredential
		}
		return fmt.Errorf("failed to create relay bot: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to create relay bot: %w", err)
	}
	if n == 0 {
		return storage.ErrQuotaExceeded
	}
	return nil
}

const relayColumns = `id, credential, owner_id, public_handle, display_name, created_at, status,
	welcome_text, max_message_length, allow_media, notify_owner, rate_limit,
	total_messages, total_users, last_activity`

type scanner interface {
	Scan(dest ...any) error
}

func scanRelay(row scanner) (*models.RelayBot, error) {
	var r models.RelayBot
	var created int64
	var last sql.NullInt64
	err := row.Scan(&r.ID, &r.Credential, &r.OwnerID, &r.PublicHandle, &r.DisplayName, &created, &r.Status,
		&r.Settings.WelcomeText, &r.Settings.MaxMessageLength, &r.Settings.AllowMedia, &r.Settings.NotifyOwner,
		&r.Settings.RateLimitPerWindow, &r.TotalMessages, &r.TotalUsers, &last)
	if err != nil {
		return nil, err
	}
	r.CreatedAt = time.Unix(0, created)
	if last.Valid {
		t := time.Unix(0, last.Int64)
		r.LastActivity = &t
	}
	return &r, nil
}

// GetRelayBot returns a relay bot by id
func (s *SQLiteDB) GetRelayBot(ctx context.Context, id string) (*models.RelayBot, error) {
	r, err := scanRelay(s.db.QueryRowContext(ctx, `SELECT `+relayColumns+` FROM relay_bots WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get relay bot: %w", err)
	}
	return r, nil
}

// GetRelayBotByCredential returns the relay bot registered with the credential
func (s *SQLiteDB) GetRelayBotByCredential(ctx context.Context, credential string) (*models.RelayBot, error) {
	r, err := scanRelay(s.db.QueryRowContext(ctx, `SELECT `+relayColumns+` FROM relay_bots WHERE credential = ?`, credential))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get relay bot by credential: %w", err)
	}
	return r, nil
}

// ListRelayBotsByOwner returns the owner's relay bots, newest first
func (s *SQLiteDB) ListRelayBotsByOwner(ctx context.Context, ownerID int64) ([]models.RelayBot, error) {
	return s.listRelays(ctx, `WHERE owner_id = ?`, ownerID)
}

// ListRelayBotsByStatus returns relay bots with the given status
func (s *SQLiteDB) ListRelayBotsByStatus(ctx context.Context, status models.RelayStatus) ([]models.RelayBot, error) {
	return s.listRelays(ctx, `WHERE status = ?`, string(status))
}

func (s *SQLiteDB) listRelays(ctx context.Context, where string, arg any) ([]models.RelayBot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+relayColumns+` FROM relay_bots `+where+` ORDER BY created_at DESC, id ASC`, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to list relay bots: %w", err)
	}
	defer rows.Close()

	var relays []models.RelayBot
	for rows.Next() {
		r, err := scanRelay(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan relay bot: %w", err)
		}
		relays = append(relays, *r)
	}
	return relays, rows.Err()
}

// CountRelayBotsByOwner returns how many relay bots the owner holds in any status
func (s *SQLiteDB) CountRelayBotsByOwner(ctx context.Context, ownerID int64) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM relay_bots WHERE owner_id = ?`, ownerID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count relay bots: %w", err)
	}
	return count, nil
}

// SetRelayBotStatus changes the lifecycle status of a relay bot
func (s *SQLiteDB) SetRelayBotStatus(ctx context.Context, id string, status models.RelayStatus) error {
	res, err := s.db.ExecContext(ctx, `UPDATE relay_bots SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return fmt.Errorf("failed to set relay bot status: %w", err)
	}
	return requireRow(res)
}

// DeleteRelayBot removes a relay bot and detaches it from its owner
func (s *SQLiteDB) DeleteRelayBot(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM relay_bots WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete relay bot: %w", err)
	}
	if err := requireRow(res); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM user_relays WHERE relay_id = ?`, id); err != nil {
		return fmt.Errorf("failed to detach relay bot: %w", err)
	}
	return tx.Commit()
}

// RecordRelayActivity increments relay counters in a single statement
func (s *SQLiteDB) RecordRelayActivity(ctx context.Context, id string, messagesDelta, usersDelta int64, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE relay_bots
		SET total_messages = total_messages + ?, total_users = total_users + ?, last_activity = ?
		WHERE id = ?`, messagesDelta, usersDelta, at.UnixNano(), id)
	if err != nil {
		return fmt.Errorf("failed to record relay activity: %w", err)
	}
	return requireRow(res)
}

// TouchRelaySender reports whether this is the sender's first message through the relay
func (s *SQLiteDB) TouchRelaySender(ctx context.Context, relayID string, senderID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO relay_senders (relay_id, sender_id, first_seen) VALUES (?, ?, ?)
		ON CONFLICT DO NOTHING`, relayID, senderID, time.Now().UnixNano())
	if err != nil {
		return false, fmt.Errorf("failed to touch relay sender: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to touch relay sender: %w", err)
	}
	return n == 1, nil
}

// CreateMessage stores a relayed message
func (s *SQLiteDB) CreateMessage(ctx context.Context, msg *models.Message) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, relay_id, from_user_id, to_user_id, content, kind, ts, is_read, reply_to)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.RelayID, msg.FromUserID, msg.ToUserID, msg.Content, string(msg.Kind),
		msg.Timestamp.UnixNano(), msg.IsRead, msg.ReplyTo)
	if err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	return nil
}

const messageColumns = `id, relay_id, from_user_id, to_user_id, content, kind, ts, is_read, reply_to`

func scanMessage(row scanner) (*models.Message, error) {
	var m models.Message
	var ts int64
	if err := row.Scan(&m.ID, &m.RelayID, &m.FromUserID, &m.ToUserID, &m.Content, &m.Kind, &ts, &m.IsRead, &m.ReplyTo); err != nil {
		return nil, err
	}
	m.Timestamp = time.Unix(0, ts)
	return &m, nil
}

// GetMessage returns a message by id
func (s *SQLiteDB) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	m, err := scanMessage(s.db.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	return m, nil
}

// LastMessageFrom returns the newest message from fromID to toID through the relay
func (s *SQLiteDB) LastMessageFrom(ctx context.Context, relayID string, fromID, toID int64) (*models.Message, error) {
	m, err := scanMessage(s.db.QueryRowContext(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE relay_id = ? AND from_user_id = ? AND to_user_id = ?
		ORDER BY seq DESC LIMIT 1`, relayID, fromID, toID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get last message: %w", err)
	}
	return m, nil
}

// ListMessages returns the last N messages of a relay, newest first
func (s *SQLiteDB) ListMessages(ctx context.Context, relayID string, limit int) ([]models.Message, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE relay_id = ? ORDER BY seq DESC LIMIT ?`, relayID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, *m)
	}
	return messages, rows.Err()
}

// MarkRead flags the messages as read
func (s *SQLiteDB) MarkRead(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `UPDATE messages SET is_read = 1 WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare mark read: %w", err)
	}
	defer stmt.Close()

	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, id); err != nil {
			return fmt.Errorf("failed to mark message read: %w", err)
		}
	}
	return tx.Commit()
}

// DeleteMessages removes the stored messages of a relay
func (s *SQLiteDB) DeleteMessages(ctx context.Context, relayID string) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE relay_id = ?`, relayID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete messages: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to delete messages: %w", err)
	}
	return int(n), nil
}

// AddBlock inserts a block entry; existing entries are left as is
func (s *SQLiteDB) AddBlock(ctx context.Context, entry models.BlockEntry) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO blocks (relay_id, sender_id, created_at) VALUES (?, ?, ?)
		ON CONFLICT DO NOTHING`, entry.RelayID, entry.SenderID, time.Now().UnixNano())
	if err != nil {
		return false, fmt.Errorf("failed to add block: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to add block: %w", err)
	}
	return n == 1, nil
}

// RemoveBlock deletes a block entry if present
func (s *SQLiteDB) RemoveBlock(ctx context.Context, entry models.BlockEntry) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM blocks WHERE relay_id = ? AND sender_id = ?`, entry.RelayID, entry.SenderID)
	if err != nil {
		return false, fmt.Errorf("failed to remove block: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to remove block: %w", err)
	}
	return n > 0, nil
}

// IsBlocked reports block list membership
func (s *SQLiteDB) IsBlocked(ctx context.Context, entry models.BlockEntry) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM blocks WHERE relay_id = ? AND sender_id = ?)`, entry.RelayID, entry.SenderID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check block: %w", err)
	}
	return exists, nil
}

// SetStep stores the actor's step in one upsert. Data is patched into the stored bag
// when the stored step carries the same tag.
func (s *SQLiteDB) SetStep(ctx context.Context, state *models.StepState) error {
	data := state.Data
	if data == nil {
		data = map[string]string{}
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode step data: %w", err)
	}

	var expires sql.NullInt64
	if state.ExpiresAt != nil {
		expires = sql.NullInt64{Int64: state.ExpiresAt.UnixNano(), Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO steps (actor_id, tag, data, expires_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(actor_id) DO UPDATE SET
			data = CASE
				WHEN steps.tag = excluded.tag
				THEN json_patch(steps.data, excluded.data)
				ELSE excluded.data
			END,
			tag = excluded.tag,
			expires_at = excluded.expires_at`,
		state.ActorID, string(state.Tag), string(raw), expires)
	if err != nil {
		return fmt.Errorf("failed to set step: %w", err)
	}
	return nil
}

// GetStep returns the actor's unexpired step
func (s *SQLiteDB) GetStep(ctx context.Context, actorID int64, now time.Time) (*models.StepState, error) {
	var st models.StepState
	var raw string
	var expires sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT actor_id, tag, data, expires_at FROM steps WHERE actor_id = ?`, actorID,
	).Scan(&st.ActorID, &st.Tag, &raw, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get step: %w", err)
	}

	if expires.Valid {
		t := time.Unix(0, expires.Int64)
		st.ExpiresAt = &t
	}
	if st.Expired(now) {
		return nil, storage.ErrNotFound
	}

	if err := json.Unmarshal([]byte(raw), &st.Data); err != nil {
		return nil, fmt.Errorf("failed to decode step data: %w", err)
	}
	if st.Data == nil {
		st.Data = map[string]string{}
	}
	return &st, nil
}

// ClearStep removes the actor's step
func (s *SQLiteDB) ClearStep(ctx context.Context, actorID int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM steps WHERE actor_id = ?`, actorID); err != nil {
		return fmt.Errorf("failed to clear step: %w", err)
	}
	return nil
}

// DeleteExpiredSteps removes every step whose expiry has passed
func (s *SQLiteDB) DeleteExpiredSteps(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM steps WHERE expires_at IS NOT NULL AND expires_at <= ?`, now.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired steps: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired steps: %w", err)
	}
	return int(n), nil
}

// IncrementDailyStat adds delta to one aggregate field
func (s *SQLiteDB) IncrementDailyStat(ctx context.Context, relayID, day, field string, delta int64) error {
	column, ok := statColumns[field]
	if !ok {
		return fmt.Errorf("unknown stat field %q", field)
	}

	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO daily_stats (relay_id, day, %[1]s) VALUES (?, ?, ?)
		ON CONFLICT(relay_id, day) DO UPDATE SET %[1]s = daily_stats.%[1]s + excluded.%[1]s`, column),
		relayID, day, delta)
	if err != nil {
		return fmt.Errorf("failed to increment daily stat: %w", err)
	}
	return nil
}

// GetDailyStats returns aggregates since the given day, newest first
func (s *SQLiteDB) GetDailyStats(ctx context.Context, relayID, sinceDay string) ([]models.DailyStat, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT relay_id, day, messages, replies, blocked, senders FROM daily_stats
		WHERE relay_id = ? AND day >= ? ORDER BY day DESC`, relayID, sinceDay)
	if err != nil {
		return nil, fmt.Errorf("failed to get daily stats: %w", err)
	}
	defer rows.Close()

	var stats []models.DailyStat
	for rows.Next() {
		var st models.DailyStat
		if err := rows.Scan(&st.RelayID, &st.Day, &st.Messages, &st.Replies, &st.Blocked, &st.Senders); err != nil {
			return nil, fmt.Errorf("failed to scan daily stat: %w", err)
		}
		stats = append(stats, st)
	}
	return stats, rows.Err()
}

// Close closes the database connection
func (s *SQLiteDB) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
	}
	return false
}

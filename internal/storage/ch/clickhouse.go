package ch

import (
	"context"
	"crypto/tls"
	"embed"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"motherbot/internal/models"

	"github.com/ClickHouse/clickhouse-go/v2"
)

// Migrations holds the goose migrations for the message archive
//
//go:embed migrations/*.sql
var Migrations embed.FS

// ClickHouseDB is the append-only message archive
type ClickHouseDB struct {
	conn clickhouse.Conn
}

// NewClickHouseDB creates a new ClickHouse database connection
func NewClickHouseDB(host string, port int, database, user, password string, useTLS bool) (*ClickHouseDB, error) {
	addr := fmt.Sprintf("%s:%d", host, port)

	options := &clickhouse.Options{
		Addr:     []string{addr},
		Protocol: clickhouse.Native,
		Auth: clickhouse.Auth{
			Database: database,
			Username: user,
			Password: password,
		},
		DialTimeout: 10 * time.Second,
	}

	if useTLS {
		options.TLS = &tls.Config{
			InsecureSkipVerify: false,
		}
	}

	conn, err := clickhouse.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	return &ClickHouseDB{conn: conn}, nil
}

// Initialize creates the archive table when migrations have not been applied
func (db *ClickHouseDB) Initialize(ctx context.Context) error {
	ddl, err := upStatement()
	if err != nil {
		return err
	}
	if err := db.conn.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create archive table: %w", err)
	}
	return nil
}

// upStatement extracts the Up section of the embedded migration
func upStatement() (string, error) {
	raw, err := Migrations.ReadFile("migrations/00001_create_message_archive.sql")
	if err != nil {
		return "", fmt.Errorf("failed to read archive migration: %w", err)
	}
	body := string(raw)
	if i := strings.Index(body, "-- +goose Down"); i >= 0 {
		body = body[:i]
	}
	body = strings.Replace(body, "-- +goose Up", "", 1)
	return strings.TrimSuffix(strings.TrimSpace(body), ";"), nil
}

// ArchiveMessage appends message metadata. Content is not archived.
func (db *ClickHouseDB) ArchiveMessage(ctx context.Context, msg *models.Message) error {
	err := db.conn.Exec(ctx, `
		INSERT INTO message_archive (id, relay_id, from_user_id, to_user_id, kind, is_reply, length, ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.RelayID, msg.FromUserID, msg.ToUserID, string(msg.Kind), msg.IsReply(),
		uint32(utf8.RuneCountInString(msg.Content)), msg.Timestamp.UTC())
	if err != nil {
		return fmt.Errorf("failed to archive message: %w", err)
	}
	return nil
}

// CountMessagesByDay returns inbound message counts per day for the relay
func (db *ClickHouseDB) CountMessagesByDay(ctx context.Context, relayID string, since time.Time) (map[string]int64, error) {
	rows, err := db.conn.Query(ctx, `
		SELECT toString(toDate(ts)) AS day, count() AS total
		FROM message_archive
		WHERE relay_id = ? AND ts >= ? AND is_reply = false
		GROUP BY day
		ORDER BY day`, relayID, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to count archived messages: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var day string
		var total uint64
		if err := rows.Scan(&day, &total); err != nil {
			return nil, fmt.Errorf("failed to scan archive count: %w", err)
		}
		counts[day] = int64(total)
	}
	return counts, rows.Err()
}

// Close closes the database connection
func (db *ClickHouseDB) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"navy-registrar/internal/domain"
)

// sortableTime keeps a fixed width so created_at orders chronologically as text.
const sortableTime = "2006-01-02T15:04:05.000000000Z07:00"

// Store provides SQLite-backed persistence for ships, their owned rows and
// conversation records.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens the database at path with foreign keys enforced and migrates it.
func Open(path string) (*sql.DB, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("open: path is empty")
	}
	q := url.Values{}
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", "busy_timeout(5000)")
	db, err := sql.Open("sqlite", "file:"+path+"?"+q.Encode())
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	if err := Migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// New returns a Store bound to an existing database handle.
func New(db *sql.DB) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("db is nil")
	}
	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) timestamp() string {
	return s.now().UTC().Format(sortableTime)
}

// SaveShipMission upserts the ship and inserts the mission in one transaction.
// A nil mission upserts the ship alone.
func (s *Store) SaveShipMission(ctx context.Context, ship domain.Ship, mission *domain.Mission) error {
	if ship.ID == "" {
		return fmt.Errorf("save ship mission: ship id is empty")
	}
	now := s.timestamp()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save ship mission: begin: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO ships (ship_id, ship_name, ship_type, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(ship_id) DO UPDATE SET
			ship_name = excluded.ship_name,
			ship_type = excluded.ship_type,
			updated_at = excluded.updated_at`,
		ship.ID, ship.Name, ship.Type, now, now)
	if err != nil {
		return fmt.Errorf("save ship mission: upsert ship: %w", err)
	}

	if mission != nil {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO missions (mission_id, ship_id, mission_type, created_at) VALUES (?, ?, ?, ?)`,
			mission.ID, ship.ID, mission.MissionType, now)
		if err != nil {
			return fmt.Errorf("save ship mission: insert mission: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("save ship mission: commit: %w", err)
	}
	return nil
}

// GetShip returns the ship with the given ID or domain.ErrShipNotFound.
func (s *Store) GetShip(ctx context.Context, shipID string) (domain.Ship, error) {
	var ship domain.Ship
	err := s.db.QueryRowContext(ctx,
		`SELECT ship_id, ship_name, ship_type FROM ships WHERE ship_id = ?`, shipID,
	).Scan(&ship.ID, &ship.Name, &ship.Type)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Ship{}, fmt.Errorf("get ship %q: %w", shipID, domain.ErrShipNotFound)
		}
		return domain.Ship{}, fmt.Errorf("get ship: scan: %w", err)
	}
	return ship, nil
}

// CreateCrew inserts a crew row for an existing ship.
func (s *Store) CreateCrew(ctx context.Context, crew domain.Crew) error {
	return s.insertOwned(ctx, "create crew", crew.ShipID,
		`INSERT INTO crews (crew_id, ship_id, crew_size, commander_name, commander_rank, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		crew.ID, crew.ShipID, crew.Size, crew.CommanderName, crew.CommanderRank, s.timestamp())
}

// CreatePort inserts a port row for an existing ship.
func (s *Store) CreatePort(ctx context.Context, port domain.Port) error {
	return s.insertOwned(ctx, "create port", port.ShipID,
		`INSERT INTO ports (port_id, ship_id, home_port, created_at) VALUES (?, ?, ?, ?)`,
		port.ID, port.ShipID, port.HomePort, s.timestamp())
}

func (s *Store) insertOwned(ctx context.Context, op, shipID, query string, args ...any) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: begin: %w", op, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM ships WHERE ship_id = ?`, shipID).Scan(&exists)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%s: ship %q: %w", op, shipID, domain.ErrShipNotFound)
		}
		return fmt.Errorf("%s: lookup ship: %w", op, err)
	}

	if _, err = tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("%s: insert: %w", op, err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("%s: commit: %w", op, err)
	}
	return nil
}

// ListMissions returns the missions recorded for a ship, oldest first.
func (s *Store) ListMissions(ctx context.Context, shipID string) ([]domain.Mission, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT mission_id, ship_id, mission_type FROM missions WHERE ship_id = ? ORDER BY created_at ASC, rowid ASC`, shipID)
	if err != nil {
		return nil, fmt.Errorf("list missions: query: %w", err)
	}
	defer rows.Close()

	missions := make([]domain.Mission, 0)
	for rows.Next() {
		var m domain.Mission
		if err := rows.Scan(&m.ID, &m.ShipID, &m.MissionType); err != nil {
			return nil, fmt.Errorf("list missions: scan: %w", err)
		}
		missions = append(missions, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list missions: rows: %w", err)
	}
	return missions, nil
}

// LatestConversation returns the newest conversation data for a user, or an
// empty map when the user has none.
func (s *Store) LatestConversation(ctx context.Context, userID string) (map[string]any, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM conversations WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT 1`, userID,
	).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return map[string]any{}, nil
		}
		return nil, fmt.Errorf("latest conversation: scan: %w", err)
	}
	data, err := domain.DecodeData(raw)
	if err != nil {
		return nil, fmt.Errorf("latest conversation: %w", err)
	}
	return data, nil
}

// AppendConversation inserts a new immutable conversation record.
func (s *Store) AppendConversation(ctx context.Context, userID string, data map[string]any) error {
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("append conversation: user id is empty")
	}
	raw, err := domain.EncodeData(data)
	if err != nil {
		return fmt.Errorf("append conversation: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO conversations (user_id, data, created_at) VALUES (?, ?, ?)`,
		userID, raw, s.timestamp())
	if err != nil {
		return fmt.Errorf("append conversation: insert: %w", err)
	}
	return nil
}

// ConversationHistory returns up to limit records for a user in chronological order.
func (s *Store) ConversationHistory(ctx context.Context, userID string, limit int) ([]domain.ConversationRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, data, created_at FROM (
			SELECT id, user_id, data, created_at FROM conversations
			WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT ?
		) ORDER BY created_at ASC, id ASC`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("conversation history: query: %w", err)
	}
	defer rows.Close()

	records := make([]domain.ConversationRecord, 0)
	for rows.Next() {
		var rec domain.ConversationRecord
		var raw, createdAt string
		if err := rows.Scan(&rec.UserID, &raw, &createdAt); err != nil {
			return nil, fmt.Errorf("conversation history: scan: %w", err)
		}
		rec.Data, err = domain.DecodeData(raw)
		if err != nil {
			return nil, fmt.Errorf("conversation history: %w", err)
		}
		rec.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("conversation history: parse created_at: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("conversation history: rows: %w", err)
	}
	return records, nil
}

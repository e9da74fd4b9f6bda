// internal/history/store.go
//
// Persistence for finished matches and per-account duel stats.
// Live matches are never stored; the broker hands over an outcome once
// a match reaches its terminal phase, and everything here is
// best-effort bookkeeping on top of that.

package history

import (
	"context"
	"database/sql"
	"time"

	"github.com/digitduel/server/internal/game"
	"github.com/digitduel/server/internal/match"
)

// Store wraps the SQL handle for match history.
type Store struct {
	db *sql.DB
}

// NewStore constructs a Store over db.
func NewStore(db *sql.DB) *Store { return &Store{db: db} }

// MatchRow is one finished match as read back for an account.
type MatchRow struct {
	ID          string `json:"id"`
	Mode        string `json:"mode"`
	WinnerRole  string `json:"winnerRole,omitempty"`
	Reason      string `json:"reason"`
	Turns       int    `json:"turns"`
	PlayerAName string `json:"playerAName"`
	PlayerBName string `json:"playerBName"`
	FinishedAt  string `json:"finishedAt"`
}

// RecordOutcome stores the finished match and bumps stats for any
// participant with an account, in one transaction.
func (s *Store) RecordOutcome(ctx context.Context, o match.Outcome) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC().Format(time.RFC3339)
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO matches (id, mode, winner_role, reason, turns, player_a_user, player_b_user, player_a_name, player_b_name, finished_at)
		 VALUES (?,?,?,?,?,?,?,?,?,?)`,
		o.MatchID, string(o.Mode), nullStr(string(o.Winner)), o.Reason, o.Turns,
		nullStr(o.A.UserID), nullStr(o.B.UserID), o.A.Name, o.B.Name, now,
	); err != nil {
		return err
	}

	if o.A.UserID != "" {
		if err := bumpStats(ctx, tx, o.A.UserID, o.Winner == game.RoleA); err != nil {
			return err
		}
	}
	if o.B.UserID != "" {
		if err := bumpStats(ctx, tx, o.B.UserID, o.Winner == game.RoleB); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// RecentByUser lists an account's latest finished matches.
func (s *Store) RecentByUser(ctx context.Context, userID string, limit int) ([]MatchRow, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, mode, COALESCE(winner_role,''), reason, turns, player_a_name, player_b_name, finished_at
		 FROM matches
		 WHERE player_a_user=? OR player_b_user=?
		 ORDER BY finished_at DESC
		 LIMIT ?`, userID, userID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []MatchRow{}
	for rows.Next() {
		var r MatchRow
		if err := rows.Scan(&r.ID, &r.Mode, &r.WinnerRole, &r.Reason, &r.Turns, &r.PlayerAName, &r.PlayerBName, &r.FinishedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// bumpStats increments games played; wins extend the streak, anything
// else resets it.
func bumpStats(ctx context.Context, tx *sql.Tx, userID string, won bool) error {
	var gp, wins, streak int
	row := tx.QueryRowContext(ctx, `SELECT games_played, wins, streak FROM users WHERE id=?`, userID)
	if err := row.Scan(&gp, &wins, &streak); err != nil {
		return err
	}
	gp++
	if won {
		wins++
		streak++
	} else {
		streak = 0
	}
	_, err := tx.ExecContext(ctx, `UPDATE users SET games_played=?, wins=?, streak=? WHERE id=?`, gp, wins, streak, userID)
	return err
}

// nullStr maps an empty string to SQL NULL.
func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

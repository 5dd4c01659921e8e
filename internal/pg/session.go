package pg

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/jackc/pglogrepl"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Probe failure taxonomy. Callers branch on these with errors.Is; the
// wrapped error keeps the driver detail.
var (
	// ErrUnreachable: the node did not answer within the probe timeout
	// (connection refused, DNS failure, or deadline exceeded).
	ErrUnreachable = errors.New("node unreachable")

	// ErrAuth: the node answered and rejected the credentials.
	ErrAuth = errors.New("authentication rejected")
)

// SQLSTATE class 28 (invalid_authorization_specification / invalid_password).
const (
	sqlstateInvalidAuthSpec = "28000"
	sqlstateInvalidPassword = "28P01"
)

// ReplicationLink is one row of pg_stat_replication, lag measured in
// bytes against the master's current WAL position.
type ReplicationLink struct {
	ClientAddr      string        `json:"client_addr"`
	ApplicationName string        `json:"application_name"`
	State           string        `json:"state"`
	SyncState       string        `json:"sync_state"`
	SentLSN         pglogrepl.LSN `json:"sent_lsn"`
	SendLagBytes    int64         `json:"send_lag_bytes"`
	FlushLagBytes   int64         `json:"flush_lag_bytes"`
	ReplayLagBytes  int64         `json:"replay_lag_bytes"`
}

// StandbyPositions are the receive/replay WAL positions reported by a
// node in recovery.
type StandbyPositions struct {
	ReceiveLSN pglogrepl.LSN `json:"receive_lsn"`
	ReplayLSN  pglogrepl.LSN `json:"replay_lsn"`
}

type Session interface {
	IsInRecovery(ctx context.Context) (bool, error)
	ReplicationLinks(ctx context.Context) ([]ReplicationLink, error)
	StandbyPositions(ctx context.Context) (StandbyPositions, error)
	Promote(ctx context.Context) error
	TryAdvisoryLock(ctx context.Context) (bool, error)
	AdvisoryUnlock(ctx context.Context) error
	Close(ctx context.Context) error
}

type session struct {
	connStr string
	conn    *pgx.Conn
}

var _ Session = &session{}

// Connector opens probe sessions against arbitrary node addresses with a
// bounded connect timeout.
type Connector struct {
	ConnectTimeout time.Duration
}

func (c *Connector) Connect(ctx context.Context, connStr string) (Session, error) {
	timeout := c.ConnectTimeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	connCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := pgx.Connect(connCtx, connStr)
	if err != nil {
		return nil, classifyConnErr(connStr, err)
	}
	return &session{connStr: connStr, conn: conn}, nil
}

// classifyConnErr maps driver errors onto the probe taxonomy.
func classifyConnErr(connStr string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == sqlstateInvalidAuthSpec || pgErr.Code == sqlstateInvalidPassword {
			return fmt.Errorf("%w: %s: %v", ErrAuth, SafeAddr(connStr), err)
		}
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) ||
		errors.As(err, &netErr) {
		return fmt.Errorf("%w: %s: %v", ErrUnreachable, SafeAddr(connStr), err)
	}
	// pgconn wraps dial errors into its own connect error type; anything
	// that is not an authentication failure counts as unreachable here.
	return fmt.Errorf("%w: %s: %v", ErrUnreachable, SafeAddr(connStr), err)
}

func (s *session) IsInRecovery(ctx context.Context) (bool, error) {
	var inRecovery bool
	err := s.conn.QueryRow(ctx, "select pg_is_in_recovery()").Scan(&inRecovery)
	if err != nil {
		return false, fmt.Errorf("IsInRecovery: %s: %w", SafeAddr(s.connStr), err)
	}
	return inRecovery, nil
}

func (s *session) ReplicationLinks(ctx context.Context) ([]ReplicationLink, error) {
	query := `
	select coalesce(client_addr::text, '')                                          as client_addr,
	       coalesce(application_name, '')                                           as application_name,
	       coalesce(state, '')                                                      as state,
	       coalesce(sync_state, '')                                                 as sync_state,
	       coalesce(sent_lsn, '0/0'::pg_lsn)::text                                  as sent_lsn,
	       coalesce(pg_wal_lsn_diff(pg_current_wal_lsn(), sent_lsn), 0)::bigint     as send_lag_bytes,
	       coalesce(pg_wal_lsn_diff(sent_lsn, flush_lsn), 0)::bigint                as flush_lag_bytes,
	       coalesce(pg_wal_lsn_diff(flush_lsn, replay_lsn), 0)::bigint              as replay_lag_bytes
	from pg_catalog.pg_stat_replication
	`

	rows, err := s.conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ReplicationLinks: %s: %w", SafeAddr(s.connStr), err)
	}
	defer rows.Close()

	var links []ReplicationLink
	for rows.Next() {
		var link ReplicationLink
		var sentLSN string
		if err := rows.Scan(
			&link.ClientAddr,
			&link.ApplicationName,
			&link.State,
			&link.SyncState,
			&sentLSN,
			&link.SendLagBytes,
			&link.FlushLagBytes,
			&link.ReplayLagBytes,
		); err != nil {
			return nil, fmt.Errorf("ReplicationLinks: scan: %w", err)
		}
		lsn, err := pglogrepl.ParseLSN(sentLSN)
		if err != nil {
			return nil, fmt.Errorf("ReplicationLinks: parse sent_lsn %q: %w", sentLSN, err)
		}
		link.SentLSN = lsn
		links = append(links, link)
	}
	return links, rows.Err()
}

func (s *session) StandbyPositions(ctx context.Context) (StandbyPositions, error) {
	query := `
	select coalesce(pg_last_wal_receive_lsn(), '0/0'::pg_lsn)::text,
	       coalesce(pg_last_wal_replay_lsn(), '0/0'::pg_lsn)::text
	`

	var receiveStr, replayStr string
	err := s.conn.QueryRow(ctx, query).Scan(&receiveStr, &replayStr)
	if err != nil {
		return StandbyPositions{}, fmt.Errorf("StandbyPositions: %s: %w", SafeAddr(s.connStr), err)
	}

	receiveLSN, err := pglogrepl.ParseLSN(receiveStr)
	if err != nil {
		return StandbyPositions{}, fmt.Errorf("StandbyPositions: parse receive_lsn %q: %w", receiveStr, err)
	}
	replayLSN, err := pglogrepl.ParseLSN(replayStr)
	if err != nil {
		return StandbyPositions{}, fmt.Errorf("StandbyPositions: parse replay_lsn %q: %w", replayStr, err)
	}
	return StandbyPositions{ReceiveLSN: receiveLSN, ReplayLSN: replayLSN}, nil
}

// Promote requests promotion and returns without waiting; the caller
// polls the role itself.
func (s *session) Promote(ctx context.Context) error {
	var started bool
	err := s.conn.QueryRow(ctx, "select pg_promote(wait => false)").Scan(&started)
	if err != nil {
		return fmt.Errorf("Promote: %s: %w", SafeAddr(s.connStr), err)
	}
	if !started {
		return fmt.Errorf("Promote: %s: pg_promote() was not accepted", SafeAddr(s.connStr))
	}
	return nil
}

// TryAdvisoryLock guards against two operators promoting the same node
// at once. Best effort: the lock lives in the session and vanishes with it.
func (s *session) TryAdvisoryLock(ctx context.Context) (bool, error) {
	var free bool
	err := s.conn.QueryRow(ctx,
		"select pg_try_advisory_lock(hashtext('pgswitch_promote'))").Scan(&free)
	if err != nil {
		return false, fmt.Errorf("TryAdvisoryLock: %s: %w", SafeAddr(s.connStr), err)
	}
	return free, nil
}

func (s *session) AdvisoryUnlock(ctx context.Context) error {
	var released bool
	err := s.conn.QueryRow(ctx,
		"select pg_advisory_unlock(hashtext('pgswitch_promote'))").Scan(&released)
	if err != nil {
		return fmt.Errorf("AdvisoryUnlock: %s: %w", SafeAddr(s.connStr), err)
	}
	return nil
}

func (s *session) Close(ctx context.Context) error {
	if s.conn != nil {
		return s.conn.Close(ctx)
	}
	return nil
}

package crdb

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/robertarktes/cinema-booking/internal/domain"
	"github.com/robertarktes/cinema-booking/internal/observability"
	"github.com/robertarktes/cinema-booking/internal/ports"
)

const (
	serializationFailureCode = "40001"
	uniqueViolationCode      = "23505"
)

// Repository implements ports.Store on CockroachDB. Seat uniqueness is
// enforced by the UNIQUE (showtime_id, row_number, seat_number) constraint
// on seat_allocations: allocations exist only while the owning reservation
// holds seats, so the constraint covers exactly the PENDING/COMPLETED set.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) WithTx(ctx context.Context, fn func(tx ports.Tx) error) error {
	start := time.Now()
	defer func() {
		observability.DBTxDuration.Observe(time.Since(start).Seconds())
	}()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SET TRANSACTION ISOLATION LEVEL SERIALIZABLE"); err != nil {
		return err
	}

	if err := fn(&reservationTx{tx: tx}); err != nil {
		return mapPgError(err)
	}

	// Serialization failures can also surface at commit time.
	if err := tx.Commit(ctx); err != nil {
		return mapPgError(err)
	}
	return nil
}

func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case serializationFailureCode:
			return domain.ErrSerializationFailure
		case uniqueViolationCode:
			return errors.Wrap(domain.ErrConflict, "seat already allocated")
		}
	}
	return err
}

type reservationTx struct {
	tx pgx.Tx
}

func (t *reservationTx) InsertReservation(ctx context.Context, res *domain.Reservation) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO reservations (id, user_id, showtime_id, status, total_price, session_id, session_url, charge_id, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, res.ID, res.UserID, res.ShowtimeID, res.Status, res.TotalPrice,
		res.SessionID, res.SessionURL, res.ChargeID, res.ExpiresAt, res.CreatedAt, res.UpdatedAt)
	if err != nil {
		return err
	}

	for _, seat := range res.Seats {
		result, err := t.tx.Exec(ctx, `
			INSERT INTO seat_allocations (reservation_id, showtime_id, row_number, seat_number)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (showtime_id, row_number, seat_number) DO NOTHING
		`, res.ID, res.ShowtimeID, seat.Row, seat.Number)
		if err != nil {
			return err
		}
		if result.RowsAffected() == 0 {
			return errors.Wrapf(domain.ErrConflict,
				"seat %s is already reserved for this showtime", seat.Label())
		}
	}
	return nil
}

func (t *reservationTx) GetReservationForUpdate(ctx context.Context, id uuid.UUID) (*domain.Reservation, error) {
	row := t.tx.QueryRow(ctx, `
		SELECT id, user_id, showtime_id, status, total_price, session_id, session_url, charge_id, expires_at, created_at, updated_at
		FROM reservations WHERE id = $1 FOR UPDATE
	`, id)
	res, err := scanReservation(row)
	if err != nil {
		return nil, err
	}

	rows, err := t.tx.Query(ctx, `
		SELECT row_number, seat_number FROM seat_allocations
		WHERE reservation_id = $1 ORDER BY row_number, seat_number
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var seat domain.Seat
		if err := rows.Scan(&seat.Row, &seat.Number); err != nil {
			return nil, err
		}
		res.Seats = append(res.Seats, seat)
	}
	return res, rows.Err()
}

func (t *reservationTx) DeleteSeatAllocations(ctx context.Context, reservationID uuid.UUID) error {
	_, err := t.tx.Exec(ctx, `
		DELETE FROM seat_allocations WHERE reservation_id = $1
	`, reservationID)
	return err
}

func (t *reservationTx) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.ReservationStatus, chargeID *string) error {
	var result pgconn.CommandTag
	var err error
	if chargeID != nil {
		result, err = t.tx.Exec(ctx, `
			UPDATE reservations SET status = $2, charge_id = $3, updated_at = now() WHERE id = $1
		`, id, status, *chargeID)
	} else {
		result, err = t.tx.Exec(ctx, `
			UPDATE reservations SET status = $2, updated_at = now() WHERE id = $1
		`, id, status)
	}
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return errors.Wrapf(domain.ErrNotFound, "reservation %s", id)
	}
	return nil
}

func (t *reservationTx) DeleteReservation(ctx context.Context, id uuid.UUID) error {
	if err := t.DeleteSeatAllocations(ctx, id); err != nil {
		return err
	}
	_, err := t.tx.Exec(ctx, `DELETE FROM reservations WHERE id = $1`, id)
	return err
}

func (r *Repository) GetReservation(ctx context.Context, id uuid.UUID) (*domain.Reservation, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, user_id, showtime_id, status, total_price, session_id, session_url, charge_id, expires_at, created_at, updated_at
		FROM reservations WHERE id = $1
	`, id)
	res, err := scanReservation(row)
	if err != nil {
		return nil, err
	}
	if err := r.loadSeats(ctx, res); err != nil {
		return nil, err
	}
	return res, nil
}

func (r *Repository) ListUserReservations(ctx context.Context, userID uuid.UUID) ([]domain.Reservation, error) {
	return r.list(ctx, `
		SELECT id, user_id, showtime_id, status, total_price, session_id, session_url, charge_id, expires_at, created_at, updated_at
		FROM reservations WHERE user_id = $1 ORDER BY created_at DESC
	`, userID)
}

func (r *Repository) ListReservations(ctx context.Context) ([]domain.Reservation, error) {
	return r.list(ctx, `
		SELECT id, user_id, showtime_id, status, total_price, session_id, session_url, charge_id, expires_at, created_at, updated_at
		FROM reservations ORDER BY created_at DESC
	`)
}

func (r *Repository) OccupiedSeats(ctx context.Context, showtimeID int64) ([]domain.Seat, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT row_number, seat_number FROM seat_allocations
		WHERE showtime_id = $1 ORDER BY row_number, seat_number
	`, showtimeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var seats []domain.Seat
	for rows.Next() {
		var seat domain.Seat
		if err := rows.Scan(&seat.Row, &seat.Number); err != nil {
			return nil, err
		}
		seats = append(seats, seat)
	}
	return seats, rows.Err()
}

func (r *Repository) SetPaymentSession(ctx context.Context, id uuid.UUID, sessionID, sessionURL string) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE reservations SET session_id = $2, session_url = $3, updated_at = now() WHERE id = $1
	`, id, sessionID, sessionURL)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return errors.Wrapf(domain.ErrNotFound, "reservation %s", id)
	}
	return nil
}

func (r *Repository) ExpiredPending(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id FROM reservations WHERE status = 'PENDING' AND expires_at <= $1
	`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *Repository) Revenue(ctx context.Context) (float64, error) {
	var total float64
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(total_price), 0) FROM reservations WHERE status = 'COMPLETED'
	`).Scan(&total)
	return total, err
}

func (r *Repository) list(ctx context.Context, query string, args ...interface{}) ([]domain.Reservation, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reservations []domain.Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		reservations = append(reservations, *res)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range reservations {
		if err := r.loadSeats(ctx, &reservations[i]); err != nil {
			return nil, err
		}
	}
	return reservations, nil
}

func (r *Repository) loadSeats(ctx context.Context, res *domain.Reservation) error {
	rows, err := r.pool.Query(ctx, `
		SELECT row_number, seat_number FROM seat_allocations
		WHERE reservation_id = $1 ORDER BY row_number, seat_number
	`, res.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var seat domain.Seat
		if err := rows.Scan(&seat.Row, &seat.Number); err != nil {
			return err
		}
		res.Seats = append(res.Seats, seat)
	}
	return rows.Err()
}

func scanReservation(row pgx.Row) (*domain.Reservation, error) {
	var res domain.Reservation
	err := row.Scan(&res.ID, &res.UserID, &res.ShowtimeID, &res.Status, &res.TotalPrice,
		&res.SessionID, &res.SessionURL, &res.ChargeID, &res.ExpiresAt, &res.CreatedAt, &res.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.Wrap(domain.ErrNotFound, "reservation")
	}
	if err != nil {
		return nil, err
	}
	return &res, nil
}

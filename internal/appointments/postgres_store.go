package appointments

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/wolfman30/sameday-sync/internal/platform"
)

// DB abstracts the pgx query interface for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresStore persists synced appointments in Postgres.
type PostgresStore struct {
	db  DB
	now func() time.Time
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a Postgres-backed store.
func NewPostgresStore(db DB) *PostgresStore {
	if db == nil {
		panic("appointments: db required")
	}
	return &PostgresStore{db: db, now: func() time.Time { return time.Now().UTC() }}
}

const upsertSQL = `
	INSERT INTO synced_appointments (
		id, provider_id, platform, platform_appointment_id, service_name, appointment_at,
		duration_minutes, amount, is_available, status, customer_note, description,
		platform_data, platform_updated_at, synced_at, created_at, updated_at
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $15, $15)
	ON CONFLICT (provider_id, platform, platform_appointment_id) DO UPDATE SET
		service_name = EXCLUDED.service_name,
		appointment_at = EXCLUDED.appointment_at,
		duration_minutes = EXCLUDED.duration_minutes,
		amount = EXCLUDED.amount,
		is_available = EXCLUDED.is_available,
		status = EXCLUDED.status,
		customer_note = EXCLUDED.customer_note,
		description = EXCLUDED.description,
		platform_data = EXCLUDED.platform_data,
		platform_updated_at = EXCLUDED.platform_updated_at,
		synced_at = EXCLUDED.synced_at,
		updated_at = EXCLUDED.updated_at`

// Upsert writes each appointment with last-write-wins semantics on the natural key.
func (s *PostgresStore) Upsert(ctx context.Context, providerID, platformName string, appts []platform.RawAppointment) (int, error) {
	now := s.now()
	written := 0
	for _, raw := range appts {
		if strings.TrimSpace(raw.ID) == "" {
			continue
		}
		a := FromRaw(providerID, platformName, raw, now)
		payload, err := json.Marshal(a.PlatformData)
		if err != nil {
			return written, fmt.Errorf("appointments: marshal platform data for %s: %w", a.PlatformAppointmentID, err)
		}
		if _, err := s.db.Exec(ctx, upsertSQL,
			uuid.NewString(), a.ProviderID, a.Platform, a.PlatformAppointmentID, a.ServiceName, a.AppointmentAt,
			a.DurationMinutes, a.Amount, a.Available, a.Status, a.CustomerNote, a.Description,
			payload, a.PlatformUpdatedAt, now,
		); err != nil {
			return written, fmt.Errorf("appointments: upsert %s: %w", a.PlatformAppointmentID, err)
		}
		written++
	}
	return written, nil
}

const selectColumns = `
	SELECT id, provider_id, platform, platform_appointment_id, service_name, appointment_at,
		duration_minutes, amount, is_available, status, customer_note, description,
		platform_data, platform_updated_at, synced_at, created_at, updated_at
	FROM synced_appointments`

// ListAvailable implements Store.
func (s *PostgresStore) ListAvailable(ctx context.Context, providerID, platformName string) ([]SyncedAppointment, error) {
	return s.list(ctx, "", providerID, platformName, true)
}

// ListUnavailable implements Store.
func (s *PostgresStore) ListUnavailable(ctx context.Context, providerID, platformName string, window platform.DateWindow) ([]SyncedAppointment, error) {
	return s.list(ctx, `
		AND ($4::timestamptz IS NULL OR appointment_at >= $4)
		AND ($5::timestamptz IS NULL OR appointment_at < $5)`,
		providerID, platformName, false, boundOrNil(window.Start), boundOrNil(window.End))
}

func boundOrNil(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	t = t.UTC()
	return &t
}

// list selects rows of one availability for the pair. filter extends the
// WHERE clause with placeholders from $4 on.
func (s *PostgresStore) list(ctx context.Context, filter string, providerID, platformName string, available bool, extra ...any) ([]SyncedAppointment, error) {
	args := append([]any{providerID, platformName, available}, extra...)
	rows, err := s.db.Query(ctx, selectColumns+`
		WHERE provider_id = $1 AND platform = $2 AND is_available = $3`+filter+`
		ORDER BY appointment_at ASC, platform_appointment_id ASC`, args...)
	if err != nil {
		return nil, fmt.Errorf("appointments: list: %w", err)
	}
	defer rows.Close()

	var out []SyncedAppointment
	for rows.Next() {
		var (
			a       SyncedAppointment
			payload []byte
		)
		if err := rows.Scan(
			&a.ID, &a.ProviderID, &a.Platform, &a.PlatformAppointmentID, &a.ServiceName, &a.AppointmentAt,
			&a.DurationMinutes, &a.Amount, &a.Available, &a.Status, &a.CustomerNote, &a.Description,
			&payload, &a.PlatformUpdatedAt, &a.SyncedAt, &a.CreatedAt, &a.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("appointments: scan: %w", err)
		}
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &a.PlatformData); err != nil {
				return nil, fmt.Errorf("appointments: decode platform data for %s: %w", a.PlatformAppointmentID, err)
			}
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("appointments: iterate: %w", err)
	}
	return out, nil
}

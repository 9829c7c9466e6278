package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/wolfman30/sameday-sync/internal/platform"
)

// ErrSlotUnavailable is returned when booking a slot that is already taken.
var ErrSlotUnavailable = errors.New("catalog: slot unavailable")

const uniqueViolation = "23505"

// DB abstracts the pgx query interface for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository implements Repository on Postgres.
type PostgresRepository struct {
	db  DB
	now func() time.Time
}

var _ Repository = (*PostgresRepository)(nil)

// NewPostgresRepository creates a Postgres-backed catalog repository.
func NewPostgresRepository(db DB) *PostgresRepository {
	if db == nil {
		panic("catalog: db required")
	}
	return &PostgresRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// GetProvider loads a provider by id.
func (r *PostgresRepository) GetProvider(ctx context.Context, providerID string) (*Provider, error) {
	var p Provider
	err := r.db.QueryRow(ctx, `
		SELECT id, name, email, default_discount_percent, requires_service_approval, created_at
		FROM providers WHERE id = $1`, providerID,
	).Scan(&p.ID, &p.Name, &p.Email, &p.DefaultDiscountPercent, &p.RequiresServiceApproval, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: get provider: %w", err)
	}
	return &p, nil
}

const connectionColumns = `
	SELECT id, provider_id, platform, access_token, COALESCE(refresh_token, ''),
		COALESCE(merchant_id, ''), COALESCE(location_id, ''), is_active
	FROM platform_connections`

func scanConnection(row pgx.Row) (platform.Connection, error) {
	var c platform.Connection
	err := row.Scan(&c.ID, &c.ProviderID, &c.Platform, &c.AccessToken, &c.RefreshToken, &c.MerchantID, &c.LocationID, &c.Active)
	return c, err
}

// GetActiveConnection returns the active connection for the pair.
func (r *PostgresRepository) GetActiveConnection(ctx context.Context, providerID, platformName string) (*platform.Connection, error) {
	c, err := scanConnection(r.db.QueryRow(ctx, connectionColumns+`
		WHERE provider_id = $1 AND platform = $2 AND is_active
		ORDER BY updated_at DESC LIMIT 1`, providerID, platformName))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: get connection: %w", err)
	}
	return &c, nil
}

// ListActiveConnections returns every active connection.
func (r *PostgresRepository) ListActiveConnections(ctx context.Context) ([]platform.Connection, error) {
	rows, err := r.db.Query(ctx, connectionColumns+` WHERE is_active ORDER BY provider_id, platform`)
	if err != nil {
		return nil, fmt.Errorf("catalog: list connections: %w", err)
	}
	defer rows.Close()
	var out []platform.Connection
	for rows.Next() {
		c, err := scanConnection(rows)
		if err != nil {
			return nil, fmt.Errorf("catalog: scan connection: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: iterate connections: %w", err)
	}
	return out, nil
}

const serviceColumns = `
	SELECT id, provider_id, category_id, name, description, price, original_price, duration_minutes,
		is_available, sync_source, platform_service_id, sync_metadata, created_at, updated_at
	FROM services`

func scanService(row pgx.Row) (*Service, error) {
	var (
		s        Service
		metadata []byte
	)
	if err := row.Scan(&s.ID, &s.ProviderID, &s.CategoryID, &s.Name, &s.Description, &s.Price, &s.OriginalPrice,
		&s.DurationMinutes, &s.Available, &s.SyncSource, &s.PlatformServiceID, &metadata, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &s.SyncMetadata); err != nil {
			return nil, fmt.Errorf("decode sync metadata: %w", err)
		}
	}
	return &s, nil
}

func (r *PostgresRepository) oneService(ctx context.Context, op, where string, args ...any) (*Service, error) {
	s, err := scanService(r.db.QueryRow(ctx, serviceColumns+" "+where, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: %s: %w", op, err)
	}
	return s, nil
}

// GetService loads a service by id.
func (r *PostgresRepository) GetService(ctx context.Context, serviceID string) (*Service, error) {
	return r.oneService(ctx, "get service", `WHERE id = $1`, serviceID)
}

// FindSyncedService looks up the service produced by a signature group.
func (r *PostgresRepository) FindSyncedService(ctx context.Context, providerID, syncSource, signature string) (*Service, error) {
	return r.oneService(ctx, "find synced service",
		`WHERE provider_id = $1 AND sync_source = $2 AND platform_service_id = $3`, providerID, syncSource, signature)
}

// FindWatchedService looks up the oldest watched service with the exact name.
func (r *PostgresRepository) FindWatchedService(ctx context.Context, providerID, name string) (*Service, error) {
	return r.oneService(ctx, "find watched service",
		`WHERE provider_id = $1 AND name = $2 AND sync_source IS NULL ORDER BY created_at ASC LIMIT 1`, providerID, name)
}

// ConvertWatchedService implements Repository. The sync_source IS NULL guard
// makes the conversion single-shot.
func (r *PostgresRepository) ConvertWatchedService(ctx context.Context, serviceID, syncSource, signature string, metadata map[string]any) (bool, error) {
	payload, err := json.Marshal(metadata)
	if err != nil {
		return false, fmt.Errorf("catalog: marshal conversion metadata: %w", err)
	}
	tag, err := r.db.Exec(ctx, `
		UPDATE services
		SET sync_source = $2, platform_service_id = $3,
			sync_metadata = COALESCE(sync_metadata, '{}'::jsonb) || $4::jsonb, updated_at = $5
		WHERE id = $1 AND sync_source IS NULL`,
		serviceID, syncSource, signature, payload, r.now())
	if isUniqueViolation(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("catalog: convert watched service: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// CreateSyncedService implements Repository.
func (r *PostgresRepository) CreateSyncedService(ctx context.Context, svc *Service) (bool, error) {
	if svc.SyncSource == nil || svc.PlatformServiceID == nil {
		return false, fmt.Errorf("catalog: create synced service: lineage required")
	}
	if svc.ID == "" {
		svc.ID = uuid.NewString()
	}
	now := r.now()
	svc.CreatedAt, svc.UpdatedAt = now, now
	payload, err := json.Marshal(svc.SyncMetadata)
	if err != nil {
		return false, fmt.Errorf("catalog: marshal sync metadata: %w", err)
	}

	tag, err := r.db.Exec(ctx, `
		INSERT INTO services (id, provider_id, category_id, name, description, price, original_price,
			duration_minutes, is_available, sync_source, platform_service_id, sync_metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $13)
		ON CONFLICT (provider_id, sync_source, platform_service_id) DO NOTHING`,
		svc.ID, svc.ProviderID, svc.CategoryID, svc.Name, svc.Description, svc.Price, svc.OriginalPrice,
		svc.DurationMinutes, svc.Available, svc.SyncSource, svc.PlatformServiceID, payload, now)
	if err != nil {
		return false, fmt.Errorf("catalog: create synced service: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}

	existing, err := r.FindSyncedService(ctx, svc.ProviderID, *svc.SyncSource, *svc.PlatformServiceID)
	if err != nil {
		return false, err
	}
	*svc = *existing
	return false, nil
}

// ListBookableServices returns available services, optionally for one provider.
func (r *PostgresRepository) ListBookableServices(ctx context.Context, providerID string) ([]Service, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if providerID != "" {
		rows, err = r.db.Query(ctx, serviceColumns+` WHERE is_available AND provider_id = $1 ORDER BY name ASC`, providerID)
	} else {
		rows, err = r.db.Query(ctx, serviceColumns+` WHERE is_available ORDER BY name ASC`)
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: list bookable services: %w", err)
	}
	defer rows.Close()
	out := []Service{}
	for rows.Next() {
		s, err := scanService(rows)
		if err != nil {
			return nil, fmt.Errorf("catalog: scan service: %w", err)
		}
		out = append(out, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: iterate services: %w", err)
	}
	return out, nil
}

// SetServiceAvailability toggles is_available and returns the updated row.
func (r *PostgresRepository) SetServiceAvailability(ctx context.Context, serviceID string, available bool) (*Service, error) {
	s, err := scanService(r.db.QueryRow(ctx, `
		UPDATE services SET is_available = $2, updated_at = $3 WHERE id = $1
		RETURNING id, provider_id, category_id, name, description, price, original_price, duration_minutes,
			is_available, sync_source, platform_service_id, sync_metadata, created_at, updated_at`,
		serviceID, available, r.now()))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: set service availability: %w", err)
	}
	return s, nil
}

// InsertTimeSlot implements Repository.
func (r *PostgresRepository) InsertTimeSlot(ctx context.Context, slot *TimeSlot) (bool, error) {
	if slot.ID == "" {
		slot.ID = uuid.NewString()
	}
	now := r.now()
	slot.CreatedAt = now
	payload, err := json.Marshal(slot.SyncMetadata)
	if err != nil {
		return false, fmt.Errorf("catalog: marshal slot metadata: %w", err)
	}
	tag, err := r.db.Exec(ctx, `
		INSERT INTO time_slots (id, service_id, slot_date, start_at, end_at, is_available,
			platform_appointment_id, sync_metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		ON CONFLICT (service_id, platform_appointment_id) DO NOTHING`,
		slot.ID, slot.ServiceID, slot.SlotDate, slot.StartAt, slot.EndAt, slot.Available,
		slot.PlatformAppointmentID, payload, now)
	if err != nil {
		return false, fmt.Errorf("catalog: insert time slot: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// RetireSlots implements Repository.
func (r *PostgresRepository) RetireSlots(ctx context.Context, providerID, syncSource string, platformAppointmentIDs []string) (int, error) {
	if len(platformAppointmentIDs) == 0 {
		return 0, nil
	}
	tag, err := r.db.Exec(ctx, `
		UPDATE time_slots AS ts SET is_available = false, updated_at = $4
		FROM services AS s
		WHERE ts.service_id = s.id AND s.provider_id = $1 AND s.sync_source = $2
			AND ts.platform_appointment_id = ANY($3) AND ts.is_available`,
		providerID, syncSource, platformAppointmentIDs, r.now())
	if err != nil {
		return 0, fmt.Errorf("catalog: retire slots: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// ListAvailableSlots returns open slots for a service starting at or after from.
func (r *PostgresRepository) ListAvailableSlots(ctx context.Context, serviceID string, from time.Time) ([]TimeSlot, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, service_id, slot_date, start_at, end_at, is_available, platform_appointment_id, created_at
		FROM time_slots
		WHERE service_id = $1 AND is_available AND start_at >= $2
		ORDER BY start_at ASC`, serviceID, from)
	if err != nil {
		return nil, fmt.Errorf("catalog: list slots: %w", err)
	}
	defer rows.Close()
	out := []TimeSlot{}
	for rows.Next() {
		var s TimeSlot
		if err := rows.Scan(&s.ID, &s.ServiceID, &s.SlotDate, &s.StartAt, &s.EndAt, &s.Available, &s.PlatformAppointmentID, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("catalog: scan slot: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: iterate slots: %w", err)
	}
	return out, nil
}

// BookSlot flags an open slot unavailable. Slots of services that are not
// bookable (pending approval or rejected) cannot be booked.
func (r *PostgresRepository) BookSlot(ctx context.Context, slotID string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE time_slots AS ts SET is_available = false, updated_at = $2
		FROM services AS s
		WHERE ts.id = $1 AND ts.is_available AND ts.service_id = s.id AND s.is_available`, slotID, r.now())
	if err != nil {
		return fmt.Errorf("catalog: book slot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSlotUnavailable
	}
	return nil
}

// GetOrCreateCategory implements Repository. The unique name constraint
// resolves concurrent creators to a single row.
func (r *PostgresRepository) GetOrCreateCategory(ctx context.Context, name, icon string) (*Category, error) {
	if _, err := r.db.Exec(ctx, `
		INSERT INTO categories (id, name, icon, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (name) DO NOTHING`, uuid.NewString(), name, icon, r.now()); err != nil {
		return nil, fmt.Errorf("catalog: create category: %w", err)
	}
	var c Category
	if err := r.db.QueryRow(ctx, `SELECT id, name, icon, created_at FROM categories WHERE name = $1`, name).
		Scan(&c.ID, &c.Name, &c.Icon, &c.CreatedAt); err != nil {
		return nil, fmt.Errorf("catalog: load category: %w", err)
	}
	return &c, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

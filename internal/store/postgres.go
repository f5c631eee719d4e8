package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"fieldops/internal/model"
)

// Postgres persists the dispatch state in PostgreSQL through the pgx stdlib
// driver. Skill sets, technician lists, and rule conditions are stored as
// JSONB; route dates are YYYY-MM-DD text so range queries compare lexically.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &Postgres{db: db}, nil
}

// EnsureSchema creates the tables when they do not exist yet. A dev helper,
// mirroring how deployments bootstrap before real migrations take over.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS work_orders (
			id TEXT PRIMARY KEY,
			org_id TEXT NOT NULL,
			title TEXT,
			type TEXT,
			lat DOUBLE PRECISION,
			lng DOUBLE PRECISION,
			required_skills JSONB,
			priority TEXT,
			status TEXT NOT NULL,
			scheduled_start TIMESTAMPTZ,
			scheduled_end TIMESTAMPTZ,
			estimated_duration_min INT NOT NULL,
			assigned_technician_ids JSONB,
			sequence_index INT NOT NULL DEFAULT 0,
			source_ticket_id TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS work_orders_ticket ON work_orders (org_id, source_ticket_id) WHERE source_ticket_id IS NOT NULL`,
		`CREATE TABLE IF NOT EXISTS technicians (
			id TEXT NOT NULL,
			org_id TEXT NOT NULL,
			name TEXT,
			lat DOUBLE PRECISION,
			lng DOUBLE PRECISION,
			skills JSONB,
			availability TEXT NOT NULL,
			max_jobs_per_day INT NOT NULL,
			PRIMARY KEY (org_id, id)
		)`,
		`CREATE TABLE IF NOT EXISTS assignments (
			id TEXT PRIMARY KEY,
			org_id TEXT NOT NULL,
			work_order_id TEXT NOT NULL,
			technician_id TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS routes (
			id TEXT PRIMARY KEY,
			org_id TEXT NOT NULL,
			technician_id TEXT NOT NULL,
			route_date TEXT NOT NULL,
			work_order_ids JSONB,
			total_distance_m DOUBLE PRECISION NOT NULL,
			total_duration_min DOUBLE PRECISION NOT NULL,
			status TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (org_id, technician_id, route_date)
		)`,
		`CREATE TABLE IF NOT EXISTS assignment_rules (
			id TEXT PRIMARY KEY,
			org_id TEXT NOT NULL,
			name TEXT NOT NULL,
			priority INT NOT NULL DEFAULT 0,
			active BOOLEAN NOT NULL DEFAULT true,
			definition JSONB NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS rotations (
			org_id TEXT PRIMARY KEY,
			last_technician_id TEXT NOT NULL
		)`,
	}
	for _, s := range stmts {
		if _, err := p.db.ExecContext(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

func coordParts(c *model.Coordinate) (any, any) {
	if c == nil {
		return nil, nil
	}
	return c.Lat, c.Lng
}

func coordFrom(lat, lng sql.NullFloat64) *model.Coordinate {
	if !lat.Valid || !lng.Valid {
		return nil
	}
	return &model.Coordinate{Lat: lat.Float64, Lng: lng.Float64}
}

func asJSON(v any) []byte {
	b, _ := json.Marshal(v)
	return b
}

func (p *Postgres) CreateWorkOrder(ctx context.Context, wo *model.WorkOrder) error {
	lat, lng := coordParts(wo.Location)
	_, err := p.db.ExecContext(ctx, `INSERT INTO work_orders
		(id, org_id, title, type, lat, lng, required_skills, priority, status, scheduled_start, scheduled_end, estimated_duration_min, assigned_technician_ids, sequence_index, source_ticket_id, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		wo.ID, wo.OrgID, wo.Title, wo.Type, lat, lng, asJSON(wo.RequiredSkills), string(wo.Priority), string(wo.Status),
		wo.ScheduledStart, wo.ScheduledEnd, wo.EstimatedDurationMin, asJSON(wo.AssignedTechnicianIDs), wo.SequenceIndex,
		nullIfEmpty(wo.SourceTicketID), wo.CreatedAt)
	return err
}

func (p *Postgres) UpdateWorkOrder(ctx context.Context, wo *model.WorkOrder) error {
	res, err := p.db.ExecContext(ctx, `UPDATE work_orders SET
		status=$3, scheduled_start=$4, scheduled_end=$5, assigned_technician_ids=$6, sequence_index=$7
		WHERE org_id=$1 AND id=$2`,
		wo.OrgID, wo.ID, string(wo.Status), wo.ScheduledStart, wo.ScheduledEnd, asJSON(wo.AssignedTechnicianIDs), wo.SequenceIndex)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

const workOrderCols = `id, org_id, title, type, lat, lng, required_skills, priority, status, scheduled_start, scheduled_end, estimated_duration_min, assigned_technician_ids, sequence_index, source_ticket_id, created_at`

func scanWorkOrder(scan func(...any) error) (*model.WorkOrder, error) {
	var wo model.WorkOrder
	var lat, lng sql.NullFloat64
	var skills, techIDs []byte
	var prio, status string
	var start, end sql.NullTime
	var ticket sql.NullString
	if err := scan(&wo.ID, &wo.OrgID, &wo.Title, &wo.Type, &lat, &lng, &skills, &prio, &status,
		&start, &end, &wo.EstimatedDurationMin, &techIDs, &wo.SequenceIndex, &ticket, &wo.CreatedAt); err != nil {
		return nil, err
	}
	wo.Location = coordFrom(lat, lng)
	_ = json.Unmarshal(skills, &wo.RequiredSkills)
	_ = json.Unmarshal(techIDs, &wo.AssignedTechnicianIDs)
	wo.Priority = model.Priority(prio)
	wo.Status = model.WorkOrderStatus(status)
	if start.Valid {
		t := start.Time
		wo.ScheduledStart = &t
	}
	if end.Valid {
		t := end.Time
		wo.ScheduledEnd = &t
	}
	wo.SourceTicketID = ticket.String
	return &wo, nil
}

func (p *Postgres) GetWorkOrder(ctx context.Context, orgID, id string) (*model.WorkOrder, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+workOrderCols+` FROM work_orders WHERE org_id=$1 AND id=$2`, orgID, id)
	wo, err := scanWorkOrder(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return wo, err
}

func (p *Postgres) GetWorkOrderByTicket(ctx context.Context, orgID, ticketID string) (*model.WorkOrder, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+workOrderCols+` FROM work_orders WHERE org_id=$1 AND source_ticket_id=$2`, orgID, ticketID)
	wo, err := scanWorkOrder(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return wo, err
}

func (p *Postgres) ListWorkOrdersForDate(ctx context.Context, orgID, date string, status model.WorkOrderStatus) ([]*model.WorkOrder, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT `+workOrderCols+` FROM work_orders
		WHERE org_id=$1 AND ($2 = '' OR status=$2) AND ($3 = '' OR to_char(scheduled_start AT TIME ZONE 'UTC', 'YYYY-MM-DD') = $3)
		ORDER BY id`, orgID, string(status), date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []*model.WorkOrder{}
	for rows.Next() {
		wo, err := scanWorkOrder(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, wo)
	}
	return out, rows.Err()
}

func (p *Postgres) UpsertTechnician(ctx context.Context, orgID string, tech *model.Technician) error {
	lat, lng := coordParts(tech.Location)
	_, err := p.db.ExecContext(ctx, `INSERT INTO technicians (id, org_id, name, lat, lng, skills, availability, max_jobs_per_day)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (org_id, id) DO UPDATE SET name=$3, lat=$4, lng=$5, skills=$6, availability=$7, max_jobs_per_day=$8`,
		tech.ID, orgID, tech.Name, lat, lng, asJSON(tech.Skills), string(tech.Availability), tech.MaxJobsPerDay)
	return err
}

func (p *Postgres) ListAvailableTechnicians(ctx context.Context, orgID string) ([]*model.Technician, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT t.id, t.name, t.lat, t.lng, t.skills, t.availability, t.max_jobs_per_day,
		(SELECT count(*) FROM assignments a JOIN work_orders w ON w.id = a.work_order_id
			WHERE a.org_id = t.org_id AND a.technician_id = t.id AND w.status IN ('assigned','scheduled','in_progress')) AS active_jobs
		FROM technicians t WHERE t.org_id=$1 AND t.availability='available' ORDER BY t.id`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []*model.Technician{}
	for rows.Next() {
		var tech model.Technician
		var lat, lng sql.NullFloat64
		var skills []byte
		var avail string
		if err := rows.Scan(&tech.ID, &tech.Name, &lat, &lng, &skills, &avail, &tech.MaxJobsPerDay, &tech.ActiveJobs); err != nil {
			return nil, err
		}
		tech.Location = coordFrom(lat, lng)
		_ = json.Unmarshal(skills, &tech.Skills)
		tech.Availability = model.AvailabilityStatus(avail)
		out = append(out, &tech)
	}
	return out, rows.Err()
}

func (p *Postgres) UpdateTechnicianTelemetry(ctx context.Context, orgID, id string, loc *model.Coordinate, availability model.AvailabilityStatus) error {
	lat, lng := coordParts(loc)
	res, err := p.db.ExecContext(ctx, `UPDATE technicians SET
		lat = COALESCE($3, lat), lng = COALESCE($4, lng),
		availability = CASE WHEN $5 = '' THEN availability ELSE $5 END
		WHERE org_id=$1 AND id=$2`, orgID, id, lat, lng, string(availability))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) CreateAssignment(ctx context.Context, a *model.Assignment) error {
	_, err := p.db.ExecContext(ctx, `INSERT INTO assignments (id, org_id, work_order_id, technician_id, created_at)
		VALUES ($1,$2,$3,$4,$5)`, a.ID, a.OrgID, a.WorkOrderID, a.TechnicianID, a.CreatedAt)
	return err
}

func (p *Postgres) ReplaceAssignments(ctx context.Context, wo *model.WorkOrder) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM assignments WHERE org_id=$1 AND work_order_id=$2`, wo.OrgID, wo.ID); err != nil {
		return err
	}
	for _, techID := range wo.AssignedTechnicianIDs {
		if _, err := tx.ExecContext(ctx, `INSERT INTO assignments (id, org_id, work_order_id, technician_id)
			VALUES ($1,$2,$3,$4)`, uuid.New().String(), wo.OrgID, wo.ID, techID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (p *Postgres) CountActiveAssignments(ctx context.Context, orgID, technicianID string) (int, error) {
	var n int
	err := p.db.QueryRowContext(ctx, `SELECT count(*) FROM assignments a JOIN work_orders w ON w.id = a.work_order_id
		WHERE a.org_id=$1 AND a.technician_id=$2 AND w.status IN ('assigned','scheduled','in_progress')`, orgID, technicianID).Scan(&n)
	return n, err
}

func (p *Postgres) SaveRoute(ctx context.Context, r *model.Route) error {
	_, err := p.db.ExecContext(ctx, `INSERT INTO routes (id, org_id, technician_id, route_date, work_order_ids, total_distance_m, total_duration_min, status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (org_id, technician_id, route_date) DO UPDATE SET
			id=$1, work_order_ids=$5, total_distance_m=$6, total_duration_min=$7, status=$8, created_at=$9`,
		r.ID, r.OrgID, r.TechnicianID, r.Date, asJSON(r.WorkOrderIDs), r.TotalDistanceM, r.TotalDuration, string(r.Status), r.CreatedAt)
	return err
}

func (p *Postgres) ListRoutes(ctx context.Context, orgID, fromDate, toDate string) ([]*model.Route, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id, technician_id, route_date, work_order_ids, total_distance_m, total_duration_min, status, created_at
		FROM routes WHERE org_id=$1 AND ($2 = '' OR route_date >= $2) AND ($3 = '' OR route_date <= $3)
		ORDER BY route_date, technician_id`, orgID, fromDate, toDate)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []*model.Route{}
	for rows.Next() {
		var r model.Route
		var ids []byte
		var status string
		if err := rows.Scan(&r.ID, &r.TechnicianID, &r.Date, &ids, &r.TotalDistanceM, &r.TotalDuration, &status, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.OrgID = orgID
		_ = json.Unmarshal(ids, &r.WorkOrderIDs)
		r.Status = model.RouteStatus(status)
		out = append(out, &r)
	}
	return out, rows.Err()
}

func (p *Postgres) SaveRule(ctx context.Context, r *model.AssignmentRule) error {
	_, err := p.db.ExecContext(ctx, `INSERT INTO assignment_rules (id, org_id, name, priority, active, definition)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (id) DO UPDATE SET name=$3, priority=$4, active=$5, definition=$6`,
		r.ID, r.OrgID, r.Name, r.Priority, r.Active, asJSON(r))
	return err
}

func (p *Postgres) ListActiveRules(ctx context.Context, orgID string) ([]*model.AssignmentRule, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT definition FROM assignment_rules WHERE org_id=$1 AND active ORDER BY priority DESC, name`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []*model.AssignmentRule{}
	for rows.Next() {
		var def []byte
		if err := rows.Scan(&def); err != nil {
			return nil, err
		}
		var r model.AssignmentRule
		if err := json.Unmarshal(def, &r); err != nil {
			return nil, err
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

func (p *Postgres) GetRotation(ctx context.Context, orgID string) (string, error) {
	var id string
	err := p.db.QueryRowContext(ctx, `SELECT last_technician_id FROM rotations WHERE org_id=$1`, orgID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return id, err
}

func (p *Postgres) SaveRotation(ctx context.Context, orgID, technicianID string) error {
	_, err := p.db.ExecContext(ctx, `INSERT INTO rotations (org_id, last_technician_id) VALUES ($1,$2)
		ON CONFLICT (org_id) DO UPDATE SET last_technician_id=$2`, orgID, technicianID)
	return err
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

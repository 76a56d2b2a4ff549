package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"wavepick/internal/model"
	"wavepick/internal/opt"
)

//go:embed migrations/*.sql
var migrations embed.FS

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

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

func (p *Postgres) Close() error { return p.db.Close() }

// Migrate applies the embedded SQL files in name order. Every statement is
// idempotent, so running it on an up-to-date schema is a no-op.
func (p *Postgres) Migrate(ctx context.Context) error {
	names, err := fs.Glob(migrations, "migrations/*.sql")
	if err != nil {
		return err
	}
	sort.Strings(names)
	for _, name := range names {
		body, err := migrations.ReadFile(name)
		if err != nil {
			return err
		}
		if _, err := p.db.ExecContext(ctx, string(body)); err != nil {
			return fmt.Errorf("migrate %s: %w", name, err)
		}
	}
	return nil
}

func (p *Postgres) CreateInstance(ctx context.Context, tenantID string, in model.InstanceIn) (model.InstanceInfo, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return model.InstanceInfo{}, err
	}
	info := model.InstanceInfo{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		Name:      in.Name,
		NOrders:   len(in.Orders),
		NItems:    in.NItems,
		NAisles:   len(in.Aisles),
		LB:        in.LB,
		UB:        in.UB,
		CreatedAt: time.Now().UTC(),
	}
	_, err = p.db.ExecContext(ctx, `INSERT INTO instances (id, tenant_id, name, n_orders, n_items, n_aisles, lb, ub, body, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		info.ID, tenantID, nullIfEmpty(in.Name), info.NOrders, info.NItems, info.NAisles, info.LB, info.UB, string(body), info.CreatedAt)
	if err != nil {
		return model.InstanceInfo{}, err
	}
	return info, nil
}

const instanceCols = `id, tenant_id, COALESCE(name,''), n_orders, n_items, n_aisles, lb, ub, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanInstanceInfo(row scanner, extra ...any) (model.InstanceInfo, error) {
	var i model.InstanceInfo
	dest := append([]any{&i.ID, &i.TenantID, &i.Name, &i.NOrders, &i.NItems, &i.NAisles, &i.LB, &i.UB, &i.CreatedAt}, extra...)
	err := row.Scan(dest...)
	return i, err
}

func (p *Postgres) GetInstance(ctx context.Context, tenantID, id string) (model.InstanceRecord, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+instanceCols+`, body FROM instances WHERE tenant_id=$1 AND id=$2`, tenantID, id)
	var body []byte
	info, err := scanInstanceInfo(row, &body)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.InstanceRecord{}, ErrNotFound
		}
		return model.InstanceRecord{}, err
	}
	rec := model.InstanceRecord{InstanceInfo: info}
	if err := json.Unmarshal(body, &rec.Body); err != nil {
		return model.InstanceRecord{}, fmt.Errorf("decode instance %s: %w", id, err)
	}
	return rec, nil
}

func (p *Postgres) ListInstances(ctx context.Context, tenantID, cursor string, limit int) ([]model.InstanceInfo, string, error) {
	limit = clampLimit(limit)
	rows, err := p.db.QueryContext(ctx, `SELECT `+instanceCols+` FROM instances
        WHERE tenant_id=$1 AND ($2 = '' OR id > $2) ORDER BY id LIMIT $3`, tenantID, cursor, limit)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []model.InstanceInfo{}
	for rows.Next() {
		info, err := scanInstanceInfo(rows)
		if err != nil {
			return nil, "", err
		}
		out = append(out, info)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}
	next := ""
	if len(out) == limit {
		next = out[len(out)-1].ID
	}
	return out, next, nil
}

func (p *Postgres) CreateRun(ctx context.Context, run model.Run) (model.Run, error) {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	_, err := p.db.ExecContext(ctx, `INSERT INTO runs (id, tenant_id, instance_id, status, time_budget_ms, callback_url, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		run.ID, run.TenantID, run.InstanceID, run.Status, run.TimeBudgetMs, nullIfEmpty(run.CallbackURL), run.CreatedAt)
	if err != nil {
		return model.Run{}, err
	}
	return run, nil
}

func (p *Postgres) UpdateRun(ctx context.Context, run model.Run) error {
	res, err := p.db.ExecContext(ctx, `UPDATE runs SET status=$3, orders=$4, aisles=$5, total_units=$6, objective=$7,
        feasible=$8, iterations=$9, stop_reason=$10, error=$11, finished_at=$12
        WHERE tenant_id=$1 AND id=$2`,
		run.TenantID, run.ID, run.Status, jsonInts(run.Orders), jsonInts(run.Aisles), run.TotalUnits, run.Objective,
		run.Feasible, run.Iterations, nullIfEmpty(run.StopReason), nullIfEmpty(run.Error), run.FinishedAt)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

const runCols = `id, tenant_id, instance_id, status, time_budget_ms, orders, aisles, total_units, objective, feasible,
    iterations, COALESCE(stop_reason,''), COALESCE(error,''), COALESCE(callback_url,''), created_at, finished_at`

func scanRun(row scanner) (model.Run, error) {
	var r model.Run
	var orders, aisles []byte
	var finished sql.NullTime
	err := row.Scan(&r.ID, &r.TenantID, &r.InstanceID, &r.Status, &r.TimeBudgetMs, &orders, &aisles, &r.TotalUnits,
		&r.Objective, &r.Feasible, &r.Iterations, &r.StopReason, &r.Error, &r.CallbackURL, &r.CreatedAt, &finished)
	if err != nil {
		return model.Run{}, err
	}
	if len(orders) > 0 {
		_ = json.Unmarshal(orders, &r.Orders)
	}
	if len(aisles) > 0 {
		_ = json.Unmarshal(aisles, &r.Aisles)
	}
	if finished.Valid {
		t := finished.Time
		r.FinishedAt = &t
	}
	return r, nil
}

func (p *Postgres) GetRun(ctx context.Context, tenantID, id string) (model.Run, error) {
	r, err := scanRun(p.db.QueryRowContext(ctx, `SELECT `+runCols+` FROM runs WHERE tenant_id=$1 AND id=$2`, tenantID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Run{}, ErrNotFound
	}
	return r, err
}

func (p *Postgres) ListRuns(ctx context.Context, tenantID, instanceID, cursor string, limit int) ([]model.Run, string, error) {
	limit = clampLimit(limit)
	rows, err := p.db.QueryContext(ctx, `SELECT `+runCols+` FROM runs
        WHERE tenant_id=$1 AND ($2 = '' OR instance_id=$2) AND ($3 = '' OR id > $3) ORDER BY id LIMIT $4`,
		tenantID, instanceID, cursor, limit)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []model.Run{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, "", err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}
	next := ""
	if len(out) == limit {
		next = out[len(out)-1].ID
	}
	return out, next, nil
}

func (p *Postgres) SaveRunMetrics(ctx context.Context, tenantID, runID string, m opt.Metrics) error {
	js, err := json.Marshal(m)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `INSERT INTO run_metrics (run_id, tenant_id, metrics) VALUES ($1,$2,$3)
        ON CONFLICT (run_id) DO UPDATE SET metrics=$3, created_at=now()`, runID, tenantID, string(js))
	return err
}

func (p *Postgres) GetRunMetrics(ctx context.Context, tenantID, runID string) (opt.Metrics, error) {
	var js []byte
	err := p.db.QueryRowContext(ctx, `SELECT metrics FROM run_metrics WHERE tenant_id=$1 AND run_id=$2`, tenantID, runID).Scan(&js)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return opt.Metrics{}, ErrNotFound
		}
		return opt.Metrics{}, err
	}
	var m opt.Metrics
	if err := json.Unmarshal(js, &m); err != nil {
		return opt.Metrics{}, err
	}
	return m, nil
}

func (p *Postgres) GetOptimizerConfig(ctx context.Context, tenantID string) (map[string]any, error) {
	row := p.db.QueryRowContext(ctx, `SELECT config FROM optimizer_config WHERE tenant_id=$1`, tenantID)
	var js []byte
	if err := row.Scan(&js); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	var cfg map[string]any
	if err := json.Unmarshal(js, &cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (p *Postgres) SaveOptimizerConfig(ctx context.Context, tenantID string, cfg map[string]any) error {
	js, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `INSERT INTO optimizer_config (tenant_id, config, updated_at) VALUES ($1, $2, now())
        ON CONFLICT (tenant_id) DO UPDATE SET config=$2, updated_at=now()`, tenantID, string(js))
	return err
}

func (p *Postgres) EnqueueCallback(ctx context.Context, cb model.Callback) (string, error) {
	id := uuid.New().String()
	_, err := p.db.ExecContext(ctx, `INSERT INTO run_callbacks (id, tenant_id, run_id, event_type, url, secret, payload, status, attempts, next_attempt_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,'pending',0,now())`,
		id, cb.TenantID, cb.RunID, cb.EventType, cb.URL, nullIfEmpty(cb.Secret), cb.Payload)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (p *Postgres) FetchDueCallbacks(ctx context.Context, limit int) ([]model.Callback, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id, tenant_id, run_id, event_type, url, COALESCE(secret,''), payload, status, attempts, next_attempt_at
        FROM run_callbacks WHERE status='pending' AND next_attempt_at <= now() ORDER BY next_attempt_at ASC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Callback{}
	for rows.Next() {
		var c model.Callback
		if err := rows.Scan(&c.ID, &c.TenantID, &c.RunID, &c.EventType, &c.URL, &c.Secret, &c.Payload, &c.Status, &c.Attempts, &c.NextAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (p *Postgres) MarkCallback(ctx context.Context, id string, success bool, nextAttemptAt time.Time, lastError string, responseCode int) error {
	if success {
		_, err := p.db.ExecContext(ctx, `UPDATE run_callbacks SET status='delivered', attempts=attempts+1, response_code=$2,
            delivered_at=now(), updated_at=now() WHERE id=$1`, id, responseCode)
		return err
	}
	_, err := p.db.ExecContext(ctx, `UPDATE run_callbacks SET attempts=attempts+1, last_error=$2, response_code=$3,
        next_attempt_at=$4, updated_at=now() WHERE id=$1`, id, nullIfEmpty(lastError), responseCode, nextAttemptAt)
	return err
}

func (p *Postgres) FailCallback(ctx context.Context, id string, lastError string, responseCode int) error {
	_, err := p.db.ExecContext(ctx, `UPDATE run_callbacks SET status='failed', attempts=attempts+1, last_error=$2,
        response_code=$3, updated_at=now() WHERE id=$1`, id, nullIfEmpty(lastError), responseCode)
	return err
}

func (p *Postgres) ListCallbacks(ctx context.Context, tenantID, runID string) ([]model.Callback, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id, tenant_id, run_id, event_type, url, status, attempts,
        COALESCE(last_error,''), COALESCE(response_code,0), next_attempt_at
        FROM run_callbacks WHERE tenant_id=$1 AND ($2 = '' OR run_id=$2) ORDER BY updated_at`, tenantID, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Callback{}
	for rows.Next() {
		var c model.Callback
		if err := rows.Scan(&c.ID, &c.TenantID, &c.RunID, &c.EventType, &c.URL, &c.Status, &c.Attempts, &c.LastError, &c.LastCode, &c.NextAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// jsonInts encodes an id list for a JSONB column; nil stays SQL NULL.
func jsonInts(ids []int) any {
	if ids == nil {
		return nil
	}
	b, _ := json.Marshal(ids)
	return string(b)
}

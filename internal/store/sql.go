package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"fleetroute/internal/model"
	"fleetroute/internal/opt"
)

const (
	DriverPostgres = "pgx"
	DriverSQLite   = "sqlite"
)

//go:embed schema.sql
var schema string

// SQL is a database/sql backed Store. Postgres is reached through the pgx
// stdlib driver and SQLite through modernc.org/sqlite; queries are written
// once with '?' placeholders and rebound for Postgres.
type SQL struct {
	db     *sql.DB
	driver string
}

// NewSQL opens the database, verifies connectivity and applies the schema.
func NewSQL(ctx context.Context, driver, dsn string) (*SQL, error) {
	switch driver {
	case DriverPostgres, DriverSQLite:
	case "postgres":
		driver = DriverPostgres
	default:
		return nil, errors.Errorf("unsupported database driver %q", driver)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", driver)
	}
	if driver == DriverSQLite {
		// one connection keeps ":memory:" databases shared and serializes writers
		db.SetMaxOpenConns(1)
	}
	s := &SQL{db: db, driver: driver}
	if err := s.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrapf(err, "ping %s", driver)
	}
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQL) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *SQL) Close() error { return s.db.Close() }

// Migrate applies the embedded schema. Every statement is idempotent.
func (s *SQL) Migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, "apply schema")
		}
	}
	return nil
}

// rebind turns '?' placeholders into $1..$n for Postgres.
func (s *SQL) rebind(q string) string {
	if s.driver != DriverPostgres {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQL) exec(ctx context.Context, q string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.rebind(q), args...)
}

func (s *SQL) query(ctx context.Context, q string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, s.rebind(q), args...)
}

func (s *SQL) queryRow(ctx context.Context, q string, args ...any) *sql.Row {
	return s.db.QueryRowContext(ctx, s.rebind(q), args...)
}

func (s *SQL) SaveResult(ctx context.Context, tenantID string, res opt.Result) (model.StoredResult, error) {
	sr := model.StoredResult{ID: newID(), TenantID: tenantID, CreatedAt: time.Now().UTC().Truncate(time.Millisecond), Result: res}
	body, err := json.Marshal(res)
	if err != nil {
		return model.StoredResult{}, errors.Wrap(err, "encode result")
	}
	_, err = s.exec(ctx, `INSERT INTO optimization_results (id, tenant_id, created_at, routes, unassigned, total_cost, total_dist, result)
		VALUES (?,?,?,?,?,?,?,?)`,
		sr.ID, tenantID, sr.CreatedAt.UnixMilli(), len(res.Routes), len(res.Unassigned), res.TotalCost, res.TotalDistance, string(body))
	if err != nil {
		return model.StoredResult{}, errors.Wrap(err, "insert result")
	}
	return sr, nil
}

func (s *SQL) GetResult(ctx context.Context, tenantID, id string) (model.StoredResult, error) {
	var created int64
	var body string
	err := s.queryRow(ctx, `SELECT created_at, result FROM optimization_results WHERE tenant_id=? AND id=?`, tenantID, id).Scan(&created, &body)
	if errors.Is(err, sql.ErrNoRows) {
		return model.StoredResult{}, ErrNotFound
	}
	if err != nil {
		return model.StoredResult{}, errors.Wrap(err, "select result")
	}
	sr := model.StoredResult{ID: id, TenantID: tenantID, CreatedAt: time.UnixMilli(created).UTC()}
	if err := json.Unmarshal([]byte(body), &sr.Result); err != nil {
		return model.StoredResult{}, errors.Wrap(err, "decode result")
	}
	return sr, nil
}

func (s *SQL) ListResults(ctx context.Context, tenantID, cursor string, limit int) ([]model.ResultSummary, string, error) {
	limit = clampLimit(limit)
	rows, err := s.query(ctx, `SELECT id, created_at, routes, unassigned, total_cost, total_dist FROM optimization_results
		WHERE tenant_id=? AND id > ? ORDER BY id LIMIT ?`, tenantID, cursor, limit)
	if err != nil {
		return nil, "", errors.Wrap(err, "list results")
	}
	defer rows.Close()
	out := []model.ResultSummary{}
	for rows.Next() {
		var r model.ResultSummary
		var created int64
		if err := rows.Scan(&r.ID, &created, &r.Routes, &r.Unassigned, &r.TotalCost, &r.TotalDistance); err != nil {
			return nil, "", errors.Wrap(err, "scan result")
		}
		r.CreatedAt = time.UnixMilli(created).UTC()
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

func (s *SQL) GetOptimizerConfig(ctx context.Context, tenantID string) (model.OptimizerOptions, bool, error) {
	var js string
	err := s.queryRow(ctx, `SELECT config FROM optimizer_config WHERE tenant_id=?`, tenantID).Scan(&js)
	if errors.Is(err, sql.ErrNoRows) {
		return model.OptimizerOptions{}, false, nil
	}
	if err != nil {
		return model.OptimizerOptions{}, false, errors.Wrap(err, "select optimizer config")
	}
	var cfg model.OptimizerOptions
	if err := json.Unmarshal([]byte(js), &cfg); err != nil {
		return model.OptimizerOptions{}, false, errors.Wrap(err, "decode optimizer config")
	}
	return cfg, true, nil
}

func (s *SQL) SaveOptimizerConfig(ctx context.Context, tenantID string, cfg model.OptimizerOptions) error {
	js, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	_, err = s.exec(ctx, `INSERT INTO optimizer_config (tenant_id, config, updated_at) VALUES (?,?,?)
		ON CONFLICT (tenant_id) DO UPDATE SET config=excluded.config, updated_at=excluded.updated_at`,
		tenantID, string(js), time.Now().UnixMilli())
	return errors.Wrap(err, "save optimizer config")
}

func (s *SQL) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
	id := uuid.New().String()
	ev, _ := json.Marshal(req.Events)
	_, err := s.exec(ctx, `INSERT INTO subscriptions (id, tenant_id, url, events, secret) VALUES (?,?,?,?,?)`, id, req.TenantID, req.URL, string(ev), req.Secret)
	if err != nil {
		return model.Subscription{}, errors.Wrap(err, "insert subscription")
	}
	return model.Subscription{ID: id, TenantID: req.TenantID, URL: req.URL, Events: req.Events, Secret: req.Secret}, nil
}

// GetSubscriptionsForEvent filters in Go; event lists are stored as JSON text
// so the same query works on both drivers.
func (s *SQL) GetSubscriptionsForEvent(ctx context.Context, tenantID, eventType string) ([]model.Subscription, error) {
	subs, err := s.subscriptions(ctx, `SELECT id, url, secret, events FROM subscriptions WHERE tenant_id=? ORDER BY id`, tenantID, tenantID)
	if err != nil {
		return nil, err
	}
	out := []model.Subscription{}
	for _, sub := range subs {
		if sub.Wants(eventType) {
			out = append(out, sub)
		}
	}
	return out, nil
}

func (s *SQL) ListSubscriptions(ctx context.Context, tenantID, cursor string, limit int) ([]model.Subscription, string, error) {
	limit = clampLimit(limit)
	out, err := s.subscriptions(ctx, `SELECT id, url, secret, events FROM subscriptions WHERE tenant_id=? AND id > ? ORDER BY id LIMIT ?`, tenantID, tenantID, cursor, limit)
	if err != nil {
		return nil, "", err
	}
	next := ""
	if len(out) == limit {
		next = out[len(out)-1].ID
	}
	return out, next, nil
}

func (s *SQL) subscriptions(ctx context.Context, q, tenantID string, args ...any) ([]model.Subscription, error) {
	rows, err := s.query(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "select subscriptions")
	}
	defer rows.Close()
	out := []model.Subscription{}
	for rows.Next() {
		var sub model.Subscription
		var ev string
		if err := rows.Scan(&sub.ID, &sub.URL, &sub.Secret, &ev); err != nil {
			return nil, errors.Wrap(err, "scan subscription")
		}
		sub.TenantID = tenantID
		_ = json.Unmarshal([]byte(ev), &sub.Events)
		out = append(out, sub)
	}
	return out, rows.Err()
}

func (s *SQL) DeleteSubscription(ctx context.Context, tenantID, id string) error {
	res, err := s.exec(ctx, `DELETE FROM subscriptions WHERE tenant_id=? AND id=?`, tenantID, id)
	if err != nil {
		return errors.Wrap(err, "delete subscription")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Webhook deliveries
func (s *SQL) EnqueueWebhook(ctx context.Context, tenantID, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
	id := uuid.New().String()
	res, err := s.exec(ctx, `INSERT INTO webhook_deliveries (id, tenant_id, subscription_id, event_type, url, secret, payload, status, attempts, next_attempt_at, dedup_key)
		VALUES (?,?,?,?,?,?,?,?,0,?,?)
		ON CONFLICT (tenant_id, event_type, url, dedup_key) DO NOTHING`,
		id, tenantID, subscriptionID, eventType, url, secret, string(payload), StatusPending, time.Now().UnixMilli(), computeDedupKey(payload))
	if err != nil {
		return "", errors.Wrap(err, "enqueue webhook")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return "", nil
	}
	return id, nil
}

func (s *SQL) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	rows, err := s.query(ctx, `SELECT id, tenant_id, subscription_id, event_type, url, secret, payload, status, attempts
		FROM webhook_deliveries WHERE status IN (?,?) AND next_attempt_at <= ? ORDER BY next_attempt_at ASC LIMIT ?`,
		StatusPending, StatusRetry, time.Now().UnixMilli(), limit)
	if err != nil {
		return nil, errors.Wrap(err, "fetch due webhooks")
	}
	defer rows.Close()
	out := []WebhookDelivery{}
	for rows.Next() {
		var d WebhookDelivery
		var payload string
		if err := rows.Scan(&d.ID, &d.TenantID, &d.SubscriptionID, &d.EventType, &d.URL, &d.Secret, &payload, &d.Status, &d.Attempts); err != nil {
			return nil, errors.Wrap(err, "scan webhook")
		}
		d.Payload = []byte(payload)
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *SQL) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	if success {
		_, err := s.exec(ctx, `UPDATE webhook_deliveries SET attempts=attempts+1, status=?, delivered_at=?, response_code=?, latency_ms=? WHERE id=?`,
			StatusDelivered, time.Now().UnixMilli(), responseCode, latencyMs, id)
		return errors.Wrap(err, "mark webhook delivered")
	}
	next := time.Now().Add(1 * time.Minute)
	if nextAttemptAt != nil {
		next = *nextAttemptAt
	}
	_, err := s.exec(ctx, `UPDATE webhook_deliveries SET attempts=attempts+1, status=?, last_error=?, next_attempt_at=?, response_code=?, latency_ms=? WHERE id=?`,
		StatusRetry, lastError, next.UnixMilli(), responseCode, latencyMs, id)
	return errors.Wrap(err, "mark webhook retry")
}

// FailWebhookDelivery marks the delivery failed and copies it to the dead-letter table.
func (s *SQL) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin")
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, s.rebind(`UPDATE webhook_deliveries SET attempts=attempts+1, status=?, last_error=?, response_code=?, latency_ms=? WHERE id=?`),
		StatusFailed, lastError, responseCode, latencyMs, id); err != nil {
		return errors.Wrap(err, "mark webhook failed")
	}
	if _, err := tx.ExecContext(ctx, s.rebind(`INSERT INTO webhook_dlq (id, tenant_id, delivery_id, event_type, url, payload, attempts, last_error, created_at)
		SELECT ?, tenant_id, id, event_type, url, payload, attempts, last_error, ? FROM webhook_deliveries WHERE id=?`),
		uuid.New().String(), time.Now().UnixMilli(), id); err != nil {
		return errors.Wrap(err, "dead-letter webhook")
	}
	return tx.Commit()
}

func (s *SQL) ListWebhookDeliveries(ctx context.Context, tenantID, status, cursor string, limit int) ([]model.WebhookDeliveryView, string, error) {
	limit = clampLimit(limit)
	q := `SELECT id, event_type, status, attempts, next_attempt_at, last_error, url, response_code FROM webhook_deliveries WHERE tenant_id=? AND id > ?`
	args := []any{tenantID, cursor}
	if status != "" {
		q += ` AND status=?`
		args = append(args, status)
	}
	q += ` ORDER BY id LIMIT ?`
	args = append(args, limit)
	rows, err := s.query(ctx, q, args...)
	if err != nil {
		return nil, "", errors.Wrap(err, "list webhooks")
	}
	defer rows.Close()
	out := []model.WebhookDeliveryView{}
	for rows.Next() {
		var v model.WebhookDeliveryView
		var nextAt int64
		if err := rows.Scan(&v.ID, &v.EventType, &v.Status, &v.Attempts, &nextAt, &v.LastError, &v.URL, &v.ResponseCode); err != nil {
			return nil, "", errors.Wrap(err, "scan webhook")
		}
		if v.Status == StatusPending || v.Status == StatusRetry {
			t := time.UnixMilli(nextAt).UTC()
			v.NextAttemptAt = &t
		}
		out = append(out, v)
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

func (s *SQL) RetryWebhookDelivery(ctx context.Context, tenantID, id string) error {
	res, err := s.exec(ctx, `UPDATE webhook_deliveries SET status=?, next_attempt_at=? WHERE tenant_id=? AND id=?`, StatusPending, time.Now().UnixMilli(), tenantID, id)
	if err != nil {
		return errors.Wrap(err, "retry webhook")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/workmate-hq/workmate/internal/model"
	"github.com/workmate-hq/workmate/internal/store"
)

//go:embed schema.sql
var ddl string

// Open opens a PostgreSQL connection using the pgx stdlib driver and verifies
// connectivity.
func Open(dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres DSN is empty")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Bootstrap applies the schema. Statements are idempotent, so running it on
// every start is safe.
func Bootstrap(ctx context.Context, db *sql.DB) error {
	for _, stmt := range strings.Split(ddl, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// New constructs a Postgres-backed store from an open connection.
func New(db *sql.DB) store.Store { return &pgStore{db: db} }

type pgStore struct{ db *sql.DB }

func (s *pgStore) Conversations() store.Conversations { return &conversations{db: s.db} }
func (s *pgStore) Messages() store.Messages           { return &messages{db: s.db} }
func (s *pgStore) Executions() store.Executions       { return &executions{db: s.db} }
func (s *pgStore) Leaves() store.Leaves               { return &leaves{db: s.db} }
func (s *pgStore) Bookings() store.Bookings           { return &bookings{db: s.db} }
func (s *pgStore) Claims() store.Claims               { return &claims{db: s.db} }

// HealthPing implements health.HealthPinger.
func (s *pgStore) HealthPing(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func mapNotFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return model.ErrNotFound
	}
	return err
}

// --- Conversations ---

type conversations struct{ db *sql.DB }

func (c *conversations) Create(ctx context.Context, in *model.Conversation) (*model.Conversation, error) {
	id := in.ConversationID
	if id == "" {
		id = uuid.New().String()
	}
	pending, err := marshalPending(in.Pending)
	if err != nil {
		return nil, err
	}
	var created, updated time.Time
	row := c.db.QueryRowContext(ctx, `
        INSERT INTO conversations (conversation_id, user_id, title, pending_action)
        VALUES ($1,$2,$3,$4)
        RETURNING creation_time, update_time
    `, id, in.UserID, in.Title, pending)
	if err := row.Scan(&created, &updated); err != nil {
		return nil, err
	}
	out := *in
	out.ConversationID = id
	out.CreationTime = created
	out.UpdateTime = updated
	return &out, nil
}

func (c *conversations) Get(ctx context.Context, conversationID string) (*model.Conversation, error) {
	row := c.db.QueryRowContext(ctx, `
        SELECT conversation_id, user_id, title, archived, pending_action, creation_time, update_time
        FROM conversations WHERE conversation_id = $1
    `, conversationID)
	return scanConversation(row)
}

func (c *conversations) List(ctx context.Context, userID string) ([]*model.Conversation, error) {
	rows, err := c.db.QueryContext(ctx, `
        SELECT conversation_id, user_id, title, archived, pending_action, creation_time, update_time
        FROM conversations WHERE user_id = $1 ORDER BY update_time DESC
    `, userID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []*model.Conversation
	for rows.Next() {
		cv, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cv)
	}
	return out, rows.Err()
}

func (c *conversations) SetPending(ctx context.Context, conversationID string, p *model.PendingAction) error {
	pending, err := marshalPending(p)
	if err != nil {
		return err
	}
	res, err := c.db.ExecContext(ctx, `
        UPDATE conversations SET pending_action = $1, update_time = now() WHERE conversation_id = $2
    `, pending, conversationID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (c *conversations) Archive(ctx context.Context, conversationID string) error {
	res, err := c.db.ExecContext(ctx, `
        UPDATE conversations SET archived = TRUE, update_time = now() WHERE conversation_id = $1
    `, conversationID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrNotFound
	}
	return nil
}

type rowScanner interface{ Scan(dest ...interface{}) error }

func scanConversation(row rowScanner) (*model.Conversation, error) {
	var cv model.Conversation
	var pending []byte
	if err := row.Scan(&cv.ConversationID, &cv.UserID, &cv.Title, &cv.Archived, &pending, &cv.CreationTime, &cv.UpdateTime); err != nil {
		return nil, mapNotFound(err)
	}
	if len(pending) > 0 {
		var p model.PendingAction
		if err := json.Unmarshal(pending, &p); err != nil {
			return nil, err
		}
		cv.Pending = &p
	}
	return &cv, nil
}

func marshalPending(p *model.PendingAction) (interface{}, error) {
	if p == nil {
		return nil, nil
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// --- Messages ---

type messages struct{ db *sql.DB }

func (m *messages) Append(ctx context.Context, in *model.Message) (*model.Message, error) {
	id := uuid.New().String()
	var meta interface{}
	if len(in.Metadata) > 0 {
		b, err := json.Marshal(in.Metadata)
		if err != nil {
			return nil, err
		}
		meta = b
	}
	var created time.Time
	row := m.db.QueryRowContext(ctx, `
        INSERT INTO messages (message_id, conversation_id, role, content, metadata)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING creation_time
    `, id, in.ConversationID, in.Role, in.Content, meta)
	if err := row.Scan(&created); err != nil {
		return nil, err
	}
	out := *in
	out.MessageID = id
	out.CreationTime = created
	return &out, nil
}

func (m *messages) List(ctx context.Context, req model.ListMessagesRequest) ([]*model.Message, error) {
	// seq preserves insertion order, which is the sole ordering guarantee.
	query := `SELECT message_id, conversation_id, role, content, metadata, creation_time
              FROM messages WHERE conversation_id = $1`
	args := []interface{}{req.ConversationID}
	if req.Before != nil {
		query += " AND creation_time < $2"
		args = append(args, *req.Before)
	}
	query += " ORDER BY seq DESC"
	if req.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", req.Limit)
	}
	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []*model.Message
	for rows.Next() {
		var msg model.Message
		var meta []byte
		if err := rows.Scan(&msg.MessageID, &msg.ConversationID, &msg.Role, &msg.Content, &meta, &msg.CreationTime); err != nil {
			return nil, err
		}
		if len(meta) > 0 {
			_ = json.Unmarshal(meta, &msg.Metadata)
		}
		out = append(out, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// --- Executions ---

type executions struct{ db *sql.DB }

func (e *executions) Create(ctx context.Context, in *model.ExecutionRecord) (*model.ExecutionRecord, error) {
	id := uuid.New().String()
	var created time.Time
	row := e.db.QueryRowContext(ctx, `
        INSERT INTO execution_records (record_id, conversation_id, user_id, idempotency_key, action_type, outcome, entity_id, failure_reason)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        RETURNING creation_time
    `, id, in.ConversationID, in.UserID, in.IdempotencyKey, in.ActionType, in.Outcome, nullIfEmpty(in.EntityID), nullIfEmpty(in.FailureReason))
	if err := row.Scan(&created); err != nil {
		if isUniqueViolation(err) {
			return nil, model.ErrConflict
		}
		return nil, err
	}
	out := *in
	out.RecordID = id
	out.CreationTime = created
	return &out, nil
}

func (e *executions) GetByKey(ctx context.Context, idempotencyKey string) (*model.ExecutionRecord, error) {
	var r model.ExecutionRecord
	var entityID, reason sql.NullString
	row := e.db.QueryRowContext(ctx, `
        SELECT record_id, conversation_id, user_id, idempotency_key, action_type, outcome, entity_id, failure_reason, creation_time
        FROM execution_records WHERE idempotency_key = $1
    `, idempotencyKey)
	if err := row.Scan(&r.RecordID, &r.ConversationID, &r.UserID, &r.IdempotencyKey, &r.ActionType, &r.Outcome, &entityID, &reason, &r.CreationTime); err != nil {
		return nil, mapNotFound(err)
	}
	r.EntityID = entityID.String
	r.FailureReason = reason.String
	return &r, nil
}

// --- Leaves ---

type leaves struct{ db *sql.DB }

func (l *leaves) Types(ctx context.Context) ([]*model.LeaveType, error) {
	rows, err := l.db.QueryContext(ctx, `SELECT leave_type_id, name, default_days, active FROM leave_types WHERE active ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []*model.LeaveType
	for rows.Next() {
		var t model.LeaveType
		if err := rows.Scan(&t.LeaveTypeID, &t.Name, &t.DefaultDays, &t.Active); err != nil {
			return nil, err
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}

func (l *leaves) TypeByName(ctx context.Context, name string) (*model.LeaveType, error) {
	var t model.LeaveType
	row := l.db.QueryRowContext(ctx, `
        SELECT leave_type_id, name, default_days, active FROM leave_types
        WHERE active AND name ILIKE '%' || $1 || '%' ORDER BY name LIMIT 1
    `, name)
	if err := row.Scan(&t.LeaveTypeID, &t.Name, &t.DefaultDays, &t.Active); err != nil {
		return nil, mapNotFound(err)
	}
	return &t, nil
}

func (l *leaves) CreateType(ctx context.Context, in *model.LeaveType) (*model.LeaveType, error) {
	id := in.LeaveTypeID
	if id == "" {
		id = uuid.New().String()
	}
	_, err := l.db.ExecContext(ctx, `
        INSERT INTO leave_types (leave_type_id, name, default_days) VALUES ($1,$2,$3)
    `, id, in.Name, in.DefaultDays)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, model.ErrConflict
		}
		return nil, err
	}
	out := *in
	out.LeaveTypeID = id
	out.Active = true
	return &out, nil
}

func (l *leaves) Balance(ctx context.Context, userID, leaveTypeID string, year int) (*model.LeaveBalance, error) {
	var b model.LeaveBalance
	row := l.db.QueryRowContext(ctx, `
        SELECT user_id, leave_type_id, year, total_days, used_days, pending_days
        FROM leave_balances WHERE user_id = $1 AND leave_type_id = $2 AND year = $3
    `, userID, leaveTypeID, year)
	if err := row.Scan(&b.UserID, &b.LeaveTypeID, &b.Year, &b.TotalDays, &b.UsedDays, &b.PendingDays); err != nil {
		return nil, mapNotFound(err)
	}
	return &b, nil
}

func (l *leaves) SetBalance(ctx context.Context, b *model.LeaveBalance) error {
	_, err := l.db.ExecContext(ctx, `
        INSERT INTO leave_balances (user_id, leave_type_id, year, total_days, used_days, pending_days)
        VALUES ($1,$2,$3,$4,$5,$6)
        ON CONFLICT (user_id, leave_type_id, year)
        DO UPDATE SET total_days = EXCLUDED.total_days, used_days = EXCLUDED.used_days, pending_days = EXCLUDED.pending_days
    `, b.UserID, b.LeaveTypeID, b.Year, b.TotalDays, b.UsedDays, b.PendingDays)
	return err
}

func (l *leaves) CreateRequest(ctx context.Context, in *model.LeaveRequest) (*model.LeaveRequest, error) {
	// The debit lands on the balance row for the year the leave starts in,
	// matching the row validation checked.
	start, err := time.Parse("2006-01-02", in.StartDate)
	if err != nil {
		return nil, fmt.Errorf("bad start_date %q: %w", in.StartDate, err)
	}

	tx, err := l.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	id := uuid.New().String()
	var created time.Time
	if err := tx.QueryRowContext(ctx, `
        INSERT INTO leave_requests (leave_id, user_id, leave_type_id, start_date, end_date, total_days, reason, status)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        RETURNING creation_time
    `, id, in.UserID, in.LeaveTypeID, in.StartDate, in.EndDate, in.TotalDays, nullIfEmpty(in.Reason), in.Status).Scan(&created); err != nil {
		return nil, err
	}
	res, err := tx.ExecContext(ctx, `
        UPDATE leave_balances SET pending_days = pending_days + $1
        WHERE user_id = $2 AND leave_type_id = $3 AND year = $4
    `, in.TotalDays, in.UserID, in.LeaveTypeID, start.Year())
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("no %d leave balance for user %s: %w", start.Year(), in.UserID, model.ErrNotFound)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	out := *in
	out.LeaveID = id
	out.CreationTime = created
	return &out, nil
}

func (l *leaves) ListRequests(ctx context.Context, userID string, limit int) ([]*model.LeaveRequest, error) {
	query := `SELECT leave_id, user_id, leave_type_id, start_date::text, end_date::text, total_days, reason, status, creation_time
              FROM leave_requests WHERE user_id = $1 ORDER BY creation_time DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := l.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []*model.LeaveRequest
	for rows.Next() {
		var r model.LeaveRequest
		var reason sql.NullString
		if err := rows.Scan(&r.LeaveID, &r.UserID, &r.LeaveTypeID, &r.StartDate, &r.EndDate, &r.TotalDays, &reason, &r.Status, &r.CreationTime); err != nil {
			return nil, err
		}
		r.Reason = reason.String
		out = append(out, &r)
	}
	return out, rows.Err()
}

// --- Bookings ---

type bookings struct{ db *sql.DB }

func (b *bookings) Rooms(ctx context.Context) ([]*model.Room, error) {
	rows, err := b.db.QueryContext(ctx, `SELECT room_id, name, capacity, location, active FROM rooms WHERE active ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []*model.Room
	for rows.Next() {
		r, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (b *bookings) RoomByName(ctx context.Context, name string) (*model.Room, error) {
	row := b.db.QueryRowContext(ctx, `
        SELECT room_id, name, capacity, location, active FROM rooms
        WHERE active AND name ILIKE '%' || $1 || '%' ORDER BY name LIMIT 1
    `, name)
	return scanRoom(row)
}

func scanRoom(row rowScanner) (*model.Room, error) {
	var r model.Room
	var location sql.NullString
	if err := row.Scan(&r.RoomID, &r.Name, &r.Capacity, &location, &r.Active); err != nil {
		return nil, mapNotFound(err)
	}
	r.Location = location.String
	return &r, nil
}

func (b *bookings) CreateRoom(ctx context.Context, in *model.Room) (*model.Room, error) {
	id := in.RoomID
	if id == "" {
		id = uuid.New().String()
	}
	_, err := b.db.ExecContext(ctx, `
        INSERT INTO rooms (room_id, name, capacity, location) VALUES ($1,$2,$3,$4)
    `, id, in.Name, in.Capacity, nullIfEmpty(in.Location))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, model.ErrConflict
		}
		return nil, err
	}
	out := *in
	out.RoomID = id
	out.Active = true
	return &out, nil
}

func (b *bookings) Overlaps(ctx context.Context, roomID string, start, end time.Time) (bool, error) {
	var n int
	row := b.db.QueryRowContext(ctx, `
        SELECT COUNT(1) FROM room_bookings
        WHERE room_id = $1 AND status = 'confirmed' AND start_time < $2 AND end_time > $3
    `, roomID, end, start)
	if err := row.Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

func (b *bookings) Create(ctx context.Context, in *model.RoomBooking) (*model.RoomBooking, error) {
	tx, err := b.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	// Re-check overlap inside the transaction; a concurrent booking that
	// committed since validation loses the slot here, not at validation time.
	var n int
	if err := tx.QueryRowContext(ctx, `
        SELECT COUNT(1) FROM room_bookings
        WHERE room_id = $1 AND status = 'confirmed' AND start_time < $2 AND end_time > $3
    `, in.RoomID, in.EndTime, in.StartTime).Scan(&n); err != nil {
		return nil, err
	}
	if n > 0 {
		return nil, model.ErrConflict
	}

	id := uuid.New().String()
	var created time.Time
	if err := tx.QueryRowContext(ctx, `
        INSERT INTO room_bookings (booking_id, room_id, user_id, title, start_time, end_time, description, status)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        RETURNING creation_time
    `, id, in.RoomID, in.UserID, in.Title, in.StartTime, in.EndTime, nullIfEmpty(in.Description), in.Status).Scan(&created); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	out := *in
	out.BookingID = id
	out.CreationTime = created
	return &out, nil
}

func (b *bookings) ListByUser(ctx context.Context, userID string, limit int) ([]*model.RoomBooking, error) {
	query := `SELECT booking_id, room_id, user_id, title, start_time, end_time, description, status, creation_time
              FROM room_bookings WHERE user_id = $1 ORDER BY start_time DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := b.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []*model.RoomBooking
	for rows.Next() {
		var bk model.RoomBooking
		var desc sql.NullString
		if err := rows.Scan(&bk.BookingID, &bk.RoomID, &bk.UserID, &bk.Title, &bk.StartTime, &bk.EndTime, &desc, &bk.Status, &bk.CreationTime); err != nil {
			return nil, err
		}
		bk.Description = desc.String
		out = append(out, &bk)
	}
	return out, rows.Err()
}

// --- Claims ---

type claims struct{ db *sql.DB }

func (c *claims) Categories(ctx context.Context) ([]*model.ClaimCategory, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT category_id, name, max_amount::float8, active FROM claim_categories WHERE active ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []*model.ClaimCategory
	for rows.Next() {
		cat, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cat)
	}
	return out, rows.Err()
}

func (c *claims) CategoryByName(ctx context.Context, name string) (*model.ClaimCategory, error) {
	row := c.db.QueryRowContext(ctx, `
        SELECT category_id, name, max_amount::float8, active FROM claim_categories
        WHERE active AND name ILIKE '%' || $1 || '%' ORDER BY name LIMIT 1
    `, name)
	return scanCategory(row)
}

func scanCategory(row rowScanner) (*model.ClaimCategory, error) {
	var cat model.ClaimCategory
	var maxAmount sql.NullFloat64
	if err := row.Scan(&cat.CategoryID, &cat.Name, &maxAmount, &cat.Active); err != nil {
		return nil, mapNotFound(err)
	}
	if maxAmount.Valid {
		v := maxAmount.Float64
		cat.MaxAmount = &v
	}
	return &cat, nil
}

func (c *claims) CreateCategory(ctx context.Context, in *model.ClaimCategory) (*model.ClaimCategory, error) {
	id := in.CategoryID
	if id == "" {
		id = uuid.New().String()
	}
	var maxAmount interface{}
	if in.MaxAmount != nil {
		maxAmount = *in.MaxAmount
	}
	_, err := c.db.ExecContext(ctx, `
        INSERT INTO claim_categories (category_id, name, max_amount) VALUES ($1,$2,$3)
    `, id, in.Name, maxAmount)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, model.ErrConflict
		}
		return nil, err
	}
	out := *in
	out.CategoryID = id
	out.Active = true
	return &out, nil
}

func (c *claims) Create(ctx context.Context, in *model.Claim) (*model.Claim, error) {
	id := uuid.New().String()
	var created time.Time
	row := c.db.QueryRowContext(ctx, `
        INSERT INTO claims (claim_id, user_id, category_id, amount, description, claim_date, status)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        RETURNING creation_time
    `, id, in.UserID, in.CategoryID, in.Amount, in.Description, in.ClaimDate, in.Status)
	if err := row.Scan(&created); err != nil {
		return nil, err
	}
	out := *in
	out.ClaimID = id
	out.CreationTime = created
	return &out, nil
}

func (c *claims) ListByUser(ctx context.Context, userID string, limit int) ([]*model.Claim, error) {
	query := `SELECT claim_id, user_id, category_id, amount::float8, description, claim_date::text, status, creation_time
              FROM claims WHERE user_id = $1 ORDER BY creation_time DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := c.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []*model.Claim
	for rows.Next() {
		var cl model.Claim
		if err := rows.Scan(&cl.ClaimID, &cl.UserID, &cl.CategoryID, &cl.Amount, &cl.Description, &cl.ClaimDate, &cl.Status, &cl.CreationTime); err != nil {
			return nil, err
		}
		out = append(out, &cl)
	}
	return out, rows.Err()
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

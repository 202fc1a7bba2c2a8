package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/acrespo/splitledger/internal/ledger"
	"github.com/acrespo/splitledger/internal/models"
)

// Repository interface defines the methods that any repository implementation must satisfy
type Repository interface {
	// User operations
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)

	// Group operations
	CreateGroup(ctx context.Context, group *models.Group) error
	GetGroup(ctx context.Context, groupID string) (*models.Group, error)
	GetUserGroups(ctx context.Context, userID string) ([]models.Group, error)
	AddGroupMember(ctx context.Context, member *models.GroupMember) error
	GetGroupMembers(ctx context.Context, groupID string) ([]models.MemberInfo, error)
	GetMemberRole(ctx context.Context, groupID, userID string) (string, error)

	// Transaction operations
	CreateTransaction(ctx context.Context, tx *models.Transaction) error
	GetTransaction(ctx context.Context, transactionID string) (*models.Transaction, error)
	GetGroupTransactionsWithSplits(ctx context.Context, groupID string) ([]models.Transaction, error)
	ReplaceTransactionSplits(ctx context.Context, transactionID string, splits []models.TransactionSplit) error

	// Settlement operations
	CreateSettlement(ctx context.Context, settlement *models.Settlement) error
	GetSettlement(ctx context.Context, settlementID string) (*models.Settlement, error)
	TransitionSettlement(ctx context.Context, settlementID, fromStatus, toStatus string, paidAt *time.Time) (bool, error)
	ListSettlementsByGroup(ctx context.Context, groupID, status string) ([]models.Settlement, error)

	// Notification operations
	CreateNotifications(ctx context.Context, notifications []models.Notification) error
	ListNotificationsByUser(ctx context.Context, userID string) ([]models.Notification, error)
}

// PostgresRepository implements the Repository interface using PostgreSQL
type PostgresRepository struct {
	db *sqlx.DB
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{
		db: db,
	}
}

// GetDB returns the underlying database connection
func (r *PostgresRepository) GetDB() *sqlx.DB {
	return r.db
}

// User repository methods
func (r *PostgresRepository) CreateUser(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (id, email, name, password, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	if user.ID == "" {
		user.ID = uuid.New().String()
	}

	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, query,
		user.ID, user.Email, user.Name, user.Password, user.CreatedAt, user.UpdatedAt)

	return err
}

func (r *PostgresRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT * FROM users WHERE email = $1`

	var user models.User
	err := r.db.GetContext(ctx, &user, query, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // User not found
		}
		return nil, err
	}

	return &user, nil
}

func (r *PostgresRepository) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT * FROM users WHERE id = $1`

	var user models.User
	err := r.db.GetContext(ctx, &user, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // User not found
		}
		return nil, err
	}

	return &user, nil
}

// Group repository methods
func (r *PostgresRepository) CreateGroup(ctx context.Context, group *models.Group) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if err != nil {
			tx.Rollback()
			return
		}
	}()

	query := `
		INSERT INTO spending_groups (id, name, description, currency, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	if group.ID == "" {
		group.ID = uuid.New().String()
	}

	now := time.Now().UTC()
	group.CreatedAt = now
	group.UpdatedAt = now

	_, err = tx.ExecContext(ctx, query,
		group.ID, group.Name, group.Description, group.Currency,
		group.CreatedBy, group.CreatedAt, group.UpdatedAt)

	if err != nil {
		return err
	}

	// Add the creator as the group owner
	member := &models.GroupMember{
		GroupID:  group.ID,
		UserID:   group.CreatedBy,
		Role:     models.RoleOwner,
		JoinedAt: now,
	}

	err = r.addGroupMemberTx(ctx, tx, member)
	if err != nil {
		return err
	}

	return tx.Commit()
}

func (r *PostgresRepository) GetGroup(ctx context.Context, groupID string) (*models.Group, error) {
	query := `SELECT * FROM spending_groups WHERE id = $1`

	var group models.Group
	err := r.db.GetContext(ctx, &group, query, groupID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Group not found
		}
		return nil, err
	}

	return &group, nil
}

func (r *PostgresRepository) GetUserGroups(ctx context.Context, userID string) ([]models.Group, error) {
	query := `
		SELECT g.* FROM spending_groups g
		JOIN group_members gm ON g.id = gm.group_id
		WHERE gm.user_id = $1
		ORDER BY g.created_at DESC
	`

	var groups []models.Group
	err := r.db.SelectContext(ctx, &groups, query, userID)
	if err != nil {
		return nil, err
	}

	return groups, nil
}

// addGroupMemberTx is a helper method that adds a member to a group within an existing transaction
func (r *PostgresRepository) addGroupMemberTx(ctx context.Context, tx *sql.Tx, member *models.GroupMember) error {
	// Check if the membership already exists
	var exists bool
	err := tx.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM group_members WHERE group_id = $1 AND user_id = $2)`,
		member.GroupID, member.UserID).Scan(&exists)

	if err != nil {
		return err
	}

	if exists {
		// Update the role if the user is already a member
		query := `UPDATE group_members SET role = $1 WHERE group_id = $2 AND user_id = $3`
		_, err = tx.ExecContext(ctx, query, member.Role, member.GroupID, member.UserID)
	} else {
		query := `INSERT INTO group_members (group_id, user_id, role, joined_at) VALUES ($1, $2, $3, $4)`

		if member.JoinedAt.IsZero() {
			member.JoinedAt = time.Now().UTC()
		}

		_, err = tx.ExecContext(ctx, query,
			member.GroupID, member.UserID, member.Role, member.JoinedAt)
	}

	return err
}

func (r *PostgresRepository) AddGroupMember(ctx context.Context, member *models.GroupMember) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if err != nil {
			tx.Rollback()
			return
		}
	}()

	err = r.addGroupMemberTx(ctx, tx, member)
	if err != nil {
		return err
	}

	return tx.Commit()
}

func (r *PostgresRepository) GetGroupMembers(ctx context.Context, groupID string) ([]models.MemberInfo, error) {
	query := `
		SELECT gm.user_id, u.name, gm.role
		FROM group_members gm
		JOIN users u ON u.id = gm.user_id
		WHERE gm.group_id = $1
		ORDER BY gm.joined_at ASC
	`

	var members []models.MemberInfo
	err := r.db.SelectContext(ctx, &members, query, groupID)
	if err != nil {
		return nil, err
	}

	return members, nil
}

func (r *PostgresRepository) GetMemberRole(ctx context.Context, groupID, userID string) (string, error) {
	query := `SELECT role FROM group_members WHERE group_id = $1 AND user_id = $2`

	var role string
	err := r.db.GetContext(ctx, &role, query, groupID, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil // Not a member
		}
		return "", err
	}

	return role, nil
}

// Transaction repository methods
func (r *PostgresRepository) CreateTransaction(ctx context.Context, tx *models.Transaction) error {
	query := `
		INSERT INTO transactions (id, user_id, group_id, amount, currency, type, description, date, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	if tx.ID == "" {
		tx.ID = uuid.New().String()
	}

	now := time.Now().UTC()
	if tx.Date.IsZero() {
		tx.Date = now
	}
	tx.CreatedAt = now

	_, err := r.db.ExecContext(ctx, query,
		tx.ID, tx.UserID, tx.GroupID, tx.Amount, tx.Currency,
		tx.Type, tx.Description, tx.Date, tx.CreatedAt)

	return err
}

func (r *PostgresRepository) GetTransaction(ctx context.Context, transactionID string) (*models.Transaction, error) {
	query := `SELECT id, user_id, group_id, amount, currency, type, description, date, created_at
		FROM transactions WHERE id = $1`

	var transaction models.Transaction
	err := r.db.GetContext(ctx, &transaction, query, transactionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Transaction not found
		}
		return nil, err
	}

	var splits []models.TransactionSplit
	err = r.db.SelectContext(ctx, &splits,
		`SELECT * FROM transaction_splits WHERE transaction_id = $1 ORDER BY user_id ASC`,
		transactionID)
	if err != nil {
		return nil, err
	}
	transaction.Splits = splits

	return &transaction, nil
}

// GetGroupTransactionsWithSplits reads a group's transactions and their
// splits inside a repeatable-read, read-only transaction so that
// balance computation sees a consistent snapshot: a concurrent split
// replacement is observed entirely or not at all.
func (r *PostgresRepository) GetGroupTransactionsWithSplits(ctx context.Context, groupID string) ([]models.Transaction, error) {
	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{
		Isolation: sql.LevelRepeatableRead,
		ReadOnly:  true,
	})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var transactions []models.Transaction
	err = tx.SelectContext(ctx, &transactions,
		`SELECT id, user_id, group_id, amount, currency, type, description, date, created_at
		FROM transactions WHERE group_id = $1 ORDER BY date ASC, id ASC`,
		groupID)
	if err != nil {
		return nil, err
	}

	var splits []models.TransactionSplit
	err = tx.SelectContext(ctx, &splits,
		`SELECT ts.* FROM transaction_splits ts
		JOIN transactions t ON t.id = ts.transaction_id
		WHERE t.group_id = $1
		ORDER BY ts.transaction_id ASC, ts.user_id ASC`,
		groupID)
	if err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, err
	}

	byTransaction := make(map[string][]models.TransactionSplit, len(transactions))
	for _, split := range splits {
		byTransaction[split.TransactionID] = append(byTransaction[split.TransactionID], split)
	}
	for i := range transactions {
		transactions[i].Splits = byTransaction[transactions[i].ID]
	}

	return transactions, nil
}

// ReplaceTransactionSplits atomically replaces the split set of a
// transaction: a concurrent balance read observes either the full old
// set or the full new set, never a partial state.
func (r *PostgresRepository) ReplaceTransactionSplits(ctx context.Context, transactionID string, splits []models.TransactionSplit) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if err != nil {
			tx.Rollback()
			return
		}
	}()

	_, err = tx.ExecContext(ctx, `DELETE FROM transaction_splits WHERE transaction_id = $1`, transactionID)
	if err != nil {
		return mapConflict(err)
	}

	query := `
		INSERT INTO transaction_splits (id, transaction_id, user_id, amount, currency, is_paid, paid_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	now := time.Now().UTC()
	for i := range splits {
		split := &splits[i]
		if split.ID == "" {
			split.ID = uuid.New().String()
		}
		split.TransactionID = transactionID
		split.CreatedAt = now

		_, err = tx.ExecContext(ctx, query,
			split.ID, split.TransactionID, split.UserID, split.Amount,
			split.Currency, split.IsPaid, split.PaidAt, split.CreatedAt)
		if err != nil {
			err = mapConflict(err)
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		err = mapConflict(err)
		return err
	}

	return nil
}

// Settlement repository methods
func (r *PostgresRepository) CreateSettlement(ctx context.Context, settlement *models.Settlement) error {
	query := `
		INSERT INTO settlements (id, group_id, from_user_id, to_user_id, amount, currency, status, paid_at, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	if settlement.ID == "" {
		settlement.ID = uuid.New().String()
	}
	if settlement.Status == "" {
		settlement.Status = models.SettlementPending
	}

	now := time.Now().UTC()
	settlement.CreatedAt = now
	settlement.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, query,
		settlement.ID, settlement.GroupID, settlement.FromUserID, settlement.ToUserID,
		settlement.Amount, settlement.Currency, settlement.Status, settlement.PaidAt,
		settlement.Notes, settlement.CreatedAt, settlement.UpdatedAt)

	return err
}

func (r *PostgresRepository) GetSettlement(ctx context.Context, settlementID string) (*models.Settlement, error) {
	query := `SELECT * FROM settlements WHERE id = $1`

	var settlement models.Settlement
	err := r.db.GetContext(ctx, &settlement, query, settlementID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Settlement not found
		}
		return nil, err
	}

	return &settlement, nil
}

// TransitionSettlement conditionally moves a settlement from one status
// to another. It returns false when the settlement was not in
// fromStatus, which is how a concurrent transition loser finds out.
func (r *PostgresRepository) TransitionSettlement(ctx context.Context, settlementID, fromStatus, toStatus string, paidAt *time.Time) (bool, error) {
	query := `
		UPDATE settlements
		SET status = $1, paid_at = COALESCE($2, paid_at), updated_at = $3
		WHERE id = $4 AND status = $5
	`

	result, err := r.db.ExecContext(ctx, query,
		toStatus, paidAt, time.Now().UTC(), settlementID, fromStatus)
	if err != nil {
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return affected == 1, nil
}

func (r *PostgresRepository) ListSettlementsByGroup(ctx context.Context, groupID, status string) ([]models.Settlement, error) {
	query := `SELECT * FROM settlements WHERE group_id = $1`
	args := []interface{}{groupID}

	if status != "" {
		query += ` AND status = $2`
		args = append(args, status)
	}

	query += ` ORDER BY created_at DESC`

	var settlements []models.Settlement
	err := r.db.SelectContext(ctx, &settlements, query, args...)
	if err != nil {
		return nil, err
	}

	return settlements, nil
}

// Notification repository methods
func (r *PostgresRepository) CreateNotifications(ctx context.Context, notifications []models.Notification) error {
	if len(notifications) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if err != nil {
			tx.Rollback()
			return
		}
	}()

	query := `
		INSERT INTO notifications (id, user_id, type, title, message, data, is_read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	now := time.Now().UTC()
	for i := range notifications {
		n := &notifications[i]
		if n.ID == "" {
			n.ID = uuid.New().String()
		}
		n.CreatedAt = now

		_, err = tx.ExecContext(ctx, query,
			n.ID, n.UserID, n.Type, n.Title, n.Message, n.Data, n.IsRead, n.CreatedAt)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (r *PostgresRepository) ListNotificationsByUser(ctx context.Context, userID string) ([]models.Notification, error) {
	query := `SELECT * FROM notifications WHERE user_id = $1 ORDER BY created_at DESC`

	var notifications []models.Notification
	err := r.db.SelectContext(ctx, &notifications, query, userID)
	if err != nil {
		return nil, err
	}

	return notifications, nil
}

// mapConflict translates Postgres concurrency failures (serialization
// aborts, unique violations from racing writers) into ledger.ErrConflict
// so callers can retry.
func mapConflict(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001", "40P01", "23505":
			return fmt.Errorf("%w: %v", ledger.ErrConflict, err)
		}
	}
	return err
}

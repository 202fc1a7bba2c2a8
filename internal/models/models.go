package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Group member roles. Roles gate who may manage a group; the balance
// math itself is role-agnostic.
const (
	RoleOwner  = "owner"
	RoleAdmin  = "admin"
	RoleMember = "member"
	RoleViewer = "viewer"
)

// Settlement statuses. pending is the only non-terminal state.
const (
	SettlementPending   = "pending"
	SettlementPaid      = "paid"
	SettlementCancelled = "cancelled"
)

// User represents a user in the system
type User struct {
	ID        string    `db:"id" json:"id"`
	Email     string    `db:"email" json:"email"`
	Name      string    `db:"name" json:"name"`
	Password  string    `db:"password" json:"-"` // Password hash, not returned in JSON
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// Group represents a spending group whose members share expenses
type Group struct {
	ID          string    `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description"`
	Currency    string    `db:"currency" json:"currency"`
	CreatedBy   string    `db:"created_by" json:"createdBy"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time `db:"updated_at" json:"updatedAt"`
}

// GroupMember represents the membership relation between users and groups
type GroupMember struct {
	GroupID  string    `db:"group_id" json:"groupId"`
	UserID   string    `db:"user_id" json:"userId"`
	Role     string    `db:"role" json:"role"`
	JoinedAt time.Time `db:"joined_at" json:"joinedAt"`
}

// MemberInfo is a group member joined with the user's display name,
// as consumed by the balance engine.
type MemberInfo struct {
	UserID string `db:"user_id" json:"userId"`
	Name   string `db:"name" json:"name"`
	Role   string `db:"role" json:"role"`
}

// Transaction represents a group expense. The payer is the user who
// created the transaction.
type Transaction struct {
	ID          string             `db:"id" json:"id"`
	UserID      string             `db:"user_id" json:"userId"` // payer
	GroupID     string             `db:"group_id" json:"groupId"`
	Amount      decimal.Decimal    `db:"amount" json:"amount"`
	Currency    string             `db:"currency" json:"currency"`
	Type        string             `db:"type" json:"type"`
	Description string             `db:"description" json:"description"`
	Date        time.Time          `db:"date" json:"date"`
	CreatedAt   time.Time          `db:"created_at" json:"createdAt"`
	Splits      []TransactionSplit `db:"-" json:"splits,omitempty"`
}

// TransactionSplit represents one member's owed share of a transaction
type TransactionSplit struct {
	ID            string          `db:"id" json:"id"`
	TransactionID string          `db:"transaction_id" json:"transactionId"`
	UserID        string          `db:"user_id" json:"userId"`
	Amount        decimal.Decimal `db:"amount" json:"amount"`
	Currency      string          `db:"currency" json:"currency"`
	IsPaid        bool            `db:"is_paid" json:"isPaid"`
	PaidAt        *time.Time      `db:"paid_at" json:"paidAt,omitempty"`
	CreatedAt     time.Time       `db:"created_at" json:"createdAt"`
}

// Settlement represents a recorded payment between two group members
// intended to clear debt.
type Settlement struct {
	ID         string          `db:"id" json:"id"`
	GroupID    string          `db:"group_id" json:"groupId"`
	FromUserID string          `db:"from_user_id" json:"fromUserId"`
	ToUserID   string          `db:"to_user_id" json:"toUserId"`
	Amount     decimal.Decimal `db:"amount" json:"amount"`
	Currency   string          `db:"currency" json:"currency"`
	Status     string          `db:"status" json:"status"`
	PaidAt     *time.Time      `db:"paid_at" json:"paidAt,omitempty"`
	Notes      string          `db:"notes" json:"notes,omitempty"`
	CreatedAt  time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt  time.Time       `db:"updated_at" json:"updatedAt"`
}

// Notification represents an in-app notification row. Dispatch (email,
// push) is handled elsewhere; this service only records them.
type Notification struct {
	ID        string    `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"userId"`
	Type      string    `db:"type" json:"type"`
	Title     string    `db:"title" json:"title"`
	Message   string    `db:"message" json:"message"`
	Data      string    `db:"data" json:"data,omitempty"` // JSON payload
	IsRead    bool      `db:"is_read" json:"isRead"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

package models

import (
	"github.com/shopspring/decimal"

	"github.com/acrespo/splitledger/internal/ledger"
)

// Request models
type SignUpRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	Name     string `json:"name" binding:"required"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type CreateGroupRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	Currency    string `json:"currency" binding:"required,len=3"`
}

type AddMemberRequest struct {
	Email string `json:"email" binding:"required,email"`
	Role  string `json:"role" binding:"omitempty,oneof=owner admin member viewer"`
}

type CreateTransactionRequest struct {
	GroupID     string          `json:"groupId" binding:"required"`
	Amount      decimal.Decimal `json:"amount" binding:"required"`
	Currency    string          `json:"currency" binding:"required,len=3"`
	Type        string          `json:"type" binding:"omitempty,oneof=expense income"`
	Description string          `json:"description"`
}

type SplitShareRequest struct {
	UserID string          `json:"userId" binding:"required"`
	Amount decimal.Decimal `json:"amount"`
}

type SplitTransactionRequest struct {
	Splits []SplitShareRequest `json:"splits" binding:"required,min=1,dive"`
}

type CreateSettlementRequest struct {
	FromUserID string          `json:"fromUserId" binding:"required"`
	ToUserID   string          `json:"toUserId" binding:"required"`
	Amount     decimal.Decimal `json:"amount" binding:"required"`
	Currency   string          `json:"currency" binding:"required,len=3"`
	Notes      string          `json:"notes"`
}

// Response models
type AuthResponse struct {
	Status    string `json:"status"`
	UserID    string `json:"userId,omitempty"`
	Email     string `json:"email,omitempty"`
	Name      string `json:"name,omitempty"`
	Token     string `json:"token,omitempty"`
	ExpiresIn int    `json:"expiresIn,omitempty"`
}

type GroupResponse struct {
	Status  string       `json:"status"`
	Group   *Group       `json:"group,omitempty"`
	Members []MemberInfo `json:"members,omitempty"`
}

type GroupsResponse struct {
	Status string  `json:"status"`
	Groups []Group `json:"groups"`
}

type BalancesResponse struct {
	Status   string                 `json:"status"`
	GroupID  string                 `json:"groupId"`
	Currency string                 `json:"currency"`
	Balances []ledger.MemberBalance `json:"balances"`
}

type TransactionResponse struct {
	Status      string       `json:"status"`
	Transaction *Transaction `json:"transaction,omitempty"`
}

type TransactionsResponse struct {
	Status       string        `json:"status"`
	Transactions []Transaction `json:"transactions"`
}

type SettlementResponse struct {
	Status     string      `json:"status"`
	Settlement *Settlement `json:"settlement,omitempty"`
}

type SettlementsResponse struct {
	Status      string       `json:"status"`
	Settlements []Settlement `json:"settlements"`
}

type NotificationsResponse struct {
	Status        string         `json:"status"`
	Notifications []Notification `json:"notifications"`
}

type ErrorResponse struct {
	Status  string `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/acrespo/splitledger/internal/ledger"
	"github.com/acrespo/splitledger/internal/models"
	"github.com/acrespo/splitledger/internal/repository"
)

// Service defines all the business logic operations
type Service interface {
	// Authentication
	SignUp(ctx context.Context, req models.SignUpRequest) (*models.AuthResponse, error)
	Login(ctx context.Context, req models.LoginRequest) (*models.AuthResponse, error)

	// Group operations
	CreateGroup(ctx context.Context, userID string, req models.CreateGroupRequest) (*models.GroupResponse, error)
	GetGroup(ctx context.Context, userID, groupID string) (*models.GroupResponse, error)
	ListGroups(ctx context.Context, userID string) (*models.GroupsResponse, error)
	AddGroupMember(ctx context.Context, userID, groupID string, req models.AddMemberRequest) (*models.GroupResponse, error)

	// Balance computation
	ComputeBalances(ctx context.Context, userID, groupID string) (*models.BalancesResponse, error)

	// Transactions and splits
	CreateTransaction(ctx context.Context, userID string, req models.CreateTransactionRequest) (*models.TransactionResponse, error)
	GetTransaction(ctx context.Context, userID, transactionID string) (*models.TransactionResponse, error)
	ApplySplit(ctx context.Context, userID, transactionID string, req models.SplitTransactionRequest) (*models.TransactionResponse, error)

	// Settlement lifecycle
	CreateSettlement(ctx context.Context, userID, groupID string, req models.CreateSettlementRequest) (*models.SettlementResponse, error)
	MarkSettlementPaid(ctx context.Context, userID, settlementID string) (*models.SettlementResponse, error)
	CancelSettlement(ctx context.Context, userID, settlementID string) (*models.SettlementResponse, error)
	ListSettlements(ctx context.Context, userID, groupID, status string) (*models.SettlementsResponse, error)

	// Notifications
	ListNotifications(ctx context.Context, userID string) (*models.NotificationsResponse, error)
}

// DefaultService implements the Service interface
type DefaultService struct {
	repo          repository.Repository
	jwtSecret     []byte
	tokenDuration time.Duration
}

// NewDefaultService creates a new DefaultService
func NewDefaultService(repo repository.Repository, jwtSecret string) Service {
	return &DefaultService{
		repo:          repo,
		jwtSecret:     []byte(jwtSecret),
		tokenDuration: 24 * time.Hour, // 24 hours token validity
	}
}

// Authentication methods
func (s *DefaultService) SignUp(ctx context.Context, req models.SignUpRequest) (*models.AuthResponse, error) {
	// Check if user already exists
	existingUser, err := s.repo.GetUserByEmail(ctx, req.Email)
	if err != nil {
		return nil, fmt.Errorf("error checking user existence: %w", err)
	}

	if existingUser != nil {
		return nil, fmt.Errorf("%w: user with this email already exists", ledger.ErrValidation)
	}

	// Hash the password
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("error hashing password: %w", err)
	}

	// Create the user
	user := &models.User{
		ID:       uuid.New().String(),
		Email:    req.Email,
		Name:     req.Name,
		Password: string(hashedPassword),
	}

	if err := s.repo.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("error creating user: %w", err)
	}

	return &models.AuthResponse{
		Status: "success",
		UserID: user.ID,
		Email:  user.Email,
		Name:   user.Name,
	}, nil
}

func (s *DefaultService) Login(ctx context.Context, req models.LoginRequest) (*models.AuthResponse, error) {
	// Get the user
	user, err := s.repo.GetUserByEmail(ctx, req.Email)
	if err != nil {
		return nil, fmt.Errorf("error getting user: %w", err)
	}

	if user == nil {
		return nil, fmt.Errorf("%w: invalid email or password", ledger.ErrUnauthorized)
	}

	// Verify password
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return nil, fmt.Errorf("%w: invalid email or password", ledger.ErrUnauthorized)
	}

	// Generate JWT token
	token, err := s.generateJWT(user)
	if err != nil {
		return nil, fmt.Errorf("error generating token: %w", err)
	}

	return &models.AuthResponse{
		Status:    "success",
		UserID:    user.ID,
		Token:     token,
		ExpiresIn: int(s.tokenDuration.Seconds()),
	}, nil
}

// Group operations
func (s *DefaultService) CreateGroup(
	ctx context.Context,
	userID string,
	req models.CreateGroupRequest,
) (*models.GroupResponse, error) {
	group := &models.Group{
		ID:          uuid.New().String(),
		Name:        req.Name,
		Description: req.Description,
		Currency:    req.Currency,
		CreatedBy:   userID,
	}

	if err := s.repo.CreateGroup(ctx, group); err != nil {
		return nil, fmt.Errorf("error creating group: %w", err)
	}

	members, err := s.repo.GetGroupMembers(ctx, group.ID)
	if err != nil {
		return nil, fmt.Errorf("error getting group members: %w", err)
	}

	return &models.GroupResponse{
		Status:  "success",
		Group:   group,
		Members: members,
	}, nil
}

func (s *DefaultService) GetGroup(ctx context.Context, userID, groupID string) (*models.GroupResponse, error) {
	group, members, err := s.requireMembership(ctx, userID, groupID)
	if err != nil {
		return nil, err
	}

	return &models.GroupResponse{
		Status:  "success",
		Group:   group,
		Members: members,
	}, nil
}

func (s *DefaultService) ListGroups(ctx context.Context, userID string) (*models.GroupsResponse, error) {
	groups, err := s.repo.GetUserGroups(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("error listing groups: %w", err)
	}

	return &models.GroupsResponse{
		Status: "success",
		Groups: groups,
	}, nil
}

func (s *DefaultService) AddGroupMember(
	ctx context.Context,
	userID string,
	groupID string,
	req models.AddMemberRequest,
) (*models.GroupResponse, error) {
	group, _, err := s.requireMembership(ctx, userID, groupID)
	if err != nil {
		return nil, err
	}

	// Only owners and admins may add members
	role, err := s.repo.GetMemberRole(ctx, groupID, userID)
	if err != nil {
		return nil, fmt.Errorf("error checking member role: %w", err)
	}
	if role != models.RoleOwner && role != models.RoleAdmin {
		return nil, fmt.Errorf("%w: only owners and admins can add members", ledger.ErrUnauthorized)
	}

	userToAdd, err := s.repo.GetUserByEmail(ctx, req.Email)
	if err != nil {
		return nil, fmt.Errorf("error getting user: %w", err)
	}
	if userToAdd == nil {
		return nil, fmt.Errorf("%w: user %s", ledger.ErrNotFound, req.Email)
	}

	memberRole := req.Role
	if memberRole == "" {
		memberRole = models.RoleMember
	}

	member := &models.GroupMember{
		GroupID: groupID,
		UserID:  userToAdd.ID,
		Role:    memberRole,
	}

	if err := s.repo.AddGroupMember(ctx, member); err != nil {
		return nil, fmt.Errorf("error adding group member: %w", err)
	}

	members, err := s.repo.GetGroupMembers(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("error getting group members: %w", err)
	}

	return &models.GroupResponse{
		Status:  "success",
		Group:   group,
		Members: members,
	}, nil
}

// ComputeBalances derives the group's pairwise and net balance state
// from its unpaid splits. Balances are computed fresh on every call,
// never stored.
func (s *DefaultService) ComputeBalances(ctx context.Context, userID, groupID string) (*models.BalancesResponse, error) {
	group, members, err := s.requireMembership(ctx, userID, groupID)
	if err != nil {
		return nil, err
	}

	transactions, err := s.repo.GetGroupTransactionsWithSplits(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("error getting group transactions: %w", err)
	}

	ledgerMembers := make([]ledger.Member, len(members))
	for i, m := range members {
		ledgerMembers[i] = ledger.Member{UserID: m.UserID, Name: m.Name}
	}

	ledgerTransactions := make([]ledger.Transaction, len(transactions))
	for i, tx := range transactions {
		splits := make([]ledger.Split, len(tx.Splits))
		for j, split := range tx.Splits {
			splits[j] = ledger.Split{
				UserID: split.UserID,
				Amount: split.Amount,
				IsPaid: split.IsPaid,
			}
		}
		ledgerTransactions[i] = ledger.Transaction{
			ID:      tx.ID,
			PayerID: tx.UserID,
			Amount:  tx.Amount,
			Splits:  splits,
		}
	}

	balances, err := ledger.ComputeBalances(ledgerMembers, ledgerTransactions)
	if err != nil {
		slog.Error("Balance computation failed", "group_id", groupID, "error", err)
		return nil, err
	}

	return &models.BalancesResponse{
		Status:   "success",
		GroupID:  groupID,
		Currency: group.Currency,
		Balances: balances,
	}, nil
}

// Transactions and splits
func (s *DefaultService) CreateTransaction(
	ctx context.Context,
	userID string,
	req models.CreateTransactionRequest,
) (*models.TransactionResponse, error) {
	if _, _, err := s.requireMembership(ctx, userID, req.GroupID); err != nil {
		return nil, err
	}

	role, err := s.repo.GetMemberRole(ctx, req.GroupID, userID)
	if err != nil {
		return nil, fmt.Errorf("error checking member role: %w", err)
	}
	if role == models.RoleViewer {
		return nil, fmt.Errorf("%w: viewers cannot create transactions", ledger.ErrUnauthorized)
	}

	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: transaction amount must be positive", ledger.ErrValidation)
	}

	txType := req.Type
	if txType == "" {
		txType = "expense"
	}

	transaction := &models.Transaction{
		ID:          uuid.New().String(),
		UserID:      userID,
		GroupID:     req.GroupID,
		Amount:      req.Amount,
		Currency:    req.Currency,
		Type:        txType,
		Description: req.Description,
	}

	if err := s.repo.CreateTransaction(ctx, transaction); err != nil {
		return nil, fmt.Errorf("error creating transaction: %w", err)
	}

	return &models.TransactionResponse{
		Status:      "success",
		Transaction: transaction,
	}, nil
}

func (s *DefaultService) GetTransaction(ctx context.Context, userID, transactionID string) (*models.TransactionResponse, error) {
	transaction, err := s.repo.GetTransaction(ctx, transactionID)
	if err != nil {
		return nil, fmt.Errorf("error getting transaction: %w", err)
	}
	if transaction == nil {
		return nil, fmt.Errorf("%w: transaction %s", ledger.ErrNotFound, transactionID)
	}

	if _, _, err := s.requireMembership(ctx, userID, transaction.GroupID); err != nil {
		return nil, err
	}

	return &models.TransactionResponse{
		Status:      "success",
		Transaction: transaction,
	}, nil
}

// ApplySplit validates a proposed split set and atomically replaces the
// transaction's existing splits with it. The payer's share, if present,
// starts paid; every other share produces a notification row.
func (s *DefaultService) ApplySplit(
	ctx context.Context,
	userID string,
	transactionID string,
	req models.SplitTransactionRequest,
) (*models.TransactionResponse, error) {
	transaction, err := s.repo.GetTransaction(ctx, transactionID)
	if err != nil {
		return nil, fmt.Errorf("error getting transaction: %w", err)
	}
	if transaction == nil {
		return nil, fmt.Errorf("%w: transaction %s", ledger.ErrNotFound, transactionID)
	}

	// Only the payer may split their own transaction
	if transaction.UserID != userID {
		return nil, fmt.Errorf("%w: not authorized to split this transaction", ledger.ErrUnauthorized)
	}

	if transaction.GroupID == "" {
		return nil, fmt.Errorf("%w: transaction must be part of a group to split", ledger.ErrValidation)
	}

	members, err := s.repo.GetGroupMembers(ctx, transaction.GroupID)
	if err != nil {
		return nil, fmt.Errorf("error getting group members: %w", err)
	}

	memberIDs := make(map[string]bool, len(members))
	for _, m := range members {
		memberIDs[m.UserID] = true
	}

	shares := make([]ledger.SplitShare, len(req.Splits))
	for i, split := range req.Splits {
		shares[i] = ledger.SplitShare{UserID: split.UserID, Amount: split.Amount}
	}

	if err := ledger.ValidateSplits(transaction.Amount, memberIDs, shares); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	splits := make([]models.TransactionSplit, len(shares))
	for i, share := range shares {
		split := models.TransactionSplit{
			TransactionID: transactionID,
			UserID:        share.UserID,
			Amount:        share.Amount,
			Currency:      transaction.Currency,
		}
		// The payer does not owe themselves
		if share.UserID == transaction.UserID {
			split.IsPaid = true
			split.PaidAt = &now
		}
		splits[i] = split
	}

	if err := s.repo.ReplaceTransactionSplits(ctx, transactionID, splits); err != nil {
		return nil, fmt.Errorf("error replacing splits: %w", err)
	}

	if err := s.notifySplitMembers(ctx, transaction, shares); err != nil {
		// The split itself succeeded; a notification failure is not fatal
		slog.Warn("Failed to create split notifications", "transaction_id", transactionID, "error", err)
	}

	result, err := s.repo.GetTransaction(ctx, transactionID)
	if err != nil {
		return nil, fmt.Errorf("error getting transaction: %w", err)
	}

	return &models.TransactionResponse{
		Status:      "success",
		Transaction: result,
	}, nil
}

func (s *DefaultService) notifySplitMembers(ctx context.Context, transaction *models.Transaction, shares []ledger.SplitShare) error {
	payer, err := s.repo.GetUserByID(ctx, transaction.UserID)
	if err != nil {
		return fmt.Errorf("error getting payer: %w", err)
	}
	payerName := "A group member"
	if payer != nil {
		payerName = payer.Name
	}

	events := ledger.BuildSplitEvents(transaction.ID, transaction.UserID, transaction.Currency, shares)
	notifications := make([]models.Notification, len(events))
	for i, event := range events {
		data, _ := json.Marshal(map[string]string{
			"transactionId": event.TransactionID,
			"amount":        event.Amount.String(),
			"currency":      event.Currency,
		})
		notifications[i] = models.Notification{
			UserID:  event.UserID,
			Type:    "group_activity",
			Title:   "Expense shared with you",
			Message: fmt.Sprintf("%s split an expense of %s %s with you", payerName, event.Currency, event.Amount),
			Data:    string(data),
		}
	}

	return s.repo.CreateNotifications(ctx, notifications)
}

// Settlement lifecycle
func (s *DefaultService) CreateSettlement(
	ctx context.Context,
	userID string,
	groupID string,
	req models.CreateSettlementRequest,
) (*models.SettlementResponse, error) {
	_, members, err := s.requireMembership(ctx, userID, groupID)
	if err != nil {
		return nil, err
	}

	memberIDs := make(map[string]bool, len(members))
	for _, m := range members {
		memberIDs[m.UserID] = true
	}

	if err := ledger.ValidateSettlement(req.FromUserID, req.ToUserID, req.Amount, memberIDs); err != nil {
		return nil, err
	}

	settlement := &models.Settlement{
		ID:         uuid.New().String(),
		GroupID:    groupID,
		FromUserID: req.FromUserID,
		ToUserID:   req.ToUserID,
		Amount:     req.Amount,
		Currency:   req.Currency,
		Status:     models.SettlementPending,
		Notes:      req.Notes,
	}

	if err := s.repo.CreateSettlement(ctx, settlement); err != nil {
		return nil, fmt.Errorf("error creating settlement: %w", err)
	}

	return &models.SettlementResponse{
		Status:     "success",
		Settlement: settlement,
	}, nil
}

func (s *DefaultService) MarkSettlementPaid(ctx context.Context, userID, settlementID string) (*models.SettlementResponse, error) {
	now := time.Now().UTC()
	return s.transitionSettlement(ctx, userID, settlementID, models.SettlementPaid, &now)
}

func (s *DefaultService) CancelSettlement(ctx context.Context, userID, settlementID string) (*models.SettlementResponse, error) {
	return s.transitionSettlement(ctx, userID, settlementID, models.SettlementCancelled, nil)
}

// transitionSettlement applies a settlement state transition with a
// conditional update so two racing transitions cannot both succeed.
// Marking a settlement paid does not touch split is_paid flags; the two
// are tracked independently.
func (s *DefaultService) transitionSettlement(
	ctx context.Context,
	userID string,
	settlementID string,
	toStatus string,
	paidAt *time.Time,
) (*models.SettlementResponse, error) {
	settlement, err := s.repo.GetSettlement(ctx, settlementID)
	if err != nil {
		return nil, fmt.Errorf("error getting settlement: %w", err)
	}
	if settlement == nil {
		return nil, fmt.Errorf("%w: settlement %s", ledger.ErrNotFound, settlementID)
	}

	if err := s.requireSettlementActor(ctx, userID, settlement); err != nil {
		return nil, err
	}

	if !ledger.CanTransition(settlement.Status, toStatus) {
		return nil, fmt.Errorf("%w: settlement is %s", ledger.ErrInvalidStateTransition, settlement.Status)
	}

	applied, err := s.repo.TransitionSettlement(ctx, settlementID, models.SettlementPending, toStatus, paidAt)
	if err != nil {
		return nil, fmt.Errorf("error transitioning settlement: %w", err)
	}
	if !applied {
		// A concurrent transition won the race
		return nil, fmt.Errorf("%w: settlement is no longer pending", ledger.ErrInvalidStateTransition)
	}

	updated, err := s.repo.GetSettlement(ctx, settlementID)
	if err != nil {
		return nil, fmt.Errorf("error getting settlement: %w", err)
	}

	return &models.SettlementResponse{
		Status:     "success",
		Settlement: updated,
	}, nil
}

// requireSettlementActor allows the two settlement parties, plus group
// owners and admins, to drive the settlement lifecycle.
func (s *DefaultService) requireSettlementActor(ctx context.Context, userID string, settlement *models.Settlement) error {
	if userID == settlement.FromUserID || userID == settlement.ToUserID {
		return nil
	}

	role, err := s.repo.GetMemberRole(ctx, settlement.GroupID, userID)
	if err != nil {
		return fmt.Errorf("error checking member role: %w", err)
	}
	if role == models.RoleOwner || role == models.RoleAdmin {
		return nil
	}

	return fmt.Errorf("%w: not a party to this settlement", ledger.ErrUnauthorized)
}

func (s *DefaultService) ListSettlements(ctx context.Context, userID, groupID, status string) (*models.SettlementsResponse, error) {
	if _, _, err := s.requireMembership(ctx, userID, groupID); err != nil {
		return nil, err
	}

	switch status {
	case "", models.SettlementPending, models.SettlementPaid, models.SettlementCancelled:
	default:
		return nil, fmt.Errorf("%w: unknown settlement status %q", ledger.ErrValidation, status)
	}

	settlements, err := s.repo.ListSettlementsByGroup(ctx, groupID, status)
	if err != nil {
		return nil, fmt.Errorf("error listing settlements: %w", err)
	}

	return &models.SettlementsResponse{
		Status:      "success",
		Settlements: settlements,
	}, nil
}

// Notifications
func (s *DefaultService) ListNotifications(ctx context.Context, userID string) (*models.NotificationsResponse, error) {
	notifications, err := s.repo.ListNotificationsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("error listing notifications: %w", err)
	}

	return &models.NotificationsResponse{
		Status:        "success",
		Notifications: notifications,
	}, nil
}

// requireMembership loads a group and asserts the caller belongs to it.
func (s *DefaultService) requireMembership(ctx context.Context, userID, groupID string) (*models.Group, []models.MemberInfo, error) {
	group, err := s.repo.GetGroup(ctx, groupID)
	if err != nil {
		return nil, nil, fmt.Errorf("error getting group: %w", err)
	}
	if group == nil {
		return nil, nil, fmt.Errorf("%w: group %s", ledger.ErrNotFound, groupID)
	}

	members, err := s.repo.GetGroupMembers(ctx, groupID)
	if err != nil {
		return nil, nil, fmt.Errorf("error getting group members: %w", err)
	}

	for _, m := range members {
		if m.UserID == userID {
			return group, members, nil
		}
	}

	return nil, nil, fmt.Errorf("%w: not a member of this group", ledger.ErrUnauthorized)
}

// Helper methods
func (s *DefaultService) generateJWT(user *models.User) (string, error) {
	expirationTime := time.Now().Add(s.tokenDuration)

	claims := jwt.MapClaims{
		"sub": user.ID, // subject
		"exp": expirationTime.Unix(),
		"iat": time.Now().Unix(), // issued at
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

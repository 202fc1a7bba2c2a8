package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/acrespo/splitledger/internal/models"
)

// fakeRepository is an in-memory Repository used by the service tests.
// It mirrors the Postgres implementation's behavior, including the
// conditional settlement transition.
type fakeRepository struct {
	mu            sync.Mutex
	users         map[string]*models.User
	groups        map[string]*models.Group
	members       map[string][]models.GroupMember
	transactions  map[string]*models.Transaction
	splits        map[string][]models.TransactionSplit
	settlements   map[string]*models.Settlement
	notifications []models.Notification
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		users:        make(map[string]*models.User),
		groups:       make(map[string]*models.Group),
		members:      make(map[string][]models.GroupMember),
		transactions: make(map[string]*models.Transaction),
		splits:       make(map[string][]models.TransactionSplit),
		settlements:  make(map[string]*models.Settlement),
	}
}

func (f *fakeRepository) CreateUser(_ context.Context, user *models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	copied := *user
	f.users[user.ID] = &copied
	return nil
}

func (f *fakeRepository) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			copied := *u
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakeRepository) GetUserByID(_ context.Context, id string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, nil
	}
	copied := *u
	return &copied, nil
}

func (f *fakeRepository) CreateGroup(_ context.Context, group *models.Group) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if group.ID == "" {
		group.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	group.CreatedAt = now
	group.UpdatedAt = now
	copied := *group
	f.groups[group.ID] = &copied
	f.members[group.ID] = append(f.members[group.ID], models.GroupMember{
		GroupID:  group.ID,
		UserID:   group.CreatedBy,
		Role:     models.RoleOwner,
		JoinedAt: now,
	})
	return nil
}

func (f *fakeRepository) GetGroup(_ context.Context, groupID string) (*models.Group, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.groups[groupID]
	if !ok {
		return nil, nil
	}
	copied := *g
	return &copied, nil
}

func (f *fakeRepository) GetUserGroups(_ context.Context, userID string) ([]models.Group, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var groups []models.Group
	for groupID, members := range f.members {
		for _, m := range members {
			if m.UserID == userID {
				groups = append(groups, *f.groups[groupID])
			}
		}
	}
	return groups, nil
}

func (f *fakeRepository) AddGroupMember(_ context.Context, member *models.GroupMember) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, m := range f.members[member.GroupID] {
		if m.UserID == member.UserID {
			f.members[member.GroupID][i].Role = member.Role
			return nil
		}
	}
	member.JoinedAt = time.Now().UTC()
	f.members[member.GroupID] = append(f.members[member.GroupID], *member)
	return nil
}

func (f *fakeRepository) GetGroupMembers(_ context.Context, groupID string) ([]models.MemberInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var infos []models.MemberInfo
	for _, m := range f.members[groupID] {
		name := ""
		if u, ok := f.users[m.UserID]; ok {
			name = u.Name
		}
		infos = append(infos, models.MemberInfo{UserID: m.UserID, Name: name, Role: m.Role})
	}
	return infos, nil
}

func (f *fakeRepository) GetMemberRole(_ context.Context, groupID, userID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.members[groupID] {
		if m.UserID == userID {
			return m.Role, nil
		}
	}
	return "", nil
}

func (f *fakeRepository) CreateTransaction(_ context.Context, tx *models.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if tx.ID == "" {
		tx.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if tx.Date.IsZero() {
		tx.Date = now
	}
	tx.CreatedAt = now
	copied := *tx
	f.transactions[tx.ID] = &copied
	return nil
}

func (f *fakeRepository) GetTransaction(_ context.Context, transactionID string) (*models.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tx, ok := f.transactions[transactionID]
	if !ok {
		return nil, nil
	}
	copied := *tx
	copied.Splits = append([]models.TransactionSplit(nil), f.splits[transactionID]...)
	return &copied, nil
}

func (f *fakeRepository) GetGroupTransactionsWithSplits(_ context.Context, groupID string) ([]models.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var transactions []models.Transaction
	for _, tx := range f.transactions {
		if tx.GroupID != groupID {
			continue
		}
		copied := *tx
		copied.Splits = append([]models.TransactionSplit(nil), f.splits[tx.ID]...)
		transactions = append(transactions, copied)
	}
	sort.Slice(transactions, func(i, j int) bool { return transactions[i].ID < transactions[j].ID })
	return transactions, nil
}

func (f *fakeRepository) ReplaceTransactionSplits(_ context.Context, transactionID string, splits []models.TransactionSplit) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now().UTC()
	replaced := make([]models.TransactionSplit, len(splits))
	for i, split := range splits {
		if split.ID == "" {
			split.ID = uuid.New().String()
		}
		split.TransactionID = transactionID
		split.CreatedAt = now
		replaced[i] = split
	}
	f.splits[transactionID] = replaced
	return nil
}

func (f *fakeRepository) CreateSettlement(_ context.Context, settlement *models.Settlement) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if settlement.ID == "" {
		settlement.ID = uuid.New().String()
	}
	if settlement.Status == "" {
		settlement.Status = models.SettlementPending
	}
	now := time.Now().UTC()
	settlement.CreatedAt = now
	settlement.UpdatedAt = now
	copied := *settlement
	f.settlements[settlement.ID] = &copied
	return nil
}

func (f *fakeRepository) GetSettlement(_ context.Context, settlementID string) (*models.Settlement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.settlements[settlementID]
	if !ok {
		return nil, nil
	}
	copied := *s
	return &copied, nil
}

func (f *fakeRepository) TransitionSettlement(_ context.Context, settlementID, fromStatus, toStatus string, paidAt *time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.settlements[settlementID]
	if !ok || s.Status != fromStatus {
		return false, nil
	}
	s.Status = toStatus
	if paidAt != nil {
		s.PaidAt = paidAt
	}
	s.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (f *fakeRepository) ListSettlementsByGroup(_ context.Context, groupID, status string) ([]models.Settlement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var settlements []models.Settlement
	for _, s := range f.settlements {
		if s.GroupID != groupID {
			continue
		}
		if status != "" && s.Status != status {
			continue
		}
		settlements = append(settlements, *s)
	}
	sort.Slice(settlements, func(i, j int) bool {
		return settlements[i].CreatedAt.After(settlements[j].CreatedAt)
	})
	return settlements, nil
}

func (f *fakeRepository) CreateNotifications(_ context.Context, notifications []models.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notifications = append(f.notifications, notifications...)
	return nil
}

func (f *fakeRepository) ListNotificationsByUser(_ context.Context, userID string) ([]models.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []models.Notification
	for _, n := range f.notifications {
		if n.UserID == userID {
			result = append(result, n)
		}
	}
	return result, nil
}

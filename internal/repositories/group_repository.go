package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/oklog/ulid/v2"

	"chathub/internal/models"
	"chathub/internal/realtime"
)

var (
	ErrGroupNotFound  = fmt.Errorf("group %w", realtime.ErrNotFound)
	ErrMemberNotFound = fmt.Errorf("group member %w", realtime.ErrNotFound)
)

// GroupRepository abstracts group persistence.
type GroupRepository interface {
	realtime.GroupDirectory
	CreateGroup(ctx context.Context, creatorID, name, description string, memberIDs []string) (models.Group, error)
	AddMember(ctx context.Context, groupID, userID string) error
	RemoveMember(ctx context.Context, groupID, userID string) error
}

// GroupRepo is a sqlx implementation of GroupRepository.
type GroupRepo struct {
	db *sqlx.DB
}

// NewGroupRepo constructs a GroupRepo.
func NewGroupRepo(db *sqlx.DB) *GroupRepo {
	return &GroupRepo{db: db}
}

var _ GroupRepository = (*GroupRepo)(nil)

// CreateGroup creates a group and its members atomically. The creator is
// always a member.
func (r *GroupRepo) CreateGroup(ctx context.Context, creatorID, name, description string, memberIDs []string) (group models.Group, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Group{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	group = models.Group{
		ID:          ulid.Make().String(),
		Name:        name,
		Description: description,
		CreatedAt:   time.Now().UTC(),
	}
	if _, err = tx.ExecContext(ctx, `INSERT INTO groups (id, name, description, created_at) VALUES ($1, $2, $3, $4)`,
		group.ID, group.Name, group.Description, group.CreatedAt); err != nil {
		return models.Group{}, err
	}

	memberSet := map[string]struct{}{creatorID: {}}
	for _, id := range memberIDs {
		if id != "" {
			memberSet[id] = struct{}{}
		}
	}
	ids := make([]string, 0, len(memberSet))
	for id := range memberSet {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		if _, err = tx.ExecContext(ctx, `INSERT INTO group_members (group_id, user_id) VALUES ($1, $2)`, group.ID, id); err != nil {
			return models.Group{}, err
		}
	}

	if err = tx.Commit(); err != nil {
		return models.Group{}, err
	}
	group.MemberIDs = ids
	return group, nil
}

// GetAllGroups returns the groups that include the user, with members loaded.
func (r *GroupRepo) GetAllGroups(ctx context.Context, userID string) ([]models.Group, error) {
	var groups []models.Group
	err := r.db.SelectContext(ctx, &groups, `SELECT g.id, g.name, g.description, g.created_at
        FROM groups g INNER JOIN group_members gm ON gm.group_id = g.id
        WHERE gm.user_id = $1
        ORDER BY g.created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	if len(groups) == 0 {
		return groups, nil
	}

	ids := make([]string, len(groups))
	for i, g := range groups {
		ids[i] = g.ID
	}
	members, err := r.members(ctx, ids...)
	if err != nil {
		return nil, err
	}
	for i := range groups {
		groups[i].MemberIDs = members[groups[i].ID]
	}
	return groups, nil
}

// GetGroup fetches a single group with its current members.
func (r *GroupRepo) GetGroup(ctx context.Context, groupID string) (models.Group, error) {
	var group models.Group
	err := r.db.GetContext(ctx, &group, `SELECT id, name, description, created_at FROM groups WHERE id = $1`, groupID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Group{}, ErrGroupNotFound
	}
	if err != nil {
		return models.Group{}, err
	}

	members, err := r.members(ctx, groupID)
	if err != nil {
		return models.Group{}, err
	}
	group.MemberIDs = members[groupID]
	return group, nil
}

// UserHasAccessToGroup checks membership.
func (r *GroupRepo) UserHasAccessToGroup(ctx context.Context, userID, groupID string) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM group_members WHERE group_id = $1 AND user_id = $2)`, groupID, userID)
	return exists, err
}

// AddMember adds userID to the group. Adding an existing member is a no-op.
func (r *GroupRepo) AddMember(ctx context.Context, groupID, userID string) error {
	var exists bool
	if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM groups WHERE id = $1)`, groupID); err != nil {
		return err
	}
	if !exists {
		return ErrGroupNotFound
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO group_members (group_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, groupID, userID)
	return err
}

// RemoveMember removes userID from the group.
func (r *GroupRepo) RemoveMember(ctx context.Context, groupID, userID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM group_members WHERE group_id = $1 AND user_id = $2`, groupID, userID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrMemberNotFound
	}
	return nil
}

func (r *GroupRepo) members(ctx context.Context, groupIDs ...string) (map[string][]string, error) {
	query, args, err := sqlx.In(`SELECT group_id, user_id FROM group_members WHERE group_id IN (?) ORDER BY group_id, user_id`, groupIDs)
	if err != nil {
		return nil, err
	}
	var rows []struct {
		GroupID string `db:"group_id"`
		UserID  string `db:"user_id"`
	}
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("load group members: %w", err)
	}

	members := make(map[string][]string, len(groupIDs))
	for _, row := range rows {
		members[row.GroupID] = append(members[row.GroupID], row.UserID)
	}
	return members, nil
}

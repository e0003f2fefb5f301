package repositories

import (
	"context"

	"subledger/internal/models"

	"github.com/google/uuid"
)

type WorkspaceRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Workspace, error)
	SetLegacyPricing(ctx context.Context, id uuid.UUID, enabled bool) error
	ListActiveMemberIDs(ctx context.Context, workspaceID uuid.UUID) ([]uuid.UUID, error)
}

type workspaceRepo struct {
	db Database
}

func NewWorkspaceRepo(db Database) WorkspaceRepository {
	return &workspaceRepo{db: db}
}

func (r *workspaceRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Workspace, error) {
	workspace := &models.Workspace{}
	query := `
		SELECT id, name, legacy_pricing, status, created_at, updated_at
		FROM workspaces
		WHERE id = $1
	`
	err := r.db.QueryRow(ctx, query, id).Scan(&workspace.ID, &workspace.Name, &workspace.LegacyPricing, &workspace.Status, &workspace.CreatedAt, &workspace.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return workspace, nil
}

func (r *workspaceRepo) SetLegacyPricing(ctx context.Context, id uuid.UUID, enabled bool) error {
	query := `
		UPDATE workspaces
		SET legacy_pricing = $1, updated_at = NOW()
		WHERE id = $2
	`
	_, err := r.db.Exec(ctx, query, enabled, id)
	return err
}

func (r *workspaceRepo) ListActiveMemberIDs(ctx context.Context, workspaceID uuid.UUID) ([]uuid.UUID, error) {
	query := `
		SELECT member_id
		FROM workspace_members
		WHERE workspace_id = $1 AND status = 'active'
		ORDER BY created_at ASC
	`
	rows, err := r.db.Query(ctx, query, workspaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var memberIDs []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		memberIDs = append(memberIDs, id)
	}
	return memberIDs, rows.Err()
}

package repository

import (
	"context"
	"database/sql"
	"fmt"

	"carelink-monitor/internal/models"

	"go.uber.org/zap"
)

// SubjectsRepository 被监护人仓库（只读）
type SubjectsRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSubjectsRepository 创建被监护人仓库
func NewSubjectsRepository(db *sql.DB, logger *zap.Logger) *SubjectsRepository {
	return &SubjectsRepository{
		db:     db,
		logger: logger,
	}
}

// GetSubject 根据 subject_id 获取被监护人
func (r *SubjectsRepository) GetSubject(ctx context.Context, subjectID string) (*models.Subject, error) {
	if subjectID == "" {
		return nil, fmt.Errorf("subject_id is required")
	}

	query := `
		SELECT subject_id, household_id, full_name
		FROM subjects
		WHERE subject_id = $1
	`

	var subject models.Subject
	err := r.db.QueryRowContext(ctx, query, subjectID).Scan(
		&subject.SubjectID,
		&subject.HouseholdID,
		&subject.FullName,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("subject not found: subject_id=%s: %w", subjectID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get subject: %w", err)
	}

	return &subject, nil
}

// GetAllSubjectIDs 获取所有被监护人 ID（用于全量巡检）
func (r *SubjectsRepository) GetAllSubjectIDs(ctx context.Context) ([]string, error) {
	query := `
		SELECT subject_id
		FROM subjects
		ORDER BY subject_id
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query subject ids: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan subject id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate subject ids: %w", err)
	}

	return ids, nil
}

// GetHouseholdSubjectIDs 获取同一家庭组内所有被监护人 ID（household 范围巡检）
func (r *SubjectsRepository) GetHouseholdSubjectIDs(ctx context.Context, subjectID string) ([]string, error) {
	if subjectID == "" {
		return nil, fmt.Errorf("subject_id is required")
	}

	query := `
		SELECT s.subject_id
		FROM subjects s
		WHERE s.household_id = (
			SELECT household_id FROM subjects WHERE subject_id = $1
		)
		ORDER BY s.subject_id
	`

	rows, err := r.db.QueryContext(ctx, query, subjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query household subject ids: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan subject id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate household subject ids: %w", err)
	}

	return ids, nil
}

// GetHouseholdContacts 获取被监护人所在家庭组的紧急联系人列表
func (r *SubjectsRepository) GetHouseholdContacts(ctx context.Context, subjectID string) ([]models.EmergencyContact, error) {
	if subjectID == "" {
		return nil, fmt.Errorf("subject_id is required")
	}

	query := `
		SELECT c.contact_id, c.household_id, c.name, c.email, c.receive_email
		FROM emergency_contacts c
		WHERE c.household_id = (
			SELECT household_id FROM subjects WHERE subject_id = $1
		)
		ORDER BY c.contact_id
	`

	rows, err := r.db.QueryContext(ctx, query, subjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query household contacts: %w", err)
	}
	defer rows.Close()

	contacts := []models.EmergencyContact{}
	for rows.Next() {
		var contact models.EmergencyContact
		var email sql.NullString

		err := rows.Scan(
			&contact.ContactID,
			&contact.HouseholdID,
			&contact.Name,
			&email,
			&contact.ReceiveEmail,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan contact: %w", err)
		}

		if email.Valid {
			contact.Email = email.String
		}

		contacts = append(contacts, contact)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate contacts: %w", err)
	}

	return contacts, nil
}

// Package modelconfig implements the Model-Config Service (C4): validating,
// drafting, publishing, and rolling back versioned Casbin model DSL text,
// backed by the Model-Config Store (C2).
package modelconfig

import (
	"context"
	"strings"
	"time"

	"github.com/castellan/iamcore/internal/apperr"
	"github.com/castellan/iamcore/internal/db/models"
	"github.com/castellan/iamcore/internal/repository"
	casbinmodel "github.com/casbin/casbin/v2/model"
)

func defaultClock() int64 { return time.Now().Unix() }

// requiredSections must all be present in model DSL text for it to be
// accepted, independent of whether the embedded parser would also reject it.
var requiredSections = []string{"[request_definition]", "[policy_definition]", "[matchers]"}

// Clock abstracts "now" so publish/rollback timestamps are test-injectable.
type Clock func() int64

// Service implements createDraft/updateDraft/publishVersion/rollbackVersion/
// getActiveModelContent/diff against a ModelConfigRepository.
type Service struct {
	store repository.ModelConfigRepository
	now   Clock
}

// New creates a Service. now defaults to a real wall-clock reader if nil.
func New(store repository.ModelConfigRepository, now Clock) *Service {
	if now == nil {
		now = defaultClock
	}
	return &Service{store: store, now: now}
}

// Validate fails BadRequest if any required section is absent, or if the
// embedded Casbin parser rejects the text.
func Validate(content string) error {
	for _, section := range requiredSections {
		if !strings.Contains(content, section) {
			return apperr.BadRequest("missing section %s", section)
		}
	}
	if _, err := casbinmodel.NewModelFromString(content); err != nil {
		return apperr.BadRequest("invalid content: %v", err)
	}
	return nil
}

// CreateDraft validates content, assigns the next version number, and
// inserts a draft row. Does not trigger enforcer reload.
func (s *Service) CreateDraft(ctx context.Context, content, remark, createdBy string) (*models.ModelConfig, error) {
	if err := Validate(content); err != nil {
		return nil, err
	}

	version, err := s.store.GetNextVersion(ctx)
	if err != nil {
		return nil, err
	}

	record := &models.ModelConfig{
		Version:   version,
		Content:   content,
		Status:    models.ModelConfigStatusDraft,
		Remark:    remark,
		CreatedBy: createdBy,
	}
	if err := s.store.CreateModelConfig(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

// UpdateDraft patches content/remark on a row still in draft status.
func (s *Service) UpdateDraft(ctx context.Context, id int64, content, remark string) error {
	row, err := s.store.GetModelConfigByID(ctx, id)
	if err != nil {
		return err
	}
	if row.Status != models.ModelConfigStatusDraft {
		return apperr.BadRequest("model config %d is not a draft", id)
	}
	if err := Validate(content); err != nil {
		return err
	}

	return s.store.UpdateModelConfig(ctx, id, repository.ModelConfigPatch{
		Content: &content,
		Remark:  &remark,
	})
}

// PublishVersion re-validates draft content (if still a draft), promotes id
// to active, and stamps approvedBy/approvedAt. Publishing the version that
// is already active changes nothing and reports success. The caller is
// responsible for triggering an enforcer reload afterward.
func (s *Service) PublishVersion(ctx context.Context, id int64, approvedBy string) (bool, error) {
	row, err := s.store.GetModelConfigByID(ctx, id)
	if err != nil {
		return false, err
	}
	if row.Status == models.ModelConfigStatusActive {
		return true, nil
	}
	if row.Status == models.ModelConfigStatusDraft {
		if err := Validate(row.Content); err != nil {
			return false, err
		}
	}

	if err := s.store.SetActiveVersion(ctx, id); err != nil {
		return false, err
	}

	approvedAt := s.now()
	if err := s.store.UpdateModelConfig(ctx, id, repository.ModelConfigPatch{
		ApprovedBy: &approvedBy,
		ApprovedAt: &approvedAt,
	}); err != nil {
		return false, err
	}
	return true, nil
}

// RollbackVersion promotes id (any existing version) to active and stamps
// approvedBy/approvedAt. The caller is responsible for triggering an
// enforcer reload afterward.
func (s *Service) RollbackVersion(ctx context.Context, id int64, operator string) (bool, error) {
	if _, err := s.store.GetModelConfigByID(ctx, id); err != nil {
		return false, err
	}

	if err := s.store.SetActiveVersion(ctx, id); err != nil {
		return false, err
	}

	approvedAt := s.now()
	if err := s.store.UpdateModelConfig(ctx, id, repository.ModelConfigPatch{
		ApprovedBy: &operator,
		ApprovedAt: &approvedAt,
	}); err != nil {
		return false, err
	}
	return true, nil
}

// GetActiveModelContent implements enforcer.ActiveModelSource: returns the
// content of the active version, or "" if none exists.
func (s *Service) GetActiveModelContent(ctx context.Context) (string, error) {
	active, err := s.store.GetActiveModelConfig(ctx)
	if err != nil {
		return "", err
	}
	if active == nil {
		return "", nil
	}
	return active.Content, nil
}

// Diff loads both versions and returns a line-level diff between them. Fails
// NotFound if either id is absent.
func (s *Service) Diff(ctx context.Context, sourceID, targetID int64) (Result, error) {
	source, err := s.store.GetModelConfigByID(ctx, sourceID)
	if err != nil {
		return Result{}, err
	}
	target, err := s.store.GetModelConfigByID(ctx, targetID)
	if err != nil {
		return Result{}, err
	}

	return Result{
		SourceVersionID: sourceID,
		TargetVersionID: targetID,
		Diff:            Lines(source.Content, target.Content),
	}, nil
}

package registry

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"

	"foundry/internal/domain"
)

// CreateDraft records version 1 of a new tool, or the next version when
// only non-active versions exist under the name. An active tool under
// the same name is a NAME_COLLISION; new versions of an active tool are
// drafted through DraftNextVersion by the fix manager.
func (s *Store) CreateDraft(candidate domain.Candidate) (domain.ToolDescriptor, error) {
	const op = "registry.CreateDraft"
	if candidate.Name == "" {
		return domain.ToolDescriptor{}, domain.E(domain.CodeInvalidArgument, op, "tool name is required", nil)
	}
	if candidate.EnvironmentID == "" {
		return domain.ToolDescriptor{}, domain.E(domain.CodeInvalidArgument, op, "environment id is required", nil)
	}

	var descriptor domain.ToolDescriptor
	err := s.update(func(tx *bolt.Tx) error {
		if err := environmentExists(tx, candidate.EnvironmentID); err != nil {
			return err
		}
		versions, err := toolVersions(tx, candidate.Name, true)
		if err != nil {
			return err
		}
		latest, err := latestVersion(versions)
		if err != nil {
			return err
		}
		if latest != nil && latest.Status == domain.ToolStatusActive {
			return &domain.Error{
				Code:    domain.CodeNameCollision,
				Op:      op,
				Message: fmt.Sprintf("tool %s is already active at version %d", candidate.Name, latest.Version),
			}
		}
		next := 1
		if latest != nil {
			next = latest.Version + 1
		}
		now := time.Now().UTC()
		descriptor = domain.ToolDescriptor{
			Name:             candidate.Name,
			Version:          next,
			ArtifactLocation: candidate.ArtifactLocation,
			ConfigLocation:   candidate.ConfigLocation,
			EnvironmentID:    candidate.EnvironmentID,
			Status:           domain.ToolStatusDraft,
			Description:      candidate.Description,
			Parameters:       append([]domain.Parameter(nil), candidate.Parameters...),
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		return putTool(versions, descriptor)
	})
	if err != nil {
		return domain.ToolDescriptor{}, domain.Wrap(domain.CodeInternal, op, err)
	}
	s.logger.Info("draft created",
		zap.String("tool", descriptor.Name),
		zap.Int("version", descriptor.Version),
	)
	return descriptor, nil
}

// DraftNextVersion records sourceVersion+1 as a draft sharing the
// source's environment. Used by the fix manager; the source artifact is
// left untouched.
func (s *Store) DraftNextVersion(name string, sourceVersion int, artifactLocation, configLocation, description string, parameters []domain.Parameter) (domain.ToolDescriptor, error) {
	const op = "registry.DraftNextVersion"
	var descriptor domain.ToolDescriptor
	err := s.update(func(tx *bolt.Tx) error {
		versions, err := toolVersions(tx, name, false)
		if err != nil {
			return err
		}
		if versions == nil {
			return domain.E(domain.CodeNotFound, op, fmt.Sprintf("tool %s not found", name), nil)
		}
		source, err := getTool(versions, sourceVersion)
		if err != nil {
			return err
		}
		if source == nil {
			return domain.E(domain.CodeNotFound, op, fmt.Sprintf("tool %s version %d not found", name, sourceVersion), nil)
		}
		latest, err := latestVersion(versions)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		descriptor = domain.ToolDescriptor{
			Name:             name,
			Version:          latest.Version + 1,
			ArtifactLocation: artifactLocation,
			ConfigLocation:   configLocation,
			EnvironmentID:    source.EnvironmentID,
			Status:           domain.ToolStatusDraft,
			Description:      description,
			Parameters:       append([]domain.Parameter(nil), parameters...),
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		return putTool(versions, descriptor)
	})
	if err != nil {
		return domain.ToolDescriptor{}, domain.Wrap(domain.CodeInternal, op, err)
	}
	s.logger.Info("next version drafted",
		zap.String("tool", descriptor.Name),
		zap.Int("source_version", sourceVersion),
		zap.Int("version", descriptor.Version),
	)
	return descriptor, nil
}

// Promote transitions (name, version) from draft or validating to
// active. The transition is gated on a stored passing report for the
// exact pair; the previously active version, if any, is deprecated in
// the same transaction.
func (s *Store) Promote(name string, version int) (domain.ToolDescriptor, error) {
	const op = "registry.Promote"
	var promoted domain.ToolDescriptor
	err := s.update(func(tx *bolt.Tx) error {
		versions, err := toolVersions(tx, name, false)
		if err != nil {
			return err
		}
		if versions == nil {
			return domain.E(domain.CodeNotFound, op, fmt.Sprintf("tool %s not found", name), nil)
		}
		descriptor, err := getTool(versions, version)
		if err != nil {
			return err
		}
		if descriptor == nil {
			return domain.E(domain.CodeNotFound, op, fmt.Sprintf("tool %s version %d not found", name, version), nil)
		}
		if descriptor.Status == domain.ToolStatusActive {
			promoted = *descriptor
			return nil // idempotent
		}
		if descriptor.Status == domain.ToolStatusDeprecated {
			return domain.E(domain.CodeNotValidated, op, fmt.Sprintf("tool %s version %d is deprecated", name, version), nil)
		}

		report, err := getReport(tx, name, version)
		if err != nil {
			return err
		}
		if report == nil || !report.Passed {
			return &domain.Error{
				Code:    domain.CodeNotValidated,
				Op:      op,
				Message: fmt.Sprintf("no passing validation report for %s version %d", name, version),
			}
		}
		if err := environmentActive(tx, descriptor.EnvironmentID); err != nil {
			return err
		}

		// Demote the previously active version first so at no commit
		// point do two versions of one name claim active. The writes
		// happen after the scan; a Put under a live ForEach cursor is
		// undefined in bbolt.
		var demote []domain.ToolDescriptor
		err = versions.ForEach(func(key, value []byte) error {
			var other domain.ToolDescriptor
			if err := json.Unmarshal(value, &other); err != nil {
				return fmt.Errorf("decode tool: %w", err)
			}
			if other.Status == domain.ToolStatusActive && other.Version != version {
				demote = append(demote, other)
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, other := range demote {
			other.Status = domain.ToolStatusDeprecated
			other.UpdatedAt = time.Now().UTC()
			if err := putTool(versions, other); err != nil {
				return err
			}
		}

		descriptor.Status = domain.ToolStatusActive
		descriptor.UpdatedAt = time.Now().UTC()
		promoted = *descriptor
		return putTool(versions, *descriptor)
	})
	if err != nil {
		return domain.ToolDescriptor{}, domain.Wrap(domain.CodeInternal, op, err)
	}
	s.logger.Info("tool promoted",
		zap.String("tool", name),
		zap.Int("version", version),
	)
	return promoted, nil
}

// SetToolStatus moves (name, version) to the given status without
// promotion checks. Promotion must go through Promote.
func (s *Store) SetToolStatus(name string, version int, status domain.ToolStatus) error {
	const op = "registry.SetToolStatus"
	if status == domain.ToolStatusActive {
		return domain.E(domain.CodeInvalidArgument, op, "use Promote to activate a version", nil)
	}
	err := s.update(func(tx *bolt.Tx) error {
		versions, err := toolVersions(tx, name, false)
		if err != nil {
			return err
		}
		if versions == nil {
			return domain.E(domain.CodeNotFound, op, fmt.Sprintf("tool %s not found", name), nil)
		}
		descriptor, err := getTool(versions, version)
		if err != nil {
			return err
		}
		if descriptor == nil {
			return domain.E(domain.CodeNotFound, op, fmt.Sprintf("tool %s version %d not found", name, version), nil)
		}
		if status == domain.ToolStatusValidating {
			if err := environmentActive(tx, descriptor.EnvironmentID); err != nil {
				return err
			}
		}
		descriptor.Status = status
		descriptor.UpdatedAt = time.Now().UTC()
		return putTool(versions, *descriptor)
	})
	return domain.Wrap(domain.CodeInternal, op, err)
}

// Get returns the latest active version of name.
func (s *Store) Get(name string) (domain.ToolDescriptor, error) {
	const op = "registry.Get"
	var found *domain.ToolDescriptor
	err := s.view(func(tx *bolt.Tx) error {
		versions, err := toolVersions(tx, name, false)
		if err != nil {
			return err
		}
		if versions == nil {
			return nil
		}
		cursor := versions.Cursor()
		for key, value := cursor.Last(); key != nil; key, value = cursor.Prev() {
			var descriptor domain.ToolDescriptor
			if err := json.Unmarshal(value, &descriptor); err != nil {
				return fmt.Errorf("decode tool: %w", err)
			}
			if descriptor.Status == domain.ToolStatusActive {
				found = &descriptor
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return domain.ToolDescriptor{}, domain.Wrap(domain.CodeInternal, op, err)
	}
	if found == nil {
		return domain.ToolDescriptor{}, domain.E(domain.CodeNotFound, op, fmt.Sprintf("no active version of %s", name), nil)
	}
	return *found, nil
}

// GetVersion returns an exact (name, version) descriptor.
func (s *Store) GetVersion(name string, version int) (domain.ToolDescriptor, error) {
	const op = "registry.GetVersion"
	var found *domain.ToolDescriptor
	err := s.view(func(tx *bolt.Tx) error {
		versions, err := toolVersions(tx, name, false)
		if err != nil {
			return err
		}
		if versions == nil {
			return nil
		}
		descriptor, err := getTool(versions, version)
		if err != nil {
			return err
		}
		found = descriptor
		return nil
	})
	if err != nil {
		return domain.ToolDescriptor{}, domain.Wrap(domain.CodeInternal, op, err)
	}
	if found == nil {
		return domain.ToolDescriptor{}, domain.E(domain.CodeNotFound, op, fmt.Sprintf("tool %s version %d not found", name, version), nil)
	}
	return *found, nil
}

// History returns up to limit versions of name with version greater
// than afterVersion, in ascending order. Callers page through the full
// history by passing the last seen version back in; limit <= 0 means
// no limit.
func (s *Store) History(name string, afterVersion, limit int) ([]domain.ToolDescriptor, error) {
	const op = "registry.History"
	if afterVersion < 0 {
		// Negative cursors would wrap through the unsigned key encoding
		// and seek past every version.
		afterVersion = 0
	}
	var out []domain.ToolDescriptor
	err := s.view(func(tx *bolt.Tx) error {
		versions, err := toolVersions(tx, name, false)
		if err != nil {
			return err
		}
		if versions == nil {
			return domain.E(domain.CodeNotFound, op, fmt.Sprintf("tool %s not found", name), nil)
		}
		cursor := versions.Cursor()
		start := versionKey(afterVersion + 1)
		for key, value := cursor.Seek(start); key != nil; key, value = cursor.Next() {
			if limit > 0 && len(out) >= limit {
				return nil
			}
			var descriptor domain.ToolDescriptor
			if err := json.Unmarshal(value, &descriptor); err != nil {
				return fmt.Errorf("decode tool: %w", err)
			}
			out = append(out, descriptor)
		}
		return nil
	})
	if err != nil {
		return nil, domain.Wrap(domain.CodeInternal, op, err)
	}
	return out, nil
}

// ListTools returns the latest version of every tool name.
func (s *Store) ListTools() ([]domain.ToolDescriptor, error) {
	const op = "registry.ListTools"
	var out []domain.ToolDescriptor
	err := s.view(func(tx *bolt.Tx) error {
		tools, err := bucketIn(tx, toolsBucketName)
		if err != nil {
			return err
		}
		return tools.ForEachBucket(func(name []byte) error {
			versions := tools.Bucket(name)
			latest, err := latestVersion(versions)
			if err != nil {
				return err
			}
			if latest != nil {
				out = append(out, *latest)
			}
			return nil
		})
	})
	if err != nil {
		return nil, domain.Wrap(domain.CodeInternal, op, err)
	}
	return out, nil
}

func environmentExists(tx *bolt.Tx, id string) error {
	environments, err := bucketIn(tx, environmentsBucketName)
	if err != nil {
		return err
	}
	if environments.Get([]byte(id)) == nil {
		return domain.E(domain.CodeNotFound, "registry", fmt.Sprintf("environment %s not found", id), nil)
	}
	return nil
}

func environmentActive(tx *bolt.Tx, id string) error {
	environments, err := bucketIn(tx, environmentsBucketName)
	if err != nil {
		return err
	}
	raw := environments.Get([]byte(id))
	if raw == nil {
		return domain.E(domain.CodeNotFound, "registry", fmt.Sprintf("environment %s not found", id), nil)
	}
	var descriptor domain.EnvironmentDescriptor
	if err := json.Unmarshal(raw, &descriptor); err != nil {
		return fmt.Errorf("decode environment: %w", err)
	}
	if descriptor.Status != domain.EnvironmentStatusActive {
		return domain.E(domain.CodeInUse, "registry", fmt.Sprintf("environment %s is %s", id, descriptor.Status), nil)
	}
	return nil
}

func toolVersions(tx *bolt.Tx, name string, create bool) (*bolt.Bucket, error) {
	tools, err := bucketIn(tx, toolsBucketName)
	if err != nil {
		return nil, err
	}
	key := []byte(name)
	if create {
		bucket, err := tools.CreateBucketIfNotExists(key)
		if err != nil {
			return nil, fmt.Errorf("create tool bucket: %w", err)
		}
		return bucket, nil
	}
	return tools.Bucket(key), nil
}

func latestVersion(versions *bolt.Bucket) (*domain.ToolDescriptor, error) {
	key, value := versions.Cursor().Last()
	if key == nil {
		return nil, nil
	}
	var descriptor domain.ToolDescriptor
	if err := json.Unmarshal(value, &descriptor); err != nil {
		return nil, fmt.Errorf("decode tool: %w", err)
	}
	return &descriptor, nil
}

func getTool(versions *bolt.Bucket, version int) (*domain.ToolDescriptor, error) {
	raw := versions.Get(versionKey(version))
	if raw == nil {
		return nil, nil
	}
	var descriptor domain.ToolDescriptor
	if err := json.Unmarshal(raw, &descriptor); err != nil {
		return nil, fmt.Errorf("decode tool: %w", err)
	}
	return &descriptor, nil
}

func putTool(versions *bolt.Bucket, descriptor domain.ToolDescriptor) error {
	encoded, err := json.Marshal(descriptor)
	if err != nil {
		return fmt.Errorf("encode tool: %w", err)
	}
	return versions.Put(versionKey(descriptor.Version), encoded)
}

func versionKey(version int) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(version))
	return key
}

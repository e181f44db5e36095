package registry

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"

	"foundry/internal/domain"
)

// RegisterEnvironment persists a new environment. An active environment
// with an identical dependency set is rejected with
// DUPLICATE_ENVIRONMENT so callers reuse it instead of provisioning a
// twin; the existing ID travels in the error metadata.
func (s *Store) RegisterEnvironment(interpreter string, dependencies []string) (domain.EnvironmentDescriptor, error) {
	const op = "registry.RegisterEnvironment"
	if strings.TrimSpace(interpreter) == "" {
		return domain.EnvironmentDescriptor{}, domain.E(domain.CodeInvalidArgument, op, "interpreter is required", nil)
	}

	descriptor := domain.EnvironmentDescriptor{
		ID:           uuid.NewString(),
		Interpreter:  interpreter,
		Dependencies: append([]string(nil), dependencies...),
		Status:       domain.EnvironmentStatusActive,
		CreatedAt:    time.Now().UTC(),
	}
	fingerprint := dependencyFingerprint(dependencies)

	err := s.update(func(tx *bolt.Tx) error {
		fingerprints, err := bucketIn(tx, fingerprintsBucketName)
		if err != nil {
			return err
		}
		if existing := fingerprints.Get([]byte(fingerprint)); existing != nil {
			return &domain.Error{
				Code:    domain.CodeDuplicateEnvironment,
				Op:      op,
				Message: "an active environment with this dependency set already exists",
				Meta:    map[string]string{"environmentId": string(existing)},
			}
		}
		environments, err := bucketIn(tx, environmentsBucketName)
		if err != nil {
			return err
		}
		encoded, err := json.Marshal(descriptor)
		if err != nil {
			return fmt.Errorf("encode environment: %w", err)
		}
		if err := environments.Put([]byte(descriptor.ID), encoded); err != nil {
			return fmt.Errorf("write environment: %w", err)
		}
		return fingerprints.Put([]byte(fingerprint), []byte(descriptor.ID))
	})
	if err != nil {
		return domain.EnvironmentDescriptor{}, domain.Wrap(domain.CodeInternal, op, err)
	}

	s.logger.Info("environment registered",
		zap.String("environment_id", descriptor.ID),
		zap.Int("dependencies", len(descriptor.Dependencies)),
	)
	return descriptor, nil
}

// LookupEnvironment returns the descriptor for id.
func (s *Store) LookupEnvironment(id string) (domain.EnvironmentDescriptor, error) {
	const op = "registry.LookupEnvironment"
	var descriptor domain.EnvironmentDescriptor
	err := s.view(func(tx *bolt.Tx) error {
		environments, err := bucketIn(tx, environmentsBucketName)
		if err != nil {
			return err
		}
		raw := environments.Get([]byte(id))
		if raw == nil {
			return domain.E(domain.CodeNotFound, op, fmt.Sprintf("environment %s not found", id), nil)
		}
		return json.Unmarshal(raw, &descriptor)
	})
	if err != nil {
		return domain.EnvironmentDescriptor{}, domain.Wrap(domain.CodeInternal, op, err)
	}
	return descriptor, nil
}

// DeprecateEnvironment marks the environment removed. It fails with
// IN_USE while any non-deprecated tool version still references it.
func (s *Store) DeprecateEnvironment(id string) error {
	const op = "registry.DeprecateEnvironment"
	err := s.update(func(tx *bolt.Tx) error {
		environments, err := bucketIn(tx, environmentsBucketName)
		if err != nil {
			return err
		}
		raw := environments.Get([]byte(id))
		if raw == nil {
			return domain.E(domain.CodeNotFound, op, fmt.Sprintf("environment %s not found", id), nil)
		}
		var descriptor domain.EnvironmentDescriptor
		if err := json.Unmarshal(raw, &descriptor); err != nil {
			return fmt.Errorf("decode environment: %w", err)
		}

		holders, err := referencingTools(tx, id)
		if err != nil {
			return err
		}
		if len(holders) > 0 {
			return &domain.Error{
				Code:    domain.CodeInUse,
				Op:      op,
				Message: fmt.Sprintf("environment %s is referenced by %s", id, strings.Join(holders, ", ")),
			}
		}

		descriptor.Status = domain.EnvironmentStatusRemoved
		encoded, err := json.Marshal(descriptor)
		if err != nil {
			return fmt.Errorf("encode environment: %w", err)
		}
		if err := environments.Put([]byte(id), encoded); err != nil {
			return fmt.Errorf("write environment: %w", err)
		}

		fingerprints, err := bucketIn(tx, fingerprintsBucketName)
		if err != nil {
			return err
		}
		return fingerprints.Delete([]byte(dependencyFingerprint(descriptor.Dependencies)))
	})
	if err != nil {
		return domain.Wrap(domain.CodeInternal, op, err)
	}
	s.logger.Info("environment deprecated", zap.String("environment_id", id))
	return nil
}

// ListEnvironments returns every known environment, newest first.
func (s *Store) ListEnvironments() ([]domain.EnvironmentDescriptor, error) {
	const op = "registry.ListEnvironments"
	var out []domain.EnvironmentDescriptor
	err := s.view(func(tx *bolt.Tx) error {
		environments, err := bucketIn(tx, environmentsBucketName)
		if err != nil {
			return err
		}
		return environments.ForEach(func(_, value []byte) error {
			var descriptor domain.EnvironmentDescriptor
			if err := json.Unmarshal(value, &descriptor); err != nil {
				return fmt.Errorf("decode environment: %w", err)
			}
			out = append(out, descriptor)
			return nil
		})
	})
	if err != nil {
		return nil, domain.Wrap(domain.CodeInternal, op, err)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func referencingTools(tx *bolt.Tx, environmentID string) ([]string, error) {
	tools, err := bucketIn(tx, toolsBucketName)
	if err != nil {
		return nil, err
	}
	var holders []string
	err = tools.ForEachBucket(func(name []byte) error {
		versions := tools.Bucket(name)
		return versions.ForEach(func(_, value []byte) error {
			var descriptor domain.ToolDescriptor
			if err := json.Unmarshal(value, &descriptor); err != nil {
				return fmt.Errorf("decode tool: %w", err)
			}
			if descriptor.EnvironmentID == environmentID && descriptor.Status != domain.ToolStatusDeprecated {
				holders = append(holders, fmt.Sprintf("%s@v%d", descriptor.Name, descriptor.Version))
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return holders, nil
}

// dependencyFingerprint canonicalizes a dependency set: order and
// duplicates do not distinguish environments.
func dependencyFingerprint(dependencies []string) string {
	unique := make(map[string]struct{}, len(dependencies))
	for _, dep := range dependencies {
		trimmed := strings.TrimSpace(dep)
		if trimmed != "" {
			unique[trimmed] = struct{}{}
		}
	}
	sorted := make([]string, 0, len(unique))
	for dep := range unique {
		sorted = append(sorted, dep)
	}
	sort.Strings(sorted)
	sum := sha256.Sum256([]byte(strings.Join(sorted, "\n")))
	return hex.EncodeToString(sum[:])
}

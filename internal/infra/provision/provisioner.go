package provision

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"foundry/internal/domain"
	"foundry/internal/infra/registry"
)

// VenvProvisioner prepares isolated Python environments: one virtual
// environment per distinct dependency set, registered in the
// environment registry. Provisioning an already-known dependency set
// returns the existing environment instead of building a twin.
type VenvProvisioner struct {
	store           *registry.Store
	workDir         string
	baseInterpreter string
	logger          *zap.Logger
}

type Options struct {
	Store *registry.Store
	// WorkDir holds one subdirectory per virtual environment.
	WorkDir string
	// BaseInterpreter creates the virtual environments. Empty means
	// discover python3 (then python) on PATH.
	BaseInterpreter string
	Logger          *zap.Logger
}

func NewVenvProvisioner(opts Options) (*VenvProvisioner, error) {
	if opts.Store == nil {
		return nil, errors.New("provision: store is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	workDir := opts.WorkDir
	if workDir == "" {
		workDir = domain.DefaultWorkDir
	}

	base := opts.BaseInterpreter
	if base == "" {
		discovered, err := discoverInterpreter()
		if err != nil {
			return nil, err
		}
		base = discovered
	}

	return &VenvProvisioner{
		store:           opts.Store,
		workDir:         workDir,
		baseInterpreter: base,
		logger:          logger.Named("provision"),
	}, nil
}

// Provision returns an active environment holding exactly the given
// dependency set, creating and registering one when none exists.
func (p *VenvProvisioner) Provision(ctx context.Context, dependencies []string) (domain.EnvironmentDescriptor, error) {
	const op = "provision.Provision"

	if existing, ok, err := p.findExisting(dependencies); err != nil {
		return domain.EnvironmentDescriptor{}, err
	} else if ok {
		p.logger.Info("reusing environment",
			zap.String("environment_id", existing.ID),
			zap.Int("dependencies", len(dependencies)),
		)
		return existing, nil
	}

	envDir := filepath.Join(p.workDir, "envs", uuid.NewString())
	if err := os.MkdirAll(filepath.Dir(envDir), 0o755); err != nil {
		return domain.EnvironmentDescriptor{}, domain.Wrap(domain.CodeProvisionFailure, op, err)
	}

	if err := p.runStep(ctx, p.baseInterpreter, "-m", "venv", envDir); err != nil {
		p.cleanup(envDir)
		return domain.EnvironmentDescriptor{}, domain.E(domain.CodeProvisionFailure, op, "create virtual environment", err)
	}

	interpreter := venvInterpreter(envDir)
	if len(dependencies) > 0 {
		args := append([]string{"-m", "pip", "install", "--quiet"}, dependencies...)
		if err := p.runStep(ctx, interpreter, args...); err != nil {
			p.cleanup(envDir)
			return domain.EnvironmentDescriptor{}, domain.E(domain.CodeProvisionFailure, op, "install dependencies", err)
		}
	}

	descriptor, err := p.store.RegisterEnvironment(interpreter, dependencies)
	if err != nil {
		p.cleanup(envDir)
		if domain.IsCode(err, domain.CodeDuplicateEnvironment) {
			// Lost a race with a concurrent provision of the same set;
			// the winner's environment serves.
			return p.lookupWinner(err)
		}
		return domain.EnvironmentDescriptor{}, err
	}

	p.logger.Info("environment provisioned",
		zap.String("environment_id", descriptor.ID),
		zap.String("interpreter", interpreter),
		zap.Int("dependencies", len(dependencies)),
	)
	return descriptor, nil
}

func (p *VenvProvisioner) findExisting(dependencies []string) (domain.EnvironmentDescriptor, bool, error) {
	environments, err := p.store.ListEnvironments()
	if err != nil {
		return domain.EnvironmentDescriptor{}, false, err
	}
	want := canonicalDependencies(dependencies)
	for _, env := range environments {
		if env.Status != domain.EnvironmentStatusActive {
			continue
		}
		if canonicalDependencies(env.Dependencies) == want {
			return env, true, nil
		}
	}
	return domain.EnvironmentDescriptor{}, false, nil
}

func (p *VenvProvisioner) lookupWinner(registerErr error) (domain.EnvironmentDescriptor, error) {
	var domainErr *domain.Error
	if errors.As(registerErr, &domainErr) {
		if id := domainErr.Meta["environmentId"]; id != "" {
			return p.store.LookupEnvironment(id)
		}
	}
	return domain.EnvironmentDescriptor{}, registerErr
}

func (p *VenvProvisioner) runStep(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		detail := strings.TrimSpace(string(output))
		if detail == "" {
			return fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), err)
		}
		return fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, detail)
	}
	return nil
}

func (p *VenvProvisioner) cleanup(envDir string) {
	if err := os.RemoveAll(envDir); err != nil {
		p.logger.Warn("could not remove environment directory",
			zap.String("dir", envDir),
			zap.Error(err),
		)
	}
}

func discoverInterpreter() (string, error) {
	for _, candidate := range []string{"python3", "python"} {
		if path, err := exec.LookPath(candidate); err == nil {
			return path, nil
		}
	}
	return "", errors.New("provision: no python interpreter on PATH")
}

func venvInterpreter(envDir string) string {
	return filepath.Join(envDir, "bin", "python")
}

// canonicalDependencies mirrors the registry's fingerprint
// canonicalization so reuse checks and registration agree.
func canonicalDependencies(dependencies []string) string {
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
	return strings.Join(sorted, "\n")
}

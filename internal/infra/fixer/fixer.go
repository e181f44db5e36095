package fixer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"foundry/internal/domain"
	"foundry/internal/infra/registry"
)

// Manager produces fixed candidates. A fix never edits the source
// version's artifact: it derives a new artifact and config under a
// version suffix, drafts version n+1 in the registry against the same
// environment, and appends an audit record. The failed version stays
// byte-identical so a validator can always re-examine exactly what
// failed.
type Manager struct {
	store   *registry.Store
	logger  *zap.Logger
	metrics domain.Metrics
}

func NewManager(store *registry.Store, logger *zap.Logger, metrics domain.Metrics) *Manager {
	if store == nil {
		panic("fixer.Manager requires a registry store")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{store: store, logger: logger.Named("fixer"), metrics: metrics}
}

// ApplyFix applies the corrections to (name, sourceVersion) and returns
// the drafted successor.
func (m *Manager) ApplyFix(name string, sourceVersion int, corrections []domain.Correction, reason string) (domain.ToolDescriptor, error) {
	const op = "fixer.ApplyFix"
	if len(corrections) == 0 {
		return domain.ToolDescriptor{}, domain.E(domain.CodeInvalidArgument, op, "at least one correction is required", nil)
	}
	for _, correction := range corrections {
		if err := validateCorrection(correction); err != nil {
			return domain.ToolDescriptor{}, domain.Wrap(domain.CodeUnsupportedCorrection, op, err)
		}
	}

	source, err := m.store.GetVersion(name, sourceVersion)
	if err != nil {
		return domain.ToolDescriptor{}, err
	}

	content, err := os.ReadFile(source.ArtifactLocation)
	if err != nil {
		return domain.ToolDescriptor{}, domain.E(domain.CodeInternal, op,
			fmt.Sprintf("read source artifact %s", source.ArtifactLocation), err)
	}

	rewritten := string(content)
	description := source.Description
	parameters := append([]domain.Parameter(nil), source.Parameters...)

	for _, correction := range corrections {
		switch correction.Kind {
		case domain.CorrectionDescriptionRewrite:
			rewritten = rewriteDescription(rewritten, correction.Description)
			description = correction.Description
		case domain.CorrectionParameterAddition:
			rewritten = addParameters(rewritten, correction.Parameters)
			parameters = mergeParameters(parameters, correction.Parameters)
		case domain.CorrectionFunctionRename:
			rewritten = renameFunction(rewritten, correction.NewName)
		case domain.CorrectionServerRename:
			rewritten = renameServer(rewritten, correction.NewName)
		}
		if m.metrics != nil {
			m.metrics.ObserveFix(correction.Kind)
		}
	}

	newVersion := sourceVersion + 1
	artifactPath := versionedPath(source.ArtifactLocation, newVersion)
	if err := writeNewFile(artifactPath, []byte(rewritten)); err != nil {
		return domain.ToolDescriptor{}, domain.E(domain.CodeInternal, op, "write fixed artifact", err)
	}

	configPath, err := m.deriveConfig(source, artifactPath, newVersion)
	if err != nil {
		return domain.ToolDescriptor{}, err
	}

	draft, err := m.store.DraftNextVersion(name, sourceVersion, artifactPath, configPath, description, parameters)
	if err != nil {
		return domain.ToolDescriptor{}, err
	}

	record := domain.FixRecord{
		ToolName:      name,
		SourceVersion: sourceVersion,
		NewVersion:    draft.Version,
		Corrections:   corrections,
		Reason:        reason,
		CreatedAt:     time.Now().UTC(),
	}
	if err := m.store.AppendFix(record); err != nil {
		return domain.ToolDescriptor{}, err
	}

	m.logger.Info("fix applied",
		zap.String("tool", name),
		zap.Int("source_version", sourceVersion),
		zap.Int("new_version", draft.Version),
		zap.Int("corrections", len(corrections)),
		zap.String("reason", reason),
	)
	return draft, nil
}

func validateCorrection(correction domain.Correction) error {
	switch correction.Kind {
	case domain.CorrectionDescriptionRewrite:
		if strings.TrimSpace(correction.Description) == "" {
			return fmt.Errorf("%s requires a description", correction.Kind)
		}
	case domain.CorrectionParameterAddition:
		if len(correction.Parameters) == 0 {
			return fmt.Errorf("%s requires at least one parameter", correction.Kind)
		}
		for _, param := range correction.Parameters {
			if strings.TrimSpace(param.Name) == "" {
				return fmt.Errorf("%s requires named parameters", correction.Kind)
			}
		}
	case domain.CorrectionFunctionRename, domain.CorrectionServerRename:
		if strings.TrimSpace(correction.NewName) == "" {
			return fmt.Errorf("%s requires a new name", correction.Kind)
		}
	default:
		return fmt.Errorf("unrecognized correction kind %q", correction.Kind)
	}
	return nil
}

type serversConfig struct {
	MCPServers map[string]serverEntry `json:"mcpServers"`
}

type serverEntry struct {
	Command string            `json:"command"`
	Args    []string          `json:"args"`
	Env     map[string]string `json:"env,omitempty"`
}

// deriveConfig writes the successor's config next to the new artifact.
// The source config, like the source artifact, is left untouched.
func (m *Manager) deriveConfig(source domain.ToolDescriptor, artifactPath string, newVersion int) (string, error) {
	const op = "fixer.deriveConfig"

	config := serversConfig{MCPServers: map[string]serverEntry{}}
	if source.ConfigLocation != "" {
		raw, err := os.ReadFile(source.ConfigLocation)
		if err == nil {
			if err := json.Unmarshal(raw, &config); err != nil {
				return "", domain.E(domain.CodeInternal, op,
					fmt.Sprintf("decode source config %s", source.ConfigLocation), err)
			}
		}
	}
	if len(config.MCPServers) == 0 {
		env, err := m.store.LookupEnvironment(source.EnvironmentID)
		if err != nil {
			return "", err
		}
		config.MCPServers[source.Name] = serverEntry{Command: env.Interpreter}
	}
	for key, entry := range config.MCPServers {
		if len(entry.Args) == 0 {
			entry.Args = []string{artifactPath}
		} else {
			entry.Args[0] = artifactPath
		}
		config.MCPServers[key] = entry
	}

	base := source.ConfigLocation
	if base == "" {
		base = strings.TrimSuffix(artifactPath, filepath.Ext(artifactPath)) + ".json"
	}
	configPath := versionedPath(base, newVersion)
	encoded, err := json.MarshalIndent(config, "", "    ")
	if err != nil {
		return "", domain.E(domain.CodeInternal, op, "encode config", err)
	}
	if err := writeNewFile(configPath, encoded); err != nil {
		return "", domain.E(domain.CodeInternal, op, "write config", err)
	}
	return configPath, nil
}

func mergeParameters(existing []domain.Parameter, additions []domain.Parameter) []domain.Parameter {
	index := make(map[string]int, len(existing))
	for i, param := range existing {
		index[param.Name] = i
	}
	for _, addition := range additions {
		if i, ok := index[addition.Name]; ok {
			existing[i] = addition
			continue
		}
		existing = append(existing, addition)
	}
	return existing
}

// versionedPath derives the successor file name: tool.py at version 2
// becomes tool_v2.py. Prior version suffixes are stripped first so
// repeated fixes do not stack suffixes.
func versionedPath(path string, version int) string {
	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(path, ext)
	if idx := strings.LastIndex(stem, "_v"); idx > 0 {
		if isAllDigits(stem[idx+2:]) {
			stem = stem[:idx]
		}
	}
	return fmt.Sprintf("%s_v%d%s", stem, version, ext)
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// writeNewFile refuses to clobber an existing file: a version's files
// are immutable once written.
func writeNewFile(path string, content []byte) error {
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := file.Write(content); err != nil {
		_ = file.Close()
		return err
	}
	return file.Close()
}

package registry

import (
	"encoding/json"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"foundry/internal/domain"
)

// PutReport stores the report for its (name, version). A later run
// against the same version overwrites the previous report; version
// history, not report history, is the audit trail.
func (s *Store) PutReport(report domain.ValidationReport) error {
	const op = "registry.PutReport"
	err := s.update(func(tx *bolt.Tx) error {
		reports, err := bucketIn(tx, reportsBucketName)
		if err != nil {
			return err
		}
		encoded, err := json.Marshal(report)
		if err != nil {
			return fmt.Errorf("encode report: %w", err)
		}
		return reports.Put(reportKey(report.ToolName, report.Version), encoded)
	})
	return domain.Wrap(domain.CodeInternal, op, err)
}

// Report returns the stored report for (name, version).
func (s *Store) Report(name string, version int) (domain.ValidationReport, error) {
	const op = "registry.Report"
	var report *domain.ValidationReport
	err := s.view(func(tx *bolt.Tx) error {
		found, err := getReport(tx, name, version)
		if err != nil {
			return err
		}
		report = found
		return nil
	})
	if err != nil {
		return domain.ValidationReport{}, domain.Wrap(domain.CodeInternal, op, err)
	}
	if report == nil {
		return domain.ValidationReport{}, domain.E(domain.CodeNotFound, op, fmt.Sprintf("no report for %s version %d", name, version), nil)
	}
	return *report, nil
}

// AppendFix appends one fix record to the tool's history.
func (s *Store) AppendFix(record domain.FixRecord) error {
	const op = "registry.AppendFix"
	err := s.update(func(tx *bolt.Tx) error {
		fixes, err := bucketIn(tx, fixesBucketName)
		if err != nil {
			return err
		}
		perTool, err := fixes.CreateBucketIfNotExists([]byte(record.ToolName))
		if err != nil {
			return fmt.Errorf("create fix bucket: %w", err)
		}
		seq, err := perTool.NextSequence()
		if err != nil {
			return fmt.Errorf("fix sequence: %w", err)
		}
		encoded, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("encode fix record: %w", err)
		}
		return perTool.Put(versionKey(int(seq)), encoded)
	})
	return domain.Wrap(domain.CodeInternal, op, err)
}

// FixHistory returns every fix record for name in append order.
func (s *Store) FixHistory(name string) ([]domain.FixRecord, error) {
	const op = "registry.FixHistory"
	var out []domain.FixRecord
	err := s.view(func(tx *bolt.Tx) error {
		fixes, err := bucketIn(tx, fixesBucketName)
		if err != nil {
			return err
		}
		perTool := fixes.Bucket([]byte(name))
		if perTool == nil {
			return nil
		}
		return perTool.ForEach(func(_, value []byte) error {
			var record domain.FixRecord
			if err := json.Unmarshal(value, &record); err != nil {
				return fmt.Errorf("decode fix record: %w", err)
			}
			out = append(out, record)
			return nil
		})
	})
	if err != nil {
		return nil, domain.Wrap(domain.CodeInternal, op, err)
	}
	return out, nil
}

func getReport(tx *bolt.Tx, name string, version int) (*domain.ValidationReport, error) {
	reports, err := bucketIn(tx, reportsBucketName)
	if err != nil {
		return nil, err
	}
	raw := reports.Get(reportKey(name, version))
	if raw == nil {
		return nil, nil
	}
	var report domain.ValidationReport
	if err := json.Unmarshal(raw, &report); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	return &report, nil
}

func reportKey(name string, version int) []byte {
	return append(append([]byte(name), '/'), versionKey(version)...)
}

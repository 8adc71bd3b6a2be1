package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Document kinds known to the system.
const (
	KindPurchaseRequisition = "purchase_requisition"
	KindJobWorkReport       = "job_work_report"
)

// KindDescriptor tells the dispatcher whether to poll one document kind.
// Descriptors are values; the dispatcher copies the slice at construction.
type KindDescriptor struct {
	Kind    string `yaml:"kind"`
	Enabled bool   `yaml:"enabled"`
	// Subject overrides the notification subject prefix.
	Subject string `yaml:"subject,omitempty"`
}

type kindsFile struct {
	Kinds []KindDescriptor `yaml:"kinds"`
}

// DefaultKinds enables every known kind.
func DefaultKinds() []KindDescriptor {
	return []KindDescriptor{
		{Kind: KindPurchaseRequisition, Enabled: true},
		{Kind: KindJobWorkReport, Enabled: true},
	}
}

// LoadKinds reads kind descriptors from a YAML file:
//
//	kinds:
//	  - kind: purchase_requisition
//	    enabled: true
//	  - kind: job_work_report
//	    enabled: false
func LoadKinds(path string) ([]KindDescriptor, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read kinds file: %w", err)
	}
	var f kindsFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse kinds file %s: %w", path, err)
	}
	if err := validateKinds(f.Kinds); err != nil {
		return nil, fmt.Errorf("kinds file %s: %w", path, err)
	}
	return f.Kinds, nil
}

// EnabledKinds returns the kinds marked enabled, in file order.
func EnabledKinds(descriptors []KindDescriptor) []string {
	out := make([]string, 0, len(descriptors))
	for _, d := range descriptors {
		if d.Enabled {
			out = append(out, d.Kind)
		}
	}
	return out
}

func validateKinds(descriptors []KindDescriptor) error {
	if len(descriptors) == 0 {
		return errors.New("at least one document kind must be configured")
	}
	seen := make(map[string]bool, len(descriptors))
	for _, d := range descriptors {
		switch d.Kind {
		case KindPurchaseRequisition, KindJobWorkReport:
		default:
			return fmt.Errorf("unknown document kind %q", d.Kind)
		}
		if seen[d.Kind] {
			return fmt.Errorf("document kind %q listed twice", d.Kind)
		}
		seen[d.Kind] = true
	}
	return nil
}

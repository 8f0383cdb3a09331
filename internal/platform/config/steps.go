package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Phase names recognised in the authorize-steps file.
const (
	PhaseRetrieve = "Retrieve"
	PhasePersist  = "Persist"
)

// StepsFile is the YAML document configuring the authorize pipeline and the
// development fixtures served with it.
//
//	steps:
//	  Retrieve:
//	    1: consent-details
//	  Persist:
//	    1: default-persist
type StepsFile struct {
	Steps    map[string]map[int]string `yaml:"steps"`
	Accounts map[string][]string       `yaml:"accounts"`
	Consents []ConsentFixture          `yaml:"consents"`
}

// ConsentFixture seeds a consent awaiting authorization.
type ConsentFixture struct {
	ID              string `yaml:"id"`
	ClientID        string `yaml:"client_id"`
	Type            string `yaml:"type"`
	Receipt         string `yaml:"receipt"`
	AuthorizationID string `yaml:"authorization_id"`
	UserID          string `yaml:"user_id"`
}

// FileSource reads the steps file on every call so a reload picks up edits.
type FileSource struct {
	Path string
}

// Load parses the whole file.
func (s FileSource) Load() (*StepsFile, error) {
	raw, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("read steps file: %w", err)
	}
	var doc StepsFile
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse steps file %s: %w", s.Path, err)
	}
	return &doc, nil
}

// AuthorizeSteps returns the phase to ordinal to step-name mapping.
func (s FileSource) AuthorizeSteps() (map[string]map[int]string, error) {
	doc, err := s.Load()
	if err != nil {
		return nil, err
	}
	return doc.Steps, nil
}

// StaticSource serves a fixed mapping, used when no steps file is configured.
type StaticSource map[string]map[int]string

// AuthorizeSteps returns the fixed mapping.
func (s StaticSource) AuthorizeSteps() (map[string]map[int]string, error) {
	return s, nil
}

// DefaultSteps is the pipeline used when no steps file is configured.
func DefaultSteps() StaticSource {
	return StaticSource{
		PhaseRetrieve: {1: "consent-details", 2: "account-list"},
		PhasePersist:  {1: "default-persist"},
	}
}

// Package templates implements the automation template catalog: the
// file-backed bundle store, the offline indexer, lexical matching,
// workflow validation, and the compose service that ties them together.
package templates

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	MetaFileName     = "meta.yaml"
	WorkflowFileName = "workflow.json"

	defaultMaxNodes = 15
)

var (
	ErrTemplateNotFound = errors.New("template not found")

	whitespacePattern = regexp.MustCompile(`\s+`)
	nonSlugPattern    = regexp.MustCompile(`[^a-z0-9_]+`)
)

// Meta is the human-authored half of a template bundle.
type Meta struct {
	ID          string         `yaml:"id" json:"id"`
	Name        string         `yaml:"name" json:"name"`
	Intents     []string       `yaml:"intents" json:"intents"`
	Tags        []string       `yaml:"tags" json:"tags"`
	Inputs      Inputs         `yaml:"inputs" json:"inputs"`
	Outputs     map[string]any `yaml:"outputs" json:"outputs"`
	Secrets     []string       `yaml:"secrets" json:"secrets"`
	Compat      Compat         `yaml:"compat" json:"compat"`
	Constraints Constraints    `yaml:"constraints" json:"constraints"`
}

// Inputs lists the values a consumer supplies at deploy time.
type Inputs struct {
	Required []InputField `yaml:"required" json:"required"`
	Optional []InputField `yaml:"optional" json:"optional,omitempty"`
}

// InputField is one deploy-time input slot.
type InputField struct {
	Key         string `yaml:"key" json:"key"`
	Description string `yaml:"description" json:"description,omitempty"`
}

// Compat declares per-engine compatibility constraints.
type Compat struct {
	N8N EngineCompat `yaml:"n8n" json:"n8n"`
}

// EngineCompat restricts which abstract node kinds a target engine may use.
type EngineCompat struct {
	NodesWhitelist []string `yaml:"nodes_whitelist" json:"nodes_whitelist"`
}

// Constraints caps workflow size.
type Constraints struct {
	MaxNodes int `yaml:"max_nodes" json:"max_nodes"`
}

func (m Meta) maxNodes() int {
	if m.Constraints.MaxNodes > 0 {
		return m.Constraints.MaxNodes
	}
	return defaultMaxNodes
}

// Bundle pairs parsed metadata with the workflow document from one
// template directory. The workflow document is opaque beyond validation.
type Bundle struct {
	Path     string
	Meta     Meta
	Workflow map[string]any
}

// MalformedBundleError reports a bundle whose metadata or workflow
// document failed to parse or validate.
type MalformedBundleError struct {
	Dir string
	Err error
}

func (e *MalformedBundleError) Error() string {
	return fmt.Sprintf("malformed bundle %s: %v", e.Dir, e.Err)
}

func (e *MalformedBundleError) Unwrap() error { return e.Err }

// Store reads template bundles from a directory tree. Bundles are authored
// outside this system; the store is read-only at request time.
type Store struct {
	root string
}

func NewStore(root string) *Store {
	return &Store{root: root}
}

func (s *Store) Root() string { return s.root }

// DefaultStoreDir resolves the template store root from TEMPLATE_STORE_DIR
// or the repo-relative default.
func DefaultStoreDir() string {
	if env := strings.TrimSpace(os.Getenv("TEMPLATE_STORE_DIR")); env != "" {
		return env
	}
	return filepath.Join("templates_repo", "workflows")
}

// DefaultIndexPath resolves the index file location from TEMPLATE_INDEX_PATH
// or the repo-relative default.
func DefaultIndexPath() string {
	if env := strings.TrimSpace(os.Getenv("TEMPLATE_INDEX_PATH")); env != "" {
		return env
	}
	return filepath.Join("templates_repo", "index.json")
}

// LoadBundle parses the bundle at dir. The bundle id defaults to the
// slugified directory basename when the metadata leaves it unset.
func (s *Store) LoadBundle(dir string) (Bundle, error) {
	meta, err := loadMeta(filepath.Join(dir, MetaFileName))
	if err != nil {
		return Bundle{}, &MalformedBundleError{Dir: dir, Err: err}
	}

	workflow, err := LoadWorkflowDocument(filepath.Join(dir, WorkflowFileName))
	if err != nil {
		return Bundle{}, &MalformedBundleError{Dir: dir, Err: err}
	}

	if strings.TrimSpace(meta.ID) == "" {
		meta.ID = Slugify(filepath.Base(dir))
	}

	return Bundle{Path: dir, Meta: meta, Workflow: workflow}, nil
}

func loadMeta(path string) (Meta, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Meta{}, fmt.Errorf("read metadata: %w", err)
	}

	var meta Meta
	if err := yaml.Unmarshal(data, &meta); err != nil {
		return Meta{}, fmt.Errorf("decode metadata: %w", err)
	}

	if strings.TrimSpace(meta.Name) == "" {
		return Meta{}, errors.New("metadata missing name")
	}
	if meta.Intents == nil {
		meta.Intents = []string{}
	}
	if meta.Tags == nil {
		meta.Tags = []string{}
	}
	if meta.Secrets == nil {
		meta.Secrets = []string{}
	}
	if meta.Inputs.Required == nil {
		meta.Inputs.Required = []InputField{}
	}
	for i, field := range meta.Inputs.Required {
		if strings.TrimSpace(field.Key) == "" {
			return Meta{}, fmt.Errorf("required input %d missing key", i)
		}
	}
	return meta, nil
}

// LoadWorkflowDocument reads and parses a workflow JSON document.
func LoadWorkflowDocument(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workflow document: %w", err)
	}

	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode workflow document: %w", err)
	}
	return doc, nil
}

// Slugify normalizes a template name into a slug: lower-cased, whitespace
// collapsed to underscores, everything outside [a-z0-9_] stripped.
func Slugify(name string) string {
	normalized := whitespacePattern.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "_")
	return nonSlugPattern.ReplaceAllString(normalized, "")
}

package templates

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
)

var (
	ErrNoMatch    = errors.New("no template matched")
	ErrIndexStale = errors.New("workflow document drifted from its index entry; re-run the indexer")
)

// ComposeResult is the assembled answer for one compose request.
type ComposeResult struct {
	TemplateID      string         `json:"template_id"`
	Summary         string         `json:"summary"`
	WorkflowJSON    map[string]any `json:"workflow_json"`
	RequiredSecrets []string       `json:"required_secrets"`
	RequiredInputs  []string       `json:"required_inputs"`
}

// SearchResult is the ranked answer for one search query.
type SearchResult struct {
	Query   string `json:"query"`
	Results []Item `json:"results"`
}

// TemplateDetail pairs an index entry with its full workflow document.
type TemplateDetail struct {
	Meta         Item           `json:"meta"`
	WorkflowJSON map[string]any `json:"workflow_json"`
}

// CatalogStats aggregates tag and intent histograms across the index.
type CatalogStats struct {
	Count   int            `json:"count"`
	Tags    map[string]int `json:"tags"`
	Intents map[string]int `json:"intents"`
}

// HealthStatus reports service readiness. Templates is nil when the index
// has not been built yet; health itself never fails.
type HealthStatus struct {
	OK        bool `json:"ok"`
	Templates *int `json:"templates"`
}

const maxSearchResults = 20

// Composer matches a task description to the best template bundle and
// validates its workflow document before returning it. It holds no mutable
// state: every call reads the index and the store fresh, so concurrent
// requests need no locking.
type Composer struct {
	store             *Store
	indexPath         string
	validator         *Validator
	strictFingerprint bool
	logger            *slog.Logger
}

func NewComposer(store *Store, indexPath string) *Composer {
	return &Composer{
		store:     store,
		indexPath: indexPath,
		validator: NewValidator(),
		logger:    slog.Default(),
	}
}

// SetStrictFingerprint makes Compose fail with ErrIndexStale when the
// stored workflow document no longer matches its indexed fingerprint.
// Default is off: drift is logged but served.
func (c *Composer) SetStrictFingerprint(strict bool) {
	c.strictFingerprint = strict
}

// LoadIndex reads the index backing this composer.
func (c *Composer) LoadIndex() (Index, error) {
	return LoadIndex(c.indexPath)
}

// Compose picks the highest-scoring template for description, validates its
// workflow document, and assembles the response. Score 0 still wins when it
// is the best on offer; only an empty index refuses a result.
func (c *Composer) Compose(description string) (ComposeResult, error) {
	idx, err := c.LoadIndex()
	if err != nil {
		return ComposeResult{}, err
	}
	if len(idx.Items) == 0 {
		return ComposeResult{}, ErrNoMatch
	}

	best := Rank(description, idx.Items)[0]

	bundle, err := c.store.LoadBundle(best.Path)
	if err != nil {
		return ComposeResult{}, fmt.Errorf("load bundle %s: %w", best.ID, err)
	}

	hash, err := Fingerprint(bundle.Workflow)
	if err != nil {
		return ComposeResult{}, err
	}
	if best.Hash != "" && hash != best.Hash {
		c.logger.Warn("workflow document drifted from index entry",
			"template", best.ID, "indexed", best.Hash, "current", hash)
		if c.strictFingerprint {
			return ComposeResult{}, fmt.Errorf("template %s: %w", best.ID, ErrIndexStale)
		}
	}

	requiredInputs := make([]string, 0, len(bundle.Meta.Inputs.Required))
	for _, field := range bundle.Meta.Inputs.Required {
		requiredInputs = append(requiredInputs, field.Key)
	}
	requiredSecrets := bundle.Meta.Secrets
	if requiredSecrets == nil {
		requiredSecrets = []string{}
	}

	err = c.validator.Validate(bundle.Workflow, bundle.Meta.Compat.N8N.NodesWhitelist, bundle.Meta.maxNodes())
	if err != nil {
		return ComposeResult{}, err
	}

	return ComposeResult{
		TemplateID:      best.ID,
		Summary:         composeSummary(best.Name, requiredSecrets, requiredInputs),
		WorkflowJSON:    bundle.Workflow,
		RequiredSecrets: requiredSecrets,
		RequiredInputs:  requiredInputs,
	}, nil
}

// Search returns up to 20 positively scored items, best first. An empty
// query scores nothing; callers serve the full index for that case.
func (c *Composer) Search(query string) (SearchResult, error) {
	idx, err := c.LoadIndex()
	if err != nil {
		return SearchResult{}, err
	}

	results := make([]Item, 0, maxSearchResults)
	for _, scored := range scoreAll(query, idx.Items) {
		if scored.score <= 0 {
			break
		}
		results = append(results, scored.item)
		if len(results) == maxSearchResults {
			break
		}
	}
	return SearchResult{Query: query, Results: results}, nil
}

// GetTemplate looks up one template by id and loads its workflow document
// fresh from the store.
func (c *Composer) GetTemplate(id string) (TemplateDetail, error) {
	idx, err := c.LoadIndex()
	if err != nil {
		return TemplateDetail{}, err
	}

	for _, item := range idx.Items {
		if item.ID != id {
			continue
		}
		doc, err := LoadWorkflowDocument(filepath.Join(item.Path, WorkflowFileName))
		if err != nil {
			return TemplateDetail{}, fmt.Errorf("load workflow for %s: %w", id, err)
		}
		return TemplateDetail{Meta: item, WorkflowJSON: doc}, nil
	}
	return TemplateDetail{}, ErrTemplateNotFound
}

// Stats aggregates tag and intent histograms across the index.
func (c *Composer) Stats() (CatalogStats, error) {
	idx, err := c.LoadIndex()
	if err != nil {
		return CatalogStats{}, err
	}

	stats := CatalogStats{
		Count:   idx.Count,
		Tags:    map[string]int{},
		Intents: map[string]int{},
	}
	for _, item := range idx.Items {
		for _, tag := range item.Tags {
			stats.Tags[tag]++
		}
		for _, intent := range item.Intents {
			stats.Intents[intent]++
		}
	}
	return stats, nil
}

// Health reports readiness; a missing index yields a nil template count,
// not an error.
func (c *Composer) Health() HealthStatus {
	status := HealthStatus{OK: true}
	if idx, err := c.LoadIndex(); err == nil {
		count := idx.Count
		status.Templates = &count
	}
	return status
}

func composeSummary(name string, secrets, inputs []string) string {
	secretList := "none"
	if len(secrets) > 0 {
		secretList = strings.Join(secrets, ", ")
	}
	inputList := "none"
	if len(inputs) > 0 {
		inputList = strings.Join(inputs, ", ")
	}
	return fmt.Sprintf("n8n workflow generated from template %q. Provision these environment secrets: %s. Supply these inputs: %s.",
		name, secretList, inputList)
}

package templates

import (
	"fmt"
	"regexp"
	"strings"
)

// nodeTypeWhitelist maps abstract node kinds declared in bundle metadata to
// the concrete n8n node type strings they resolve to. Unknown keys are
// silently dropped from the resolved allow-list.
var nodeTypeWhitelist = map[string]string{
	"cron":         "n8n-nodes-base.cron",
	"rssFeedRead":  "n8n-nodes-base.rssFeedRead",
	"telegram":     "n8n-nodes-base.telegram",
	"httpRequest":  "n8n-nodes-base.httpRequest",
	"googleSheets": "n8n-nodes-base.googleSheets",
	"if":           "n8n-nodes-base.if",
	"function":     "n8n-nodes-base.function",
	"webhook":      "n8n-nodes-base.webhook",
}

// envPlaceholderMarker denotes deployment-time environment substitution and
// exempts a string from the secret-leak heuristic.
const envPlaceholderMarker = "={{$env."

// Validation rule identifiers carried by ValidationError.
const (
	RuleNodesMissing       = "nodes_missing"
	RuleConnectionsMissing = "connections_missing"
	RuleTooManyNodes       = "too_many_nodes"
	RuleNodeShape          = "node_shape"
	RuleDuplicateNodeID    = "duplicate_node_id"
	RuleNodeTypeNotAllowed = "node_type_not_allowed"
	RulePlainSecret        = "plain_secret"
)

// ValidationError reports the specific rule a workflow document violated.
type ValidationError struct {
	Rule   string
	Detail string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation_error: %s: %s", e.Rule, e.Detail)
}

// SecretScanner decides whether a string value looks like a literal
// credential committed into a template.
type SecretScanner func(value string) bool

var secretRunPattern = regexp.MustCompile(`[A-Za-z0-9]{20,}`)

// DefaultSecretScanner flags strings longer than 20 characters that contain
// a run of 20 or more alphanumerics, unless they carry the env placeholder
// marker. Best effort: long non-secret identifiers can false-positive.
func DefaultSecretScanner(value string) bool {
	if strings.Contains(value, envPlaceholderMarker) {
		return false
	}
	return len(value) > 20 && secretRunPattern.MatchString(value)
}

// Validator checks candidate workflow documents for structural soundness, a
// closed set of permitted node types, and absence of embedded literal
// secrets. The secret heuristic is a strategy so stricter detection can be
// swapped in without touching the control flow.
type Validator struct {
	ScanSecret SecretScanner
}

func NewValidator() *Validator {
	return &Validator{ScanSecret: DefaultSecretScanner}
}

// Validate runs all checks in order; the first violation fails the
// document. An empty resolved allow-list disables the node-type check.
func (v *Validator) Validate(doc map[string]any, nodesWhitelist []string, maxNodes int) error {
	rawNodes, present := doc["nodes"]
	nodes, isList := rawNodes.([]any)
	if !present || !isList || len(nodes) == 0 {
		return &ValidationError{Rule: RuleNodesMissing, Detail: "nodes missing or empty"}
	}
	if _, ok := doc["connections"]; !ok {
		return &ValidationError{Rule: RuleConnectionsMissing, Detail: "connections missing"}
	}
	if len(nodes) > maxNodes {
		return &ValidationError{
			Rule:   RuleTooManyNodes,
			Detail: fmt.Sprintf("too many nodes: %d > %d", len(nodes), maxNodes),
		}
	}

	allowed := resolveAllowList(nodesWhitelist)
	seenIDs := make(map[string]struct{}, len(nodes))
	for i, rawNode := range nodes {
		node, ok := rawNode.(map[string]any)
		if !ok {
			return &ValidationError{Rule: RuleNodeShape, Detail: fmt.Sprintf("node %d is not an object", i)}
		}
		position, ok := node["position"].([]any)
		if !ok || len(position) != 2 {
			return &ValidationError{Rule: RuleNodeShape, Detail: fmt.Sprintf("node %d position invalid", i)}
		}
		if name, _ := node["name"].(string); name == "" {
			return &ValidationError{Rule: RuleNodeShape, Detail: fmt.Sprintf("node %d missing name", i)}
		}
		id, _ := node["id"].(string)
		if id == "" {
			return &ValidationError{Rule: RuleNodeShape, Detail: fmt.Sprintf("node %d missing id", i)}
		}
		if _, dup := seenIDs[id]; dup {
			return &ValidationError{Rule: RuleDuplicateNodeID, Detail: fmt.Sprintf("duplicate node id %q", id)}
		}
		seenIDs[id] = struct{}{}

		if len(allowed) > 0 {
			nodeType, _ := node["type"].(string)
			if _, ok := allowed[nodeType]; !ok {
				return &ValidationError{
					Rule:   RuleNodeTypeNotAllowed,
					Detail: fmt.Sprintf("node type not allowed: %s", nodeType),
				}
			}
		}
	}

	scan := v.ScanSecret
	if scan == nil {
		scan = DefaultSecretScanner
	}
	if containsPlainSecret(doc, scan) {
		return &ValidationError{
			Rule:   RulePlainSecret,
			Detail: "plain secrets detected; use env placeholders like ={{$env.SECRET}}",
		}
	}
	return nil
}

func resolveAllowList(keys []string) map[string]struct{} {
	allowed := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		if concrete, ok := nodeTypeWhitelist[key]; ok {
			allowed[concrete] = struct{}{}
		}
	}
	return allowed
}

func containsPlainSecret(value any, scan SecretScanner) bool {
	switch v := value.(type) {
	case string:
		return scan(v)
	case map[string]any:
		for _, nested := range v {
			if containsPlainSecret(nested, scan) {
				return true
			}
		}
	case []any:
		for _, nested := range v {
			if containsPlainSecret(nested, scan) {
				return true
			}
		}
	}
	return false
}

package safety

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"

	"github.com/aegismesh/aegis-meta/internal/models"
)

// redactionMarker replaces unsafe substrings in free text.
const redactionMarker = "[REMOVED]"

// Rule identifiers used in the activity report.
const (
	ruleAllowList       = "allow_list"
	ruleProtectedTarget = "protected_resource"
	ruleReplicaBounds   = "replica_bounds"
	ruleUnsafePattern   = "unsafe_pattern"
	ruleDangerousAction = "dangerous_action"
)

// unsafePatterns match shell and SQL fragments that must never reach an
// executing agent.
var unsafePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)delete\s+(service|deployment|pod|namespace)`),
	regexp.MustCompile(`(?i)rm\s+-rf`),
	regexp.MustCompile(`(?i)format\s+disk`),
	regexp.MustCompile(`(?i)shutdown\s+all`),
	regexp.MustCompile(`(?i)kill\s+all`),
	regexp.MustCompile(`(?i)drop\s+database`),
	regexp.MustCompile(`(?i)truncate\s+table`),
}

// dangerousActions are rejected outright regardless of confidence.
var dangerousActions = map[models.Action]struct{}{
	"delete_service":    {},
	"delete_deployment": {},
	"delete_namespace":  {},
	"delete_pod":        {},
	"drop_database":     {},
	"format_disk":       {},
	"shutdown_all":      {},
}

// deletionKeywords mark an action as destructive toward its target resource.
var deletionKeywords = []string{"delete", "remove", "drop", "destroy", "kill"}

// Verdict is the outcome of validating one proposed action. Action and Params
// carry the corrected values; on a clean pass they equal the inputs.
type Verdict struct {
	OK      bool
	Warning string
	Action  models.Action
	Params  map[string]any
}

// Report aggregates validator activity since construction.
type Report struct {
	Validations int
	Corrections int
	Rejections  int
	RuleHits    map[string]int
}

// Validator enforces the static action policy. Policy swaps (hot reload) and
// validation may run concurrently.
type Validator struct {
	logger *slog.Logger

	mu        sync.RWMutex
	policy    Policy
	allowed   map[models.Action]struct{}
	protected []string

	statsMu     sync.Mutex
	validations int
	corrections int
	rejections  int
	ruleHits    map[string]int
}

// NewValidator creates a validator enforcing the given policy.
func NewValidator(policy Policy, logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	v := &Validator{
		logger:   logger,
		ruleHits: make(map[string]int),
	}
	v.SetPolicy(policy)
	return v
}

// SetPolicy swaps the active policy. Derived lookup structures are rebuilt so
// validation never sees a half-applied policy.
func (v *Validator) SetPolicy(policy Policy) {
	allowed := make(map[models.Action]struct{}, len(policy.AllowedActions))
	for _, action := range policy.AllowedActions {
		allowed[action] = struct{}{}
	}
	protected := make([]string, len(policy.ProtectedResources))
	for i, name := range policy.ProtectedResources {
		protected[i] = strings.ToLower(name)
	}

	v.mu.Lock()
	v.policy = policy
	v.allowed = allowed
	v.protected = protected
	v.mu.Unlock()
}

// Policy returns a snapshot of the active policy.
func (v *Validator) Policy() Policy {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.policy
}

// ValidateAction checks a proposed action against every rule in order. The
// first violated rule supplies the warning; corrections from all rules apply.
func (v *Validator) ValidateAction(action models.Action, params map[string]any) Verdict {
	v.mu.RLock()
	allowed := v.allowed
	protected := v.protected
	minReplicas := v.policy.MinReplicas
	maxReplicas := v.policy.MaxReplicas
	v.mu.RUnlock()

	verdict := Verdict{OK: true, Action: action, Params: cloneParams(params)}
	var warnings []string
	var hits []string
	fail := func(rule, warning string) {
		warnings = append(warnings, warning)
		hits = append(hits, rule)
	}

	if _, ok := allowed[action]; !ok {
		fail(ruleAllowList, fmt.Sprintf("action %q is not in the allowed actions list", action))
		verdict.Action = models.ActionDoNothing
	}

	if isDeletionAction(action) {
		if name := protectedResourceName(params, protected); name != "" {
			fail(ruleProtectedTarget, fmt.Sprintf("cannot delete protected resource %q", name))
			verdict.Action = models.ActionDoNothing
		}
	}

	if strings.Contains(string(action), "scale") {
		target := intParam(params, "target_replicas", "replicas")
		switch {
		case target > maxReplicas:
			verdict.Params["target_replicas"] = maxReplicas
			fail(ruleReplicaBounds, fmt.Sprintf("target replicas %d exceeds maximum %d", target, maxReplicas))
		case target < minReplicas:
			verdict.Params["target_replicas"] = minReplicas
			fail(ruleReplicaBounds, fmt.Sprintf("target replicas %d below minimum %d", target, minReplicas))
		}
	}

	if containsUnsafePattern(fmt.Sprintf("%v", params)) {
		fail(ruleUnsafePattern, "action parameters contain unsafe instructions")
		verdict.Action = models.ActionDoNothing
	}

	if _, ok := dangerousActions[action]; ok {
		fail(ruleDangerousAction, fmt.Sprintf("dangerous action %q is never allowed", action))
		verdict.Action = models.ActionDoNothing
	}

	if len(warnings) > 0 {
		verdict.OK = false
		verdict.Warning = warnings[0]
	}

	v.statsMu.Lock()
	v.validations++
	for _, rule := range hits {
		v.ruleHits[rule]++
	}
	v.statsMu.Unlock()

	return verdict
}

// ApplySafetyChecks validates a decision's action, folds in any corrections,
// clamps confidence, and redacts free text. The returned decision always has
// SafetyChecked set and IsSafe consistent with SafetyCorrected.
func (v *Validator) ApplySafetyChecks(decision models.Decision, state models.SystemState) models.Decision {
	verdict := v.ValidateAction(decision.Action, decision.Params)

	out := decision
	out.Params = verdict.Params
	if !verdict.OK {
		rejected := verdict.Action != decision.Action
		out.Action = verdict.Action
		out.SafetyCorrected = true
		out.SafetyWarning = verdict.Warning

		v.logger.Warn("safety correction applied",
			"action", decision.Action,
			"corrected_action", verdict.Action,
			"warning", verdict.Warning,
			"replicas", state.Replicas,
		)

		v.statsMu.Lock()
		v.corrections++
		if rejected {
			v.rejections++
		}
		v.statsMu.Unlock()
	}

	out.Confidence = clamp01(out.Confidence)

	v.mu.RLock()
	maxText := v.policy.MaxTextLength
	v.mu.RUnlock()
	if len(out.Recommendations) > 0 {
		recs := make([]models.Recommendation, len(out.Recommendations))
		copy(recs, out.Recommendations)
		for i := range recs {
			recs[i].Reasoning = sanitizeText(recs[i].Reasoning, maxText)
		}
		out.Recommendations = recs
	}

	out.SafetyChecked = true
	out.IsSafe = !out.SafetyCorrected
	return out
}

// Report snapshots the validator's activity counters.
func (v *Validator) Report() Report {
	v.statsMu.Lock()
	defer v.statsMu.Unlock()

	hits := make(map[string]int, len(v.ruleHits))
	for rule, count := range v.ruleHits {
		hits[rule] = count
	}
	return Report{
		Validations: v.validations,
		Corrections: v.corrections,
		Rejections:  v.rejections,
		RuleHits:    hits,
	}
}

func isDeletionAction(action models.Action) bool {
	name := strings.ToLower(string(action))
	for _, keyword := range deletionKeywords {
		if strings.Contains(name, keyword) {
			return true
		}
	}
	return false
}

// protectedResourceName returns the target resource name when it matches a
// protected substring, empty otherwise.
func protectedResourceName(params map[string]any, protected []string) string {
	name, _ := params["resource_name"].(string)
	if name == "" {
		return ""
	}
	lowered := strings.ToLower(name)
	for _, substr := range protected {
		if substr != "" && strings.Contains(lowered, substr) {
			return name
		}
	}
	return ""
}

func containsUnsafePattern(text string) bool {
	for _, pattern := range unsafePatterns {
		if pattern.MatchString(text) {
			return true
		}
	}
	return false
}

// sanitizeText redacts unsafe substrings and truncates to maxLen.
func sanitizeText(text string, maxLen int) string {
	for _, pattern := range unsafePatterns {
		text = pattern.ReplaceAllString(text, redactionMarker)
	}
	if maxLen > 0 && len(text) > maxLen {
		text = text[:maxLen] + "..."
	}
	return text
}

// intParam reads the first present key as an integer, tolerating the numeric
// types JSON decoding produces. Missing keys yield zero.
func intParam(params map[string]any, keys ...string) int {
	for _, key := range keys {
		raw, ok := params[key]
		if !ok {
			continue
		}
		switch value := raw.(type) {
		case int:
			return value
		case int64:
			return int(value)
		case float64:
			return int(value)
		case float32:
			return int(value)
		}
	}
	return 0
}

func cloneParams(params map[string]any) map[string]any {
	out := make(map[string]any, len(params)+1)
	for key, value := range params {
		out[key] = value
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

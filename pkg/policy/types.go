package policy

import (
	"time"
)

// Severity represents the severity level of a policy violation.
type Severity string

const (
	// SeverityInfo is for informational messages.
	SeverityInfo Severity = "info"

	// SeverityWarning is for warnings that should be reviewed.
	SeverityWarning Severity = "warning"

	// SeverityError is for violations that block the transaction.
	SeverityError Severity = "error"
)

// Policy represents a policy rule with its Rego code.
type Policy struct {
	// Name is the unique name of the policy.
	Name string `json:"name"`

	// Description provides a human-readable description.
	Description string `json:"description"`

	// Rego contains the Rego policy code.
	Rego string `json:"rego"`

	// Severity is the default severity for violations.
	Severity Severity `json:"severity"`

	// Enabled indicates if the policy is active.
	Enabled bool `json:"enabled"`

	// Tags are labels for organizing policies.
	Tags []string `json:"tags,omitempty"`

	// Source is the file the policy was loaded from, if any.
	Source string `json:"source,omitempty"`

	// LoadedAt is when the policy was loaded or compiled.
	LoadedAt time.Time `json:"loaded_at"`
}

// Violation represents a single policy violation.
type Violation struct {
	// Policy is the name of the policy that was violated.
	Policy string `json:"policy"`

	// Package is the plan node the violation applies to, if any.
	Package string `json:"package,omitempty"`

	// Message is a human-readable violation message.
	Message string `json:"message"`

	// Severity is the violation severity level.
	Severity Severity `json:"severity"`
}

// Result represents the outcome of evaluating policies against a plan.
type Result struct {
	// Allowed indicates if the plan may proceed. False when any
	// violation carries error severity.
	Allowed bool `json:"allowed"`

	// Violations lists blocking violations.
	Violations []Violation `json:"violations,omitempty"`

	// Warnings lists non-blocking violations.
	Warnings []Violation `json:"warnings,omitempty"`

	// EvaluatedPolicies lists the names of policies that ran.
	EvaluatedPolicies []string `json:"evaluated_policies"`

	// EvaluatedAt is when the evaluation happened.
	EvaluatedAt time.Time `json:"evaluated_at"`

	// Duration is how long the evaluation took.
	Duration time.Duration `json:"duration"`
}

// NodeInput is the policy view of one plan node and its recipe.
type NodeInput struct {
	// Name is the package name.
	Name string `json:"name"`

	// Version is the chosen version string.
	Version string `json:"version"`

	// Action is install, upgrade, or remove.
	Action string `json:"action"`

	// Network indicates the recipe declared network access.
	Network bool `json:"network"`

	// Steps are the recipe's build commands.
	Steps []string `json:"steps,omitempty"`

	// Output is the recipe's declared output directory.
	Output string `json:"output,omitempty"`

	// Dependencies lists the recipe's constraints.
	Dependencies []DependencyInput `json:"dependencies,omitempty"`
}

// DependencyInput is one dependency constraint as seen by policies.
type DependencyInput struct {
	// Name is the dependency package name.
	Name string `json:"name"`

	// Constraint is the rendered constraint expression. Empty means
	// any version.
	Constraint string `json:"constraint"`
}

// Input is the document handed to every policy evaluation.
type Input struct {
	// Node is the plan node under evaluation, when evaluating
	// per-node policies.
	Node *NodeInput `json:"node,omitempty"`

	// Plan is the full set of plan nodes, when evaluating plan-wide
	// policies.
	Plan []NodeInput `json:"plan,omitempty"`

	// Context carries evaluation metadata.
	Context *Context `json:"context"`
}

// Context provides metadata for policy evaluation.
type Context struct {
	// Operation is the evaluation phase, currently always "plan".
	Operation string `json:"operation"`

	// Timestamp is when the evaluation is occurring.
	Timestamp time.Time `json:"timestamp"`
}

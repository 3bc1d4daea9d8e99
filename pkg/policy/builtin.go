package policy

import (
	"time"
)

// GetBuiltinPolicies returns all built-in policies.
func GetBuiltinPolicies() []Policy {
	return []Policy{
		undeclaredNetworkPolicy(),
		absoluteOutputPolicy(),
		unpinnedConstraintPolicy(),
		massRemovalPolicy(),
	}
}

// undeclaredNetworkPolicy denies recipes whose build steps reach for
// the network without declaring it.
func undeclaredNetworkPolicy() Policy {
	return Policy{
		Name:        "undeclared-network",
		Description: "Denies build steps that use network tools when the recipe does not declare network access",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"sandbox", "network"},
		LoadedAt:    time.Now(),
		Rego: `package storm.policies.network

import rego.v1

network_commands := ["curl", "wget", "nc", "scp", "rsync", "ftp"]

deny contains violation if {
	input.node
	node := input.node
	not node.network

	some step in node.steps
	some cmd in network_commands
	regex.match(sprintf("(^|[^a-zA-Z0-9_-])%s([^a-zA-Z0-9_-]|$)", [cmd]), step)

	violation := {
		"message": sprintf("step uses %s but recipe %s does not declare network access", [cmd, node.name]),
		"severity": "error",
		"package": node.name,
	}
}

deny contains violation if {
	input.node
	node := input.node
	not node.network

	some step in node.steps
	regex.match("(^|[^a-zA-Z0-9_-])git( +)(clone|fetch|pull)", step)

	violation := {
		"message": sprintf("step fetches over git but recipe %s does not declare network access", [node.name]),
		"severity": "error",
		"package": node.name,
	}
}`,
	}
}

// absoluteOutputPolicy denies recipes whose output escapes the
// sandbox scratch area.
func absoluteOutputPolicy() Policy {
	return Policy{
		Name:        "absolute-output",
		Description: "Denies recipe output directories that are absolute or traverse upward",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"sandbox", "paths"},
		LoadedAt:    time.Now(),
		Rego: `package storm.policies.output

import rego.v1

deny contains violation if {
	input.node
	node := input.node
	node.action != "remove"

	startswith(node.output, "/")

	violation := {
		"message": sprintf("recipe %s declares absolute output path %s", [node.name, node.output]),
		"severity": "error",
		"package": node.name,
	}
}

deny contains violation if {
	input.node
	node := input.node
	node.action != "remove"

	some part in split(node.output, "/")
	part == ".."

	violation := {
		"message": sprintf("recipe %s output path %s traverses upward", [node.name, node.output]),
		"severity": "error",
		"package": node.name,
	}
}

deny contains violation if {
	input.node
	node := input.node
	node.action != "remove"

	node.output == ""

	violation := {
		"message": sprintf("recipe %s declares no output directory", [node.name]),
		"severity": "error",
		"package": node.name,
	}
}`,
	}
}

// unpinnedConstraintPolicy warns when a dependency accepts any version.
func unpinnedConstraintPolicy() Policy {
	return Policy{
		Name:        "unpinned-constraint",
		Description: "Warns when a recipe dependency carries no version constraint",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"dependencies", "hygiene"},
		LoadedAt:    time.Now(),
		Rego: `package storm.policies.constraints

import rego.v1

deny contains violation if {
	input.node
	node := input.node

	some dep in node.dependencies
	dep.constraint == ""

	violation := {
		"message": sprintf("recipe %s does not pin dependency %s", [node.name, dep.name]),
		"severity": "warning",
		"package": node.name,
	}
}`,
	}
}

// massRemovalPolicy warns when a single plan removes many packages,
// which usually means an unintended cascade.
func massRemovalPolicy() Policy {
	return Policy{
		Name:        "mass-removal",
		Description: "Warns when a plan removes more than five packages at once",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"removal", "safety"},
		LoadedAt:    time.Now(),
		Rego: `package storm.policies.removal

import rego.v1

deny contains violation if {
	input.plan

	remove_count := count([n |
		some n in input.plan
		n.action == "remove"
	])
	remove_count > 5

	violation := {
		"message": sprintf("plan removes %d packages, review the cascade", [remove_count]),
		"severity": "warning",
	}
}`,
	}
}

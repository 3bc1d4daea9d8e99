// Package policy provides Open Policy Agent (OPA) integration for storm.
//
// Build plans are checked against Rego policies before the coordinator
// executes them. The package ships built-in policies for sandbox and
// dependency hygiene and supports loading custom policies from disk
// with hot reload.
//
// # Usage
//
// Creating a policy engine and checking a plan:
//
//	engine, err := policy.NewEngine(logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	result, err := engine.EvaluatePlan(ctx, plan, recipes)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !result.Allowed {
//	    for _, v := range result.Violations {
//	        fmt.Printf("policy %s: %s\n", v.Policy, v.Message)
//	    }
//	}
//
// # Built-in Policies
//
//  1. undeclared-network - Denies build steps that use network tools
//     when the recipe does not declare network access
//  2. absolute-output - Denies output directories that are absolute or
//     traverse upward out of the sandbox scratch area
//  3. unpinned-constraint - Warns when a dependency accepts any version
//  4. mass-removal - Warns when one plan removes many packages
//
// # Custom Policies
//
// Custom policies are Rego files loaded from configured paths. A deny
// rule receives the plan node (or the whole plan) as input:
//
//	package storm.policies.sudo
//
//	import rego.v1
//
//	deny contains violation if {
//	    input.node
//	    some step in input.node.steps
//	    contains(step, "sudo")
//	    violation := {
//	        "message": sprintf("recipe %s runs sudo", [input.node.name]),
//	        "severity": "error",
//	        "package": input.node.name,
//	    }
//	}
//
// A violation with "error" severity blocks the transaction; "warning"
// and "info" are reported but do not block.
//
// # Hot Reload
//
// The loader watches policy files for changes and reloads them:
//
//	loader := policy.NewLoader(logger)
//	err = loader.Watch(ctx, paths, func([]policy.Policy) error {
//	    return engine.LoadPolicies(ctx, paths)
//	})
package policy

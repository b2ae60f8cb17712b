// Package task maps pipeline agent work to LLM model tiers.
//
// Heavyweight reasoning (architecture breakdowns, technical specs, PRDs)
// runs on the thinking tier; classification runs on the fast tier; drafting,
// review, and codegen use the default tier.
//
// Example usage:
//
//	model := task.SelectModel(task.Architecture)
package task

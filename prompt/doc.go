// Package prompt loads and renders the pipeline's prompt templates.
//
// Every agent prompt ships embedded in the binary and can be overridden
// per project by dropping a file with the same name into
// .factory/prompts/ or prompts/.
//
// Example usage:
//
//	loader := prompt.NewLoader(projectDir)
//	text, err := loader.Render("classifier", map[string]any{
//	    "Task": "Add patient intake form",
//	})
package prompt

// internal/engine/action.go
package engine

import (
	"fmt"
	"regexp"

	"github.com/meridianworks/rulegate/internal/types"
)

/*
 * Action helpers: template rendering and kind classification.
 *
 * Message templates use {name} placeholders resolved from the context's
 * template variables. Unresolved placeholders render as their literal
 * placeholder text rather than failing, so the dispatcher never errors on a
 * malformed template; the literal text in the output is the administrator's
 * signal that a variable is missing.
 */

var placeholderPattern = regexp.MustCompile(`\{[a-zA-Z0-9_]+\}`)

// RenderTemplate substitutes {name} placeholders from vars. Unknown
// placeholders are left literal. Guaranteed not to error.
func RenderTemplate(template string, vars map[string]any) string {
	if template == "" || len(vars) == 0 {
		return template
	}
	return placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		name := match[1 : len(match)-1]
		value, ok := vars[name]
		if !ok {
			return match
		}
		return fmt.Sprintf("%v", value)
	})
}

// isLogging reports whether the kind is a logging action. Logging actions
// run even after a prevent halted the rest of a rule's action list.
func isLogging(kind types.ActionKind) bool {
	return kind == types.ActionLogAudit || kind == types.ActionLogCustom
}

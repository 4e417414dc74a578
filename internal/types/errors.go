package types

import "errors"

// Sentinel errors for rulegate operations.
var (
	// ErrUnknownEntityKind indicates an entity kind name outside the closed enum.
	ErrUnknownEntityKind = errors.New("unknown entity kind")

	// ErrUnknownEnumValue indicates a wire name that maps to no enum constant.
	ErrUnknownEnumValue = errors.New("unknown enum value")

	// ErrEmptyConditionTree indicates a rule with no condition nodes.
	// Authoring error: the rule is treated as non-matching, never "always true".
	ErrEmptyConditionTree = errors.New("condition tree is empty")

	// ErrPathTooDeep indicates a field path exceeds MaxPathDepth.
	ErrPathTooDeep = errors.New("field path exceeds maximum depth")

	// ErrInvalidPath indicates a malformed traversal (empty segment, relation
	// flag on the terminal segment, or attribute flag mid-path).
	ErrInvalidPath = errors.New("invalid field path")

	// ErrTooManyInValues indicates an in_list operator exceeds MaxInListValues.
	ErrTooManyInValues = errors.New("in_list operator has too many values")

	// ErrTreeTooLarge indicates a condition tree exceeds MaxConditionNodes or MaxTreeDepth.
	ErrTreeTooLarge = errors.New("condition tree exceeds size limits")

	// ErrInvalidPattern indicates a regex operator with an uncompilable pattern.
	ErrInvalidPattern = errors.New("invalid regex pattern")

	// ErrInvalidOperator indicates an operator with malformed operands
	// (e.g. between without exactly two bounds).
	ErrInvalidOperator = errors.New("invalid operator usage")

	// ErrCatalogUnavailable indicates the rule catalog could not be loaded.
	// Surfaced to the caller explicitly: proceeding without governance would
	// be unsafe in this domain.
	ErrCatalogUnavailable = errors.New("rule catalog unavailable")

	// ErrOverrideNotFound indicates an unknown override request ID.
	ErrOverrideNotFound = errors.New("override request not found")

	// ErrOverrideResolved indicates a transition on an already-resolved request.
	ErrOverrideResolved = errors.New("override request already resolved")

	// ErrNotAuthorized indicates the actor may not approve or reject the request.
	ErrNotAuthorized = errors.New("actor not authorized")
)

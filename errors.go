package arxml

import (
	"github.com/pkg/errors"
)

// Error kinds returned by the element tree engine. Callers match them with
// errors.Is; the returned errors wrap the kind with the failing context.
var (
	// ErrInvalidStructure is returned when the schema forbids a placement,
	// an attribute or a content operation.
	ErrInvalidStructure = errors.New("invalid structure")
	// ErrDuplicateItemName is returned when an identifier would collide
	// with an existing path.
	ErrDuplicateItemName = errors.New("duplicate item name")
	// ErrInvalidPosition is returned for out-of-range or schema-illegal positions.
	ErrInvalidPosition = errors.New("invalid position")
	// ErrTypeMismatch is returned when a value does not satisfy the declared
	// character data kind or its restrictions.
	ErrTypeMismatch = errors.New("type mismatch")
	// ErrParse is returned when a string cannot be coerced to the declared kind.
	ErrParse = errors.New("parse error")
	// ErrNotIdentifiable is returned when an operation needs an item name
	// that the element type does not have.
	ErrNotIdentifiable = errors.New("element is not identifiable")
	// ErrPathResolutionFailed is returned when a path has no element.
	ErrPathResolutionFailed = errors.New("path resolution failed")
	// ErrInvalidReference is returned for unset, dangling or incompatible references.
	ErrInvalidReference = errors.New("invalid reference")
	// ErrCycleDetected is returned when a move would place an element inside itself.
	ErrCycleDetected = errors.New("cycle detected")
	// ErrDetachedElement is returned when an element handle no longer
	// refers to a live element of its model.
	ErrDetachedElement = errors.New("detached element")
	// ErrInvalidFile is returned for files that belong to another model,
	// were removed, or whose name is already taken.
	ErrInvalidFile = errors.New("invalid file")
)

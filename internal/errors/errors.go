// Package errors provides centralized error handling with categories that
// drive the detection loop's continue-or-abort policy.
package errors

import (
	stderrors "errors"
	"fmt"
	"maps"
	"time"
)

// ErrorCategory represents the type of error for better categorization.
type ErrorCategory string

const (
	CategoryDeviceUnavailable ErrorCategory = "device-unavailable"
	CategoryAudioStream       ErrorCategory = "audio-stream"
	CategoryFeatureExtraction ErrorCategory = "feature-extraction"
	CategoryShapeMismatch     ErrorCategory = "shape-mismatch"
	CategoryModelInit         ErrorCategory = "model-initialization"
	CategoryModelLoad         ErrorCategory = "model-loading"
	CategoryLabelLoad         ErrorCategory = "label-loading"
	CategoryValidation        ErrorCategory = "validation"
	CategoryConfiguration     ErrorCategory = "configuration"
	CategoryFileIO            ErrorCategory = "file-io"
	CategoryHTTP              ErrorCategory = "http-request"
	CategoryGeneric           ErrorCategory = "generic"
)

// EnhancedError wraps an error with component, category and context metadata.
type EnhancedError struct {
	Err       error          // Original error
	Component string         // Component where the error occurred
	Category  ErrorCategory  // Error category for grouping
	Context   map[string]any // Additional context data
	Timestamp time.Time      // When the error occurred
}

// Error implements the error interface.
func (ee *EnhancedError) Error() string {
	return ee.Err.Error()
}

// Unwrap implements the error unwrapping interface.
func (ee *EnhancedError) Unwrap() error {
	return ee.Err
}

// Is matches two enhanced errors by category, otherwise defers to the
// wrapped error chain.
func (ee *EnhancedError) Is(target error) bool {
	if other, ok := target.(*EnhancedError); ok {
		return ee.Category == other.Category
	}
	return stderrors.Is(ee.Err, target)
}

// GetCategory returns the error category.
func (ee *EnhancedError) GetCategory() ErrorCategory {
	return ee.Category
}

// GetContext returns a copy of the error context.
func (ee *EnhancedError) GetContext() map[string]any {
	if ee.Context == nil {
		return nil
	}
	contextCopy := make(map[string]any, len(ee.Context))
	maps.Copy(contextCopy, ee.Context)
	return contextCopy
}

// ErrorBuilder provides a fluent interface for creating enhanced errors.
type ErrorBuilder struct {
	err       error
	component string
	category  ErrorCategory
	context   map[string]any
}

// New creates a new error builder wrapping err.
func New(err error) *ErrorBuilder {
	return &ErrorBuilder{err: err}
}

// Newf creates a new error builder from a formatted message.
func Newf(format string, args ...any) *ErrorBuilder {
	return New(fmt.Errorf(format, args...))
}

// Wrap is an alias for New used when annotating an error from a lower layer.
func Wrap(err error) *ErrorBuilder {
	return New(err)
}

// Component sets the component name.
func (b *ErrorBuilder) Component(component string) *ErrorBuilder {
	b.component = component
	return b
}

// Category sets the error category.
func (b *ErrorBuilder) Category(category ErrorCategory) *ErrorBuilder {
	b.category = category
	return b
}

// Context adds a key-value pair to the error context.
func (b *ErrorBuilder) Context(key string, value any) *ErrorBuilder {
	if b.context == nil {
		b.context = make(map[string]any)
	}
	b.context[key] = value
	return b
}

// Build creates the final enhanced error. If the wrapped error is already
// enhanced, its category is preserved unless the builder overrides it.
func (b *ErrorBuilder) Build() error {
	category := b.category
	if category == "" {
		var ee *EnhancedError
		if stderrors.As(b.err, &ee) {
			category = ee.Category
		} else {
			category = CategoryGeneric
		}
	}

	return &EnhancedError{
		Err:       b.err,
		Component: b.component,
		Category:  category,
		Context:   b.context,
		Timestamp: time.Now(),
	}
}

// Category returns the category of err, or CategoryGeneric if err carries none.
func Category(err error) ErrorCategory {
	var ee *EnhancedError
	if stderrors.As(err, &ee) {
		return ee.Category
	}
	return CategoryGeneric
}

// IsRecoverable reports whether err affects only the current analysis cycle.
// Recoverable errors are logged and the loop proceeds to the next chunk.
func IsRecoverable(err error) bool {
	switch Category(err) {
	case CategoryFeatureExtraction, CategoryShapeMismatch:
		return true
	default:
		return false
	}
}

// IsFatal reports whether err must terminate the detection loop.
func IsFatal(err error) bool {
	switch Category(err) {
	case CategoryDeviceUnavailable, CategoryAudioStream,
		CategoryModelInit, CategoryModelLoad, CategoryLabelLoad:
		return true
	default:
		return false
	}
}

// Standard library passthroughs so callers only import this package.

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}

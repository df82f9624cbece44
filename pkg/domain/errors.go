package domain

import (
	"errors"
	"fmt"
)

// DataError reports a data-consistency defect: a relational set referencing
// an entity absent elsewhere, or a parameter required by a constraint family
// missing for an index inside that family's governing set. It always aborts
// the build.
type DataError struct {
	Set    string // offending set, when the defect is a set reference
	Param  string // offending parameter, when a required value is missing
	Index  Tuple
	Reason string
}

func (e DataError) Error() string {
	subject := e.Set
	if e.Param != "" {
		subject = e.Param
	}
	if len(e.Index) == 0 {
		return fmt.Sprintf("data consistency: %s: %s", subject, e.Reason)
	}
	return fmt.Sprintf("data consistency: %s%s: %s", subject, e.Index, e.Reason)
}

// ConfigError reports an invalid configuration value rejected before any build
// work begins.
type ConfigError struct {
	Field  string
	Value  string
	Reason string
}

func (e ConfigError) Error() string {
	return fmt.Sprintf("configuration: %s=%q: %s", e.Field, e.Value, e.Reason)
}

// MissingParam is shorthand for the required-parameter flavour of DataError.
func MissingParam(param string, idx Tuple) DataError {
	return DataError{Param: param, Index: idx, Reason: "required parameter missing"}
}

// UnknownMember is shorthand for a set referencing an absent entity.
func UnknownMember(set string, idx Tuple, reason string) DataError {
	return DataError{Set: set, Index: idx, Reason: reason}
}

// IsDataError reports whether err wraps a DataError.
func IsDataError(err error) bool {
	var de DataError
	return errors.As(err, &de)
}

// IsConfigError reports whether err wraps a ConfigError.
func IsConfigError(err error) bool {
	var ce ConfigError
	return errors.As(err, &ce)
}

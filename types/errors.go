/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package types

import (
	"errors"
	"fmt"
)

// ErrNotFound signals that no entity exists for the requested identifier.
var ErrNotFound = errors.New("entity not found")

// Operation names the service operation a failure belongs to.
type Operation string

const (
	OpSave   Operation = "save"
	OpDelete Operation = "delete"
	OpGet    Operation = "get"
	OpFilter Operation = "filter"
	OpCount  Operation = "count"
	OpPage   Operation = "page"
)

// PersistenceFailure wraps a backend error raised while reading or writing entities.
type PersistenceFailure struct {
	Op      Operation
	Entity  string
	ID      any
	HasID   bool
	Message string
	// Reason is the backend error class, e.g. "duplicate_key".
	Reason string
	Cause  error
}

func (e *PersistenceFailure) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return e.Message + ": " + e.Cause.Error()
}

func (e *PersistenceFailure) Unwrap() error { return e.Cause }

// NewSaveFailure builds the failure for a save; a missing identifier is reported as a new entity.
func NewSaveFailure(entity string, id any, hasID bool, cause error) *PersistenceFailure {
	msg := "unable to save new entity"
	if hasID {
		msg = fmt.Sprintf("unable to save entity with ID: %v", id)
	}
	return &PersistenceFailure{Op: OpSave, Entity: entity, ID: id, HasID: hasID, Message: msg, Cause: cause}
}

// NewDeleteFailure builds the failure for a delete by identifier.
func NewDeleteFailure(entity string, id any, cause error) *PersistenceFailure {
	return &PersistenceFailure{
		Op:      OpDelete,
		Entity:  entity,
		ID:      id,
		HasID:   true,
		Message: fmt.Sprintf("unable to delete entity with ID: %v", id),
		Cause:   cause,
	}
}

// NewGetFailure builds the failure for a lookup by identifier.
func NewGetFailure(entity string, id any, cause error) *PersistenceFailure {
	return &PersistenceFailure{
		Op:      OpGet,
		Entity:  entity,
		ID:      id,
		HasID:   true,
		Message: fmt.Sprintf("unable to retrieve entity with ID: %v", id),
		Cause:   cause,
	}
}

// NewQueryFailure builds the failure for filter, count and page reads.
func NewQueryFailure(op Operation, entity string, cause error) *PersistenceFailure {
	return &PersistenceFailure{Op: op, Entity: entity, Message: "unable to retrieve entities", Cause: cause}
}

// ProgrammingError reports a contract violation by the caller.
type ProgrammingError struct {
	Msg string
}

func (e *ProgrammingError) Error() string { return e.Msg }

// Programming formats a ProgrammingError.
func Programming(format string, args ...any) *ProgrammingError {
	return &ProgrammingError{Msg: fmt.Sprintf(format, args...)}
}

// MissingInterface reports a type that does not implement a required interface.
func MissingInterface(typeName, interfaceName string) *ProgrammingError {
	return Programming("type %q does not implement %q interface", typeName, interfaceName)
}

// IsPersistenceFailure reports whether err wraps a PersistenceFailure.
func IsPersistenceFailure(err error) bool {
	var pf *PersistenceFailure
	return errors.As(err, &pf)
}

// IsProgrammingError reports whether err wraps a ProgrammingError.
func IsProgrammingError(err error) bool {
	var pe *ProgrammingError
	return errors.As(err, &pe)
}

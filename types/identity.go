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
	"reflect"
)

// Identifier is implemented by entity pointers. The zero ID means the entity
// has not been persisted yet.
type Identifier[ID comparable] interface {
	GetID() ID
}

// IdentityOf returns the identifier of entity and whether it is set.
func IdentityOf[ID comparable](entity Identifier[ID]) (ID, bool) {
	var zero ID
	id := entity.GetID()
	return id, id != zero
}

// HasIdentity reports whether an entity of unknown ID type carries an identifier.
// The entity must expose a GetID method with a single result.
func HasIdentity(entity any) (bool, error) {
	v := reflect.ValueOf(entity)
	if !v.IsValid() || (v.Kind() == reflect.Ptr && v.IsNil()) {
		return false, Programming("entity cannot be nil")
	}
	m := v.MethodByName("GetID")
	if !m.IsValid() || m.Type().NumIn() != 0 || m.Type().NumOut() != 1 {
		return false, MissingInterface(TypeName(entity), "Identifier")
	}
	return !m.Call(nil)[0].IsZero(), nil
}

// TypeName returns the struct name behind a value or pointer.
func TypeName(model any) string {
	t := reflect.TypeOf(model)
	if t == nil {
		return ""
	}
	for t.Kind() == reflect.Ptr || t.Kind() == reflect.Slice {
		t = t.Elem()
	}
	return t.Name()
}

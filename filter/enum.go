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

package filter

import "github.com/tomoncle/bisna/types"

// JoinKind selects how a joined association is combined with its parent.
type JoinKind int

const (
	InnerJoin JoinKind = iota
	LeftJoin
)

var _ types.BaseEnum = JoinKind(0)

func (k JoinKind) IsValid() bool { return k == InnerJoin || k == LeftJoin }

func (k JoinKind) Number() int {
	if !k.IsValid() {
		return types.IllegalValue
	}
	return int(k)
}

func (k JoinKind) Name() string {
	switch k {
	case InnerJoin:
		return "INNER"
	case LeftJoin:
		return "LEFT"
	default:
		return types.IllegalName
	}
}

func (k JoinKind) String() string { return k.Name() }

func (k JoinKind) Desc() string {
	switch k {
	case InnerJoin:
		return "rows must match on both sides"
	case LeftJoin:
		return "parent rows are kept without a match"
	default:
		return types.IllegalDesc
	}
}

// SQL returns the join keyword sequence, e.g. "LEFT JOIN".
func (k JoinKind) SQL() string { return k.Name() + " JOIN" }

// Direction is the sort direction of an ordering entry.
type Direction int

const (
	// DirectionNone leaves the direction to the backend default.
	DirectionNone Direction = iota
	Asc
	Desc
)

var _ types.BaseEnum = Direction(0)

func (d Direction) IsValid() bool { return d >= DirectionNone && d <= Desc }

func (d Direction) Number() int {
	if !d.IsValid() {
		return types.IllegalValue
	}
	return int(d)
}

func (d Direction) Name() string {
	switch d {
	case DirectionNone:
		return ""
	case Asc:
		return "ASC"
	case Desc:
		return "DESC"
	default:
		return types.IllegalName
	}
}

func (d Direction) String() string { return d.Name() }

func (d Direction) Desc() string {
	switch d {
	case DirectionNone:
		return "backend default"
	case Asc:
		return "ascending"
	case Desc:
		return "descending"
	default:
		return types.IllegalDesc
	}
}

// ParseDirection accepts "asc", "desc" or an empty string.
func ParseDirection(s string) (Direction, bool) {
	return types.ParseEnum(s, DirectionNone, Asc, Desc)
}

// ParamType is a binding hint telling the backend how to encode a parameter value.
type ParamType int

const (
	ParamDefault ParamType = iota
	// ParamJSON encodes the value as JSON text.
	ParamJSON
	// ParamArray binds a slice as a native array (postgres).
	ParamArray
	// ParamIn expands a slice into a parenthesized value list.
	ParamIn
	// ParamIdent quotes the value as an identifier.
	ParamIdent
	// ParamSafe inlines the value without escaping.
	ParamSafe
)

var _ types.BaseEnum = ParamType(0)

var paramTypeNames = [...]string{"default", "json", "array", "in", "ident", "safe"}

func (t ParamType) IsValid() bool { return t >= ParamDefault && t <= ParamSafe }

func (t ParamType) Number() int {
	if !t.IsValid() {
		return types.IllegalValue
	}
	return int(t)
}

func (t ParamType) Name() string {
	if !t.IsValid() {
		return types.IllegalName
	}
	return paramTypeNames[t]
}

func (t ParamType) String() string { return t.Name() }

func (t ParamType) Desc() string {
	if !t.IsValid() {
		return types.IllegalDesc
	}
	return t.Name() + " parameter binding"
}

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

import (
	"strings"
)

// Predicate is an opaque restriction. The builder never parses it; the
// backend receives its textual form.
type Predicate interface {
	String() string
	clone() Predicate
}

// Raw is a textual predicate fragment, e.g. "u.id = ?id".
type Raw string

func (r Raw) String() string { return string(r) }

func (r Raw) clone() Predicate { return r }

// Logic is the connective of a Composite predicate.
type Logic int

const (
	And Logic = iota
	Or
)

func (l Logic) String() string {
	if l == Or {
		return "OR"
	}
	return "AND"
}

// Composite joins predicates with a single connective.
type Composite struct {
	logic Logic
	parts []Predicate
}

// NewComposite builds a composite, dropping nil and empty parts.
func NewComposite(logic Logic, parts ...Predicate) *Composite {
	c := &Composite{logic: logic}
	return c.Add(parts...)
}

// Add appends parts in place and returns the composite.
func (c *Composite) Add(parts ...Predicate) *Composite {
	for _, p := range parts {
		if isEmpty(p) {
			continue
		}
		c.parts = append(c.parts, p)
	}
	return c
}

func (c *Composite) Logic() Logic { return c.logic }

// Parts returns a copy of the joined predicates.
func (c *Composite) Parts() []Predicate {
	out := make([]Predicate, len(c.parts))
	copy(out, c.parts)
	return out
}

func (c *Composite) Count() int { return len(c.parts) }

func (c *Composite) String() string {
	if len(c.parts) == 1 {
		return c.parts[0].String()
	}
	sep := " " + c.logic.String() + " "
	var b strings.Builder
	for i, p := range c.parts {
		if i > 0 {
			b.WriteString(sep)
		}
		b.WriteString(wrap(p))
	}
	return b.String()
}

func (c *Composite) clone() Predicate {
	out := &Composite{logic: c.logic, parts: make([]Predicate, len(c.parts))}
	for i, p := range c.parts {
		out.parts[i] = p.clone()
	}
	return out
}

func wrap(p Predicate) string {
	s := p.String()
	if c, ok := p.(*Composite); ok && c.Count() > 1 {
		return "(" + s + ")"
	}
	upper := strings.ToUpper(s)
	if strings.Contains(upper, " OR ") || strings.Contains(upper, " AND ") {
		return "(" + s + ")"
	}
	return s
}

func isEmpty(p Predicate) bool {
	if p == nil {
		return true
	}
	switch v := p.(type) {
	case *Composite:
		return v == nil || v.Count() == 0
	case Raw:
		return strings.TrimSpace(string(v)) == ""
	}
	return false
}

// Expr builds predicates. Operands are textual: columns, literals or placeholders.
type Expr struct{}

func (Expr) Eq(x, y string) Predicate  { return Raw(x + " = " + y) }
func (Expr) Neq(x, y string) Predicate { return Raw(x + " <> " + y) }
func (Expr) Lt(x, y string) Predicate  { return Raw(x + " < " + y) }
func (Expr) Lte(x, y string) Predicate { return Raw(x + " <= " + y) }
func (Expr) Gt(x, y string) Predicate  { return Raw(x + " > " + y) }
func (Expr) Gte(x, y string) Predicate { return Raw(x + " >= " + y) }

func (Expr) Like(x, pattern string) Predicate { return Raw(x + " LIKE " + pattern) }

// In renders "x IN (y)"; y is usually a placeholder bound with ParamIn.
func (Expr) In(x, y string) Predicate {
	if strings.HasPrefix(y, "(") {
		return Raw(x + " IN " + y)
	}
	return Raw(x + " IN (" + y + ")")
}

func (Expr) IsNull(x string) Predicate    { return Raw(x + " IS NULL") }
func (Expr) IsNotNull(x string) Predicate { return Raw(x + " IS NOT NULL") }

func (Expr) And(parts ...Predicate) *Composite { return NewComposite(And, parts...) }
func (Expr) Or(parts ...Predicate) *Composite  { return NewComposite(Or, parts...) }

func (Expr) Not(p Predicate) Predicate { return Raw("NOT (" + p.String() + ")") }

// Copyright 2025 seqops LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package fields holds the typed substitution values extracted from file
// paths, derived by transform rules and attached by metadata matching, plus
// the template renderer that consumes them.
package fields

import (
	"strconv"
	"time"
)

// 🏷️ Kind restricts the value domain of a field
type Kind int

const (
	KindString Kind = iota
	KindInt
	KindBool
	KindTime
)

// 📄 Value is one typed field value
type Value struct {
	kind Kind
	s    string
	i    int64
	b    bool
	t    time.Time
}

// 🏭 String makes a string value
func String(s string) Value {
	return Value{kind: KindString, s: s}
}

// 🏭 Int makes an integer value
func Int(i int64) Value {
	return Value{kind: KindInt, i: i}
}

// 🏭 Bool makes a boolean value
func Bool(b bool) Value {
	return Value{kind: KindBool, b: b}
}

// 🏭 Time makes a timestamp value
func Time(t time.Time) Value {
	return Value{kind: KindTime, t: t}
}

// 📝 Kind returns the value's kind
func (v Value) Kind() Kind {
	return v.kind
}

// 📝 String renders the value for substitution. Timestamps render as dates,
// which is what path templates and store columns want.
func (v Value) String() string {
	switch v.kind {
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindTime:
		return v.t.Format("2006-01-02")
	default:
		return v.s
	}
}

// 📚 Map is a named collection of field values. Keys may be namespaced with
// dots, like "match.project".
type Map map[string]Value

// 🔀 Merge returns a new map with other's entries layered on top. Neither
// input is mutated.
func (m Map) Merge(other Map) Map {
	out := make(Map, len(m)+len(other))
	for k, v := range m {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}

// 🔀 WithPrefix returns a new map with every key prefixed
func (m Map) WithPrefix(prefix string) Map {
	out := make(Map, len(m))
	for k, v := range m {
		out[prefix+k] = v
	}
	return out
}

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

import "strings"

// Illegal values returned by enums outside their range.
const (
	IllegalValue = -1
	IllegalName  = "unknown"
	IllegalDesc  = "unknown"
)

// BaseEnum is implemented by the enumerations of this package.
type BaseEnum interface {
	IsValid() bool
	Number() int
	String() string
	Desc() string
	Name() string
}

// Operation is the kind of statement a Descriptor describes.
type Operation int

const (
	OpSelect Operation = iota
	OpInsert
	OpUpdate
	OpDelete
)

var _ BaseEnum = OpSelect

var operationNames = [...]string{"select", "insert", "update", "delete"}

func (o Operation) IsValid() bool { return o >= OpSelect && o <= OpDelete }

func (o Operation) Number() int {
	if !o.IsValid() {
		return IllegalValue
	}
	return int(o)
}

func (o Operation) Name() string {
	if !o.IsValid() {
		return IllegalName
	}
	return operationNames[o]
}

func (o Operation) String() string { return o.Name() }

func (o Operation) Desc() string {
	if !o.IsValid() {
		return IllegalDesc
	}
	return strings.ToUpper(operationNames[o])
}

// IsMutation reports whether the operation writes to the store.
func (o Operation) IsMutation() bool { return o == OpInsert || o == OpUpdate || o == OpDelete }

/*
Copyright (c) YugabyteDB, Inc.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

/*
Package position models how far an inventory task has progressed.

A position is persisted as a compact string:

	i,<begin>,<end>   integer unique key range, bounds are base-10 int64
	s,<begin>,<end>   string unique key range, each present bound is "'" + url.QueryEscape(value)
	u,,               no usable unique key, single unordered pass
	f                 task already finished

An empty bound is absent. An absent begin means "from the start of the key space" and an
absent end means "open ended". Positions are immutable; progress is recorded by persisting
a new one.
*/
package position

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/yugabyte/yb-datamover/src/errs"
)

type KeyKind string

const (
	INT_KEY    KeyKind = "i"
	STRING_KEY KeyKind = "s"

	placeholderEncoding = "u,,"
	finishedEncoding    = "f"
	stringBoundMarker   = "'"
)

type Position interface {
	String() string
	sealed()
}

type RangePosition struct {
	kind  KeyKind
	begin interface{}
	end   interface{}
}

type PlaceholderPosition struct{}

type FinishedPosition struct{}

func (p *PlaceholderPosition) String() string { return placeholderEncoding }
func (p *PlaceholderPosition) sealed()        {}
func (p *FinishedPosition) String() string    { return finishedEncoding }
func (p *FinishedPosition) sealed()           {}
func (p *RangePosition) sealed()              {}

func Placeholder() *PlaceholderPosition { return &PlaceholderPosition{} }
func Finished() *FinishedPosition       { return &FinishedPosition{} }

func IsFinished(p Position) bool {
	_, ok := p.(*FinishedPosition)
	return ok
}

// NewRange validates that present bounds match kind. Absent bounds are passed as nil.
// Integer bounds may be any Go signed integer type and are stored as int64.
func NewRange(kind KeyKind, begin, end interface{}) (*RangePosition, error) {
	b, err := normalizeBound(kind, begin)
	if err != nil {
		return nil, err
	}
	e, err := normalizeBound(kind, end)
	if err != nil {
		return nil, err
	}
	return &RangePosition{kind: kind, begin: b, end: e}, nil
}

func IntRange(begin, end int64) *RangePosition {
	return &RangePosition{kind: INT_KEY, begin: begin, end: end}
}

func IntRangeFrom(begin int64) *RangePosition {
	return &RangePosition{kind: INT_KEY, begin: begin}
}

func StringRange(begin, end string) *RangePosition {
	return &RangePosition{kind: STRING_KEY, begin: begin, end: end}
}

func StringRangeFrom(begin string) *RangePosition {
	return &RangePosition{kind: STRING_KEY, begin: begin}
}

// FullRange covers the whole key space: both bounds absent.
func FullRange(kind KeyKind) *RangePosition {
	return &RangePosition{kind: kind}
}

func (p *RangePosition) Kind() KeyKind {
	return p.kind
}

func (p *RangePosition) Begin() (interface{}, bool) {
	return p.begin, p.begin != nil
}

func (p *RangePosition) End() (interface{}, bool) {
	return p.end, p.end != nil
}

// WithBegin returns a copy of p starting at begin and keeping p's end.
func (p *RangePosition) WithBegin(begin interface{}) (*RangePosition, error) {
	return NewRange(p.kind, begin, p.end)
}

func (p *RangePosition) String() string {
	return fmt.Sprintf("%s,%s,%s", p.kind, encodeBound(p.begin), encodeBound(p.end))
}

func Encode(p Position) string {
	return p.String()
}

func Decode(s string) (Position, error) {
	switch s {
	case finishedEncoding:
		return Finished(), nil
	case placeholderEncoding:
		return Placeholder(), nil
	}
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return nil, errs.NewParameterError("invalid position %q: expected 3 comma separated fields", s)
	}
	kind := KeyKind(parts[0])
	if kind != INT_KEY && kind != STRING_KEY {
		return nil, errs.NewParameterError("invalid position %q: unknown key kind %q", s, parts[0])
	}
	begin, err := decodeBound(kind, parts[1])
	if err != nil {
		return nil, errs.WrapParameterError(err, "invalid position %q", s)
	}
	end, err := decodeBound(kind, parts[2])
	if err != nil {
		return nil, errs.WrapParameterError(err, "invalid position %q", s)
	}
	return &RangePosition{kind: kind, begin: begin, end: end}, nil
}

// Compare orders two range positions of the same key kind by their begin bound.
// An absent begin sorts before any present one.
func Compare(a, b Position) (int, error) {
	ra, okA := a.(*RangePosition)
	rb, okB := b.(*RangePosition)
	if !okA || !okB {
		return 0, errs.NewParameterError("cannot compare positions %q and %q: only range positions are ordered", a, b)
	}
	if ra.kind != rb.kind {
		return 0, errs.NewParameterError("cannot compare positions %q and %q: key kinds differ", a, b)
	}
	switch {
	case ra.begin == nil && rb.begin == nil:
		return 0, nil
	case ra.begin == nil:
		return -1, nil
	case rb.begin == nil:
		return 1, nil
	}
	if ra.kind == INT_KEY {
		x, y := ra.begin.(int64), rb.begin.(int64)
		switch {
		case x < y:
			return -1, nil
		case x > y:
			return 1, nil
		}
		return 0, nil
	}
	return strings.Compare(ra.begin.(string), rb.begin.(string)), nil
}

func normalizeBound(kind KeyKind, v interface{}) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	switch kind {
	case INT_KEY:
		switch n := v.(type) {
		case int64:
			return n, nil
		case int:
			return int64(n), nil
		case int32:
			return int64(n), nil
		case int16:
			return int64(n), nil
		case int8:
			return int64(n), nil
		}
	case STRING_KEY:
		if s, ok := v.(string); ok {
			return s, nil
		}
	default:
		return nil, errs.NewParameterError("unknown key kind %q", kind)
	}
	return nil, errs.NewParameterError("bound %v of type %T does not match key kind %q", v, v, kind)
}

func encodeBound(v interface{}) string {
	switch b := v.(type) {
	case nil:
		return ""
	case int64:
		return strconv.FormatInt(b, 10)
	case string:
		return stringBoundMarker + url.QueryEscape(b)
	default:
		panic(fmt.Sprintf("unexpected bound type %T", v))
	}
}

func decodeBound(kind KeyKind, s string) (interface{}, error) {
	if s == "" {
		return nil, nil
	}
	if kind == INT_KEY {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse integer bound %q: %w", s, err)
		}
		return n, nil
	}
	if !strings.HasPrefix(s, stringBoundMarker) {
		return nil, fmt.Errorf("string bound %q must start with %s", s, stringBoundMarker)
	}
	v, err := url.QueryUnescape(s[len(stringBoundMarker):])
	if err != nil {
		return nil, fmt.Errorf("unescape string bound %q: %w", s, err)
	}
	return v, nil
}

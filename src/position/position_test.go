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

package position

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yugabyte/yb-datamover/src/errs"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []struct {
		pos     Position
		encoded string
	}{
		{IntRange(1, 100), "i,1,100"},
		{IntRangeFrom(-5), "i,-5,"},
		{FullRange(INT_KEY), "i,,"},
		{StringRange("a,b", "z z"), "s,'a%2Cb,'z+z"},
		{StringRange("", "m"), "s,','m"},
		{StringRangeFrom("k"), "s,'k,"},
		{FullRange(STRING_KEY), "s,,"},
		{Placeholder(), "u,,"},
		{Finished(), "f"},
	}
	for _, tc := range cases {
		t.Run(tc.encoded, func(t *testing.T) {
			assert.Equal(t, tc.encoded, Encode(tc.pos))
			decoded, err := Decode(tc.encoded)
			require.NoError(t, err)
			assert.Equal(t, tc.pos, decoded)
		})
	}
}

func TestDecodeRejectsMalformedInput(t *testing.T) {
	for _, s := range []string{"", "x,1,2", "i,1", "i,a,2", "s,abc,", "s,'%zz,", "u", "finished", "i,1,2,3"} {
		p, err := Decode(s)
		assert.Nil(t, p, s)
		assert.True(t, errs.IsParameterError(err), "%q: %v", s, err)
	}
}

func TestNewRangeValidatesBoundTypes(t *testing.T) {
	p, err := NewRange(INT_KEY, int32(7), nil)
	require.NoError(t, err)
	begin, ok := p.Begin()
	assert.True(t, ok)
	assert.Equal(t, int64(7), begin)
	_, ok = p.End()
	assert.False(t, ok)

	_, err = NewRange(INT_KEY, "7", nil)
	assert.True(t, errs.IsParameterError(err))
	_, err = NewRange(STRING_KEY, nil, 9)
	assert.True(t, errs.IsParameterError(err))
}

func TestWithBeginKeepsEndAndOriginal(t *testing.T) {
	orig := IntRange(1, 100)
	next, err := orig.WithBegin(int64(42))
	require.NoError(t, err)
	assert.Equal(t, "i,42,100", next.String())
	assert.Equal(t, "i,1,100", orig.String())
}

func TestCompare(t *testing.T) {
	c, err := Compare(IntRange(1, 10), IntRange(5, 10))
	require.NoError(t, err)
	assert.Equal(t, -1, c)

	c, err = Compare(IntRange(5, 10), IntRangeFrom(5))
	require.NoError(t, err)
	assert.Equal(t, 0, c)

	c, err = Compare(StringRangeFrom("b"), FullRange(STRING_KEY))
	require.NoError(t, err)
	assert.Equal(t, 1, c)

	_, err = Compare(IntRange(1, 2), StringRange("a", "b"))
	assert.True(t, errs.IsParameterError(err))
	_, err = Compare(Finished(), IntRange(1, 2))
	assert.True(t, errs.IsParameterError(err))
}

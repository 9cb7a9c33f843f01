package partfilter_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osbuild/fsboot/pkg/blockio"
	"github.com/osbuild/fsboot/pkg/partfilter"
)

func TestFilterMatches(t *testing.T) {
	target := partfilter.Target{
		Info: blockio.Info{
			Name:  "hd2p0",
			Label: "boot",
			UUID:  "6f1c2a44-7a3a-4c1b-9b0e-2f6d7a0c9e11",
		},
		Bus:  "sdcard",
		Kind: partfilter.KindPartition,
	}

	for _, tc := range []struct {
		searchExpr   []string
		expectsMatch bool
	}{
		{nil, true},
		// no prefix checks name and label
		{[]string{"foo"}, false},
		{[]string{"hd2p0"}, true},
		{[]string{"hd2*"}, true},
		{[]string{"boo?"}, true},
		// name: prefix
		{[]string{"name:hd2"}, false},
		{[]string{"name:hd2p[0-3]"}, true},
		{[]string{"name:boot"}, false},
		// label: prefix
		{[]string{"label:boot"}, true},
		{[]string{"label:hd2p0"}, false},
		// bus: prefix
		{[]string{"bus:emmc"}, false},
		{[]string{"bus:sd*"}, true},
		// kind: prefix
		{[]string{"kind:nested"}, false},
		{[]string{"kind:partition"}, true},
		// uuid: prefix
		{[]string{"uuid:6f1c2a44-*"}, true},
		{[]string{"uuid:0000*"}, false},
		// multiple filters are AND
		{[]string{"bus:sdcard", "label:rootfs"}, false},
		{[]string{"bus:sdcard", "label:boot", "kind:partition"}, true},
	} {
		ff, err := partfilter.New(tc.searchExpr...)
		require.NoError(t, err)

		match := ff.Matches(target)
		assert.Equal(t, tc.expectsMatch, match, tc)
	}
}

func TestFilterErrors(t *testing.T) {
	_, err := partfilter.New("size:1")
	assert.EqualError(t, err, `unsupported filter prefix: "size"`)

	_, err = partfilter.New("name:hd[")
	assert.ErrorContains(t, err, `invalid filter "name:hd["`)
}

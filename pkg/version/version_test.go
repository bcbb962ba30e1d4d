package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		tag       string
		wantErr   bool
		prefix    string
		core      string
		qualifier string
	}{
		{tag: "1.2.3", core: "1.2.3"},
		{tag: "v1.2.3", prefix: "v", core: "1.2.3"},
		{tag: "4.0.1.1234-ls45", core: "4.0.1.1234", qualifier: "ls45"},
		{tag: "2.0-rc1", core: "2.0", qualifier: "rc1"},
		{tag: "release1.0", prefix: "release", core: "1.0"},
		{tag: "latest", wantErr: true},
		{tag: "1", wantErr: true},
		{tag: "20231010", wantErr: true},
		{tag: "1.2.3_beta", wantErr: true},
		{tag: "sha-abc123", wantErr: true},
		{tag: "", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.tag, func(t *testing.T) {
			v, err := Parse(tc.tag)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.prefix, v.Prefix)
			assert.Equal(t, tc.core, v.Core)
			assert.Equal(t, tc.qualifier, v.Qualifier)
		})
	}
}

func TestCompareTags(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"10.0", "9.0", 1},
		{"9.0", "10.0", -1},
		{"1.2.10", "1.2.9", 1},
		{"1.20", "1.3", 1},
		{"v2.0.0", "2.0.0", 0},
		{"1.2.3-ls100", "1.2.3-ls99", 1},
		{"1.2.0", "1.2.0", 0},
		{"1.3.0", "1.3.0-rc1", 1},
		{"1.3.0-rc1", "1.3.0", -1},
		{"1.3.0-beta1", "1.3.0", -1},
		{"1.3.0-rc2", "1.3.0-rc1", 1},
		{"1.3.0-rc1", "1.3.0-beta2", 1},
		{"1.3.0-ls45", "1.3.0", 1},
		{"1.3.0-ls45", "1.3.0-rc1", 1},
		{"1.3.1-rc1", "1.3.0-ls45", 1},
	}
	for _, tc := range tests {
		t.Run(tc.a+"_vs_"+tc.b, func(t *testing.T) {
			got, ok := CompareTags(tc.a, tc.b)
			require.True(t, ok)
			assert.Equal(t, tc.want, sign(got))
		})
	}

	_, ok := CompareTags("latest", "1.0")
	assert.False(t, ok)
}

func sign(n int) int {
	switch {
	case n > 0:
		return 1
	case n < 0:
		return -1
	}
	return 0
}

func TestQualifierClassification(t *testing.T) {
	tests := []struct {
		tag        string
		prerelease bool
		platform   bool
	}{
		{"1.2.3", false, false},
		{"1.2.3-ls45", false, false},
		{"1.2.3-beta", true, false},
		{"1.2.3-beta.2", true, false},
		{"1.2.3-rc1", true, false},
		{"1.2.3-develop", false, false},
		{"1.2.3-amd64", false, true},
		{"1.2.3-ls45-arm64", false, true},
		{"1.2.3-alpine", false, false},
	}
	for _, tc := range tests {
		t.Run(tc.tag, func(t *testing.T) {
			v, err := Parse(tc.tag)
			require.NoError(t, err)
			assert.Equal(t, tc.prerelease, v.Prerelease())
			assert.Equal(t, tc.platform, v.PlatformSuffixed())
		})
	}
}

func TestNormalizeAndEqual(t *testing.T) {
	assert.Equal(t, "1.2.3", Normalize(" v1.2.3 "))
	assert.Equal(t, "latest", Normalize("Latest"))
	assert.True(t, Equal("v1.2.3", "1.2.3"))
	assert.False(t, Equal("1.2", "1.20"))
	assert.False(t, Equal("1.2", "1.2.0"))
}

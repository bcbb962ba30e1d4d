package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/addonbump/addonbump/pkg/types"
)

func TestParseImage(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantName string
		wantHost string
		wantPath string
		wantKind types.RegistryKind
		wantErr  bool
	}{
		{"official image", "alpine", "docker.io/library/alpine", "docker.io", "library/alpine", types.RegistryDockerHub, false},
		{"namespaced hub image", "linuxserver/sonarr", "docker.io/linuxserver/sonarr", "docker.io", "linuxserver/sonarr", types.RegistryDockerHub, false},
		{"explicit hub host", "docker.io/linuxserver/sonarr", "docker.io/linuxserver/sonarr", "docker.io", "linuxserver/sonarr", types.RegistryDockerHub, false},
		{"tag is dropped", "linuxserver/sonarr:4.0.1", "docker.io/linuxserver/sonarr", "docker.io", "linuxserver/sonarr", types.RegistryDockerHub, false},
		{"ghcr", "ghcr.io/home-assistant/amd64-base", "ghcr.io/home-assistant/amd64-base", "ghcr.io", "home-assistant/amd64-base", types.RegistryOCI, false},
		{"registry with port", "localhost:5000/team/app", "localhost:5000/team/app", "localhost:5000", "team/app", types.RegistryOCI, false},
		{"digest pinned", "alpine@sha256:0000000000000000000000000000000000000000000000000000000000000000", "", "", "", "", true},
		{"empty", "  ", "", "", "", "", true},
		{"invalid", "UPPER/case", "", "", "", "", true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ref, err := ParseImage(tc.input)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantName, ref.Name)
			assert.Equal(t, tc.wantHost, ref.Domain)
			assert.Equal(t, tc.wantPath, ref.Path)
			assert.Equal(t, tc.wantKind, ref.Kind(""))
		})
	}
}

func TestImageRefKindExplicit(t *testing.T) {
	ref, err := ParseImage("linuxserver/sonarr")
	require.NoError(t, err)
	assert.Equal(t, types.RegistryOCI, ref.Kind(types.RegistryOCI))
}

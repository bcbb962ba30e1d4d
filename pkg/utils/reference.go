package utils

import (
	"fmt"
	"strings"

	"github.com/distribution/reference"

	"github.com/addonbump/addonbump/pkg/types"
)

const dockerHubDomain = "docker.io"

// ImageRef is a parsed, tag-less upstream image reference.
type ImageRef struct {
	// Name is the fully qualified repository, e.g. docker.io/library/alpine.
	Name string
	// Domain is the registry host, e.g. docker.io or ghcr.io.
	Domain string
	// Path is the registry-relative repository path, e.g. library/alpine.
	Path string
}

// ParseImage normalizes an image reference. Tags are dropped since the
// pinned version lives in the manifests; digest-pinned references are
// rejected because there is no tag channel to follow.
func ParseImage(image string) (ImageRef, error) {
	image = strings.TrimSpace(image)
	if image == "" {
		return ImageRef{}, fmt.Errorf("empty image reference")
	}

	named, err := reference.ParseNormalizedNamed(image)
	if err != nil {
		return ImageRef{}, fmt.Errorf("parsing image reference %q: %w", image, err)
	}
	if _, ok := named.(reference.Digested); ok {
		return ImageRef{}, fmt.Errorf("image reference %q is pinned by digest", image)
	}

	named = reference.TrimNamed(named)
	return ImageRef{
		Name:   named.Name(),
		Domain: reference.Domain(named),
		Path:   reference.Path(named),
	}, nil
}

// Kind infers the registry protocol from the reference domain unless the
// package descriptor names one explicitly.
func (r ImageRef) Kind(explicit types.RegistryKind) types.RegistryKind {
	if explicit != "" {
		return explicit
	}
	if r.Domain == dockerHubDomain {
		return types.RegistryDockerHub
	}
	return types.RegistryOCI
}

func (r ImageRef) String() string {
	return r.Name
}

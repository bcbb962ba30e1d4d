package registry

import (
	"context"
	"fmt"

	"github.com/google/go-containerregistry/pkg/name"
	"github.com/google/go-containerregistry/pkg/v1/remote"

	"github.com/addonbump/addonbump/pkg/types"
	"github.com/addonbump/addonbump/pkg/utils"
)

// listOCI reads the first page of /v2/<name>/tags/list, negotiating a
// bearer token with credentials from the default keychain.
func (c *Client) listOCI(ctx context.Context, ref utils.ImageRef, pageSize int) (types.TagSet, error) {
	repo, err := name.NewRepository(ref.Name)
	if err != nil {
		return types.TagSet{}, fmt.Errorf("parsing repository %q: %w", ref.Name, err)
	}

	// Retries are driven by ListTags, not by the transport.
	puller, err := remote.NewPuller(
		remote.WithAuthFromKeychain(c.keychain),
		remote.WithPageSize(pageSize),
		remote.WithRetryBackoff(remote.Backoff{Steps: 1}),
	)
	if err != nil {
		return types.TagSet{}, err
	}

	lister, err := puller.Lister(ctx, repo)
	if err != nil {
		return types.TagSet{}, err
	}
	page, err := lister.Next(ctx)
	if err != nil {
		return types.TagSet{}, err
	}

	return types.NewTagSet(ref.Name, page.Tags...), nil
}

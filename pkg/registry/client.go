package registry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/v1/remote/transport"
	log "github.com/sirupsen/logrus"

	"github.com/addonbump/addonbump/pkg/config"
	"github.com/addonbump/addonbump/pkg/types"
	"github.com/addonbump/addonbump/pkg/utils"
)

// newBackOff yields the retry schedule for transient failures: one retry
// after a short exponential delay.
var newBackOff = func() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxElapsedTime = 10 * time.Second
	return backoff.WithMaxRetries(b, 1)
}

// Client lists the published tags of upstream images.
type Client struct {
	hubURL     string
	timeout    time.Duration
	httpClient *http.Client
	keychain   authn.Keychain

	mu       sync.Mutex
	hubToken string
}

// New returns a Client configured from the registry section.
func New(cfg config.RegistryConfig) *Client {
	return &Client{
		hubURL:     cfg.HubURL,
		timeout:    cfg.Timeout,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		keychain:   authn.DefaultKeychain,
	}
}

// ListTags returns the first page of tags of image. Transient failures are
// retried once; the returned error is a *types.TransientNetworkError when the
// retry failed too.
func (c *Client) ListTags(ctx context.Context, image string, kind types.RegistryKind, pageSize int) (types.TagSet, error) {
	ref, err := utils.ParseImage(image)
	if err != nil {
		return types.TagSet{}, err
	}
	kind = ref.Kind(kind)
	logger := log.WithFields(log.Fields{"image": ref.Name, "registry": kind})

	attempt := 0
	list := func() (types.TagSet, error) {
		attempt++
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		var (
			ts  types.TagSet
			err error
		)
		switch kind {
		case types.RegistryDockerHub:
			ts, err = c.listHub(callCtx, ref, pageSize)
		case types.RegistryOCI:
			ts, err = c.listOCI(callCtx, ref, pageSize)
		default:
			return ts, backoff.Permanent(fmt.Errorf("unknown registry kind %q", kind))
		}
		if err == nil {
			ts.Image = image
			return ts, nil
		}

		err = classify(kind, err)
		if !types.IsTransient(err) {
			return ts, backoff.Permanent(err)
		}
		logger.Debugf("attempt %d failed: %v", attempt, err)
		return ts, err
	}

	ts, err := backoff.RetryWithData(list, backoff.WithContext(newBackOff(), ctx))
	if err != nil {
		return types.TagSet{}, err
	}
	logger.Debugf("listed %d tags", ts.Tags.Len())
	return ts, nil
}

// classify wraps network failures, timeouts, throttling and server errors
// in a TransientNetworkError.
func classify(kind types.RegistryKind, err error) error {
	if types.IsTransient(err) {
		return err
	}
	op := fmt.Sprintf("%s tag listing", kind)

	var terr *transport.Error
	if errors.As(err, &terr) && isTransientStatus(terr.StatusCode) {
		return &types.TransientNetworkError{Op: op, Err: err}
	}
	var nerr net.Error
	if errors.As(err, &nerr) || errors.Is(err, context.DeadlineExceeded) {
		return &types.TransientNetworkError{Op: op, Err: err}
	}
	return err
}

func isTransientStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

// statusError is a non-2xx answer of the Docker Hub API.
type statusError struct {
	URL        string
	StatusCode int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d", e.URL, e.StatusCode)
}

func checkStatus(url string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	err := &statusError{URL: url, StatusCode: resp.StatusCode}
	if isTransientStatus(resp.StatusCode) {
		return &types.TransientNetworkError{Op: "dockerhub tag listing", Err: err}
	}
	return err
}

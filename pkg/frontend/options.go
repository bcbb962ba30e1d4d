package frontend

import (
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/addonbump/addonbump/pkg/update"
)

const (
	keyDryRun = "dry_run"
	keyOnly   = "only"
)

// ParseOptions reads the run options of a trigger request on top of base.
// Values are taken from the query string first, then from a form body.
func ParseOptions(c echo.Context, base update.Options) (update.Options, error) {
	opts := base

	getOpt := func(key string) []string {
		if v, ok := c.QueryParams()[key]; ok {
			return v
		}
		if form, err := c.FormParams(); err == nil {
			if v, ok := form[key]; ok {
				return v
			}
		}
		return nil
	}

	if v := getOpt(keyDryRun); len(v) > 0 {
		dryRun, err := strconv.ParseBool(v[len(v)-1])
		if err != nil {
			return update.Options{}, errors.Wrapf(err, "invalid %s value %q", keyDryRun, v[len(v)-1])
		}
		opts.DryRun = dryRun
	}

	// only=a&only=b and only=a,b are equivalent.
	if v := getOpt(keyOnly); len(v) > 0 {
		var only []string
		for _, item := range v {
			for _, slug := range strings.Split(item, ",") {
				if slug = strings.TrimSpace(slug); slug != "" {
					only = append(only, slug)
				}
			}
		}
		opts.Only = only
	}

	return opts, nil
}

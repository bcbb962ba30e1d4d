package patch

import "errors"

// ErrPartialPatch is returned when the manifest set of a package disagrees
// about its version after a write.
var ErrPartialPatch = errors.New("manifest set is inconsistent after patch")

package reconcile

import (
	"fmt"
	"strings"

	"github.com/bundleworks/stockpilot/pkg/shopify"
)

// ResolutionFailure distinguishes the two ways a selection can fail to
// resolve to an adjustable stock record.
type ResolutionFailure string

const (
	// ResolutionNotFound: the referenced variant or product has no
	// resolvable inventory item.
	ResolutionNotFound ResolutionFailure = "not_found"
	// ResolutionNoLocation: the inventory item exists but reports zero
	// stocked locations.
	ResolutionNoLocation ResolutionFailure = "no_location"
)

// ResolutionError is a per-line resolve failure. Caught at the fan-out
// boundary and downgraded to a failed line result.
type ResolutionError struct {
	Ref  string
	Kind ResolutionFailure
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve %s: %s", e.Ref, e.Kind)
}

// AdjustmentRejectedError is a field-level business rejection from the
// inventory adjustment mutation. The raw error payload is preserved for
// diagnostics; rejections are not transient and must not be retried blindly.
type AdjustmentRejectedError struct {
	UserErrors []shopify.UserError
}

func (e *AdjustmentRejectedError) Error() string {
	msgs := make([]string, 0, len(e.UserErrors))
	for _, ue := range e.UserErrors {
		msgs = append(msgs, ue.Message)
	}
	return "adjustment rejected: " + strings.Join(msgs, "; ")
}

// ManifestParseError means the line-item manifest property was present but
// not decodable against the selection schema. The event cannot be acted on
// until the merchant corrects the bundle, so the dedup key is released and
// the platform is told to retry (4xx).
type ManifestParseError struct {
	Property string
	Err      error
}

func (e *ManifestParseError) Error() string {
	return fmt.Sprintf("manifest property %q: %v", e.Property, e.Err)
}

func (e *ManifestParseError) Unwrap() error { return e.Err }

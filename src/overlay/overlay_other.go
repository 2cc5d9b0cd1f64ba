//go:build !windows

package overlay

import "context-capture/src/region"

// New returns fallback; the frozen-screen popup is Windows only.
func New(fallback region.Surface) region.Surface {
	return fallback
}

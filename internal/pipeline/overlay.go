package pipeline

import "context"

// Overlay displays the GUIDE highlight widget (spec.md §1 explicitly
// excludes its implementation: "the on-screen overlay widget ... appear in
// §6 only as interfaces"). ShowHighlight receives coordinates already
// rescaled into logical screen space.
type Overlay interface {
	ShowHighlight(ctx context.Context, x, y int, instruction string) error
}

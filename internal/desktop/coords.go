package desktop

// ScaleFactors returns the per-axis scale factor for converting model-space
// (bitmap) coordinates into logical screen coordinates, per spec.md §4.7.
func ScaleFactors(f Frame) (scaleX, scaleY float64) {
	scaleX = 1
	scaleY = 1
	if f.BitmapW > 0 {
		scaleX = float64(f.LogicalW) / float64(f.BitmapW)
	}
	if f.BitmapH > 0 {
		scaleY = float64(f.LogicalH) / float64(f.BitmapH)
	}
	return scaleX, scaleY
}

// ToLogical rescales a model-space coordinate into logical screen space
// using the frame's scale factors.
func ToLogical(f Frame, x, y int) (int, int) {
	scaleX, scaleY := ScaleFactors(f)
	return int(float64(x) * scaleX), int(float64(y) * scaleY)
}

// RescaleAction returns a copy of a with every model-space coordinate pair
// converted to logical screen space.
func RescaleAction(f Frame, a ComputerAction) ComputerAction {
	out := a
	switch a.Kind {
	case ActionLeftClick, ActionRightClick, ActionDoubleClick, ActionMiddleClick, ActionMouseMove, ActionScroll:
		out.X, out.Y = ToLogical(f, a.X, a.Y)
	case ActionDrag:
		out.StartX, out.StartY = ToLogical(f, a.StartX, a.StartY)
		out.EndX, out.EndY = ToLogical(f, a.EndX, a.EndY)
	}
	return out
}

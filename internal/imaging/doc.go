// Package imaging provides the geometric normalization and image I/O used by
// the meter reading pipeline.
//
// A raw camera frame is first resized to the canonical canvas, the fixed
// resolution against which the operator's rotation and crop were chosen.
// Normalize then rotates the whole canvas and crops the region of interest,
// in that order.
//
// # Coordinate System
//
// All pixel coordinates are 0-based with (0,0) at the top-left corner, X
// increasing rightward and Y increasing downward. Crop rectangles are given
// as {x, y, w, h} and are interpreted against the canvas as it looks after
// rotation, which is what the operator saw when drawing the selection.
//
// # Angle Convention
//
// The selection UI reports angles clockwise-positive. The affine rotation
// here follows the usual image-processing convention where positive angles
// turn counter-clockwise. ProcessingAngle is the only place that converts
// between the two.
//
// # Error Handling
//
// Normalize returns ErrInvalidImage when the input is nil or empty, or when
// the result would have no pixels. File I/O helpers wrap the underlying
// error with the failing path.
package imaging

// Package tracking turns per-frame detections into trajectories for the
// metrics engine.
//
// Detection itself (the model that finds cells in a video frame) happens
// upstream; this package only owns the linking step. TrajectoryProducer is
// the port the API and CLI depend on, and NearestNeighbourLinker is the
// reference implementation: gated, globally optimal frame-to-frame
// assignment with a gap tolerance for missed detections.
package tracking

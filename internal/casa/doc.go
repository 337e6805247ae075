// Package casa owns the CASA (Computer-Assisted Sperm Analysis) metrics engine.
//
// Responsibilities: converting a population of pixel-space trajectories into
// kinematic measures (VCL, VSL, VAP, LIN, STR, WOB, ALH, BCF), classifying each
// trajectory's motility, and aggregating counts, concentration, velocity and
// morphology statistics into a Report.
// Key types: Trajectory, Params, Report, Engine.
//
// Dependency rule: casa performs no I/O. No SQL, HTTP or filesystem code is
// allowed in this package. Upstream detection and tracking live behind
// internal/tracking; persistence and transport live in internal/db,
// internal/api and internal/rpc.
package casa

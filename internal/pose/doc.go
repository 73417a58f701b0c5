// Package pose owns the annotation model and the frame synchronization engine.
//
// Responsibilities: the canonical TimeOffset unit, the immutable Dataset of
// person tracks, the Index answering time-based queries over it, and the
// Resolver that linearly interpolates landmark positions between the two
// keyframes bracketing a playback instant.
// Key types: Dataset, Track, Keyframe, Index, Resolver, PoseObject.
//
// Dependency rule: this package performs no I/O and does not know how a
// dataset was decoded or how poses are drawn. Decoding lives in
// pose/annotations, drawing in overlay.
package pose

// Package entities provides the core domain entities of the launcher:
// module requests, launch descriptors, archive manifests and the per-task
// state machine. These types carry no runtime dependencies.
package entities

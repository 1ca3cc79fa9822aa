// Package launch starts modules concurrently.
//
// A Coordinator turns module names into LaunchDescriptors (archive path plus
// a unique port) and submits one Task per module to a worker pool sized to
// the number of modules. Tasks are independent: a module that fails to load,
// resolve or start is logged and reported to the Observer, and never affects
// its siblings or the coordinator.
package launch

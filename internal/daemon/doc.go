// Package daemon ties the workflow manager to a single-instance process
// lifecycle. A flock on the state directory prevents two engines from
// sharing one item store and destination tree.
package daemon

// Package v4l2 provides the minimal Video4Linux2 surface needed to drive a
// memory-mapped capture stream: device open/close, format and frame-rate
// negotiation, buffer allocation, queue/dequeue, stream on/off, and a
// select-based readiness wait. Commands are encoded in pure Go, so no C
// toolchain or kernel headers are required to build.
package v4l2

// Package anc drives a multi-axis piezo positioner controller (ANC-type
// step/capacitance controller) through its text command set.
//
// Axes are addressed by name. The 1-based channel index sent to the device is
// the position of the name in the ordering given to [New], which must match
// the physical wiring of the controller outputs.
//
// Every axis channel has an operating mode held by the device: step mode
// ("stp") for moving, capacitance mode ("cap") for measuring the piezo
// capacitance, and a few other device modes treated as opaque strings. The
// Controller keeps no belief about the current mode: each query goes to the
// device and modes change only through [Controller.SetMode] and the helpers
// built on it.
//
// Measurement and mode commands fail hard on transport and framing errors.
// Two operations are lenient: a capacitance reply that cannot be
// parsed yields NaN, and a step command whose reply fails framing is logged
// and otherwise ignored, since the motion has already been dispatched.
//
// A Controller issues one command at a time and has no cancellation. Use a
// [Worker] to run controller calls from code that needs to give up waiting.
package anc

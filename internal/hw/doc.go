// Package hw models the hardware side of the scheduler: raw events captured
// in interrupt context, the bounded ring that carries them to the consumer,
// and a simulated board that runs in virtual ticks.
//
// Producers only ever touch the Ring. Everything else in the scheduler is
// mutated by the single consumer goroutine.
package hw

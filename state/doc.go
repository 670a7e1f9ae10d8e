// Package state implements the per-(user, folder) persistence of
// spec.md §6: one encrypted state blob per session, plus staging for the
// welcome message an admin has just minted for an ADD/ADD_ADM, so an
// attempt interrupted before the application message is sent leaves a
// durable record that the next attempt finds and discards (spec.md §9's
// open question on welcome-message durability).
package state

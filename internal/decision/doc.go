// Package decision ranks labeled options for a typed context
//
// Deterministic rules are consulted first, in descending priority, and the
// first enabled match forces its option. Otherwise a strategy chosen by the
// context type scores every option and the best one wins. Outcomes can be
// recorded against a decision exactly once
package decision

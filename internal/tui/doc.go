// Package tui provides the interactive solution picker used by
// 'marktools estimate --interactive'.
//
// The picker shows the priced solutions of an estimate in a table with a
// detail box for the highlighted row. Enter chooses a solution and q, esc
// or ctrl+c cancel.
//
// Usage:
//
//	id, ok, err := tui.Pick(resp)
//	if err == nil && ok {
//		receipt, err = market.Buy(ctx, resp.SessionID, id)
//	}
package tui

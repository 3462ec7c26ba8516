// Package harness runs conformance scenarios against the fully wired
// marketplace backend: real concepts, the rule file and the dispatcher.
//
// # Scenario Format
//
//	name: marketplace_sale
//	description: "Accepting a bid marks the listing sold"
//	rules: custom.cue            # optional, replaces the built-in rules
//	flow_token: sale-flow        # optional
//	setup:
//	  - invoke: UserAccount.requestVerification
//	    args: {email: sam@mit.edu}
//	    capture: {samToken: token}
//	flow:
//	  - invoke: Bidding.placeBid
//	    args: {bidder: $bea, listingId: $listing, amount: 2000}
//	    capture: {bid: bidId}
//	  - invoke: Bidding.placeBid
//	    args: {bidder: $bea, listingId: $listing, amount: 100}
//	    expect:
//	      success: false
//	      error_contains: minimum ask
//	assertions:
//	  - type: trace_contains
//	    action: ItemListing.setStatus
//	    args: {status: Sold}
//	  - type: final_state
//	    table: listings
//	    where: {id: $listing}
//	    expect: {status: Sold}
//
// Steps run through the dispatcher exactly as HTTP requests do. A step
// without expect must succeed. Captured values are substituted for
// "$name" strings in later args, where and expect clauses.
//
// # Assertion Types
//
//   - trace_contains: a call to the action with matching args (subset)
//   - trace_order: first calls to the actions appear in this order
//   - trace_count: exact number of calls to the action
//   - effect_failed: a sync effect failed, optionally with a given error
//   - final_state: exactly one table row matches where and expect
//
// Calls include both dispatched invocations and sync effects.
//
// # Determinism
//
// Every run uses a fresh in-memory SQLite store, a fake clock that ticks
// one second per read, sequential ids and tokens, and a fixed flow token,
// so traces can be compared against golden files.
package harness

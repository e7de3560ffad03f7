// Package board provides the type-safe Go definitions, mutation operations and
// schema migration for a collaborative planning board.
//
// # Overview
//
// A board is the shared state of one session: an ordered list of teams, an
// ordered list of sprints, the features placed in the team×sprint grid, and
// the dependency links between features. Every participant of a session sees
// the same board; the server owns the authoritative copy and clients submit
// mutations against it.
//
// # Core Concepts
//
// Features are the schedulable work items. Their ids are issued by the board
// from NextFeatureID, which always stays strictly greater than every id ever
// issued.
//
// Dependencies link two features. The unordered pair of endpoints is unique on
// a board: a link from A to B and a link from B to A cannot coexist.
//
// Removing a team or a sprint cascades: the features placed in it are deleted,
// and so are the dependencies touching those features.
//
// # Usage Example
//
//	st := board.Default()
//
//	f, err := st.CreateFeature(board.FeatureInput{
//		Title:    "Payment retries",
//		TeamID:   "dev",
//		SprintID: 2,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	ev := board.NewEvent(board.EventFeatureCreated, f)
//
// # Schema Migration
//
// Boards are persisted as JSON. Older deployments wrote "departments" instead
// of "teams" and used short field names ("team", "sprint", "from", "to").
// Decode upgrades any of those shapes to the current one in a single pass of
// ordered, idempotent steps keyed by schemaVersion.
package board

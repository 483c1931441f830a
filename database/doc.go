// Package database binds a Bun engine and per-request sessions to a
// context.Context. A Database is initialized from a connection URL and two
// option maps, then hands out sessions through ScopedSession, which publishes
// the session on the context passed to the callback:
//
//	db, err := database.Open("sqlite://")
//	err = db.ScopedSession(ctx, func(ctx context.Context, s *database.Session) error {
//		// database.CurrentSession(ctx) returns s anywhere below this call
//		if err := s.Add(ctx, &User{Name: "alice"}); err != nil {
//			return err
//		}
//		return s.Commit()
//	})
//
// Work that is not committed is rolled back when the scope ends.
//
// It also provides table name derivation, a model registry for CreateAll and
// DropAll, configuration loading, health checks and logging.
package database

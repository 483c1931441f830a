/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

import "context"

type contextKey struct{}

var sessionContextKey contextKey

// ContextWithSession publishes s as the current session of the returned
// context. The parent context is left untouched, so dropping the derived
// context restores whatever was current before. Nested scopes unwind LIFO.
func ContextWithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey, s)
}

// SessionFromContext returns the session published on ctx, if any.
func SessionFromContext(ctx context.Context) (*Session, bool) {
	if ctx == nil {
		return nil, false
	}
	s, ok := ctx.Value(sessionContextKey).(*Session)
	return s, ok && s != nil
}

// CurrentSession returns the open session published on ctx or
// ErrSessionNotInitialized when there is none.
func CurrentSession(ctx context.Context) (*Session, error) {
	s, ok := SessionFromContext(ctx)
	if !ok || s.Closed() {
		return nil, ErrSessionNotInitialized
	}
	return s, nil
}

// Package logging provides a tiny abstraction over slog so downstream code
// can depend on a minimal interface (Logger) while allowing users to plug any
// structured logger. The runtime defaults to NoOpLogger; servers typically
// install a JSON slog handler via New.
package logging

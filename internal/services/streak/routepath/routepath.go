// Package routepath centralizes the streak HTTP surface paths.
package routepath

const (
	// ComputeProjection serves one user's current streak projection.
	ComputeProjection = "/computeUserStreakProjectionHttp"
	// ExplainProjection serves the stepwise replay of one user's journal.
	ExplainProjection = "/explainUserStreakProjectionHttp"
	// ComputeBatch refreshes projections for a set of users.
	ComputeBatch = "/computeStreakProjectionsBatch"
	// UserEvents serves a slice of one user's journal.
	UserEvents = "/userStreakEventsHttp"
	// UsersOverview lists every known user with cached projections.
	UsersOverview = "/streakUsersOverviewHttp"
	// Healthz reports process liveness.
	Healthz = "/healthz"
)

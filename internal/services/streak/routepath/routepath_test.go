package routepath

import "testing"

func TestRoutes(t *testing.T) {
	t.Parallel()

	if ComputeProjection != "/computeUserStreakProjectionHttp" {
		t.Fatalf("ComputeProjection = %q", ComputeProjection)
	}
	if ExplainProjection != "/explainUserStreakProjectionHttp" {
		t.Fatalf("ExplainProjection = %q", ExplainProjection)
	}
	if ComputeBatch != "/computeStreakProjectionsBatch" {
		t.Fatalf("ComputeBatch = %q", ComputeBatch)
	}
	if UserEvents != "/userStreakEventsHttp" {
		t.Fatalf("UserEvents = %q", UserEvents)
	}
	if UsersOverview != "/streakUsersOverviewHttp" {
		t.Fatalf("UsersOverview = %q", UsersOverview)
	}
	if Healthz != "/healthz" {
		t.Fatalf("Healthz = %q", Healthz)
	}
}

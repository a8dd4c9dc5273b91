package server

import "net/http"

// Handler assembles the HTTP surface: the websocket endpoint for real-time
// clients plus the thin API the surrounding application calls.
func Handler(registry *Registry, svc MeetingService, store MetaStore, publisher Publisher, warnings []string) http.Handler {
	mux := http.NewServeMux()

	registerWSRoute(mux, registry)
	registerAPIRoutes(mux, svc, store, publisher, registry, warnings)

	return mux
}

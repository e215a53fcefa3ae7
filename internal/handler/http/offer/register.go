package offer

import "net/http"

// Register mounts the offer and matching routes on mux.
func Register(mux *http.ServeMux, h *Handlers) {
	mux.Handle("GET /offers", ListHandler{h})
	mux.Handle("GET /offers/category/{category}", CategoryHandler{h})
	mux.Handle("GET /offers/matches", MatchesHandler{h})
	mux.Handle("POST /matches", BestMatchesHandler{h})
}

package server

import (
	"net/http"

	"github.com/pingcap-incubator/tinystm/stm"
	"github.com/unrolled/render"
)

// Status is the geometry of the region and where its clock stands.
type Status struct {
	RegionSize int    `json:"region_size"`
	StripeSize int    `json:"stripe_size"`
	Stripes    int    `json:"stripes"`
	Clock      uint64 `json:"clock"`
}

type statusHandler struct {
	s  *stm.STM
	rd *render.Render
}

func newStatusHandler(s *stm.STM, rd *render.Render) *statusHandler {
	return &statusHandler{
		s:  s,
		rd: rd,
	}
}

func (h *statusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.rd.JSON(w, http.StatusOK, &Status{
		RegionSize: h.s.Size(),
		StripeSize: h.s.StripeSize(),
		Stripes:    h.s.NumStripes(),
		Clock:      h.s.Clock(),
	})
}

type statsHandler struct {
	s  *stm.STM
	rd *render.Render
}

func newStatsHandler(s *stm.STM, rd *render.Render) *statsHandler {
	return &statsHandler{
		s:  s,
		rd: rd,
	}
}

func (h *statsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.rd.JSON(w, http.StatusOK, h.s.Stats())
}

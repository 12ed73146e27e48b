// README: Merge endpoints: eligibility, merge/unmerge, sequencing, candidates, recommendations.
package handlers

import (
	"context"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"tripmerge/internal/modules/automerge"
	"tripmerge/internal/modules/eligibility"
	"tripmerge/internal/modules/merge"
	"tripmerge/internal/modules/recommend"
	"tripmerge/internal/modules/routing"
	"tripmerge/internal/types"
)

type MergeService interface {
	CheckEligibility(ctx context.Context, baseID, candidateID types.ID, manual bool) (eligibility.Result, error)
	Merge(ctx context.Context, cmd merge.MergeCommand) (*merge.MergeResult, error)
	Unmerge(ctx context.Context, id types.ID) (*merge.UnmergeResult, error)
	OptimizeSequence(ctx context.Context, ids []types.ID) (*routing.Result, error)
	ReoptimizeTrip(ctx context.Context, parentID types.ID) (*merge.MergeResult, error)
	Candidates(ctx context.Context, id types.ID) (*merge.CandidatesResult, error)
}

type Recommender interface {
	Recommend(ctx context.Context, id types.ID) ([]recommend.Recommendation, error)
}

type MarkerReader interface {
	Get(ctx context.Context, id types.ID) (automerge.Marker, bool, error)
}

type MergeHandler struct {
	merge     MergeService
	recommend Recommender
	markers   MarkerReader
}

// NewMergeHandler wires the merge endpoints. markers may be nil.
func NewMergeHandler(svc MergeService, rec Recommender, markers MarkerReader) *MergeHandler {
	return &MergeHandler{merge: svc, recommend: rec, markers: markers}
}

type checkEligibilityReq struct {
	BaseID      string `json:"base_id" binding:"required"`
	CandidateID string `json:"candidate_id" binding:"required"`
	Manual      bool   `json:"manual"`
}

func (h *MergeHandler) CheckEligibility(c *gin.Context) {
	var req checkEligibilityReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBadRequest(c, err.Error())
		return
	}
	res, err := h.merge.CheckEligibility(c.Request.Context(), types.ID(req.BaseID), types.ID(req.CandidateID), req.Manual)
	if err != nil {
		writeError(c, err)
		return
	}
	msg := "bookings can be merged"
	if !res.Eligible {
		msg = "bookings cannot be merged"
	}
	writeOK(c, http.StatusOK, msg, res)
}

type mergeReq struct {
	ParentID string   `json:"parent_id"`
	ChildIDs []string `json:"child_ids"`
}

func (h *MergeHandler) Merge(c *gin.Context) {
	var req mergeReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBadRequest(c, "invalid json")
		return
	}
	cmd := merge.MergeCommand{ParentID: types.ID(req.ParentID)}
	for _, id := range req.ChildIDs {
		cmd.ChildIDs = append(cmd.ChildIDs, types.ID(id))
	}
	res, err := h.merge.Merge(c.Request.Context(), cmd)
	if err != nil {
		writeError(c, err)
		return
	}
	writeOK(c, http.StatusOK, "bookings merged into trip "+res.Summary.TripID, res)
}

type optimizeSequenceReq struct {
	BookingIDs []string `json:"booking_ids"`
}

func (h *MergeHandler) OptimizeSequence(c *gin.Context) {
	var req optimizeSequenceReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBadRequest(c, "invalid json")
		return
	}
	ids := make([]types.ID, len(req.BookingIDs))
	for i, id := range req.BookingIDs {
		ids[i] = types.ID(id)
	}
	res, err := h.merge.OptimizeSequence(c.Request.Context(), ids)
	if err != nil {
		writeError(c, err)
		return
	}
	writeOK(c, http.StatusOK, "sequence computed", res)
}

type candidatesResp struct {
	*merge.CandidatesResult
	MergeEligible bool       `json:"merge_eligible"`
	MarkedMatches []types.ID `json:"marked_matches,omitempty"`
}

func (h *MergeHandler) Candidates(c *gin.Context) {
	id := types.ID(c.Param("id"))
	res, err := h.merge.Candidates(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	resp := candidatesResp{CandidatesResult: res}
	if h.markers != nil {
		m, ok, err := h.markers.Get(c.Request.Context(), id)
		if err != nil {
			log.Printf("handlers: read merge marker for %s: %v", id, err)
		} else if ok {
			resp.MergeEligible = true
			resp.MarkedMatches = m.Matches
		}
	}
	writeOK(c, http.StatusOK, "", resp)
}

func (h *MergeHandler) Recommendations(c *gin.Context) {
	recs, err := h.recommend.Recommend(c.Request.Context(), types.ID(c.Param("id")))
	if err != nil {
		writeError(c, err)
		return
	}
	writeOK(c, http.StatusOK, "", recs)
}

func (h *MergeHandler) OptimizeRoute(c *gin.Context) {
	res, err := h.merge.ReoptimizeTrip(c.Request.Context(), types.ID(c.Param("id")))
	if err != nil {
		writeError(c, err)
		return
	}
	writeOK(c, http.StatusOK, "route optimized", res)
}

func (h *MergeHandler) Unmerge(c *gin.Context) {
	res, err := h.merge.Unmerge(c.Request.Context(), types.ID(c.Param("id")))
	if err != nil {
		writeError(c, err)
		return
	}
	msg := "booking unmerged"
	if res.TripDissolved {
		msg = "booking unmerged, trip dissolved"
	}
	writeOK(c, http.StatusOK, msg, res)
}

package matching

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	svcErr "github.com/oggyb/swipecook/internal/errors"
)

// RegisterRoutes mounts the JSON mirror of MatchService. rg must already
// carry the identity middleware.
//
//	POST /decisions               RecordDecision
//	GET  /matches?status=&limit=  ListMatches
//	GET  /matches/:id             GetMatch
//	POST /matches/:id/status      UpdateStatus
//	POST /matches/:id/ratings     AddRating
//	POST /matches/:id/notes       AddNote
//	GET  /stats                   GetStats
//	POST /partner                 LinkPartner
func (r *Registrar) RegisterRoutes(rg *gin.RouterGroup) {
	g := NewGRPCServer(r.svc)

	rg.POST("/decisions", jsonCall(func(*gin.Context, *RecordDecisionRequest) {}, g.RecordDecision))
	rg.GET("/matches", func(c *gin.Context) {
		req := &ListMatchesRequest{Status: c.Query("status")}
		req.Limit, _ = strconv.Atoi(c.Query("limit"))
		req.Offset, _ = strconv.Atoi(c.Query("offset"))
		resp, err := g.ListMatches(c.Request.Context(), req)
		respond(c, resp, err)
	})
	rg.GET("/matches/:id", func(c *gin.Context) {
		resp, err := g.GetMatch(c.Request.Context(), &GetMatchRequest{MatchID: c.Param("id")})
		respond(c, resp, err)
	})
	rg.POST("/matches/:id/status", jsonCall(func(c *gin.Context, req *UpdateStatusRequest) { req.MatchID = c.Param("id") }, g.UpdateStatus))
	rg.POST("/matches/:id/ratings", jsonCall(func(c *gin.Context, req *AddRatingRequest) { req.MatchID = c.Param("id") }, g.AddRating))
	rg.POST("/matches/:id/notes", jsonCall(func(c *gin.Context, req *AddNoteRequest) { req.MatchID = c.Param("id") }, g.AddNote))
	rg.GET("/stats", func(c *gin.Context) {
		resp, err := g.GetStats(c.Request.Context(), &GetStatsRequest{})
		respond(c, resp, err)
	})
	rg.POST("/partner", jsonCall(func(*gin.Context, *LinkPartnerRequest) {}, g.LinkPartner))
}

// jsonCall binds the body into Req, lets fill copy path params, then runs call.
func jsonCall[Req, Resp any](fill func(*gin.Context, *Req), call func(context.Context, *Req) (*Resp, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		req := new(Req)
		if err := c.ShouldBindJSON(req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body: " + err.Error()})
			return
		}
		fill(c, req)
		resp, err := call(c.Request.Context(), req)
		respond(c, resp, err)
	}
}

func respond(c *gin.Context, resp any, err error) {
	if err != nil {
		c.JSON(svcErr.HTTPStatus(err), gin.H{"error": svcErr.Message(err)})
		return
	}
	c.JSON(http.StatusOK, resp)
}

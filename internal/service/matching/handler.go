package matching

import (
	"context"
	"strings"

	"github.com/oggyb/swipecook/internal/auth"
	"github.com/oggyb/swipecook/internal/db"
	svcErr "github.com/oggyb/swipecook/internal/errors"
	"github.com/oggyb/swipecook/internal/match"
)

// GRPCServer implements MatchServiceServer on top of Service.
// The acting user always comes from the authenticated identity, never from
// the request body.
type GRPCServer struct {
	svc *Service
}

func NewGRPCServer(svc *Service) *GRPCServer {
	return &GRPCServer{svc: svc}
}

var _ MatchServiceServer = (*GRPCServer)(nil)

func (g *GRPCServer) RecordDecision(ctx context.Context, req *RecordDecisionRequest) (*RecordDecisionResponse, error) {
	userID, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.ItemID) == "" {
		return nil, svcErr.InvalidArgument("itemId is required")
	}

	res, err := g.svc.RecordDecision(ctx, userID, req.ItemID, req.IsPositive)
	if err != nil {
		return nil, svcErr.Map(err)
	}

	resp := &RecordDecisionResponse{Success: true, Matched: res.Matched, Item: res.Item}
	if res.Match != nil {
		m := ToWire(res.Match)
		resp.MatchID = m.ID
		resp.Match = &m
	}
	return resp, nil
}

// ListMatches returns the caller's matches, newest first.
//
// Example:
//
//	client.ListMatches(ctx, &ListMatchesRequest{Status: "cooked", Limit: 10})
func (g *GRPCServer) ListMatches(ctx context.Context, req *ListMatchesRequest) (*ListMatchesResponse, error) {
	userID, err := caller(ctx)
	if err != nil {
		return nil, err
	}

	page, err := g.svc.ListMatches(ctx, userID, req.Status, req.Limit, req.Offset)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return &ListMatchesResponse{
		Matches: toWireList(page.Matches),
		Total:   page.Total,
		HasMore: page.HasMore,
	}, nil
}

func (g *GRPCServer) GetMatch(ctx context.Context, req *GetMatchRequest) (*MatchResponse, error) {
	userID, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	return matchResponse(g.svc.GetMatch(ctx, userID, req.MatchID))
}

// UpdateStatus moves a match along matched -> scheduled -> cooked.
// expired cannot be requested; only the sweep sets it.
func (g *GRPCServer) UpdateStatus(ctx context.Context, req *UpdateStatusRequest) (*MatchResponse, error) {
	userID, err := caller(ctx)
	if err != nil {
		return nil, err
	}

	to, err := match.ParseStatus(req.Status)
	if err != nil || to == "" {
		return nil, svcErr.InvalidArgument("status must be one of scheduled, cooked")
	}
	return matchResponse(g.svc.UpdateStatus(ctx, userID, req.MatchID, to, req.CookDate))
}

func (g *GRPCServer) AddRating(ctx context.Context, req *AddRatingRequest) (*MatchResponse, error) {
	userID, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	return matchResponse(g.svc.AddRating(ctx, userID, req.MatchID, req.Rating))
}

func (g *GRPCServer) AddNote(ctx context.Context, req *AddNoteRequest) (*MatchResponse, error) {
	userID, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	return matchResponse(g.svc.AddNote(ctx, userID, req.MatchID, req.Text))
}

func (g *GRPCServer) GetStats(ctx context.Context, _ *GetStatsRequest) (*GetStatsResponse, error) {
	userID, err := caller(ctx)
	if err != nil {
		return nil, err
	}

	st, err := g.svc.GetStats(ctx, userID)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return &GetStatsResponse{
		PartnerID:      st.PartnerID,
		TotalDecisions: st.TotalDecisions,
		TotalMatches:   st.TotalMatches,
		ItemsCooked:    st.ItemsCooked,
		Liked:          st.Liked,
		Disliked:       st.Disliked,
	}, nil
}

func (g *GRPCServer) LinkPartner(ctx context.Context, req *LinkPartnerRequest) (*LinkPartnerResponse, error) {
	userID, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	partnerID := strings.TrimSpace(req.PartnerID)
	if partnerID == "" || partnerID == userID {
		return nil, svcErr.InvalidArgument("partnerId must name another user")
	}
	if err := g.svc.LinkPartners(ctx, userID, partnerID); err != nil {
		return nil, svcErr.Map(err)
	}
	return &LinkPartnerResponse{Success: true}, nil
}

func caller(ctx context.Context) (string, error) {
	userID, ok := auth.UserFromContext(ctx)
	if !ok {
		return "", svcErr.Unauthenticated("missing user identity")
	}
	return userID, nil
}

func matchResponse(m *db.Match, err error) (*MatchResponse, error) {
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return &MatchResponse{Match: ToWire(m)}, nil
}

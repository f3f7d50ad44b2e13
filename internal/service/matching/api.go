package matching

import (
	"context"
	"time"

	"google.golang.org/grpc"

	"github.com/oggyb/swipecook/internal/wire"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "swipecook.matching.v1.MatchService"

type RecordDecisionRequest struct {
	ItemID     string `json:"itemId"`
	IsPositive bool   `json:"isPositive"`
}

type RecordDecisionResponse struct {
	Success bool        `json:"success"`
	Matched bool        `json:"matched"`
	MatchID string      `json:"matchId,omitempty"`
	Item    *wire.Item  `json:"item,omitempty"`
	Match   *wire.Match `json:"match,omitempty"`
}

type ListMatchesRequest struct {
	Status string `json:"status,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

type ListMatchesResponse struct {
	Matches []wire.Match `json:"matches"`
	Total   int64        `json:"total"`
	HasMore bool         `json:"hasMore"`
}

type GetMatchRequest struct {
	MatchID string `json:"matchId"`
}

type UpdateStatusRequest struct {
	MatchID  string     `json:"matchId"`
	Status   string     `json:"status"`
	CookDate *time.Time `json:"cookDate,omitempty"`
}

type AddRatingRequest struct {
	MatchID string `json:"matchId"`
	Rating  int    `json:"rating"`
}

type AddNoteRequest struct {
	MatchID string `json:"matchId"`
	Text    string `json:"text"`
}

// MatchResponse is returned by every call that reads or mutates one match.
type MatchResponse struct {
	Match wire.Match `json:"match"`
}

type GetStatsRequest struct{}

type GetStatsResponse struct {
	PartnerID      string   `json:"partnerId,omitempty"`
	TotalDecisions int64    `json:"totalDecisions"`
	TotalMatches   int64    `json:"totalMatches"`
	ItemsCooked    int64    `json:"itemsCooked"`
	Liked          []string `json:"liked"`
	Disliked       []string `json:"disliked"`
}

type LinkPartnerRequest struct {
	PartnerID string `json:"partnerId"`
}

type LinkPartnerResponse struct {
	Success bool `json:"success"`
}

// MatchServiceServer is the server API of MatchService.
type MatchServiceServer interface {
	RecordDecision(context.Context, *RecordDecisionRequest) (*RecordDecisionResponse, error)
	ListMatches(context.Context, *ListMatchesRequest) (*ListMatchesResponse, error)
	GetMatch(context.Context, *GetMatchRequest) (*MatchResponse, error)
	UpdateStatus(context.Context, *UpdateStatusRequest) (*MatchResponse, error)
	AddRating(context.Context, *AddRatingRequest) (*MatchResponse, error)
	AddNote(context.Context, *AddNoteRequest) (*MatchResponse, error)
	GetStats(context.Context, *GetStatsRequest) (*GetStatsResponse, error)
	LinkPartner(context.Context, *LinkPartnerRequest) (*LinkPartnerResponse, error)
}

// MatchService_ServiceDesc describes MatchService for grpc.Server.RegisterService.
// Messages are JSON (see wire.JSONCodec).
var MatchService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*MatchServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "RecordDecision", Handler: unaryHandler("RecordDecision", MatchServiceServer.RecordDecision)},
		{MethodName: "ListMatches", Handler: unaryHandler("ListMatches", MatchServiceServer.ListMatches)},
		{MethodName: "GetMatch", Handler: unaryHandler("GetMatch", MatchServiceServer.GetMatch)},
		{MethodName: "UpdateStatus", Handler: unaryHandler("UpdateStatus", MatchServiceServer.UpdateStatus)},
		{MethodName: "AddRating", Handler: unaryHandler("AddRating", MatchServiceServer.AddRating)},
		{MethodName: "AddNote", Handler: unaryHandler("AddNote", MatchServiceServer.AddNote)},
		{MethodName: "GetStats", Handler: unaryHandler("GetStats", MatchServiceServer.GetStats)},
		{MethodName: "LinkPartner", Handler: unaryHandler("LinkPartner", MatchServiceServer.LinkPartner)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "swipecook/matching/v1",
}

func unaryHandler[Req, Resp any](
	method string,
	call func(MatchServiceServer, context.Context, *Req) (*Resp, error),
) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	fullMethod := "/" + ServiceName + "/" + method
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(MatchServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(MatchServiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// MatchServiceClient calls MatchService over a JSON-coded connection.
type MatchServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewMatchServiceClient(cc grpc.ClientConnInterface) *MatchServiceClient {
	return &MatchServiceClient{cc: cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(wire.CodecName)}, opts...)
	if err := cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *MatchServiceClient) RecordDecision(ctx context.Context, in *RecordDecisionRequest, opts ...grpc.CallOption) (*RecordDecisionResponse, error) {
	return invoke[RecordDecisionResponse](ctx, c.cc, "RecordDecision", in, opts)
}

func (c *MatchServiceClient) ListMatches(ctx context.Context, in *ListMatchesRequest, opts ...grpc.CallOption) (*ListMatchesResponse, error) {
	return invoke[ListMatchesResponse](ctx, c.cc, "ListMatches", in, opts)
}

func (c *MatchServiceClient) GetMatch(ctx context.Context, in *GetMatchRequest, opts ...grpc.CallOption) (*MatchResponse, error) {
	return invoke[MatchResponse](ctx, c.cc, "GetMatch", in, opts)
}

func (c *MatchServiceClient) UpdateStatus(ctx context.Context, in *UpdateStatusRequest, opts ...grpc.CallOption) (*MatchResponse, error) {
	return invoke[MatchResponse](ctx, c.cc, "UpdateStatus", in, opts)
}

func (c *MatchServiceClient) AddRating(ctx context.Context, in *AddRatingRequest, opts ...grpc.CallOption) (*MatchResponse, error) {
	return invoke[MatchResponse](ctx, c.cc, "AddRating", in, opts)
}

func (c *MatchServiceClient) AddNote(ctx context.Context, in *AddNoteRequest, opts ...grpc.CallOption) (*MatchResponse, error) {
	return invoke[MatchResponse](ctx, c.cc, "AddNote", in, opts)
}

func (c *MatchServiceClient) GetStats(ctx context.Context, in *GetStatsRequest, opts ...grpc.CallOption) (*GetStatsResponse, error) {
	return invoke[GetStatsResponse](ctx, c.cc, "GetStats", in, opts)
}

func (c *MatchServiceClient) LinkPartner(ctx context.Context, in *LinkPartnerRequest, opts ...grpc.CallOption) (*LinkPartnerResponse, error) {
	return invoke[LinkPartnerResponse](ctx, c.cc, "LinkPartner", in, opts)
}

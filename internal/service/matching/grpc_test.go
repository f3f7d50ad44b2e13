package matching_test

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/oggyb/swipecook/internal/auth"
	"github.com/oggyb/swipecook/internal/db/dbtest"
	"github.com/oggyb/swipecook/internal/service/matching"
)

func newGRPCClient(t *testing.T, f *fixture) *matching.MatchServiceClient {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer(grpc.UnaryInterceptor(auth.NewIdentifier("").UnaryInterceptor()))
	matching.NewRegistrar(f.svc).Register(srv)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return matching.NewMatchServiceClient(conn)
}

func as(userID string) context.Context {
	return auth.OutgoingContext(context.Background(), "", userID)
}

func TestGRPC_DecisionToCooked(t *testing.T) {
	f := newFixture(t)
	dbtest.Pair(t, f.db, "u1", "u2")
	client := newGRPCClient(t, f)

	resp, err := client.RecordDecision(as("u1"), &matching.RecordDecisionRequest{ItemID: "item-007", IsPositive: true})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.False(t, resp.Matched)

	resp, err = client.RecordDecision(as("u2"), &matching.RecordDecisionRequest{ItemID: "item-007", IsPositive: true})
	require.NoError(t, err)
	require.True(t, resp.Matched)
	require.NotEmpty(t, resp.MatchID)
	require.NotNil(t, resp.Item)
	assert.Equal(t, "Ramen", resp.Item.Title)

	_, err = client.RecordDecision(as("u2"), &matching.RecordDecisionRequest{ItemID: "item-007", IsPositive: false})
	assert.Equal(t, codes.AlreadyExists, status.Code(err))

	got, err := client.UpdateStatus(as("u1"), &matching.UpdateStatusRequest{MatchID: resp.MatchID, Status: "cooked"})
	require.NoError(t, err)
	assert.Equal(t, "cooked", got.Match.Status)
	require.Len(t, got.Match.StatusHistory, 2)

	_, err = client.AddRating(as("u1"), &matching.AddRatingRequest{MatchID: resp.MatchID, Rating: 4})
	require.NoError(t, err)
	got, err = client.AddRating(as("u2"), &matching.AddRatingRequest{MatchID: resp.MatchID, Rating: 5})
	require.NoError(t, err)
	require.NotNil(t, got.Match.AverageRating)
	assert.InDelta(t, 4.5, *got.Match.AverageRating, 1e-9)

	list, err := client.ListMatches(as("u2"), &matching.ListMatchesRequest{Status: "cooked"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, list.Total)

	stats, err := client.GetStats(as("u1"), &matching.GetStatsRequest{})
	require.NoError(t, err)
	assert.Equal(t, "u2", stats.PartnerID)
	assert.EqualValues(t, 1, stats.ItemsCooked)
}

func TestGRPC_ErrorCodes(t *testing.T) {
	f := newFixture(t)
	dbtest.Pair(t, f.db, "u1", "u2")
	dbtest.Pair(t, f.db, "u3", "u4")
	client := newGRPCClient(t, f)
	m := f.mutualLike(t, "u1", "u2", "item-001")

	_, err := client.GetMatch(context.Background(), &matching.GetMatchRequest{MatchID: m.ID})
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	_, err = client.GetMatch(as("u3"), &matching.GetMatchRequest{MatchID: m.ID})
	assert.Equal(t, codes.PermissionDenied, status.Code(err))

	_, err = client.GetMatch(as("u1"), &matching.GetMatchRequest{MatchID: "nope"})
	assert.Equal(t, codes.NotFound, status.Code(err))

	_, err = client.AddRating(as("u1"), &matching.AddRatingRequest{MatchID: m.ID, Rating: 9})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = client.UpdateStatus(as("u1"), &matching.UpdateStatusRequest{MatchID: m.ID, Status: "expired"})
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))

	_, err = client.UpdateStatus(as("u1"), &matching.UpdateStatusRequest{MatchID: m.ID, Status: "scheduled"})
	assert.Equal(t, codes.FailedPrecondition, status.Code(err), "scheduled needs a future cook date")

	_, err = client.UpdateStatus(as("u1"), &matching.UpdateStatusRequest{MatchID: m.ID, Status: "bogus"})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = client.RecordDecision(as("u1"), &matching.RecordDecisionRequest{})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = client.LinkPartner(as("u1"), &matching.LinkPartnerRequest{PartnerID: "u3"})
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))
}

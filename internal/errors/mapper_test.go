package errors

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gorm.io/gorm"

	"github.com/oggyb/swipecook/internal/match"
)

func TestMap(t *testing.T) {
	cases := []struct {
		err  error
		code codes.Code
	}{
		{match.ErrAlreadyDecided, codes.AlreadyExists},
		{fmt.Errorf("record: %w", match.ErrNotPartnered), codes.FailedPrecondition},
		{match.ErrInvalidTransition, codes.FailedPrecondition},
		{match.ErrInvalidCookDate, codes.FailedPrecondition},
		{match.ErrInvalidRating, codes.InvalidArgument},
		{match.ErrNoteTooLong, codes.InvalidArgument},
		{match.ErrUserNotInMatch, codes.PermissionDenied},
		{match.ErrMatchNotFound, codes.NotFound},
		{gorm.ErrRecordNotFound, codes.NotFound},
		{context.DeadlineExceeded, codes.DeadlineExceeded},
		{context.Canceled, codes.Canceled},
		{fmt.Errorf("disk on fire"), codes.Internal},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.code, status.Code(Map(tc.err)), tc.err.Error())
	}

	assert.NoError(t, Map(nil))
	assert.Equal(t, "already rated", status.Convert(Map(match.ErrAlreadyDecided)).Message())

	// existing status is kept
	in := InvalidArgument("bad item")
	assert.Equal(t, in, Map(in))
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusConflict, HTTPStatus(match.ErrAlreadyDecided))
	assert.Equal(t, http.StatusForbidden, HTTPStatus(match.ErrUserNotInMatch))
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(match.ErrInvalidRating))
	assert.Equal(t, http.StatusUnauthorized, HTTPStatus(Unauthenticated("who")))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(fmt.Errorf("x")))
	assert.Equal(t, http.StatusOK, HTTPStatus(nil))
}

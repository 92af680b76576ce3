package firestore

import (
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// newNotFoundError builds a status error classified as not-found by the
// platform error wrapper, used when a query rather than a direct get misses.
func newNotFoundError(msg string) error {
	return status.Error(codes.NotFound, msg)
}

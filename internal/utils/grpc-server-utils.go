package utils

import (
	"context"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	"google.golang.org/grpc/metadata"
)

const ActorMetadataKey = "x-user-id"

var ErrMissingActor = errors.New("missing or malformed actor id")

// ParseActorID validates the id of the user a request acts for.
func ParseActorID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrMissingActor
	}
	return id, nil
}

// ActorFromMetadata reads the actor id from the incoming gRPC metadata.
func ActorFromMetadata(ctx context.Context) (int64, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return 0, ErrMissingActor
	}
	values := md.Get(ActorMetadataKey)
	if len(values) == 0 {
		return 0, ErrMissingActor
	}
	return ParseActorID(values[0])
}

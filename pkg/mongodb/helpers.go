package mongodb

import (
	"context"
	"errors"
	"net"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// GenerateIDString generates a new MongoDB ObjectID as a 24-char hex string
func GenerateIDString() string {
	return primitive.NewObjectID().Hex()
}

// IsDuplicateKey reports whether err is a unique index violation
func IsDuplicateKey(err error) bool {
	return mongo.IsDuplicateKeyError(err)
}

// IsUnavailable reports whether err means the server could not be reached
// or did not answer in time, as opposed to a rejected command.
func IsUnavailable(err error) bool {
	if err == nil {
		return false
	}
	if mongo.IsNetworkError(err) || mongo.IsTimeout(err) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, mongo.ErrClientDisconnected) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

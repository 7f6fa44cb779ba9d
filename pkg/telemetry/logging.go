package telemetry

import (
	"context"
	"time"

	"github.com/serverlessresearch/srkstore/pkg/srk"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// UnaryLoggingInterceptor logs each call with its method, status code and
// duration. Successful calls are logged at debug level.
func UnaryLoggingInterceptor(logger srk.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		code := status.Code(err)
		entry := logger.WithFields(logrus.Fields{
			"method":   info.FullMethod,
			"code":     code.String(),
			"duration": time.Since(start),
		})
		switch code {
		case codes.OK:
			entry.Debug("rpc finished")
		case codes.Internal, codes.Unknown:
			entry.Error("rpc finished")
		default:
			entry.Info("rpc finished")
		}
		return resp, err
	}
}

package transport

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func streamLoggingInterceptor(logger *slog.Logger) grpc.StreamServerInterceptor {
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		start := time.Now()

		logger.Debug("stream started", "method", info.FullMethod)

		err := handler(srv, ss)

		duration := time.Since(start)
		code := status.Code(err)
		if err != nil && code != codes.Canceled {
			logger.Warn("stream failed",
				"method", info.FullMethod,
				"duration_ms", duration.Milliseconds(),
				"code", code.String(),
				"error", err,
			)
		} else {
			logger.Debug("stream completed",
				"method", info.FullMethod,
				"duration_ms", duration.Milliseconds(),
				"code", code.String(),
			)
		}

		return err
	}
}

func streamClientLoggingInterceptor(logger *slog.Logger) grpc.StreamClientInterceptor {
	return func(ctx context.Context, desc *grpc.StreamDesc, cc *grpc.ClientConn, method string, streamer grpc.Streamer, opts ...grpc.CallOption) (grpc.ClientStream, error) {
		start := time.Now()

		stream, err := streamer(ctx, desc, cc, method, opts...)
		if err != nil {
			logger.Debug("client stream failed to establish",
				"method", method,
				"target", cc.Target(),
				"duration_ms", time.Since(start).Milliseconds(),
				"code", status.Code(err).String(),
				"error", err,
			)
			return nil, err
		}

		logger.Debug("client stream established",
			"method", method,
			"target", cc.Target(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return stream, nil
	}
}

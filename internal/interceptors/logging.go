package interceptors

import (
	"context"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/pribylovaa/carelink-auth/internal/pkg/log"
)

const maxRequestIDLen = 128

// UnaryLoggingInterceptor логирует unary-вызовы и кладёт обогащённый логгер в context.
//
// Поведение:
//   - x-request-id берётся из входящего metadata (не длиннее 128 байт), иначе генерируется ULID;
//   - id сохраняется через log.WithRequestID и возвращается клиенту в header x-request-id;
//   - после handler пишется одна строка msg="grpc" с code и dur; Internal и Unknown
//     пишутся уровнем Error.
func UnaryLoggingInterceptor(base *slog.Logger) grpc.UnaryServerInterceptor {
	if base == nil {
		base = slog.Default()
	}

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()

		rid := requestIDFrom(ctx)
		_ = grpc.SetHeader(ctx, metadata.Pairs("x-request-id", rid))

		peerStr := "-"
		if p, ok := peer.FromContext(ctx); ok && p != nil && p.Addr != nil {
			peerStr = p.Addr.String()
		}

		l := base.With(
			slog.String("request_id", rid),
			slog.String("method", info.FullMethod),
			slog.String("peer", peerStr),
		)
		ctx = log.WithRequestID(log.Into(ctx, l), rid)

		resp, err := handler(ctx, req)

		code := status.Code(err)
		lvl := slog.LevelInfo
		if code == codes.Internal || code == codes.Unknown {
			lvl = slog.LevelError
		}

		l.Log(ctx, lvl, "grpc",
			slog.String("code", code.String()),
			slog.Duration("dur", time.Since(start)),
		)

		return resp, err
	}
}

func requestIDFrom(ctx context.Context) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if v := md.Get("x-request-id"); len(v) > 0 && v[0] != "" && len(v[0]) <= maxRequestIDLen {
			return v[0]
		}
	}

	return ulid.Make().String()
}

package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	// ServiceName — полное имя gRPC-сервиса проверки доступа.
	ServiceName = "carelink.auth.v1.Guard"

	// AuthorizeMethod — полное имя метода для Invoke и интерсепторов.
	AuthorizeMethod = "/" + ServiceName + "/Authorize"
)

// GuardService — серверная сторона carelink.auth.v1.Guard.
// Сообщения передаются как google.protobuf.Struct:
//   - запрос: {org_id: string} (пусто — глобальный ресурс);
//   - ответ: {user_id, org_id, roles[], token_type}.
type GuardService interface {
	Authorize(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// GuardServiceDesc описывает сервис для grpc.Server.RegisterService.
var GuardServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*GuardService)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Authorize",
			Handler:    authorizeHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "carelink/auth/v1/guard.proto",
}

// RegisterGuardService регистрирует реализацию на сервере.
func RegisterGuardService(s grpc.ServiceRegistrar, srv GuardService) {
	s.RegisterService(&GuardServiceDesc, srv)
}

func authorizeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}

	if interceptor == nil {
		return srv.(GuardService).Authorize(ctx, in)
	}

	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: AuthorizeMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(GuardService).Authorize(ctx, req.(*structpb.Struct))
	}

	return interceptor(ctx, in, info, handler)
}

// Package grpc — внутренний gRPC-транспорт проверки доступа (Guard/Authorize)
// для соседних сервисов CareLink.
//
// Здесь выполняется только маппинг данных и ошибок сервисного слоя в gRPC:
//   - auth_header_missing, token_expired, token_revoked -> codes.Unauthenticated;
//   - token_invalid, invalid_request -> codes.InvalidArgument;
//   - forbidden -> codes.PermissionDenied;
//   - service_unavailable -> codes.Unavailable;
//   - прочее -> codes.Internal с нейтральным сообщением.
//
// Каждый статус ошибки несёт errdetails.ErrorInfo{Reason: <код>, Domain: "auth.carelink"}.
package grpc

import (
	"context"
	"log/slog"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/pribylovaa/carelink-auth/internal/models"
	"github.com/pribylovaa/carelink-auth/internal/pkg/log"
	"github.com/pribylovaa/carelink-auth/internal/service"
)

// ErrorDomain — домен ErrorInfo в деталях статуса.
const ErrorDomain = "auth.carelink"

// Authorizer — проверка access-токена (service.Guard или GuardClient).
type Authorizer interface {
	Authorize(ctx context.Context, authHeader, requestedOrg string) (*models.IdentityContext, error)
}

// GuardServer реализует GuardService поверх Authorizer.
type GuardServer struct {
	guard Authorizer
}

// NewGuardServer создаёт gRPC-обработчик проверки доступа.
func NewGuardServer(guard Authorizer) *GuardServer {
	return &GuardServer{guard: guard}
}

// Authorize берёт токен из metadata "authorization" (формат "Bearer <jwt>"),
// организацию из поля org_id запроса и возвращает контекст идентичности.
func (s *GuardServer) Authorize(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	org, ok := stringField(req, "org_id")
	if !ok {
		return nil, toStatus(ctx, service.ErrInvalidRequest)
	}

	var header string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if v := md.Get("authorization"); len(v) > 0 {
			header = v[0]
		}
	}

	id, err := s.guard.Authorize(ctx, header, org)
	if err != nil {
		return nil, toStatus(ctx, err)
	}

	roles := make([]any, 0, len(id.Roles))
	for _, r := range id.Roles {
		roles = append(roles, r)
	}

	out, err := structpb.NewStruct(map[string]any{
		"user_id":    id.UserID.String(),
		"org_id":     id.OrgID,
		"roles":      roles,
		"token_type": string(id.TokenType),
	})
	if err != nil {
		return nil, toStatus(ctx, err)
	}

	return out, nil
}

// stringField: отсутствующее поле — "", поле не-строка — !ok.
func stringField(s *structpb.Struct, key string) (string, bool) {
	v, found := s.GetFields()[key]
	if !found {
		return "", true
	}

	switch k := v.GetKind().(type) {
	case *structpb.Value_StringValue:
		return k.StringValue, true
	case *structpb.Value_NullValue:
		return "", true
	default:
		return "", false
	}
}

func grpcCode(code string) codes.Code {
	switch code {
	case service.CodeAuthHeaderMissing, service.CodeTokenExpired, service.CodeTokenRevoked,
		service.CodeInvalidCredentials, service.CodeReplayDetected:
		return codes.Unauthenticated
	case service.CodeTokenInvalid, service.CodeInvalidRequest:
		return codes.InvalidArgument
	case service.CodeForbidden:
		return codes.PermissionDenied
	case service.CodeServiceUnavailable:
		return codes.Unavailable
	default:
		return codes.Internal
	}
}

// toStatus строит статус с ErrorInfo. Детали внутренних ошибок остаются в логе.
func toStatus(ctx context.Context, err error) error {
	code := service.Code(err)
	gc := grpcCode(code)

	msg := "internal server error"
	if sentinel := service.FromCode(code); sentinel != nil {
		msg = sentinel.Error()
	}

	if gc == codes.Internal {
		code = service.CodeInternal
		log.From(ctx).Error("guard_internal_error", slog.String("err", err.Error()))
	}

	info := &errdetails.ErrorInfo{Reason: code, Domain: ErrorDomain}
	if rid := log.RequestID(ctx); rid != "" {
		info.Metadata = map[string]string{"request_id": rid}
	}

	st, derr := status.New(gc, msg).WithDetails(info)
	if derr != nil {
		return status.Error(gc, msg)
	}

	return st.Err()
}

package grpc

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/pribylovaa/carelink-auth/internal/models"
	"github.com/pribylovaa/carelink-auth/internal/pkg/log"
	"github.com/pribylovaa/carelink-auth/internal/service"
)

// GuardClient — клиент carelink.auth.v1.Guard для соседних сервисов.
// Реализует Authorizer, поэтому подходит для middleware.RequireAuth.
type GuardClient struct {
	cc grpc.ClientConnInterface
}

// NewGuardClient оборачивает соединение.
func NewGuardClient(cc grpc.ClientConnInterface) *GuardClient {
	return &GuardClient{cc: cc}
}

// Authorize передаёт заголовок Authorization как есть. Ошибки сервера
// восстанавливаются в sentinel-ошибки service по ErrorInfo.Reason.
func (c *GuardClient) Authorize(ctx context.Context, authHeader, requestedOrg string) (*models.IdentityContext, error) {
	const op = "transport.grpc.GuardClient.Authorize"

	if authHeader != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "authorization", authHeader)
	}
	if rid := log.RequestID(ctx); rid != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "x-request-id", rid)
	}

	in, err := structpb.NewStruct(map[string]any{"org_id": requestedOrg})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, AuthorizeMethod, in, out); err != nil {
		return nil, fmt.Errorf("%s: %w", op, fromStatus(err))
	}

	id, err := identityFrom(out)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return id, nil
}

func fromStatus(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}

	for _, d := range st.Details() {
		info, ok := d.(*errdetails.ErrorInfo)
		if !ok || info.GetDomain() != ErrorDomain {
			continue
		}

		if sentinel := service.FromCode(info.GetReason()); sentinel != nil {
			return fmt.Errorf("%w: %w", sentinel, err)
		}
	}

	switch st.Code() {
	case codes.Unavailable, codes.DeadlineExceeded:
		return fmt.Errorf("%w: %w", service.ErrServiceUnavailable, err)
	}

	return err
}

func identityFrom(s *structpb.Struct) (*models.IdentityContext, error) {
	f := s.GetFields()

	uid, err := uuid.Parse(f["user_id"].GetStringValue())
	if err != nil {
		return nil, fmt.Errorf("bad user_id: %w", err)
	}

	tt := models.TokenType(f["token_type"].GetStringValue())
	if !tt.Valid() {
		return nil, errors.New("bad token_type")
	}

	var roles []string
	for _, v := range f["roles"].GetListValue().GetValues() {
		roles = append(roles, v.GetStringValue())
	}

	return &models.IdentityContext{
		UserID:    uid,
		OrgID:     f["org_id"].GetStringValue(),
		Roles:     roles,
		TokenType: tt,
	}, nil
}

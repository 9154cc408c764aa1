// errors стандартизирует ответы об ошибках HTTP-слоя.
// На вход принимает ошибку из таксономии service, на выход даёт:
//   - HTTP-статус;
//   - стабильный машинный код;
//   - фиксированное безопасное сообщение без деталей (SQL, стеки, текст ошибки).
package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"

	"github.com/pribylovaa/carelink-auth/internal/pkg/log"
	"github.com/pribylovaa/carelink-auth/internal/service"
)

// StatusClientClosedRequest — нестандартный код "клиент закрыл соединение".
const StatusClientClosedRequest = 499

// ErrRateLimited — превышен лимит запросов с адреса клиента.
var ErrRateLimited = stderrors.New("rate limited")

// CodeRateLimited — код ответа для ErrRateLimited.
const CodeRateLimited = "rate_limited"

// APIError — единый формат ошибки для клиентов.
type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// ErrorResponse — корневой объект ответа.
type ErrorResponse struct {
	Error APIError `json:"error"`
}

// ToHTTP конвертирует ошибку в HTTP-статус и тело ответа.
//
// Поведение:
//   - err == nil — программная ошибка вызова: 500/internal;
//   - ошибка из таксономии service — статус по коду (см. fromCode);
//   - ErrRateLimited — 429;
//   - отмена клиентом — 499;
//   - прочее — 500/internal.
func ToHTTP(err error) (int, ErrorResponse) {
	if err == nil {
		return resp(http.StatusInternalServerError, service.CodeInternal, "internal error")
	}

	if stderrors.Is(err, ErrRateLimited) {
		return resp(http.StatusTooManyRequests, CodeRateLimited, "too many requests")
	}

	code := service.Code(err)
	if code == service.CodeInternal && stderrors.Is(err, context.Canceled) {
		return resp(StatusClientClosedRequest, "canceled", "canceled")
	}

	status, msg := fromCode(code)
	return resp(status, code, msg)
}

// WriteError пишет статус и тело ошибки. request_id берётся из контекста
// (RequestID middleware), иначе из заголовка X-Request-Id.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := ToHTTP(err)

	body.Error.RequestID = log.RequestID(r.Context())
	if body.Error.RequestID == "" {
		body.Error.RequestID = r.Header.Get("X-Request-Id")
	}

	w.Header().Set("Content-Type", "application/json")
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer realm="carelink"`)
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// fromCode — маппинг стабильного кода в HTTP-статус и сообщение.
func fromCode(code string) (int, string) {
	switch code {
	case service.CodeInvalidCredentials:
		return http.StatusUnauthorized, "invalid email or password"
	case service.CodeTokenInvalid:
		return http.StatusUnprocessableEntity, "token is invalid"
	case service.CodeTokenExpired:
		return http.StatusUnauthorized, "token has expired"
	case service.CodeTokenRevoked:
		return http.StatusUnauthorized, "token has been revoked"
	case service.CodeReplayDetected:
		return http.StatusUnauthorized, "refresh token reuse detected; please sign in again"
	case service.CodeAuthHeaderMissing:
		return http.StatusUnauthorized, "authorization header missing"
	case service.CodeForbidden:
		return http.StatusForbidden, "forbidden"
	case service.CodeInvalidRequest:
		return http.StatusBadRequest, "invalid request"
	case service.CodeServiceUnavailable:
		return http.StatusServiceUnavailable, "service unavailable"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func resp(status int, code, msg string) (int, ErrorResponse) {
	return status, ErrorResponse{Error: APIError{Code: code, Message: msg}}
}

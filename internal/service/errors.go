package service

import "errors"

var (
	// ErrInvalidCredentials — неверная пара e-mail/пароль, неизвестный или
	// заблокированный пользователь. Причина наружу не раскрывается. HTTP 401.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrTokenInvalid — токен повреждён, подпись/алгоритм/issuer/audience не сходятся,
	// тип токена не тот, что ожидает эндпоинт, или refresh-запись неизвестна. HTTP 422.
	ErrTokenInvalid = errors.New("token invalid")

	// ErrTokenExpired — срок действия токена истёк. HTTP 401.
	ErrTokenExpired = errors.New("token expired")

	// ErrTokenRevoked — токен отозван (logout, ротация, блокировка пользователя)
	// и недействителен независимо от срока. HTTP 401.
	ErrTokenRevoked = errors.New("token revoked")

	// ErrReplayDetected — повторно предъявлен уже ротированный refresh-токен.
	// Все активные refresh-записи пользователя при этом отзываются. HTTP 401.
	ErrReplayDetected = errors.New("refresh token replay detected")

	// ErrForbidden — организация токена не совпадает с запрошенной. HTTP 403.
	ErrForbidden = errors.New("forbidden")

	// ErrAuthHeaderMissing — нет заголовка Authorization со схемой Bearer. HTTP 401.
	ErrAuthHeaderMissing = errors.New("authorization header missing")

	// ErrServiceUnavailable — хранилище недоступно или не ответило вовремя.
	// Единственная ошибка, которую клиент может повторить с backoff. HTTP 503.
	ErrServiceUnavailable = errors.New("service unavailable")

	// ErrInvalidRequest — тело запроса не разбирается или не проходит валидацию. HTTP 400.
	ErrInvalidRequest = errors.New("invalid request")
)

// Стабильные машинные коды ошибок.
const (
	CodeInvalidCredentials = "invalid_credentials"
	CodeTokenInvalid       = "token_invalid"
	CodeTokenExpired       = "token_expired"
	CodeTokenRevoked       = "token_revoked"
	CodeReplayDetected     = "replay_detected"
	CodeForbidden          = "forbidden"
	CodeAuthHeaderMissing  = "auth_header_missing"
	CodeServiceUnavailable = "service_unavailable"
	CodeInvalidRequest     = "invalid_request"
	CodeInternal           = "internal"
)

var codes = []struct {
	err  error
	code string
}{
	// ReplayDetected проверяется раньше TokenRevoked: replay — частный случай отзыва.
	{ErrReplayDetected, CodeReplayDetected},
	{ErrInvalidCredentials, CodeInvalidCredentials},
	{ErrTokenExpired, CodeTokenExpired},
	{ErrTokenRevoked, CodeTokenRevoked},
	{ErrTokenInvalid, CodeTokenInvalid},
	{ErrForbidden, CodeForbidden},
	{ErrAuthHeaderMissing, CodeAuthHeaderMissing},
	{ErrServiceUnavailable, CodeServiceUnavailable},
	{ErrInvalidRequest, CodeInvalidRequest},
}

// Code возвращает стабильный код ошибки из таксономии или "internal".
func Code(err error) string {
	if err == nil {
		return ""
	}

	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}

	return CodeInternal
}

// FromCode восстанавливает sentinel-ошибку по стабильному коду.
// Неизвестный код возвращает nil.
func FromCode(code string) error {
	for _, c := range codes {
		if c.code == code {
			return c.err
		}
	}

	return nil
}

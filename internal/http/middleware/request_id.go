package middleware

import (
	"net/http"

	"github.com/oklog/ulid/v2"

	"github.com/pribylovaa/carelink-auth/internal/pkg/log"
)

const maxRequestIDLen = 128

// RequestID обеспечивает наличие X-Request-Id:
//  1. берёт входящий заголовок X-Request-Id, если он непустой, не длиннее 128 байт
//     и состоит из печатных ASCII-символов;
//  2. иначе генерирует ULID;
//  3. кладёт id в заголовок ответа и в контекст (log.WithRequestID).
func RequestID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get("X-Request-Id")
			if !validRequestID(id) {
				id = ulid.Make().String()
				r.Header.Set("X-Request-Id", id)
			}
			w.Header().Set("X-Request-Id", id)

			ctx := log.WithRequestID(r.Context(), id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLen {
		return false
	}

	for i := 0; i < len(id); i++ {
		if id[i] < 0x21 || id[i] > 0x7e {
			return false
		}
	}

	return true
}

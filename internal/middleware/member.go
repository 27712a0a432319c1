package middleware

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/dukerupert/chorewheel/internal/apperr"
	"github.com/dukerupert/chorewheel/internal/auth"
	"github.com/dukerupert/chorewheel/internal/model"
)

// MemberHeader carries the caller's member id, set by the authenticating
// proxy in front of the service.
const MemberHeader = "X-Member-ID"

type MemberLookup interface {
	GetByID(id int64) (*model.Member, error)
}

// RequireMember resolves MemberHeader to an active member and stores the
// identity in the request context.
func RequireMember(members MemberLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := r.Header.Get(MemberHeader)
			id, err := strconv.ParseInt(raw, 10, 64)
			if raw == "" || err != nil || id <= 0 {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or malformed "+MemberHeader)
				return
			}

			m, err := members.GetByID(id)
			if err != nil {
				writeError(w, http.StatusInternalServerError, apperr.CodeInternalError, "failed to resolve member")
				return
			}
			if m == nil {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "unknown member")
				return
			}
			if !m.Active() {
				writeError(w, http.StatusForbidden, apperr.CodeForbidden, "member is no longer active")
				return
			}

			ctx := auth.WithIdentity(r.Context(), auth.Identity{MemberID: m.ID, HomeID: m.HomeID, Name: m.Name})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg, "code": code})
}

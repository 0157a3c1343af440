package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/beatstore-backend/api/middleware"
	pkgerrors "github.com/angelmondragon/beatstore-backend/pkg/errors"
)

func userIDFromRequest(r *http.Request) (uuid.UUID, error) {
	userID := middleware.UserIDFromContext(r.Context())
	if userID == uuid.Nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	return userID, nil
}

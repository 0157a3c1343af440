package controllers

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/beatstore-backend/api/responses"
	"github.com/angelmondragon/beatstore-backend/api/validators"
	"github.com/angelmondragon/beatstore-backend/internal/licenses"
	pkgerrors "github.com/angelmondragon/beatstore-backend/pkg/errors"
	"github.com/angelmondragon/beatstore-backend/pkg/logger"
	pkgpagination "github.com/angelmondragon/beatstore-backend/pkg/pagination"
)

const maxLicenseNameLen = 64

type licenseCreateRequest struct {
	Name      string `json:"name" validate:"required,max=64"`
	MP3       bool   `json:"mp3"`
	WAV       bool   `json:"wav"`
	Trackout  bool   `json:"trackout"`
	Discounts bool   `json:"discounts"`
	Enabled   *bool  `json:"enabled"`
}

func (r licenseCreateRequest) toInput() licenses.CreateLicenseInput {
	enabled := true
	if r.Enabled != nil {
		enabled = *r.Enabled
	}
	return licenses.CreateLicenseInput{
		Name:      validators.SanitizeString(r.Name, maxLicenseNameLen),
		MP3:       r.MP3,
		WAV:       r.WAV,
		Trackout:  r.Trackout,
		Discounts: r.Discounts,
		Enabled:   enabled,
	}
}

// licenseUpdateRequest mirrors the create body with every field optional.
type licenseUpdateRequest struct {
	Name      *string `json:"name" validate:"omitempty,max=64"`
	MP3       *bool   `json:"mp3"`
	WAV       *bool   `json:"wav"`
	Trackout  *bool   `json:"trackout"`
	Discounts *bool   `json:"discounts"`
	Enabled   *bool   `json:"enabled"`
}

func (r licenseUpdateRequest) toInput() licenses.UpdateLicenseInput {
	in := licenses.UpdateLicenseInput{
		MP3:       r.MP3,
		WAV:       r.WAV,
		Trackout:  r.Trackout,
		Discounts: r.Discounts,
		Enabled:   r.Enabled,
	}
	if r.Name != nil {
		name := validators.SanitizeString(*r.Name, maxLicenseNameLen)
		in.Name = &name
	}
	return in
}

// LicenseCreate adds a custom license tier for the calling seller.
func LicenseCreate(svc licenses.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "license service unavailable"))
			return
		}
		userID, err := userIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload licenseCreateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		created, err := svc.CreateLicense(r.Context(), userID, payload.toInput())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, licenses.ToListItem(*created))
	}
}

// LicenseList pages through the seller's licenses. The default tiers are
// created on first use.
func LicenseList(svc licenses.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "license service unavailable"))
			return
		}
		userID, err := userIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pkgpagination.DefaultLimit, 1, pkgpagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.ListLicenses(r.Context(), licenses.ListParams{
			UserID: userID,
			Params: pkgpagination.Params{
				Limit:  limit,
				Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
			},
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// LicenseGet returns one of the seller's licenses.
func LicenseGet(svc licenses.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "license service unavailable"))
			return
		}
		userID, err := userIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		licenseID, err := validators.ParseUUIDParam(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		license, err := svc.GetLicense(r.Context(), userID, licenseID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, licenses.ToListItem(*license))
	}
}

// LicenseUpdate applies a partial edit to one of the seller's licenses.
func LicenseUpdate(svc licenses.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "license service unavailable"))
			return
		}
		userID, err := userIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		licenseID, err := validators.ParseUUIDParam(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload licenseUpdateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		updated, err := svc.UpdateLicense(r.Context(), userID, licenseID, payload.toInput())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, licenses.ToListItem(*updated))
	}
}

// LicenseDelete soft-deletes one of the seller's custom licenses.
func LicenseDelete(svc licenses.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "license service unavailable"))
			return
		}
		userID, err := userIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		licenseID, err := validators.ParseUUIDParam(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.DeleteLicense(r.Context(), userID, licenseID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

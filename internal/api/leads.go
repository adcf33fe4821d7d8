package api

import (
	"net/http"

	"github.com/Wainainajnr/ngongtownbot/internal/domain"
	"github.com/Wainainajnr/ngongtownbot/internal/i18n"
)

type validateFieldRequest struct {
	Field    string `json:"field" validate:"required,max=64"`
	Value    string `json:"value" validate:"max=1000"`
	Language string `json:"language" validate:"omitempty,max=35"`
}

type validateFieldResponse struct {
	Field domain.LeadField `json:"field"`
	Error string           `json:"error"`
}

// HandleValidateField checks a single form field as the visitor types.
func (h *Handler) HandleValidateField(w http.ResponseWriter, r *http.Request) {
	var req validateFieldRequest
	if err := h.decode(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid_request")
		return
	}
	field, ok := domain.ParseLeadField(req.Field)
	if !ok {
		Error(w, http.StatusBadRequest, "unknown_field")
		return
	}
	lang := i18n.Resolve(req.Language, r.Header.Get("Accept-Language"), h.DefaultLanguage)

	JSON(w, http.StatusOK, validateFieldResponse{
		Field: field,
		Error: h.Pipeline.Validator(lang).Validate(field, req.Value),
	})
}

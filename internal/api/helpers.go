package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/labstack/echo/v5"
)

func writeBadRequest(c *echo.Context, err error) error {
	var inv invalidRequestError
	if errors.As(err, &inv) {
		return writeError(c, http.StatusBadRequest, "invalid_request_error", inv.msg, inv.param)
	}
	return writeError(c, http.StatusBadRequest, "invalid_request_error", err.Error(), "")
}

func writeError(c *echo.Context, status int, errType, msg, param string) error {
	return c.JSON(status, map[string]any{
		"error": ResponseError{
			Message: msg,
			Type:    errType,
			Param:   param,
		},
	})
}

func decodeJSON[T any](r io.Reader) (T, error) {
	var out T
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		return out, newInvalidRequest("", "invalid JSON body: "+err.Error())
	}
	return out, nil
}

func newSampleID() string {
	return "smp_" + uuid.NewString()
}

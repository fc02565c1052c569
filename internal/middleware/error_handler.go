package middleware

import (
	"errors"
	"net/http"

	"github.com/Eursukkul/ticketing-service/internal/dto"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	resp := dto.ErrorResponse{Message: "internal server error", Code: "InternalError"}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		switch m := he.Message.(type) {
		case dto.ErrorResponse:
			resp = m
		case string:
			resp = dto.ErrorResponse{Message: m}
		default:
			resp = dto.ErrorResponse{Message: http.StatusText(code)}
		}
	}

	if code >= http.StatusInternalServerError {
		logrus.WithError(err).WithFields(logrus.Fields{
			"method": c.Request().Method,
			"uri":    c.Request().RequestURI,
		}).Error("request failed")
	}

	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(code)
		return
	}
	_ = c.JSON(code, resp)
}

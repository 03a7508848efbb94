package handler

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/address-book/internal/apperr"
)

const msgUnexpected = "An unexpected error occurred. Please try again later."

// ErrorHandler renders every error as {success:false, message[, errors]}.
// Unclassified errors are logged and answered with a generic 500; their
// text never reaches the client.
func ErrorHandler(log *logrus.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		status, body := renderError(err, c)
		entry := log.WithFields(logrus.Fields{
			"method":     c.Request().Method,
			"path":       c.Request().URL.Path,
			"status":     status,
			"request_id": c.Response().Header().Get(echo.HeaderXRequestID),
		})
		if status >= http.StatusInternalServerError {
			entry.WithError(err).Error("request failed")
		} else {
			entry.WithError(err).Debug("request rejected")
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(status)
		} else {
			err = c.JSON(status, body)
		}
		if err != nil {
			log.WithError(err).Warn("writing error response failed")
		}
	}
}

func renderError(err error, c echo.Context) (int, echo.Map) {
	if ae, ok := apperr.As(err); ok {
		status := ae.Status()
		msg := ae.Message
		if status == http.StatusInternalServerError && msg == "" {
			msg = msgUnexpected
		}
		body := echo.Map{"success": false, "message": msg}
		if len(ae.Fields) > 0 {
			body["errors"] = ae.Fields
		}
		return status, body
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		switch he.Code {
		case http.StatusNotFound, http.StatusMethodNotAllowed:
			return http.StatusNotFound, echo.Map{
				"success": false,
				"message": fmt.Sprintf("API endpoint not found: %s %s", c.Request().Method, c.Request().URL.RequestURI()),
			}
		case http.StatusRequestEntityTooLarge:
			return he.Code, echo.Map{"success": false, "message": "Request body too large."}
		}
		if he.Code >= http.StatusInternalServerError {
			return he.Code, echo.Map{"success": false, "message": msgUnexpected}
		}
		msg, ok := he.Message.(string)
		if !ok || msg == "" {
			msg = http.StatusText(he.Code)
		}
		return he.Code, echo.Map{"success": false, "message": msg}
	}

	return http.StatusInternalServerError, echo.Map{"success": false, "message": msgUnexpected}
}

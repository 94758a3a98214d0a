package api

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/vultisig/vultiwallet/internal/types"
	"github.com/vultisig/vultiwallet/service"
)

const (
	HeaderIdentity  = "x-identity"
	HeaderSignature = "x-signature"
	// HeaderWalletID lets support staff pick the wallet they act on.
	HeaderWalletID = "x-wallet-id"

	callerKey = "caller"
)

func (s *Server) statsdMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		duration := time.Since(start).Milliseconds()

		_ = s.sdClient.Incr("http.requests", []string{"path:" + c.Path()}, 1)
		_ = s.sdClient.Timing("http.response_time", time.Duration(duration)*time.Millisecond, []string{"path:" + c.Path()}, 1)
		_ = s.sdClient.Incr("http.status."+fmt.Sprint(c.Response().Status), []string{"path:" + c.Path(), "method:" + c.Request().Method}, 1)

		return err
	}
}

// SignedMessage is what a copayer signs with a request key to authenticate
// a request: the lower-cased method, the request URI and the raw body.
func SignedMessage(method, uri string, body []byte) string {
	if len(body) == 0 {
		body = []byte("{}")
	}
	return strings.ToLower(method) + "|" + uri + "|" + string(body)
}

// AuthMiddleware resolves the calling copayer from a bearer token issued by
// login, or from a request signature.
func (s *Server) AuthMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		walletID := req.Header.Get(HeaderWalletID)

		var caller *service.Caller
		var err error
		if authHeader := req.Header.Get(echo.HeaderAuthorization); authHeader != "" {
			tokenStr, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok {
				return types.NotAuthorized("Invalid authorization header")
			}
			caller, err = s.wallets.AuthenticateToken(req.Context(), tokenStr, walletID)
		} else {
			copayerID := req.Header.Get(HeaderIdentity)
			signature := req.Header.Get(HeaderSignature)
			if copayerID == "" || signature == "" {
				return types.NotAuthorized("Missing credentials")
			}
			body, readErr := io.ReadAll(req.Body)
			if readErr != nil {
				return fmt.Errorf("fail to read body, err: %w", readErr)
			}
			req.Body = io.NopCloser(bytes.NewReader(body))
			caller, err = s.wallets.Authenticate(req.Context(), service.AuthRequest{
				CopayerID: copayerID,
				Message:   SignedMessage(req.Method, req.URL.RequestURI(), body),
				Signature: signature,
				WalletID:  walletID,
			})
		}
		if err != nil {
			s.logger.WithField("path", c.Path()).WithError(err).Debug("authentication failed")
			return err
		}
		c.Set(callerKey, caller)
		return next(c)
	}
}

func callerFrom(c echo.Context) *service.Caller {
	caller, _ := c.Get(callerKey).(*service.Caller)
	return caller
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func statusForCode(code string) int {
	switch code {
	case types.ErrNotAuthorized.Code:
		return http.StatusUnauthorized
	case types.ErrWalletNotFound.Code, types.ErrTxNotFound.Code:
		return http.StatusNotFound
	case types.ErrLockTimeout.Code:
		return http.StatusServiceUnavailable
	case types.ErrUpgradeNeeded.Code:
		return http.StatusUpgradeRequired
	default:
		return http.StatusBadRequest
	}
}

// errorHandler renders wallet errors as {code, message}. Anything else is an
// internal failure and is logged rather than echoed to the client.
func (s *Server) errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		c.Echo().DefaultHTTPErrorHandler(err, c)
		return
	}
	status := http.StatusInternalServerError
	body := errorResponse{Code: "INTERNAL", Message: "Internal server error"}
	if we, ok := types.AsWalletError(err); ok {
		status = statusForCode(we.Code)
		body = errorResponse{Code: we.Code, Message: we.Message}
	} else {
		s.logger.WithField("path", c.Path()).WithError(err).Error("request failed")
	}
	if c.Request().Method == http.MethodHead {
		err = c.NoContent(status)
	} else {
		err = c.JSON(status, body)
	}
	if err != nil {
		s.logger.WithError(err).Error("fail to write error response")
	}
}

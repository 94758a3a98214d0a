package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/vultisig/vultiwallet/internal/types"
	"github.com/vultisig/vultiwallet/service"
)

// bind decodes the request body and runs its validate tags.
func bind(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return types.NewClientError("Invalid request body")
	}
	return c.Validate(req)
}

func badQuery(err error) error {
	if err == nil {
		return nil
	}
	return types.NewClientError("Invalid query: %v", err)
}

func (s *Server) CreateWallet(c echo.Context) error {
	var req service.CreateWalletRequest
	if err := c.Bind(&req); err != nil {
		return types.NewClientError("Invalid request body")
	}
	id, err := s.wallets.CreateWallet(c.Request().Context(), req)
	if err != nil {
		return err
	}
	if err := s.sdClient.Count("wallet.create", 1, nil, 1); err != nil {
		s.logger.Errorf("fail to count metric, err: %v", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"walletId": id})
}

func (s *Server) JoinWallet(c echo.Context) error {
	var req service.JoinWalletRequest
	if err := c.Bind(&req); err != nil {
		return types.NewClientError("Invalid request body")
	}
	req.WalletID = c.Param("id")
	result, err := s.wallets.JoinWallet(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

func (s *Server) AddAccess(c echo.Context) error {
	var req service.AddAccessRequest
	if err := c.Bind(&req); err != nil {
		return types.NewClientError("Invalid request body")
	}
	req.CopayerID = c.Param("id")
	result, err := s.wallets.AddAccess(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

func (s *Server) GetWallet(c echo.Context) error {
	var extended bool
	if err := badQuery(echo.QueryParamsBinder(c).Bool("includeExtendedInfo", &extended).BindError()); err != nil {
		return err
	}
	caller := callerFrom(c)
	w, err := s.wallets.GetWallet(c.Request().Context(), caller)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, w.ForCopayer(caller.CopayerID, extended))
}

func (s *Server) GetStatus(c echo.Context) error {
	var opts service.StatusOptions
	err := echo.QueryParamsBinder(c).
		Bool("twoStep", &opts.TwoStep).
		Bool("includeExtendedInfo", &opts.IncludeExtendedInfo).
		BindError()
	if err := badQuery(err); err != nil {
		return err
	}
	status, err := s.wallets.GetStatus(c.Request().Context(), callerFrom(c), opts)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, status)
}

func (s *Server) RemoveWallet(c echo.Context) error {
	if err := s.wallets.RemoveWallet(c.Request().Context(), callerFrom(c)); err != nil {
		return err
	}
	return c.NoContent(http.StatusOK)
}

func (s *Server) Login(c echo.Context) error {
	token, err := s.wallets.Login(c.Request().Context(), callerFrom(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"token": token})
}

func (s *Server) Logout(c echo.Context) error {
	if err := s.wallets.Logout(c.Request().Context(), callerFrom(c)); err != nil {
		return err
	}
	return c.NoContent(http.StatusOK)
}

func (s *Server) GetPreferences(c echo.Context) error {
	prefs, err := s.wallets.GetPreferences(c.Request().Context(), callerFrom(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, prefs)
}

func (s *Server) SavePreferences(c echo.Context) error {
	var req types.Preferences
	if err := c.Bind(&req); err != nil {
		return types.NewClientError("Invalid request body")
	}
	if err := s.wallets.SavePreferences(c.Request().Context(), callerFrom(c), req); err != nil {
		return err
	}
	return c.NoContent(http.StatusOK)
}

func (s *Server) CreateAddress(c echo.Context) error {
	var req CreateAddressRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	address, err := s.wallets.CreateAddress(c.Request().Context(), callerFrom(c), req.IgnoreMaxGap)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, address)
}

func (s *Server) GetMainAddresses(c echo.Context) error {
	var opts service.MainAddressesOptions
	err := echo.QueryParamsBinder(c).
		Int("limit", &opts.Limit).
		Bool("reverse", &opts.Reverse).
		BindError()
	if err := badQuery(err); err != nil {
		return err
	}
	addresses, err := s.wallets.GetMainAddresses(c.Request().Context(), callerFrom(c), opts)
	if err != nil {
		return err
	}
	if addresses == nil {
		addresses = []*types.Address{}
	}
	return c.JSON(http.StatusOK, addresses)
}

func (s *Server) StartScan(c echo.Context) error {
	var req ScanRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	started, err := s.wallets.StartScan(c.Request().Context(), callerFrom(c), req.IncludeCopayerBranches)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, started)
}

func (s *Server) VerifyMessageSignature(c echo.Context) error {
	var req VerifyMessageRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	ok, err := s.wallets.VerifyMessageSignature(c.Request().Context(), callerFrom(c), req.Message, req.Signature)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"verified": ok})
}

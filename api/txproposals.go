package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/vultisig/vultiwallet/internal/txproposal"
	"github.com/vultisig/vultiwallet/internal/types"
	"github.com/vultisig/vultiwallet/internal/walletcache"
	"github.com/vultisig/vultiwallet/service"
	"github.com/vultisig/vultiwallet/storage"
)

// maxNotificationsTimeSpan caps how far back a notifications poll may look.
const maxNotificationsTimeSpan = 24 * time.Hour

func (s *Server) GetFeeLevels(c echo.Context) error {
	levels, err := s.wallets.GetFeeLevels(c.Request().Context(), c.QueryParam("network"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, levels)
}

func (s *Server) BroadcastRawTx(c echo.Context) error {
	var req BroadcastRawRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	txid, err := s.wallets.BroadcastRawTx(c.Request().Context(), req.Network, req.RawTx)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"txid": txid})
}

func (s *Server) GetUtxos(c echo.Context) error {
	var addresses []string
	if raw := c.QueryParam("addresses"); raw != "" {
		addresses = strings.Split(raw, ",")
	}
	utxos, err := s.wallets.GetUtxos(c.Request().Context(), callerFrom(c), addresses)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, utxos)
}

func (s *Server) GetBalance(c echo.Context) error {
	var twoStep bool
	if err := badQuery(echo.QueryParamsBinder(c).Bool("twoStep", &twoStep).BindError()); err != nil {
		return err
	}
	balance, err := s.wallets.GetBalance(c.Request().Context(), callerFrom(c), twoStep)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, balance)
}

func (s *Server) GetSendMaxInfo(c echo.Context) error {
	var opts txproposal.SendMaxOptions
	var feePerKb int64
	err := echo.QueryParamsBinder(c).
		String("feeLevel", &opts.Fee.FeeLevel).
		Int64("feePerKb", &feePerKb).
		Bool("excludeUnconfirmedUtxos", &opts.ExcludeUnconfirmedUtxos).
		Bool("returnInputs", &opts.ReturnInputs).
		BindError()
	if err := badQuery(err); err != nil {
		return err
	}
	if feePerKb > 0 {
		opts.Fee.FeePerKb = &feePerKb
	}
	info, err := s.wallets.GetSendMaxInfo(c.Request().Context(), callerFrom(c), opts)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, info)
}

func (s *Server) CreateTx(c echo.Context) error {
	var req CreateTxRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	txp, err := s.wallets.CreateTx(c.Request().Context(), callerFrom(c), req.Options())
	if err != nil {
		return err
	}
	if err := s.sdClient.Count("txproposal.create", 1, nil, 1); err != nil {
		s.logger.Errorf("fail to count metric, err: %v", err)
	}
	return c.JSON(http.StatusOK, txp)
}

func (s *Server) GetPendingTxs(c echo.Context) error {
	txps, err := s.wallets.GetPendingTxs(c.Request().Context(), callerFrom(c))
	if err != nil {
		return err
	}
	if txps == nil {
		txps = []*types.TxProposal{}
	}
	return c.JSON(http.StatusOK, txps)
}

func (s *Server) GetTx(c echo.Context) error {
	txp, err := s.wallets.GetTx(c.Request().Context(), callerFrom(c), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, txp)
}

func (s *Server) RemovePendingTx(c echo.Context) error {
	if err := s.wallets.RemovePendingTx(c.Request().Context(), callerFrom(c), c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusOK)
}

func (s *Server) PublishTx(c echo.Context) error {
	var req PublishTxRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	txp, err := s.wallets.PublishTx(c.Request().Context(), callerFrom(c), c.Param("id"), req.ProposalSignature)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, txp)
}

func (s *Server) SignTx(c echo.Context) error {
	var req SignTxRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	txp, err := s.wallets.SignTx(c.Request().Context(), callerFrom(c), c.Param("id"), req.Signatures)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, txp)
}

func (s *Server) RejectTx(c echo.Context) error {
	var req RejectTxRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	txp, err := s.wallets.RejectTx(c.Request().Context(), callerFrom(c), c.Param("id"), req.Reason)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, txp)
}

func (s *Server) BroadcastTx(c echo.Context) error {
	txp, err := s.wallets.BroadcastTx(c.Request().Context(), callerFrom(c), c.Param("id"))
	if err != nil {
		return err
	}
	if err := s.sdClient.Count("txproposal.broadcast", 1, nil, 1); err != nil {
		s.logger.Errorf("fail to count metric, err: %v", err)
	}
	return c.JSON(http.StatusOK, txp)
}

func (s *Server) GetTxs(c echo.Context) error {
	var q storage.TxQuery
	err := echo.QueryParamsBinder(c).
		Int64("minTs", &q.MinTs).
		Int64("maxTs", &q.MaxTs).
		Int("limit", &q.Limit).
		BindError()
	if err := badQuery(err); err != nil {
		return err
	}
	txps, err := s.wallets.GetTxs(c.Request().Context(), callerFrom(c), q)
	if err != nil {
		return err
	}
	if txps == nil {
		txps = []*types.TxProposal{}
	}
	return c.JSON(http.StatusOK, txps)
}

func (s *Server) GetTxHistory(c echo.Context) error {
	var opts walletcache.HistoryOptions
	err := echo.QueryParamsBinder(c).
		Int("skip", &opts.Skip).
		Int("limit", &opts.Limit).
		Bool("includeExtendedInfo", &opts.IncludeExtendedInfo).
		BindError()
	if err := badQuery(err); err != nil {
		return err
	}
	history, _, err := s.wallets.GetTxHistory(c.Request().Context(), callerFrom(c), opts)
	if err != nil {
		return err
	}
	if history == nil {
		history = []types.HistoryTx{}
	}
	return c.JSON(http.StatusOK, history)
}

func (s *Server) GetTxNotes(c echo.Context) error {
	var minTs int64
	if err := badQuery(echo.QueryParamsBinder(c).Int64("minTs", &minTs).BindError()); err != nil {
		return err
	}
	notes, err := s.wallets.GetTxNotes(c.Request().Context(), callerFrom(c), minTs)
	if err != nil {
		return err
	}
	if notes == nil {
		notes = []*types.TxNote{}
	}
	return c.JSON(http.StatusOK, notes)
}

func (s *Server) GetTxNote(c echo.Context) error {
	note, err := s.wallets.GetTxNote(c.Request().Context(), callerFrom(c), c.Param("txid"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, note)
}

func (s *Server) EditTxNote(c echo.Context) error {
	var req EditTxNoteBody
	if err := c.Bind(&req); err != nil {
		return types.NewClientError("Invalid request body")
	}
	note, err := s.wallets.EditTxNote(c.Request().Context(), callerFrom(c), service.EditTxNoteRequest{
		TxID: c.Param("txid"),
		Body: req.Body,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, note)
}

// GetNotifications polls the wallet's notifications. timeSpan (seconds)
// bounds how old they may be; notificationId returns only newer ones.
func (s *Server) GetNotifications(c echo.Context) error {
	var opts service.NotificationsOptions
	var timeSpan int64
	err := echo.QueryParamsBinder(c).
		String("notificationId", &opts.NotificationID).
		Int64("timeSpan", &timeSpan).
		BindError()
	if err := badQuery(err); err != nil {
		return err
	}
	if timeSpan > 0 {
		span := min(time.Duration(timeSpan)*time.Second, maxNotificationsTimeSpan)
		opts.MinTs = time.Now().Add(-span).Unix()
	}
	notifications, err := s.wallets.GetNotifications(c.Request().Context(), callerFrom(c), opts)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, notifications)
}

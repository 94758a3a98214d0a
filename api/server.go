package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/DataDog/datadog-go/statsd"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/vultisig/vultiwallet/internal/validation"
	"github.com/vultisig/vultiwallet/service"
)

type Config struct {
	Host      string
	Port      int64
	BodyLimit string
	RateLimit float64
	RateBurst int
}

type Server struct {
	cfg      Config
	wallets  *service.WalletService
	sdClient statsd.ClientInterface
	logger   *logrus.Logger
}

// NewServer returns a new server.
func NewServer(cfg Config, wallets *service.WalletService, sdClient statsd.ClientInterface, logger *logrus.Logger) *Server {
	if cfg.BodyLimit == "" {
		cfg.BodyLimit = "2M"
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 5
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = 30
	}
	return &Server{
		cfg:      cfg,
		wallets:  wallets,
		sdClient: sdClient,
		logger:   logger,
	}
}

// Echo builds the router with every middleware and route installed.
func (s *Server) Echo() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Logger.SetLevel(log.INFO)
	e.Validator = validation.EchoValidator{}
	e.HTTPErrorHandler = s.errorHandler
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit(s.cfg.BodyLimit))
	e.Use(s.statsdMiddleware)
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{
			echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization,
			HeaderIdentity, HeaderSignature, HeaderWalletID,
		},
	}))
	limiterStore := middleware.NewRateLimiterMemoryStoreWithConfig(
		middleware.RateLimiterMemoryStoreConfig{Rate: rate.Limit(s.cfg.RateLimit), Burst: s.cfg.RateBurst, ExpiresIn: 5 * time.Minute},
	)
	e.Use(middleware.RateLimiter(limiterStore))
	e.GET("/ping", s.Ping)

	v1 := e.Group("/v1")
	v1.POST("/wallets", s.CreateWallet)
	v1.POST("/wallets/:id/copayers", s.JoinWallet)
	v1.PUT("/copayers/:id", s.AddAccess)
	v1.GET("/feelevels", s.GetFeeLevels)
	v1.POST("/broadcast_raw", s.BroadcastRawTx)

	grp := v1.Group("", s.AuthMiddleware)
	grp.GET("/wallets", s.GetWallet)
	grp.GET("/wallets/status", s.GetStatus)
	grp.DELETE("/wallets", s.RemoveWallet)
	grp.POST("/login", s.Login)
	grp.POST("/logout", s.Logout)
	grp.GET("/preferences", s.GetPreferences)
	grp.PUT("/preferences", s.SavePreferences)

	grp.POST("/addresses", s.CreateAddress)
	grp.GET("/addresses", s.GetMainAddresses)
	grp.POST("/addresses/scan", s.StartScan)
	grp.POST("/messages/verify", s.VerifyMessageSignature)
	grp.GET("/utxos", s.GetUtxos)
	grp.GET("/balance", s.GetBalance)
	grp.GET("/sendmaxinfo", s.GetSendMaxInfo)

	txps := grp.Group("/txproposals")
	txps.POST("", s.CreateTx)
	txps.GET("", s.GetPendingTxs)
	txps.GET("/:id", s.GetTx)
	txps.DELETE("/:id", s.RemovePendingTx)
	txps.POST("/:id/publish", s.PublishTx)
	txps.POST("/:id/signatures", s.SignTx)
	txps.POST("/:id/rejections", s.RejectTx)
	txps.POST("/:id/broadcast", s.BroadcastTx)

	grp.GET("/txs", s.GetTxs)
	grp.GET("/txhistory", s.GetTxHistory)
	grp.GET("/txnotes", s.GetTxNotes)
	grp.GET("/txnotes/:txid", s.GetTxNote)
	grp.PUT("/txnotes/:txid", s.EditTxNote)
	grp.GET("/notifications", s.GetNotifications)
	return e
}

func (s *Server) StartServer() error {
	return s.Echo().Start(fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port))
}

func (s *Server) Ping(c echo.Context) error {
	return c.String(http.StatusOK, "Vultiwallet is running")
}

// Package devbackend serves canned generation and minting responses so the web app can be
// run locally without the real backends.
package devbackend

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

const explorerBase = "https://explorer.example.com/tx/"

type Config struct {
	VideoURL string `env:"DEV_VIDEO_URL" default:"http://localhost:5000/static/video.mp4"`
}

type mintBody struct {
	WalletAddress string `json:"walletAddress"`
}

type detailsBody struct {
	TransactionID string `json:"transactionId"`
}

// Backend answers /generate-video, /mint and /transactionDetails.
type Backend struct {
	cfg    Config
	minted atomic.Int64
}

func New(cfg Config) *Backend {
	return &Backend{cfg: cfg}
}

// Handler returns the echo instance with all stub routes registered.
func (b *Backend) Handler() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	e.GET("/generate-video", b.handleGenerate)
	e.POST("/generate-video", b.handleGenerate)
	e.POST("/mint", b.handleMint)
	e.POST("/transactionDetails", b.handleTransactionDetails)
	return e
}

func (b *Backend) handleGenerate(c echo.Context) error {
	attrs := []any{"text", c.FormValue("text")}
	if fh, err := c.FormFile("image"); err == nil {
		attrs = append(attrs, "image", fh.Filename, "size", fh.Size)
	}
	slog.InfoContext(c.Request().Context(), "Generate request", attrs...)

	return c.JSON(http.StatusOK, map[string]string{"videoUrl": b.cfg.VideoURL})
}

func (b *Backend) handleMint(c echo.Context) error {
	var body mintBody
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, errorEnvelope("Malformed request body"))
	}
	if strings.TrimSpace(body.WalletAddress) == "" {
		return c.JSON(http.StatusBadRequest, errorEnvelope("Wallet address is required"))
	}

	n := b.minted.Add(1)
	txID := uuid.NewString()
	txHash := fmt.Sprintf("0x%064x", n)
	slog.InfoContext(c.Request().Context(), "Mint request", "wallet", body.WalletAddress, "transaction_id", txID)

	return c.JSON(http.StatusOK, map[string]any{
		"response": map[string]any{
			"transaction_details": map[string]string{
				"transactionID":   txID,
				"transactionHash": txHash,
				"blockExplorer":   explorerBase + txHash,
			},
		},
	})
}

func (b *Backend) handleTransactionDetails(c echo.Context) error {
	var body detailsBody
	if err := c.Bind(&body); err != nil || strings.TrimSpace(body.TransactionID) == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "Unknown transaction"})
	}
	return c.JSON(http.StatusOK, map[string]string{
		"message": fmt.Sprintf("Transaction %s confirmed", body.TransactionID),
	})
}

func errorEnvelope(message string) map[string]any {
	return map[string]any{"error": map[string]string{"message": message}}
}

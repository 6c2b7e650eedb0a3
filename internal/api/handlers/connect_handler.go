package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/gofiber/fiber/v2"

	config "postbridge/configs"
	"postbridge/internal/oauth"
	"postbridge/pkg/utils"
)

// ConnectHandler drives the connect-an-account flow: it starts an
// authorization attempt, receives the provider callback, and lets the
// frontend cancel an attempt the user abandoned.
type ConnectHandler struct {
	ctrl *oauth.Controller
	cfg  *config.Config
}

func NewConnectHandler(cfg *config.Config, ctrl *oauth.Controller) *ConnectHandler {
	return &ConnectHandler{ctrl: ctrl, cfg: cfg}
}

// AddSocialAccount redirects the browser to the provider's consent page.
// The session may come from the cookie or, for popup flows that cannot
// send cookies cross-site, from a state query parameter holding the JWT.
func (h *ConnectHandler) AddSocialAccount(c *fiber.Ctx) error {
	userID, err := h.identify(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Unable to validate user",
		})
	}

	platform := c.Params("platform")

	authURL, _, err := h.ctrl.BeginConnect(c.Context(), userID, platform)
	if err != nil {
		slog.Info(err.Error())
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to start authorization",
		})
	}

	return c.Redirect(authURL)
}

func (h *ConnectHandler) CallbackHandler(c *fiber.Ctx) error {
	code := c.Query("code")
	state := c.Query("state")
	providerErr := c.Query("error")
	platform := c.Params("platform")

	_, err := h.ctrl.HandleCallback(c.Context(), platform, state, code, providerErr)
	if err != nil {
		if errors.Is(err, oauth.ErrStateMismatch) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Unable to validate authorization state",
			})
		}
		redirectURL := fmt.Sprintf("%s/dashboard/accounts?connect=failed", h.cfg.FrontendURL)
		return c.Redirect(redirectURL, fiber.StatusTemporaryRedirect)
	}

	redirectURL := fmt.Sprintf("%s/dashboard/accounts", h.cfg.FrontendURL)
	return c.Redirect(redirectURL, fiber.StatusTemporaryRedirect)
}

func (h *ConnectHandler) CancelHandler(c *fiber.Ctx) error {
	userID := GetUserID(c)
	platform := c.Params("platform")

	h.ctrl.Cancel(userID, platform)
	return c.SendStatus(fiber.StatusOK)
}

func (h *ConnectHandler) identify(c *fiber.Ctx) (int64, error) {
	tokenString := c.Cookies(h.cfg.CookieName)
	if tokenString == "" {
		tokenString = c.Query("state")
	}

	claims, err := utils.ValidateToken(h.cfg.SecretKey, tokenString)
	if err != nil {
		return 0, err
	}

	return strconv.ParseInt(claims.UserID, 10, 64)
}

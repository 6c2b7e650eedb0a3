package handlers

import (
	"log"

	"github.com/gofiber/fiber/v2"

	"postbridge/internal/service"
)

type AccountHandler struct {
	s service.AccountService
}

func NewAccountHandler(service service.AccountService) *AccountHandler {
	return &AccountHandler{s: service}
}

func (h *AccountHandler) ListSocialAccounts(c *fiber.Ctx) error {
	userID := GetUserID(c)

	accountList, err := h.s.List(c.Context(), userID)
	if err != nil {
		log.Println(err.Error())
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch social accounts",
		})
	}

	return c.Status(fiber.StatusOK).JSON(accountList)
}

// RequestRemoval hands back a confirmation token. The actual disconnect
// only happens when the token is presented to ConfirmRemoval.
func (h *AccountHandler) RequestRemoval(c *fiber.Ctx) error {
	userID := GetUserID(c)
	accountID := c.QueryInt("id", 0)

	confirmToken, err := h.s.RequestRemoval(c.Context(), userID, int64(accountID))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to prepare account removal",
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"confirm_token": confirmToken,
	})
}

func (h *AccountHandler) ConfirmRemoval(c *fiber.Ctx) error {
	userID := GetUserID(c)
	accountID := c.QueryInt("id", 0)
	confirmToken := c.FormValue("confirm_token")

	err := h.s.ConfirmRemoval(c.Context(), userID, int64(accountID), confirmToken)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to delete social account",
		})
	}

	return c.SendStatus(fiber.StatusOK)
}

package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/bachasia/schedy-sub001/internal/repository"
)

// ProfileHandler exposes connected accounts for display. Connecting a new
// account happens in the external OAuth flow, which writes the profile row
// directly; this surface only reads and disconnects.
type ProfileHandler struct {
	pf repository.ProfileRepository
}

func NewProfileHandler(pf repository.ProfileRepository) *ProfileHandler {
	return &ProfileHandler{pf: pf}
}

func (h *ProfileHandler) ListProfiles(c *fiber.Ctx) error {
	userID := GetUserID(c)

	profiles, err := h.pf.ListByUserID(c.Context(), userID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to list profiles",
		})
	}

	return c.Status(fiber.StatusOK).JSON(profiles)
}

func (h *ProfileHandler) RemoveProfile(c *fiber.Ctx) error {
	userID := GetUserID(c)
	profileID := c.QueryInt("id", 0)

	owned, err := h.pf.CheckByUserID(c.Context(), int64(profileID), userID)
	if err != nil || !owned {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Profile not found",
		})
	}

	if err := h.pf.Remove(c.Context(), int64(profileID)); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Unable to remove profile",
		})
	}

	return c.SendStatus(fiber.StatusOK)
}

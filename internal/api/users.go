package api

import (
	"github.com/dnacommunity/backend/internal/account"
	"github.com/dnacommunity/backend/internal/user"

	"github.com/gofiber/fiber/v2"
)

type signupRequest struct {
	Name     string `json:"name" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email,no_disposable_email"`
	Password string `json:"password" validate:"required,password_strength"`
}

func (h *Handler) Signup(c *fiber.Ctx) error {
	var req signupRequest
	if err := h.bind(c, &req); err != nil {
		return err
	}

	session, err := h.Accounts.Register(c.UserContext(), account.RegisterParam{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message":   "user registered successfully",
		"token":     session.Token,
		"user":      session.User.Public(),
		"expiresIn": int(h.tokenTTL.Seconds()),
	})
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (h *Handler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := h.bind(c, &req); err != nil {
		return err
	}

	session, err := h.Accounts.Login(c.UserContext(), account.LoginParam{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		return err
	}

	h.Logger.InfoContext(c.UserContext(), "User logged in", "user_id", session.User.ID, "ip", c.IP())
	return c.JSON(fiber.Map{
		"message":   "login successful",
		"token":     session.Token,
		"user":      session.User.Public(),
		"expiresIn": int(h.tokenTTL.Seconds()),
	})
}

type followRequest struct {
	FollowerID  string `json:"followerId" validate:"required"`
	FollowingID string `json:"followingId" validate:"required"`
}

// bindFollow reads a follow edge the caller is allowed to change.
func (h *Handler) bindFollow(c *fiber.Ctx) (followRequest, error) {
	var req followRequest
	if err := h.bind(c, &req); err != nil {
		return req, err
	}
	if req.FollowerID != UserID(c) {
		if ok, err := h.Admin.IsAdmin(c.UserContext(), UserID(c)); err != nil || !ok {
			return req, ErrForbidden
		}
	}
	return req, nil
}

func (h *Handler) Follow(c *fiber.Ctx) error {
	req, err := h.bindFollow(c)
	if err != nil {
		return err
	}
	edge, err := h.Social.Follow(c.UserContext(), req.FollowerID, req.FollowingID)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "user followed successfully",
		"follow":  edge,
	})
}

func (h *Handler) Unfollow(c *fiber.Ctx) error {
	req, err := h.bindFollow(c)
	if err != nil {
		return err
	}
	if err := h.Social.Unfollow(c.UserContext(), req.FollowerID, req.FollowingID); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "user unfollowed successfully"})
}

func (h *Handler) Followers(c *fiber.Ctx) error {
	followers, err := h.Social.Followers(c.UserContext(), c.Params("uid"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "followers retrieved", "followers": followers, "count": len(followers)})
}

func (h *Handler) Following(c *fiber.Ctx) error {
	following, err := h.Social.Following(c.UserContext(), c.Params("uid"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "following retrieved", "following": following, "count": len(following)})
}

func (h *Handler) ListProfiles(c *fiber.Ctx) error {
	page, err := h.Users.ListProfiles(c.UserContext(), user.ListProfilesParams{
		Page:   c.QueryInt("page", 1),
		Limit:  c.QueryInt("limit", 20),
		Role:   c.Query("role"),
		Skills: queryList(c, "skills"),
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"message":    "profiles retrieved",
		"profiles":   page.Profiles,
		"count":      len(page.Profiles),
		"pagination": fiber.Map{
			"page":  page.Page,
			"limit": page.Limit,
		},
		"filters": filters(c, "role", "skills"),
	})
}

func (h *Handler) GetUser(c *fiber.Ctx) error {
	u, err := h.Users.Get(c.UserContext(), c.Params("uid"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "user retrieved", "user": u.Public()})
}

func (h *Handler) GetProfile(c *fiber.Ctx) error {
	profile, err := h.Users.Profile(c.UserContext(), c.Params("uid"), c.Query("currentUserId"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "profile retrieved", "profile": profile})
}

func (h *Handler) UpdateProfile(c *fiber.Ctx) error {
	var in user.ProfileInput
	if err := h.bind(c, &in); err != nil {
		return err
	}
	u, err := h.Users.UpdateProfile(c.UserContext(), c.Params("uid"), in)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"message": "profile updated successfully",
		"user":    u.Public(),
	})
}

func (h *Handler) DeleteUser(c *fiber.Ctx) error {
	if err := h.Users.Delete(c.UserContext(), c.Params("uid")); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "user deleted successfully"})
}

func (h *Handler) OnboardingStatus(c *fiber.Ctx) error {
	status, err := h.Users.OnboardingStatus(c.UserContext(), c.Params("uid"))
	if err != nil {
		return err
	}
	return c.JSON(struct {
		Message string `json:"message"`
		user.OnboardingStatus
	}{"onboarding status retrieved", status})
}

func (h *Handler) CompleteOnboarding(c *fiber.Ctx) error {
	var in user.ProfileInput
	if err := h.bind(c, &in); err != nil {
		return err
	}
	u, err := h.Users.CompleteOnboarding(c.UserContext(), c.Params("uid"), in)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"message": "onboarding completed successfully",
		"user":    u.Public(),
	})
}

package handler

import (
	"errors"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/herdwatch/herdwatch/internal/api/auth"
	"github.com/herdwatch/herdwatch/internal/api/models"
	"github.com/herdwatch/herdwatch/internal/database"
)

func (h *Handler) Users(c *gin.Context) {
	accounts, err := h.db.ListAccounts(c.Request.Context())
	if err != nil {
		internalError(c, "Failed to list accounts", err)
		return
	}
	h.render(c, http.StatusOK, "users.html", page{
		Title:    "Users",
		Accounts: models.ToAccountItems(accounts),
	})
}

func (h *Handler) AddUserPage(c *gin.Context) {
	h.render(c, http.StatusOK, "add_user.html", page{Title: "Add user"})
}

func (h *Handler) AddUser(c *gin.Context) {
	username := c.PostForm("username")
	password := c.PostForm("password")
	if username == "" || password == "" {
		c.String(http.StatusBadRequest, "Username and password are required")
		return
	}
	role, err := database.ParseRole(c.PostForm("role"))
	if err != nil {
		c.String(http.StatusBadRequest, "Invalid role")
		return
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		c.String(http.StatusBadRequest, "Invalid password")
		return
	}

	if _, err := h.db.CreateAccount(c.Request.Context(), username, hash, role); err != nil {
		if errors.Is(err, database.ErrAccountExists) {
			c.String(http.StatusConflict, "User already exists")
			return
		}
		internalError(c, "Failed to create account", err)
		return
	}

	log.Info("Created account.", "username", username, "role", role, "by", currentUser(c).Username)
	c.Redirect(http.StatusFound, "/dashboard")
}

func (h *Handler) EditUserPage(c *gin.Context) {
	account, err := h.db.GetAccount(c.Request.Context(), c.Param("username"))
	if err != nil {
		if errors.Is(err, database.ErrAccountNotFound) {
			c.String(http.StatusNotFound, "User not found")
			return
		}
		internalError(c, "Failed to get account", err)
		return
	}

	item := models.ToAccountItem(*account)
	h.render(c, http.StatusOK, "edit_user.html", page{
		Title:   "Edit user",
		Account: &item,
	})
}

// EditUser sets role and, when given, a new password.
func (h *Handler) EditUser(c *gin.Context) {
	username := c.Param("username")
	role, err := database.ParseRole(c.PostForm("role"))
	if err != nil {
		c.String(http.StatusBadRequest, "Invalid role")
		return
	}

	var hash string
	if password := c.PostForm("password"); password != "" {
		if hash, err = auth.HashPassword(password); err != nil {
			c.String(http.StatusBadRequest, "Invalid password")
			return
		}
	}

	if _, err := h.db.UpdateAccount(c.Request.Context(), username, hash, role); err != nil {
		if errors.Is(err, database.ErrAccountNotFound) {
			c.String(http.StatusNotFound, "User not found")
			return
		}
		internalError(c, "Failed to update account", err)
		return
	}

	log.Info("Updated account.", "username", username, "role", role, "password_changed", hash != "", "by", currentUser(c).Username)
	c.Redirect(http.StatusFound, "/dashboard")
}

func (h *Handler) DeleteUser(c *gin.Context) {
	username := c.Param("username")
	actor := currentUser(c).Username

	if err := h.db.DeleteAccount(c.Request.Context(), username, actor); err != nil {
		if errors.Is(err, database.ErrSelfDelete) {
			c.String(http.StatusBadRequest, "You cannot delete your own account")
			return
		}
		internalError(c, "Failed to delete account", err)
		return
	}

	log.Info("Deleted account.", "username", username, "by", actor)
	c.Redirect(http.StatusFound, "/dashboard")
}

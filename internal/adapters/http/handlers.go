package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Ring/internal/crypto"
	"github.com/dkeye/Ring/internal/dal"
	"github.com/dkeye/Ring/internal/domain"
)

type handlers struct {
	deps Deps
}

type credentials struct {
	Username  string `json:"username" binding:"required"`
	Password  string `json:"password" binding:"required"`
	AvatarURL string `json:"avatar_url"`
}

func (h *handlers) createUser(c *gin.Context) {
	var req credentials
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := domain.ValidateUsername(req.Username); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	hashed, err := crypto.HashPassword(req.Password)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "hashing failed"})
		return
	}
	user, err := h.deps.Users.Create(c.Request.Context(), req.Username, hashed, req.AvatarURL)
	if err != nil {
		if errors.Is(err, dal.ErrUsernameUsed) {
			c.JSON(http.StatusConflict, gin.H{"error": "username already taken"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	h.setIdentity(c, user.ID)
	c.JSON(http.StatusCreated, user)
}

func (h *handlers) login(c *gin.Context) {
	var req credentials
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	user, hashed, err := h.deps.Users.GetByUsername(c.Request.Context(), req.Username)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "bad credentials"})
		return
	}
	if err := crypto.CompareHashAndPassword(hashed, req.Password); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "bad credentials"})
		return
	}
	h.setIdentity(c, user.ID)
	c.JSON(http.StatusOK, user)
}

func (h *handlers) setIdentity(c *gin.Context, id domain.Identity) {
	sess := sessions.Default(c)
	sess.Set(sessionIdentityKey, string(id))
	if err := sess.Save(); err != nil {
		log.Warn().Err(err).Str("module", "adapters.http").Msg("session save failed")
	}
}

func (h *handlers) searchUsers(c *gin.Context) {
	q := c.Query("q")
	if q == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing query"})
		return
	}
	users, err := h.deps.Users.Search(c.Request.Context(), q)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, users)
}

// online exposes the live presence snapshot over REST so clients can render
// the roster before opening the signaling socket.
func (h *handlers) online(c *gin.Context) {
	c.JSON(http.StatusOK, h.deps.Registry.Snapshot())
}

func (h *handlers) history(c *gin.Context) {
	id, ok := h.requireIdentity(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	recs, err := h.deps.History.ByIdentity(c.Request.Context(), id, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, recs)
}

func (h *handlers) friendRequest(c *gin.Context) {
	id, ok := h.requireIdentity(c)
	if !ok {
		return
	}
	target := domain.Identity(c.Param("identity"))
	if err := target.Validate(); err != nil || target == id {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad target"})
		return
	}
	if _, err := h.deps.Users.GetByID(c.Request.Context(), target); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no such user"})
		return
	}
	if err := h.deps.Friends.Request(c.Request.Context(), id, target); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) friendRespond(c *gin.Context) {
	id, ok := h.requireIdentity(c)
	if !ok {
		return
	}
	requester := domain.Identity(c.Param("identity"))
	var req struct {
		Accept bool `json:"accept"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	err := h.deps.Friends.Respond(c.Request.Context(), requester, id, req.Accept)
	if err != nil {
		if errors.Is(err, dal.ErrNoSuchRequest) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no such request"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) friendsList(c *gin.Context) {
	id, ok := h.requireIdentity(c)
	if !ok {
		return
	}
	friends, err := h.deps.Friends.FriendsOf(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, friends)
}

func (h *handlers) friendRequests(c *gin.Context) {
	id, ok := h.requireIdentity(c)
	if !ok {
		return
	}
	reqs, err := h.deps.Friends.RequestsFor(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, reqs)
}

// me aggregates the caller's profile, friend list and pending requests,
// enough for a client to render its home view in one round trip.
func (h *handlers) me(c *gin.Context) {
	id, ok := h.requireIdentity(c)
	if !ok {
		return
	}
	user, err := h.deps.Users.GetByID(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	friends, err := h.deps.Friends.FriendsOf(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	requests, err := h.deps.Friends.RequestsFor(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user":     user,
		"friends":  friends,
		"requests": requests,
	})
}

func (h *handlers) requireIdentity(c *gin.Context) (domain.Identity, bool) {
	id := c.GetString("identity")
	if id == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not logged in"})
		return "", false
	}
	return domain.Identity(id), true
}

package router

import (
	"net/mail"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"simcore/pkg/apierr"
	"simcore/pkg/dbgateway"
)

func (s *Server) register(c *gin.Context) {
	var req RegisterRequest
	if err := c.BindJSON(&req); err != nil {
		s.fail(c, apierr.New(apierr.Validation, "invalid request payload"))
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		s.fail(c, apierr.New(apierr.Validation, "email and password are required"))
		return
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		s.fail(c, apierr.New(apierr.Validation, "invalid email format"))
		return
	}

	ctx := c.Request.Context()
	if _, err := s.db.Users().ByEmail(ctx, req.Email); err == nil {
		s.fail(c, apierr.New(apierr.Conflict, "email already registered"))
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		s.fail(c, apierr.Wrap(apierr.Internal, "hash password", err))
		return
	}
	user := dbgateway.User{ID: uuid.NewString(), Email: req.Email, PasswordHash: string(hash), Role: "user"}
	if err := s.db.Users().Create(ctx, user); err != nil {
		s.fail(c, apierr.Wrap(apierr.Internal, "create user", err))
		return
	}

	token, err := s.auth.IssueAccessToken(user.ID, user.Role, s.cfg.AccessTokenExpiry)
	if err != nil {
		s.fail(c, apierr.Wrap(apierr.Internal, "issue token", err))
		return
	}
	c.JSON(201, TokenResponse{AccessToken: token, UserID: user.ID})
}

func (s *Server) login(c *gin.Context) {
	var req LoginRequest
	if err := c.BindJSON(&req); err != nil {
		s.fail(c, apierr.New(apierr.Validation, "invalid request payload"))
		return
	}

	ctx := c.Request.Context()
	user, err := s.db.Users().ByEmail(ctx, strings.TrimSpace(req.Email))
	if err != nil {
		s.fail(c, apierr.New(apierr.Authentication, "invalid credentials"))
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		s.fail(c, apierr.New(apierr.Authentication, "invalid credentials"))
		return
	}

	token, err := s.auth.IssueAccessToken(user.ID, user.Role, s.cfg.AccessTokenExpiry)
	if err != nil {
		s.fail(c, apierr.Wrap(apierr.Internal, "issue token", err))
		return
	}
	c.JSON(200, TokenResponse{AccessToken: token, UserID: user.ID})
}

// fail writes the REST error shape of §7 ("{success:false, error, errorCode,
// category}" + HTTP status).
func (s *Server) fail(c *gin.Context, err error) {
	body := apierr.ToBody(err)
	c.JSON(apierr.HTTPStatus(apierr.KindOf(err)), body)
}

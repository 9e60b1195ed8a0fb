package router

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"simcore/pkg/apierr"
	"simcore/pkg/dbgateway"
)

// Fund/book/feedback CRUD is named Out-of-scope business logic in spec §1;
// these handlers exist only so the REST surface named in §6 is complete,
// forwarding straight to DatabaseGateway.

func (s *Server) createFund(c *gin.Context) {
	var req FundRequest
	if err := c.BindJSON(&req); err != nil {
		s.fail(c, apierr.New(apierr.Validation, "invalid request payload"))
		return
	}
	f := dbgateway.Fund{ID: uuid.NewString(), UserID: currentUserID(c), Name: req.Name}
	if err := s.db.Funds().CreateFund(c.Request.Context(), f); err != nil {
		s.fail(c, apierr.Wrap(apierr.Internal, "create fund", err))
		return
	}
	c.JSON(201, gin.H{"fund": f})
}

func (s *Server) listFunds(c *gin.Context) {
	funds, err := s.db.Funds().FundsByUser(c.Request.Context(), currentUserID(c))
	if err != nil {
		s.fail(c, apierr.Wrap(apierr.Internal, "list funds", err))
		return
	}
	c.JSON(200, gin.H{"funds": funds})
}

func (s *Server) createBook(c *gin.Context) {
	var req BookRequest
	if err := c.BindJSON(&req); err != nil {
		s.fail(c, apierr.New(apierr.Validation, "invalid request payload"))
		return
	}
	b := dbgateway.Book{ID: uuid.NewString(), FundID: req.FundID, Name: req.Name}
	if err := s.db.Funds().CreateBook(c.Request.Context(), b); err != nil {
		s.fail(c, apierr.Wrap(apierr.Internal, "create book", err))
		return
	}
	c.JSON(201, gin.H{"book": b})
}

func (s *Server) listBooks(c *gin.Context) {
	fundID := c.Param("fundId")
	books, err := s.db.Funds().BooksByFund(c.Request.Context(), fundID)
	if err != nil {
		s.fail(c, apierr.Wrap(apierr.Internal, "list books", err))
		return
	}
	c.JSON(200, gin.H{"books": books})
}

func (s *Server) createFeedback(c *gin.Context) {
	var req FeedbackRequest
	if err := c.BindJSON(&req); err != nil {
		s.fail(c, apierr.New(apierr.Validation, "invalid request payload"))
		return
	}
	f := dbgateway.Feedback{ID: uuid.NewString(), UserID: currentUserID(c), Message: req.Message}
	if err := s.db.Feedback().Create(c.Request.Context(), f); err != nil {
		s.fail(c, apierr.Wrap(apierr.Internal, "create feedback", err))
		return
	}
	c.JSON(201, gin.H{"feedback": f})
}

func (s *Server) listFeedback(c *gin.Context) {
	items, err := s.db.Feedback().ByUser(c.Request.Context(), currentUserID(c))
	if err != nil {
		s.fail(c, apierr.Wrap(apierr.Internal, "list feedback", err))
		return
	}
	c.JSON(200, gin.H{"feedback": items})
}

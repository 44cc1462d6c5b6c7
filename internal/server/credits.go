package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

func (s *Server) GetCredits(c *gin.Context) {
	balance, err := s.accountSvc.Balance(c.Request.Context(), s.currentUserID(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"credits": balance}})
}

type grantCreditsRequest struct {
	Amount    int64  `json:"amount"`
	Reference string `json:"reference"`
}

// GrantCredits hands out test credits. Disabled in production; real top-ups
// go through CreatePurchase.
func (s *Server) GrantCredits(c *gin.Context) {
	if s.cfg.IsProduction() {
		AbortWithError(c, ErrForbidden)
		return
	}

	var req grantCreditsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	balance, err := s.accountSvc.Grant(c.Request.Context(), s.currentUserID(c), req.Amount, strings.TrimSpace(req.Reference))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"credits": balance, "granted": req.Amount}})
}

type createPurchaseRequest struct {
	ProductID     string `json:"productId"`
	PurchaseToken string `json:"purchaseToken"`
	Credits       int64  `json:"credits"`
}

func (s *Server) CreatePurchase(c *gin.Context) {
	var req createPurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	productID := strings.TrimSpace(req.ProductID)
	token := strings.TrimSpace(req.PurchaseToken)
	if productID == "" || token == "" {
		AbortWithError(c, invalidRequestError())
		return
	}

	verified, err := s.billingSvc.VerifyPurchase(c.Request.Context(), productID, token)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	credits := verified.Credits
	if credits <= 0 {
		credits = req.Credits
	}

	balance, granted, err := s.accountSvc.RedeemPurchase(c.Request.Context(), s.currentUserID(c), productID, token, credits)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if granted {
		if err := s.billingSvc.Acknowledge(c.Request.Context(), productID, token); err != nil {
			AbortWithError(c, err)
			return
		}
	}

	creditsAdded := int64(0)
	if granted {
		creditsAdded = credits
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"productId":    productID,
		"creditsAdded": creditsAdded,
		"newBalance":   balance,
	}})
}

package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mediacastd/playout-server/internal/metrics"
	"github.com/mediacastd/playout-server/internal/netutil"
)

// SystemHandler serves host-level views: interface listing and metrics.
type SystemHandler struct {
	log     *zap.Logger
	nics    *netutil.NICLister
	sampler *metrics.Sampler
}

// NewSystemHandler constructs a SystemHandler instance.
func NewSystemHandler(log *zap.Logger, sampler *metrics.Sampler) *SystemHandler {
	return &SystemHandler{
		log:     log.Named("system"),
		nics:    netutil.NewNICLister(netutil.NICListerOptions{}),
		sampler: sampler,
	}
}

// GetNICs lists the bindable network interfaces.
func (h *SystemHandler) GetNICs(c *gin.Context) {
	nics, err := h.nics.List(c.Request.Context())
	if err != nil {
		c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
		return
	}

	c.Header("X-Total-Count", strconv.Itoa(len(nics)))
	c.JSON(http.StatusOK, nics)
}

// GetMetrics returns the most recent host metrics sample.
func (h *SystemHandler) GetMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, h.sampler.Current())
}

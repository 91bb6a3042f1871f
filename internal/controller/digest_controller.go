package controller

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"rancher-error-digest/internal/dto"
	"rancher-error-digest/internal/model"
	"rancher-error-digest/internal/service"
	"rancher-error-digest/internal/store"
	"rancher-error-digest/internal/util"
)

type DigestController struct {
	digestService service.DigestService
	digestStore   store.DigestStore
	gatherer      prometheus.Gatherer
}

func NewDigestController(digestService service.DigestService, digestStore store.DigestStore, gatherer prometheus.Gatherer) *DigestController {
	return &DigestController{
		digestService: digestService,
		digestStore:   digestStore,
		gatherer:      gatherer,
	}
}

func RegisterDigestRoutes(router *gin.Engine, controller *DigestController) {
	router.GET("/healthz", controller.Health)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(controller.gatherer, promhttp.HandlerOpts{})))

	v1 := router.Group("/api/v1/digest")
	{
		v1.GET("/latest", controller.GetLatestDigest)
		v1.POST("/run", controller.TriggerRun)
	}
}

func (c *DigestController) Health(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, model.NewResponse("ok", nil))
}

// GetLatestDigest returns the most recent digest. The optional since query
// (RFC 3339, epoch milliseconds or a duration like 15m) drops older lines.
func (c *DigestController) GetLatestDigest(ctx *gin.Context) {
	since, err := util.ParseSince(ctx.Query("since"), time.Now())
	if err != nil {
		ctx.JSON(http.StatusBadRequest, model.NewResponse("Invalid since format. Use ISO 8601, epoch milliseconds or a duration.", nil))
		return
	}

	digest, err := c.digestStore.Latest(ctx.Request.Context())
	if errors.Is(err, store.ErrNoDigest) {
		ctx.JSON(http.StatusNotFound, model.NewResponse("No digest has been produced yet", nil))
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("Failed to load latest digest")
		ctx.JSON(http.StatusInternalServerError, model.NewResponse("Failed to load latest digest", nil))
		return
	}

	ctx.JSON(http.StatusOK, model.NewResponse("Success", dto.NewDigestResponse(digest, since)))
}

// TriggerRun runs a digest immediately, outside the schedule.
func (c *DigestController) TriggerRun(ctx *gin.Context) {
	digest, err := c.digestService.Run(ctx.Request.Context())
	if errors.Is(err, service.ErrRunInProgress) {
		ctx.JSON(http.StatusConflict, model.NewResponse(err.Error(), nil))
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("Triggered digest run failed")
		ctx.JSON(http.StatusInternalServerError, model.NewResponse("Digest run failed: "+err.Error(), nil))
		return
	}

	ctx.JSON(http.StatusOK, model.NewResponse("Success", dto.NewDigestResponse(digest, time.Time{})))
}

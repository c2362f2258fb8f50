package http

import (
	"net/http"

	"screenrelay/internal/core/domain"
	"screenrelay/internal/core/ports"

	"github.com/gin-gonic/gin"
)

// StatusHandler exposes the operational read API: live sessions, the device
// directory, and a manual refresh trigger.
type StatusHandler struct {
	sessions  ports.SessionService
	registry  ports.DeviceRegistry
	directory ports.DeviceDirectory
}

func NewStatusHandler(
	sessions ports.SessionService,
	registry ports.DeviceRegistry,
	directory ports.DeviceDirectory,
) *StatusHandler {
	return &StatusHandler{
		sessions:  sessions,
		registry:  registry,
		directory: directory,
	}
}

func (h *StatusHandler) SetupRoutes(router *gin.Engine) {
	api := router.Group("/api/v1")
	{
		api.GET("/sessions", h.ListSessions)
		api.GET("/devices", h.ListDevices)
		api.POST("/devices/refresh", h.RefreshDevices)
		api.POST("/devices/:target/resolve", h.ResolveDevice)
	}
}

func (h *StatusHandler) ListSessions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"sessions": h.sessions.Status(),
	})
}

func (h *StatusHandler) ListDevices(c *gin.Context) {
	entries, err := h.directory.ListDevices(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	type deviceView struct {
		DeviceID    domain.DeviceID `json:"device_id"`
		DisplayName string          `json:"display_name"`
		Model       string          `json:"model,omitempty"`
		State       string          `json:"state"`
	}
	devices := make([]deviceView, 0, len(entries))
	for _, e := range entries {
		devices = append(devices, deviceView{
			DeviceID:    e.DeviceID,
			DisplayName: e.DisplayName,
			Model:       e.Model,
			State:       e.State,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"devices": devices,
	})
}

func (h *StatusHandler) RefreshDevices(c *gin.Context) {
	if err := h.registry.Refresh(c.Request.Context()); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *StatusHandler) ResolveDevice(c *gin.Context) {
	target := domain.TargetName(c.Param("target"))

	deviceID, err := h.registry.Resolve(c.Request.Context(), target)
	if err != nil {
		// ErrorHandlerMiddleware maps the resolution errors onto responses.
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"target":    target,
		"device_id": deviceID,
	})
}

package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"tripmerge/internal/modules/settings"
)

type SettingsService interface {
	All(ctx context.Context) ([]settings.Value, error)
	Set(ctx context.Context, key settings.Key, raw string) error
	Get(ctx context.Context, key settings.Key) (settings.Value, error)
}

type SettingsHandler struct {
	settings SettingsService
}

func NewSettingsHandler(svc SettingsService) *SettingsHandler {
	return &SettingsHandler{settings: svc}
}

type settingView struct {
	Key     string `json:"key"`
	Value   string `json:"value"`
	Kind    string `json:"kind"`
	Default string `json:"default"`
}

func view(v settings.Value) settingView {
	return settingView{Key: v.Key.String(), Value: v.Raw, Kind: v.Key.Kind().String(), Default: v.Key.Default()}
}

func (h *SettingsHandler) List(c *gin.Context) {
	values, err := h.settings.All(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]settingView, len(values))
	for i, v := range values {
		out[i] = view(v)
	}
	writeOK(c, http.StatusOK, "", out)
}

type updateSettingReq struct {
	Value *string `json:"value" binding:"required"`
}

func (h *SettingsHandler) Update(c *gin.Context) {
	key, err := settings.ParseKey(c.Param("key"))
	if err != nil {
		writeBadRequest(c, err.Error())
		return
	}
	var req updateSettingReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBadRequest(c, "value is required")
		return
	}
	if err := h.settings.Set(c.Request.Context(), key, *req.Value); err != nil {
		writeError(c, err)
		return
	}
	v, err := h.settings.Get(c.Request.Context(), key)
	if err != nil {
		writeError(c, err)
		return
	}
	writeOK(c, http.StatusOK, "setting updated", view(v))
}
